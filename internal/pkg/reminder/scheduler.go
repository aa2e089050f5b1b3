package reminder

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"tribute-gateway/internal/pkg/cache"
	"tribute-gateway/internal/pkg/panel"
)

// DeviceChecker is the panel-side lookup the reminder needs.
type DeviceChecker interface {
	GetUserDevices(ctx context.Context, panelUserUUID string) ([]panel.Device, error)
}

// SendFunc delivers the reminder message for a fired job.
type SendFunc func(ctx context.Context, job Job) error

// DedupFunc reports whether a reminder may be scheduled for the user; used to
// collapse duplicate schedules across activations (and across instances when
// backed by redis).
type DedupFunc func(userID int64) bool

// Job is one deferred not-connected check.
type Job struct {
	UserID        int64
	PanelUserUUID string
	Lang          string
	ConnectURL    string
}

var ErrStopped = errors.New("reminder scheduler stopped")

// Scheduler runs the post-activation "not connected yet" reminder: wait a
// jittered delay, check whether the user connected a device, and nudge them if
// not. Jobs are fire-and-forget from the caller's perspective; failures go to
// an internal channel that is drained into the log, never into the request
// path.
type Scheduler struct {
	devices  DeviceChecker
	send     SendFunc
	dedup    DedupFunc
	minDelay time.Duration
	maxDelay time.Duration

	ctx      context.Context
	cancel   context.CancelFunc
	failures chan error
	wg       sync.WaitGroup
	drainWG  sync.WaitGroup
	startMu  sync.Mutex
	started  bool
}

func NewScheduler(devices DeviceChecker, send SendFunc, minDelay, maxDelay time.Duration) *Scheduler {
	if minDelay <= 0 {
		minDelay = 5 * time.Minute
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		devices:  devices,
		send:     send,
		minDelay: minDelay,
		maxDelay: maxDelay,
		ctx:      ctx,
		cancel:   cancel,
		failures: make(chan error, 16),
	}
}

// WithDedup installs a scheduling guard; see RedisDedup.
func (s *Scheduler) WithDedup(dedup DedupFunc) *Scheduler {
	s.dedup = dedup
	return s
}

// RedisDedup marks scheduled reminders in the shared cache so a user is
// reminded at most once per ttl window.
func RedisDedup(ttl time.Duration) DedupFunc {
	return func(userID int64) bool {
		ok, err := cache.SetNX(fmt.Sprintf("reminder:not_connected:%d", userID), 1, ttl)
		if err != nil {
			// Cache trouble must not suppress the reminder.
			log.Warnf("reminder: dedup check failed for user %d: %v", userID, err)
			return true
		}
		return ok
	}
}

// Start begins draining the failure channel. Safe to call once.
func (s *Scheduler) Start() {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.started {
		return
	}
	s.started = true

	s.drainWG.Add(1)
	go func() {
		defer s.drainWG.Done()
		for err := range s.failures {
			log.Errorf("reminder: %v", err)
		}
	}()
}

// Stop cancels pending jobs and waits for in-flight ones.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.failures)
	s.drainWG.Wait()
}

// Schedule queues a deferred not-connected check for the user.
func (s *Scheduler) Schedule(job Job) error {
	if s.ctx.Err() != nil {
		return ErrStopped
	}
	if s.dedup != nil && !s.dedup(job.UserID) {
		log.Debugf("reminder: already scheduled for user %d, skipping", job.UserID)
		return nil
	}

	delay := s.minDelay
	if jitter := s.maxDelay - s.minDelay; jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(jitter)))
	}
	log.Infof("reminder: scheduled not-connected check for user %d in %s", job.UserID, delay)

	s.wg.Add(1)
	go s.run(job, delay)
	return nil
}

func (s *Scheduler) run(job Job, delay time.Duration) {
	defer s.wg.Done()

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		return
	case <-timer.C:
	}

	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()

	devices, err := s.devices.GetUserDevices(ctx, job.PanelUserUUID)
	if err != nil {
		s.fail(fmt.Errorf("device check for user %d: %w", job.UserID, err))
		return
	}
	if len(devices) > 0 {
		log.Debugf("reminder: user %d has connected devices, skipping", job.UserID)
		return
	}

	if err := s.send(ctx, job); err != nil {
		s.fail(fmt.Errorf("reminder send to user %d: %w", job.UserID, err))
		return
	}
	log.Infof("reminder: sent not-connected reminder to user %d", job.UserID)
}

func (s *Scheduler) fail(err error) {
	select {
	case s.failures <- err:
	default:
		log.Errorf("reminder (failure channel full): %v", err)
	}
}
