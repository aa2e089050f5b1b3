package tribute

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"tribute-gateway/app/models"
	"tribute-gateway/app/repository"
	"tribute-gateway/internal/pkg/cache"
	"tribute-gateway/internal/pkg/notify"
	"tribute-gateway/internal/pkg/referral"
	"tribute-gateway/internal/pkg/reminder"
	"tribute-gateway/internal/pkg/subscription"
)

// Activator is the subscription-activation collaborator boundary.
type Activator interface {
	ActivateSubscription(tx *gorm.DB, in subscription.ActivationInput) (*subscription.ActivationResult, error)
}

// BonusApplier is the referral-bonus collaborator boundary.
type BonusApplier interface {
	ApplyBonusesForPayment(tx *gorm.DB, userID int64, months int, paymentID uint) (*referral.Bonus, error)
}

// Notifier delivers best-effort post-payment messages.
type Notifier interface {
	NotifyPaymentSuccess(ctx context.Context, notice notify.PaymentNotice) error
	NotifyAdmins(ctx context.Context, notice notify.PaymentNotice) error
}

// ReminderScheduler queues the deferred not-connected check.
type ReminderScheduler interface {
	Schedule(job reminder.Job) error
}

// DedupCache is the fast-path duplicate check in front of the database unique
// index. The index stays authoritative; the cache only saves round trips on
// retry storms.
type DedupCache interface {
	Seen(key string) bool
	Mark(key string)
}

// ValidationError marks payload problems the provider cannot fix by retrying;
// the controller answers 400.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Outcome describes how a webhook event was resolved.
type Outcome struct {
	Code      string
	PaymentID uint
}

const (
	OutcomeOK               = "ok"
	OutcomeDuplicate        = "duplicate"
	OutcomeIgnored          = "ignored"
	OutcomeActivationFailed = "activation_failed"
)

var validate = validator.New()

// purchase is a fully normalized purchase event, ready for recording.
type purchase struct {
	Kind           EventKind
	TelegramUserID int64   `validate:"required,gt=0"`
	Months         int     `validate:"required,gte=1"`
	Amount         float64 `validate:"gte=0"`
	Currency       string  `validate:"required,min=3,max=8"`
	PaymentID      string  `validate:"required"`
}

// Service converts verified webhook events into exactly one payment record and
// at most one subscription activation per unique provider payment id.
type Service struct {
	cfg       *Config
	db        *gorm.DB
	users     repository.UserRepository
	payments  repository.PaymentRepository
	activator Activator
	bonuses   BonusApplier
	notifier  Notifier
	reminders ReminderScheduler
	dedup     DedupCache
	resolver  ProductDurationResolver
}

// Option configures optional service collaborators.
type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithReminderScheduler(r ReminderScheduler) Option {
	return func(s *Service) { s.reminders = r }
}

func WithDedupCache(c DedupCache) Option {
	return func(s *Service) { s.dedup = c }
}

func WithDurationResolver(r ProductDurationResolver) Option {
	return func(s *Service) { s.resolver = r }
}

func NewService(
	cfg *Config,
	db *gorm.DB,
	repos *repository.Repositories,
	activator Activator,
	bonuses BonusApplier,
	opts ...Option,
) *Service {
	s := &Service{
		cfg:       cfg,
		db:        db,
		users:     repos.User,
		payments:  repos.Payment,
		activator: activator,
		bonuses:   bonuses,
		resolver:  LinkHeuristicResolver{Links: cfg.Links},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleEvent routes one decoded webhook event. Refunds, cancellations and
// unknown event types are acknowledged without state changes.
func (s *Service) HandleEvent(ctx context.Context, ev *WebhookEvent) (*Outcome, error) {
	kind := ev.Kind()
	switch kind {
	case EventDigitalProduct, EventSubscriptionNew, EventSubscriptionRenewed:
		return s.handlePurchase(ctx, ev)
	case EventDigitalProductRefund:
		log.Infof("tribute webhook: refund received for product %d, acknowledged", ev.Payload.ProductID)
		return &Outcome{Code: OutcomeIgnored}, nil
	case EventSubscriptionCancelled:
		log.Infof("tribute webhook: subscription cancelled for user %d, acknowledged", ev.Payload.TelegramUserID)
		return &Outcome{Code: OutcomeIgnored}, nil
	default:
		log.Warnf("tribute webhook: unknown event type %q, acknowledged", ev.Name)
		return &Outcome{Code: OutcomeIgnored}, nil
	}
}

func (s *Service) handlePurchase(ctx context.Context, ev *WebhookEvent) (*Outcome, error) {
	p, err := s.normalize(ev)
	if err != nil {
		return nil, err
	}

	user, userCreated, err := s.users.GetOrCreateByTelegramID(p.TelegramUserID, models.User{
		FirstName:    models.PlaceholderFirstName,
		LanguageCode: s.cfg.DefaultLanguage,
	})
	if err != nil {
		return nil, fmt.Errorf("user lookup for %d: %w", p.TelegramUserID, err)
	}
	if userCreated {
		log.Infof("tribute webhook: created user %d from payment event", p.TelegramUserID)
	}

	if s.dedup != nil && s.dedup.Seen(p.PaymentID) {
		log.Infof("tribute webhook: duplicate payment %s (cache), already processed", p.PaymentID)
		return &Outcome{Code: OutcomeDuplicate}, nil
	}

	saleMode := SaleModeSubscription
	trafficGB := 0
	if s.cfg.TrafficSaleMode {
		// In traffic sale mode the purchased unit count is interpreted as GB.
		saleMode = SaleModeTraffic
		trafficGB = p.Months
	}

	initialStatus := models.PaymentStatusPending
	description := fmt.Sprintf("Tribute subscription %d month(s)", p.Months)
	if p.Kind == EventDigitalProduct {
		// Receipt of a one-time product webhook is itself proof of payment;
		// subscription events reconcile status after activation instead.
		initialStatus = models.PaymentStatusSucceeded
	}
	if saleMode == SaleModeTraffic {
		description = fmt.Sprintf("Tribute traffic package %d GB", trafficGB)
	}

	record := &models.Payment{
		UserID:            p.TelegramUserID,
		Amount:            p.Amount,
		Currency:          p.Currency,
		Status:            initialStatus,
		Provider:          models.PaymentProviderTribute,
		ProviderPaymentID: p.PaymentID,
		Description:       description,
	}
	if saleMode == SaleModeTraffic {
		record.TrafficGB = trafficGB
	} else {
		record.SubscriptionDurationMonths = p.Months
	}

	created, stored, err := s.payments.CreateIfNotExists(record)
	if err != nil {
		return nil, fmt.Errorf("create payment record %s: %w", p.PaymentID, err)
	}
	if !created {
		log.Infof("tribute webhook: duplicate payment %s, already processed", p.PaymentID)
		return &Outcome{Code: OutcomeDuplicate, PaymentID: stored.ID}, nil
	}
	if s.dedup != nil {
		s.dedup.Mark(p.PaymentID)
	}
	log.Infof("tribute: payment record %d created for user %d (%s)", stored.ID, p.TelegramUserID, p.PaymentID)

	// Activation, referral bonus and the status update land together or not at
	// all. A rollback here surfaces as 500; the provider retry is absorbed by
	// the duplicate short-circuit above.
	var activation *subscription.ActivationResult
	var bonus *referral.Bonus
	err = s.transact(func(tx *gorm.DB) error {
		in := subscription.ActivationInput{
			UserID:    p.TelegramUserID,
			Amount:    p.Amount,
			Currency:  p.Currency,
			PaymentID: stored.ID,
			Provider:  models.PaymentProviderTribute,
			SaleMode:  saleMode,
		}
		if saleMode == SaleModeTraffic {
			in.TrafficGB = trafficGB
		} else {
			in.Months = p.Months
		}

		var aerr error
		activation, aerr = s.activator.ActivateSubscription(tx, in)
		if aerr != nil {
			return fmt.Errorf("activate subscription for user %d: %w", p.TelegramUserID, aerr)
		}
		if activation == nil || !activation.Activated {
			return s.payments.UpdateStatus(tx, stored.ID, models.PaymentStatusFailed)
		}

		if saleMode != SaleModeTraffic {
			var berr error
			bonus, berr = s.bonuses.ApplyBonusesForPayment(tx, p.TelegramUserID, p.Months, stored.ID)
			if berr != nil {
				return fmt.Errorf("apply referral bonuses for payment %d: %w", stored.ID, berr)
			}
		}

		return s.payments.UpdateStatus(tx, stored.ID, models.PaymentStatusSucceeded)
	})
	if err != nil {
		return nil, err
	}

	if activation == nil || !activation.Activated {
		reason := "subscription_activation_failed"
		if activation != nil && activation.MessageKey != "" {
			reason = activation.MessageKey
		}
		log.Errorf("tribute webhook: activation failed for user %d: %s", p.TelegramUserID, reason)
		return &Outcome{Code: OutcomeActivationFailed, PaymentID: stored.ID}, nil
	}

	s.notifySuccess(ctx, user, p, saleMode, trafficGB, activation, bonus)
	s.maybeScheduleReminder(user, activation)

	return &Outcome{Code: OutcomeOK, PaymentID: stored.ID}, nil
}

// normalize validates the payload and maps provider identifiers and amounts to
// canonical units.
func (s *Service) normalize(ev *WebhookEvent) (*purchase, error) {
	raw := ev.Payload
	if raw.TelegramUserID == 0 {
		return nil, &ValidationError{Reason: "missing_telegram_user_id"}
	}
	if raw.TelegramUserID < 0 {
		return nil, &ValidationError{Reason: "invalid_telegram_user_id"}
	}

	kind := ev.Kind()
	months := 0
	if kind == EventDigitalProduct {
		months = s.resolver.MonthsForProduct(int64(raw.ProductID))
	} else {
		months = MonthsForPeriod(raw.Period)
	}

	currency := strings.ToUpper(strings.TrimSpace(raw.Currency))
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}

	p := &purchase{
		Kind:           kind,
		TelegramUserID: int64(raw.TelegramUserID),
		Months:         months,
		Amount:         NormalizeAmount(int64(raw.Amount), currency, s.cfg.MinorUnitCurrencies),
		Currency:       currency,
		PaymentID:      DeriveProviderPaymentID(ev),
	}
	if err := validate.Struct(p); err != nil {
		return nil, &ValidationError{Reason: "invalid_payload"}
	}
	return p, nil
}

func (s *Service) transact(fn func(tx *gorm.DB) error) error {
	if s.db == nil {
		return fn(nil)
	}
	return s.db.Transaction(fn)
}

func (s *Service) notifySuccess(
	ctx context.Context,
	user *models.User,
	p *purchase,
	saleMode string,
	trafficGB int,
	activation *subscription.ActivationResult,
	bonus *referral.Bonus,
) {
	if s.notifier == nil {
		return
	}

	notice := notify.PaymentNotice{
		User:            user,
		SaleMode:        saleMode,
		Months:          p.Months,
		TrafficGB:       trafficGB,
		Amount:          p.Amount,
		Currency:        p.Currency,
		EndDate:         activation.EndDate,
		SubscriptionURL: activation.SubscriptionURL,
	}
	if bonus != nil {
		notice.BonusDays = bonus.RefereeBonusAppliedDays
		notice.FinalEndDate = bonus.RefereeNewEndDate
		if user.ReferredByID != nil {
			inviter, err := s.users.GetByTelegramID(*user.ReferredByID)
			if err != nil {
				log.Warnf("tribute notification: inviter %d lookup failed: %v", *user.ReferredByID, err)
			} else {
				notice.Inviter = inviter
			}
		}
	}

	if err := s.notifier.NotifyPaymentSuccess(ctx, notice); err != nil {
		log.Errorf("tribute notification: failed to send message to user %d: %v", user.TelegramID, err)
	}
	if err := s.notifier.NotifyAdmins(ctx, notice); err != nil {
		log.Errorf("tribute notification: failed to notify admins: %v", err)
	}
}

func (s *Service) maybeScheduleReminder(user *models.User, activation *subscription.ActivationResult) {
	if s.reminders == nil || !activation.FirstTime || activation.PanelUserUUID == "" {
		return
	}
	err := s.reminders.Schedule(reminder.Job{
		UserID:        user.TelegramID,
		PanelUserUUID: activation.PanelUserUUID,
		Lang:          user.Language(),
		ConnectURL:    activation.SubscriptionURL,
	})
	if err != nil {
		log.Warnf("tribute: could not schedule not-connected reminder for user %d: %v", user.TelegramID, err)
	}
}

// redisDedup implements DedupCache on the shared cache with a bounded TTL.
type redisDedup struct {
	ttl time.Duration
}

// NewRedisDedupCache returns the cache-backed fast-path duplicate guard.
func NewRedisDedupCache(ttl time.Duration) DedupCache {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &redisDedup{ttl: ttl}
}

func (d *redisDedup) Seen(key string) bool {
	ok, err := cache.Exists("tribute:payment:" + key)
	if err != nil {
		// On cache trouble fall through to the database check.
		return false
	}
	return ok
}

func (d *redisDedup) Mark(key string) {
	if err := cache.Set("tribute:payment:"+key, 1, d.ttl); err != nil {
		log.Debugf("tribute: dedup mark failed for %s: %v", key, err)
	}
}
