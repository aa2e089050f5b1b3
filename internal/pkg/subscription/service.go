package subscription

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tribute-gateway/app/models"
	"tribute-gateway/app/repository"
	"tribute-gateway/internal/pkg/env"
)

// ActivationInput carries one activation request from the payment path.
type ActivationInput struct {
	UserID    int64
	Months    int
	Amount    float64
	Currency  string
	PaymentID uint
	Provider  string
	SaleMode  string
	TrafficGB int
	IsTrial   bool
}

// ActivationResult reports the outcome of an activation attempt. It is never
// persisted directly; callers reflect it into payment status and notification
// content.
type ActivationResult struct {
	Activated       bool
	EndDate         time.Time
	SubscriptionURL string
	PanelUserUUID   string
	TrafficGB       int
	FirstTime       bool
	// MessageKey names the failure reason when Activated is false.
	MessageKey string
}

// Service creates and extends user subscriptions. All writes go through the
// caller's transaction handle so activation participates in the webhook
// handler's unit of work.
type Service struct {
	subs         repository.SubscriptionRepository
	panelBaseURL string
}

func NewService(subs repository.SubscriptionRepository, panelBaseURL string) *Service {
	return &Service{
		subs:         subs,
		panelBaseURL: strings.TrimRight(strings.TrimSpace(panelBaseURL), "/"),
	}
}

// NewServiceFromEnv wires the service against the configured panel base URL.
func NewServiceFromEnv(subs repository.SubscriptionRepository) *Service {
	return NewService(subs, env.GetEnv("PANEL_API_URL", ""))
}

// ActivateSubscription extends the user's entitlement by the requested months
// and/or traffic volume. The end date extends from the current end date when
// the subscription is still active, otherwise from now.
func (s *Service) ActivateSubscription(tx *gorm.DB, in ActivationInput) (*ActivationResult, error) {
	if in.Months <= 0 && in.TrafficGB <= 0 {
		return &ActivationResult{Activated: false, MessageKey: "activation_invalid_duration"}, nil
	}

	now := time.Now()
	firstTime := false

	sub, err := s.subs.GetByUserID(tx, in.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		sub = &models.Subscription{
			UserID:  in.UserID,
			EndDate: now,
		}
		firstTime = true
	} else if err != nil {
		return nil, err
	}

	if sub.PanelUserUUID == "" {
		sub.PanelUserUUID = uuid.NewString()
	}

	if in.Months > 0 {
		base := sub.EndDate
		if base.Before(now) {
			base = now
		}
		sub.EndDate = base.AddDate(0, in.Months, 0)
	}
	if in.TrafficGB > 0 {
		sub.TrafficGB += in.TrafficGB
	}
	sub.IsTrial = in.IsTrial

	if err := s.subs.Save(tx, sub); err != nil {
		return nil, err
	}

	return &ActivationResult{
		Activated:       true,
		EndDate:         sub.EndDate,
		SubscriptionURL: s.SubscriptionURL(sub.PanelUserUUID),
		PanelUserUUID:   sub.PanelUserUUID,
		TrafficGB:       sub.TrafficGB,
		FirstTime:       firstTime,
	}, nil
}

// HasHadAnySubscription reports whether the user ever had an entitlement.
func (s *Service) HasHadAnySubscription(tx *gorm.DB, userID int64) (bool, error) {
	_, err := s.subs.GetByUserID(tx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SubscriptionURL builds the user-facing config link for a panel user.
func (s *Service) SubscriptionURL(panelUserUUID string) string {
	if s.panelBaseURL == "" || panelUserUUID == "" {
		return ""
	}
	return s.panelBaseURL + "/sub/" + panelUserUUID
}
