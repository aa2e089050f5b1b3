package referral

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"tribute-gateway/app/repository"
	"tribute-gateway/internal/pkg/env"
)

// Bonus describes the referee-side effect of a referral bonus; the displayed
// end date in the payment notification is overridden by RefereeNewEndDate when
// a bonus applied.
type Bonus struct {
	RefereeNewEndDate       time.Time
	RefereeBonusAppliedDays int
}

// Service applies referral bonuses after a successful paid activation. Both
// the paying user (referee) and their inviter get configured bonus days on top
// of their subscriptions.
type Service struct {
	users       repository.UserRepository
	subs        repository.SubscriptionRepository
	refereeDays int
	inviterDays int
}

func NewService(users repository.UserRepository, subs repository.SubscriptionRepository, refereeDays, inviterDays int) *Service {
	return &Service{
		users:       users,
		subs:        subs,
		refereeDays: refereeDays,
		inviterDays: inviterDays,
	}
}

func NewServiceFromEnv(users repository.UserRepository, subs repository.SubscriptionRepository) *Service {
	return NewService(
		users,
		subs,
		env.GetInt("REFERRAL_BONUS_REFEREE_DAYS", 0),
		env.GetInt("REFERRAL_BONUS_INVITER_DAYS", 0),
	)
}

// ApplyBonusesForPayment extends the referee's and the inviter's subscriptions
// inside the caller's transaction. Returns nil when the paying user was not
// referred or no bonus is configured. An inviter without a subscription is
// skipped, not an error.
func (s *Service) ApplyBonusesForPayment(tx *gorm.DB, userID int64, months int, paymentID uint) (*Bonus, error) {
	if s.refereeDays <= 0 && s.inviterDays <= 0 {
		return nil, nil
	}

	user, err := s.users.GetByTelegramID(userID)
	if err != nil {
		return nil, fmt.Errorf("referral lookup for user %d: %w", userID, err)
	}
	if user.ReferredByID == nil {
		return nil, nil
	}
	inviterID := *user.ReferredByID

	var bonus *Bonus
	if s.refereeDays > 0 {
		sub, err := s.subs.GetByUserID(tx, userID)
		if err != nil {
			return nil, fmt.Errorf("referee subscription for user %d: %w", userID, err)
		}
		sub.EndDate = sub.EndDate.AddDate(0, 0, s.refereeDays)
		if err := s.subs.Save(tx, sub); err != nil {
			return nil, err
		}
		bonus = &Bonus{
			RefereeNewEndDate:       sub.EndDate,
			RefereeBonusAppliedDays: s.refereeDays,
		}
	}

	if s.inviterDays > 0 {
		sub, err := s.subs.GetByUserID(tx, inviterID)
		switch {
		case err == nil:
			base := sub.EndDate
			if now := time.Now(); base.Before(now) {
				base = now
			}
			sub.EndDate = base.AddDate(0, 0, s.inviterDays)
			if err := s.subs.Save(tx, sub); err != nil {
				return nil, err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			log.Infof("referral: inviter %d has no subscription, bonus skipped", inviterID)
		default:
			return nil, fmt.Errorf("inviter subscription for user %d: %w", inviterID, err)
		}
	}

	log.Infof("referral: bonuses applied for payment %d (user %d, inviter %d)", paymentID, userID, inviterID)
	return bonus, nil
}
