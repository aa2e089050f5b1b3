package repository

import (
	"gorm.io/gorm"

	"tribute-gateway/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByTelegramID(telegramID int64) (*models.User, error)
	GetOrCreateByTelegramID(telegramID int64, defaults models.User) (*models.User, bool, error)
	Update(user *models.User) error
}

// PaymentRepository defines the interface for payment-related database operations
type PaymentRepository interface {
	GetByProviderPaymentID(provider, providerPaymentID string) (*models.Payment, error)
	// CreateIfNotExists inserts the payment unless a row with the same
	// (provider, provider_payment_id) already exists. It reports whether the
	// insert happened and returns the stored row either way.
	CreateIfNotExists(payment *models.Payment) (bool, *models.Payment, error)
	UpdateStatus(tx *gorm.DB, paymentID uint, status string) error
	ListByUserID(userID int64, offset, limit int) ([]models.Payment, error)
}

// SubscriptionRepository defines the interface for subscription-related database operations
type SubscriptionRepository interface {
	GetByUserID(tx *gorm.DB, userID int64) (*models.Subscription, error)
	Save(tx *gorm.DB, sub *models.Subscription) error
}

// Repositories holds all repository instances
type Repositories struct {
	User         UserRepository
	Payment      PaymentRepository
	Subscription SubscriptionRepository
}

// NewRepositories creates all repositories with the given database connection
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Payment:      NewPaymentRepository(db),
		Subscription: NewSubscriptionRepository(db),
	}
}
