package repository

import (
	"gorm.io/gorm"

	"tribute-gateway/app/models"
)

// subscriptionRepository implements the SubscriptionRepository interface
type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// GetByUserID retrieves a user's subscription. Accepts an optional transaction
// handle so activation can read inside its unit of work.
func (r *subscriptionRepository) GetByUserID(tx *gorm.DB, userID int64) (*models.Subscription, error) {
	if tx == nil {
		tx = r.db
	}
	var sub models.Subscription
	err := tx.Where("user_id = ?", userID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Save creates or updates a subscription inside the caller's transaction.
func (r *subscriptionRepository) Save(tx *gorm.DB, sub *models.Subscription) error {
	if tx == nil {
		tx = r.db
	}
	return tx.Save(sub).Error
}
