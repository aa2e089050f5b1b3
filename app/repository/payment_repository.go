package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tribute-gateway/app/models"
)

// paymentRepository implements the PaymentRepository interface
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// GetByProviderPaymentID retrieves a payment by its deduplication key
func (r *paymentRepository) GetByProviderPaymentID(provider, providerPaymentID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.Where("provider = ? AND provider_payment_id = ?", provider, providerPaymentID).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// CreateIfNotExists inserts a payment guarded by the composite unique index on
// (provider, provider_payment_id). Two concurrent deliveries of the same event
// both reach the insert; exactly one wins, the other observes created=false.
func (r *paymentRepository) CreateIfNotExists(payment *models.Payment) (bool, *models.Payment, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_payment_id"},
		},
		DoNothing: true,
	}).Create(payment)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	stored, err := r.GetByProviderPaymentID(payment.Provider, payment.ProviderPaymentID)
	if err != nil {
		return false, nil, err
	}
	return created, stored, nil
}

// UpdateStatus advances a payment status inside the caller's transaction.
func (r *paymentRepository) UpdateStatus(tx *gorm.DB, paymentID uint, status string) error {
	if tx == nil {
		tx = r.db
	}
	return tx.Model(&models.Payment{}).
		Where("id = ?", paymentID).
		Update("status", status).Error
}

// ListByUserID returns a user's payments, newest first
func (r *paymentRepository) ListByUserID(userID int64, offset, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&payments).Error
	return payments, err
}
