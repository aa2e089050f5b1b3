package models

import "time"

const (
	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
)

const PaymentProviderTribute = "tribute"

// Payment is the durable record of a provider payment event. At most one row
// exists per (provider, provider_payment_id); the composite unique index is
// the authoritative guard against webhook redelivery.
type Payment struct {
	ID                         uint      `gorm:"primaryKey" json:"id"`
	UserID                     int64     `gorm:"not null;index" json:"user_id"`
	Amount                     float64   `gorm:"type:decimal(10,2)" json:"amount"`
	Currency                   string    `gorm:"type:varchar(8);not null" json:"currency"`
	Status                     string    `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	Provider                   string    `gorm:"type:varchar(20);not null;index:ux_payments_provider_payment,unique,priority:1" json:"provider"`
	ProviderPaymentID          string    `gorm:"type:varchar(191);not null;index:ux_payments_provider_payment,unique,priority:2" json:"provider_payment_id"`
	SubscriptionDurationMonths int       `gorm:"default:0" json:"subscription_duration_months"`
	TrafficGB                  int       `gorm:"default:0" json:"traffic_gb"`
	Description                string    `gorm:"type:varchar(255)" json:"description"`
	CreatedAt                  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt                  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsFinal reports whether the payment reached a terminal status.
func (p *Payment) IsFinal() bool {
	return p.Status == PaymentStatusSucceeded || p.Status == PaymentStatusFailed
}
