package models

import "time"

// Subscription is the single service entitlement per user. Activation extends
// EndDate; a user without a row has never been activated.
type Subscription struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	UserID        int64      `gorm:"uniqueIndex;not null" json:"user_id"`
	EndDate       time.Time  `gorm:"not null;index" json:"end_date"`
	PanelUserUUID string     `gorm:"type:varchar(36);index" json:"panel_user_uuid"`
	TrafficGB     int        `gorm:"default:0" json:"traffic_gb"`
	IsTrial       bool       `gorm:"default:false" json:"is_trial"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     *time.Time `gorm:"index" json:"-"`
}

// ActiveAt reports whether the subscription covers the given instant.
func (s *Subscription) ActiveAt(t time.Time) bool {
	return s != nil && s.EndDate.After(t)
}
