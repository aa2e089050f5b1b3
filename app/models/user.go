package models

import (
	"time"
)

const (
	DefaultLanguage = "en"

	// First name recorded for users that are auto-created from a webhook
	// before they ever talked to the bot.
	PlaceholderFirstName = "Tribute User"
)

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	TelegramID   int64     `gorm:"uniqueIndex;not null" json:"telegram_id"`
	FirstName    string    `gorm:"type:varchar(150)" json:"first_name"`
	Username     string    `gorm:"type:varchar(64);index" json:"username"`
	LanguageCode string    `gorm:"type:varchar(8);default:'en'" json:"language_code"`
	ReferredByID *int64    `gorm:"index" json:"referred_by_id,omitempty"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Language returns the user's language code or the service default.
func (u *User) Language() string {
	if u == nil || u.LanguageCode == "" {
		return DefaultLanguage
	}
	return u.LanguageCode
}
