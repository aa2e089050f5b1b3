package repository

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tribute-gateway/app/models"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

// GetByTelegramID retrieves a user by their Telegram account id
func (r *userRepository) GetByTelegramID(telegramID int64) (*models.User, error) {
	var user models.User
	err := r.db.Where("telegram_id = ?", telegramID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetOrCreateByTelegramID looks a user up by Telegram id and creates one from
// the given defaults when absent. Reports whether a row was created. A
// concurrent insert losing the race falls back to reading the winner's row.
func (r *userRepository) GetOrCreateByTelegramID(telegramID int64, defaults models.User) (*models.User, bool, error) {
	user, err := r.GetByTelegramID(telegramID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	defaults.TelegramID = telegramID
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "telegram_id"}},
		DoNothing: true,
	}).Create(&defaults)
	if tx.Error != nil {
		return nil, false, tx.Error
	}

	created := tx.RowsAffected > 0
	stored, err := r.GetByTelegramID(telegramID)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

// Update persists changes to an existing user
func (r *userRepository) Update(user *models.User) error {
	return r.db.Save(user).Error
}
