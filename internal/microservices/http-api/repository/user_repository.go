package repository

import (
	"context"

	"coursehub/internal/microservices/http-api/models"
	"coursehub/internal/shared"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository is the local mirror of the auth provider's user directory.
type UserRepository interface {
	Exists(ctx context.Context, userID string) (bool, error)
	EnsureUser(ctx context.Context, user *models.User) error
}

// userRepository is the GORM implementation of UserRepository.
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new instance of UserRepository in a GORM implementation
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Exists ignores soft-deleted users.
func (r *userRepository) Exists(ctx context.Context, userID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return false, storeError("check user", err)
	}
	return count > 0, nil
}

// EnsureUser inserts the user or refreshes email and role. A soft-deleted user stays deleted.
func (r *userRepository) EnsureUser(ctx context.Context, user *models.User) error {
	if user.Role == "" {
		user.Role = "user"
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "role", "updated_at"}),
	}).Create(user).Error
	if err != nil {
		return shared.StorageError("ensure user", err)
	}
	return nil
}
