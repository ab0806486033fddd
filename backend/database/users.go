package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/PhilHem/secureone/backend/apperr"
	"github.com/PhilHem/secureone/backend/models"

	"gorm.io/gorm"
)

// UserStore is the gorm credential store.
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

// FindByEmail returns apperr.ErrNotFound when no user has exactly this email.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

// Create inserts user. A second row for the same email yields
// apperr.ErrUserExists.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	err := s.db.WithContext(ctx).Create(user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.ErrUserExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}
