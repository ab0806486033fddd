package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/PhilHem/secureone/backend/apperr"
	"github.com/PhilHem/secureone/backend/models"

	"gorm.io/gorm"
)

// FileStore is the gorm metadata store.
type FileStore struct {
	db *gorm.DB
}

func NewFileStore(db *gorm.DB) *FileStore {
	return &FileStore{db: db}
}

func (s *FileStore) Insert(ctx context.Context, f *models.File) error {
	if err := s.db.WithContext(ctx).Create(f).Error; err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

// ListByOwner returns the owner's files, newest first.
func (s *FileStore) ListByOwner(ctx context.Context, owner string) ([]models.File, error) {
	files := []models.File{}
	err := s.db.WithContext(ctx).
		Where("owner_email = ?", owner).
		Order("created_at DESC").
		Find(&files).Error
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return files, nil
}

func (s *FileStore) Get(ctx context.Context, fileID string) (*models.File, error) {
	var f models.File
	err := s.db.WithContext(ctx).Where("file_id = ?", fileID).First(&f).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("get file: %w", err)
	}
	return &f, nil
}

// Delete removes the row only if owner owns it.
func (s *FileStore) Delete(ctx context.Context, owner, fileID string) error {
	res := s.db.WithContext(ctx).
		Where("file_id = ? AND owner_email = ?", fileID, owner).
		Delete(&models.File{})
	if res.Error != nil {
		return fmt.Errorf("delete file: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
