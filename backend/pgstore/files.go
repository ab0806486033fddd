package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/PhilHem/secureone/backend/apperr"
	"github.com/PhilHem/secureone/backend/models"
)

type FileRepository struct {
	db DBTX
}

func NewFileRepository(db DBTX) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) Insert(ctx context.Context, f *models.File) error {
	query :=
		`INSERT INTO files (file_id, owner_email, original_name, cloud_path, file_size, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 `

	_, err := r.db.ExecContext(ctx, query, f.FileID, f.OwnerEmail, f.OriginalName, f.CloudPath, f.FileSize, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *FileRepository) ListByOwner(ctx context.Context, owner string) ([]models.File, error) {
	query :=
		`SELECT file_id, owner_email, original_name, cloud_path, file_size, created_at FROM files
		 WHERE owner_email = $1
		 ORDER BY created_at DESC
		 `

	rows, err := r.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	files := []models.File{}
	for rows.Next() {
		var f models.File
		if err := rows.Scan(&f.FileID, &f.OwnerEmail, &f.OriginalName, &f.CloudPath, &f.FileSize, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return files, nil
}

func (r *FileRepository) Get(ctx context.Context, fileID string) (*models.File, error) {
	query :=
		`SELECT file_id, owner_email, original_name, cloud_path, file_size, created_at FROM files
		 WHERE file_id = $1
		 `

	f := &models.File{}
	err := r.db.QueryRowContext(ctx, query, fileID).Scan(&f.FileID, &f.OwnerEmail, &f.OriginalName, &f.CloudPath, &f.FileSize, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

func (r *FileRepository) Delete(ctx context.Context, owner, fileID string) error {
	query :=
		`DELETE FROM files
		 WHERE file_id = $1 AND owner_email = $2
		 `

	res, err := r.db.ExecContext(ctx, query, fileID, owner)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
