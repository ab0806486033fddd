package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/PhilHem/secureone/backend/apperr"
	"github.com/PhilHem/secureone/backend/models"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query :=
		`SELECT id, name, email, password, created_at FROM users
		 WHERE email = $1
		 `

	user := &models.User{}
	var id int64
	err := r.db.QueryRowContext(ctx, query, email).Scan(&id, &user.Name, &user.Email, &user.Password, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	user.ID = uint(id)
	return user, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query :=
		`INSERT INTO users (name, email, password)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at
		 `

	var id int64
	err := r.db.QueryRowContext(ctx, query, user.Name, user.Email, user.Password).Scan(&id, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperr.ErrUserExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	user.ID = uint(id)
	return nil
}
