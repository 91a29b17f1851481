package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresRepository persists flags in user_login_flags.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a flag repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) RequireOTP(ctx context.Context, userID string) (bool, error) {
	var required bool
	err := r.db.QueryRowContext(ctx, `SELECT require_otp FROM user_login_flags WHERE user_id = $1`, userID).Scan(&required)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return required, err
}

func (r *PostgresRepository) SetRequireOTP(ctx context.Context, userID string, required bool, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_login_flags (user_id, require_otp, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET require_otp = EXCLUDED.require_otp, updated_at = EXCLUDED.updated_at`,
		userID, required, at)
	return err
}
