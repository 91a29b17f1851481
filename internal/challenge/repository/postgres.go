package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"session-trust-engine/internal/challenge/domain"
	"session-trust-engine/internal/db"
)

const challengeColumns = `id, user_id, pending_session_ref, code_hash, created_at, expires_at, attempts, consumed`

// PostgresRepository persists challenges in the challenges table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a challenge repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChallenge(row rowScanner) (*domain.Challenge, error) {
	var c domain.Challenge
	err := row.Scan(&c.ID, &c.UserID, &c.PendingSessionRef, &c.CodeHash, &c.CreatedAt, &c.ExpiresAt, &c.Attempts, &c.Consumed)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts the challenge.
func (r *PostgresRepository) Create(ctx context.Context, c *domain.Challenge) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO challenges (`+challengeColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.UserID, c.PendingSessionRef, c.CodeHash, c.CreatedAt, c.ExpiresAt, c.Attempts, c.Consumed)
	return err
}

// GetByID returns the challenge for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Challenge, error) {
	c, err := scanChallenge(r.db.QueryRowContext(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// Update locks the row with SELECT ... FOR UPDATE, applies fn and writes attempts/consumed back in the same transaction.
func (r *PostgresRepository) Update(ctx context.Context, id string, fn UpdateFunc) (*domain.Challenge, error) {
	var out *domain.Challenge
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		c, err := scanChallenge(tx.QueryRowContext(ctx,
			`SELECT `+challengeColumns+` FROM challenges WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		out = c
		if !fn(c) {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE challenges SET attempts = $2, consumed = $3 WHERE id = $1`, id, c.Attempts, c.Consumed)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteExpired removes challenges whose expiry is before the given time.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM challenges WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
