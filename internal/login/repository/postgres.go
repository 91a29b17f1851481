package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"session-trust-engine/internal/login/domain"
)

const pendingColumns = `ref, user_id, device_id, fingerprint_hash, ip, country, user_agent, verdict, created_at, expires_at`

// PostgresRepository persists pending logins in the pending_logins table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a pending login repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts p; an existing row with the same ref is replaced.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.PendingLogin) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO pending_logins (`+pendingColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (ref) DO UPDATE SET
		   user_id = EXCLUDED.user_id, device_id = EXCLUDED.device_id, fingerprint_hash = EXCLUDED.fingerprint_hash,
		   ip = EXCLUDED.ip, country = EXCLUDED.country, user_agent = EXCLUDED.user_agent,
		   verdict = EXCLUDED.verdict, created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at`,
		p.Ref, p.UserID, p.DeviceID, p.FingerprintHash, p.IP, p.Country, p.UserAgent, p.Verdict, p.CreatedAt, p.ExpiresAt)
	return err
}

// Get returns the pending login for ref, or nil if not found.
func (r *PostgresRepository) Get(ctx context.Context, ref string) (*domain.PendingLogin, error) {
	var p domain.PendingLogin
	err := r.db.QueryRowContext(ctx, `SELECT `+pendingColumns+` FROM pending_logins WHERE ref = $1`, ref).
		Scan(&p.Ref, &p.UserID, &p.DeviceID, &p.FingerprintHash, &p.IP, &p.Country, &p.UserAgent, &p.Verdict, &p.CreatedAt, &p.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, ref string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_logins WHERE ref = $1`, ref)
	return err
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pending_logins WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
