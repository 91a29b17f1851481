package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"session-trust-engine/internal/db"
	"session-trust-engine/internal/device/domain"
)

const deviceColumns = `id, user_id, fingerprint_hash, trusted, trusted_at, first_seen_at, last_seen_at`

// PostgresRepository persists devices in the devices table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a device repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*domain.Device, error) {
	var (
		d         domain.Device
		trustedAt sql.NullTime
		lastSeen  sql.NullTime
	)
	if err := row.Scan(&d.ID, &d.UserID, &d.FingerprintHash, &d.Trusted, &trustedAt, &d.FirstSeenAt, &lastSeen); err != nil {
		return nil, err
	}
	d.TrustedAt = db.TimePtr(trustedAt)
	d.LastSeenAt = db.TimePtr(lastSeen)
	return &d, nil
}

// GetByID returns the device for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

// GetByUserAndFingerprint returns the device for the given user and fingerprint, or nil if not found.
func (r *PostgresRepository) GetByUserAndFingerprint(ctx context.Context, userID, fingerprintHash string) (*domain.Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE user_id = $1 AND fingerprint_hash = $2`,
		userID, fingerprintHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

// ListByUser returns all devices for the user ordered by first sighting.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Device, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE user_id = $1 ORDER BY first_seen_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CreateIfAbsent inserts d, ignoring the insert when (user_id, fingerprint_hash) already exists,
// then returns the stored row.
func (r *PostgresRepository) CreateIfAbsent(ctx context.Context, d *domain.Device) (*domain.Device, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO devices (`+deviceColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id, fingerprint_hash) DO NOTHING`,
		d.ID, d.UserID, d.FingerprintHash, d.Trusted, db.NullTime(d.TrustedAt), d.FirstSeenAt, db.NullTime(d.LastSeenAt))
	if err != nil {
		return nil, err
	}
	stored, err := r.GetByUserAndFingerprint(ctx, d.UserID, d.FingerprintHash)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, errors.New("device insert not visible after commit")
	}
	return stored, nil
}

// MarkTrusted sets trusted for the given id, keeping the first trusted_at. Returns false if no row matched.
func (r *PostgresRepository) MarkTrusted(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE devices SET trusted = TRUE, trusted_at = COALESCE(trusted_at, $2) WHERE id = $1`, id, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateLastSeen sets the device's last-seen timestamp for the given id.
func (r *PostgresRepository) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE devices SET last_seen_at = $2 WHERE id = $1`, id, at)
	return err
}
