package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"session-trust-engine/internal/db"
	"session-trust-engine/internal/session/domain"
)

const sessionColumns = `id, user_id, device_id, ip, country, user_agent, login_time, last_active_at, expires_at, active, terminated_at, termination_reason`

// PostgresRepository persists sessions in the sessions table. Admission is guarded by a per-user row in
// user_session_counters: the row is locked, stale sessions are expired, and the count is bumped with a
// conditional UPDATE in the same transaction as the insert.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s            domain.Session
		terminatedAt sql.NullTime
		reason       string
	)
	err := row.Scan(&s.ID, &s.UserID, &s.DeviceID, &s.IP, &s.Country, &s.UserAgent,
		&s.LoginTime, &s.LastActiveAt, &s.ExpiresAt, &s.Active, &terminatedAt, &reason)
	if err != nil {
		return nil, err
	}
	s.TerminatedAt = db.TimePtr(terminatedAt)
	s.TerminationReason = domain.TerminationReason(reason)
	return &s, nil
}

func scanSessions(rows *sql.Rows) ([]*domain.Session, error) {
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// ListByUser returns every session of the user, newest login first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = $1 ORDER BY login_time DESC`, userID)
	if err != nil {
		return nil, err
	}
	return scanSessions(rows)
}

// Search returns sessions matching f, newest login first.
func (r *PostgresRepository) Search(ctx context.Context, f domain.Filter) ([]*domain.Session, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Active != nil {
		add("active = $%d", *f.Active)
	}
	if f.From != nil {
		add("login_time >= $%d", *f.From)
	}
	if f.To != nil {
		add("login_time <= $%d", *f.To)
	}

	q := `SELECT ` + sessionColumns + ` FROM sessions`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY login_time DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanSessions(rows)
}

// CountActive returns the number of live sessions of the user at now.
func (r *PostgresRepository) CountActive(ctx context.Context, userID string, now time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sessions WHERE user_id = $1 AND active AND expires_at > $2`, userID, now).Scan(&n)
	return n, err
}

// lockCounter ensures the user's counter row exists and locks it for the rest of the transaction.
func lockCounter(ctx context.Context, tx *sql.Tx, userID string) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO user_session_counters (user_id, active_count) VALUES ($1, 0) ON CONFLICT (user_id) DO NOTHING`,
		userID); err != nil {
		return err
	}
	var n int
	return tx.QueryRowContext(ctx,
		`SELECT active_count FROM user_session_counters WHERE user_id = $1 FOR UPDATE`, userID).Scan(&n)
}

// Admit expires stale sessions, bumps the counter only while it is below maxActive and inserts s.
func (r *PostgresRepository) Admit(ctx context.Context, s *domain.Session, maxActive int, now time.Time) (bool, error) {
	admitted := false
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockCounter(ctx, tx, s.UserID); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE sessions SET active = FALSE, terminated_at = $2, termination_reason = $3
			 WHERE user_id = $1 AND active AND expires_at <= $2`,
			s.UserID, now, string(domain.ReasonExpired))
		if err != nil {
			return err
		}
		if expired, _ := res.RowsAffected(); expired > 0 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE user_session_counters SET active_count = GREATEST(active_count - $2, 0) WHERE user_id = $1`,
				s.UserID, expired); err != nil {
				return err
			}
		}

		res, err = tx.ExecContext(ctx,
			`UPDATE user_session_counters SET active_count = active_count + 1
			 WHERE user_id = $1 AND active_count < $2`,
			s.UserID, maxActive)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			s.ID, s.UserID, s.DeviceID, s.IP, s.Country, s.UserAgent,
			s.LoginTime, s.LastActiveAt, s.ExpiresAt, true, db.NullTime(s.TerminatedAt), string(s.TerminationReason))
		if err != nil {
			return err
		}
		admitted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return admitted, nil
}

// Terminate flips the session to inactive once and releases its counter slot in the same transaction.
// The counter row is locked before the session row, matching the lock order of Admit.
func (r *PostgresRepository) Terminate(ctx context.Context, id string, reason domain.TerminationReason, at time.Time) (bool, bool, error) {
	var userID string
	err := r.db.QueryRowContext(ctx, `SELECT user_id FROM sessions WHERE id = $1`, id).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}

	changed := false
	err = db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockCounter(ctx, tx, userID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE sessions SET active = FALSE, terminated_at = $2, termination_reason = $3 WHERE id = $1 AND active`,
			id, at, string(reason))
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		changed = true
		_, err = tx.ExecContext(ctx,
			`UPDATE user_session_counters SET active_count = GREATEST(active_count - 1, 0) WHERE user_id = $1`, userID)
		return err
	})
	if err != nil {
		return true, false, err
	}
	return true, changed, nil
}

// UpdateLastActive sets last_active_at on an active session.
func (r *PostgresRepository) UpdateLastActive(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET last_active_at = $2 WHERE id = $1 AND active`, id, at)
	return err
}
