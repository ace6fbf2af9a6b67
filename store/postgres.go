package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// DefaultPostgresTable is the table used when none is configured. Its schema
// ships in migrations/.
const DefaultPostgresTable = "refresh_sessions"

// PostgresStore keeps one row per principal. Expiry is enforced on read via
// the expires_at column written by Put; UpdateCSRF leaves it untouched.
type PostgresStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time

	putQuery    string
	getQuery    string
	deleteQuery string
	updateQuery string
	rotateQuery string
	purgeQuery  string
}

var (
	_ Store   = (*PostgresStore)(nil)
	_ Rotator = (*PostgresStore)(nil)
	_ Pinger  = (*PostgresStore)(nil)
)

// NewPostgresStore creates a [PostgresStore] over db. The caller owns db and
// is responsible for registering the driver (lib/pq) and closing it.
func NewPostgresStore(db *sql.DB, table string, ttl time.Duration) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("postgres db is required")
	}
	if ttl <= 0 {
		return nil, errors.New("postgres store ttl must be > 0")
	}
	if table == "" {
		table = DefaultPostgresTable
	}
	t := pq.QuoteIdentifier(table)

	return &PostgresStore{
		db:  db,
		ttl: ttl,
		now: time.Now,

		putQuery: `INSERT INTO ` + t + ` (principal_id, opaque_value, csrf_token, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (principal_id) DO UPDATE
SET opaque_value = EXCLUDED.opaque_value, csrf_token = EXCLUDED.csrf_token, expires_at = EXCLUDED.expires_at`,
		getQuery:    `SELECT opaque_value, csrf_token FROM ` + t + ` WHERE principal_id = $1 AND expires_at > $2`,
		deleteQuery: `DELETE FROM ` + t + ` WHERE principal_id = $1`,
		updateQuery: `UPDATE ` + t + ` SET csrf_token = $2 WHERE principal_id = $1 AND expires_at > $3`,
		rotateQuery: `UPDATE ` + t + ` SET csrf_token = $4
WHERE principal_id = $1 AND opaque_value = $2 AND csrf_token = $3 AND expires_at > $5`,
		purgeQuery: `DELETE FROM ` + t + ` WHERE expires_at <= $1`,
	}, nil
}

// WithClock replaces the clock used for expiry comparisons.
func (s *PostgresStore) WithClock(now func() time.Time) *PostgresStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *PostgresStore) Get(ctx context.Context, principalID string) (*Record, error) {
	var rec Record
	err := s.db.QueryRowContext(ctx, s.getQuery, principalID, s.now().UTC()).Scan(&rec.OpaqueValue, &rec.CSRFToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &rec, nil
}

func (s *PostgresStore) Put(ctx context.Context, principalID, opaqueValue, csrfToken string) error {
	expiresAt := s.now().Add(s.ttl).UTC()
	if _, err := s.db.ExecContext(ctx, s.putQuery, principalID, opaqueValue, csrfToken, expiresAt); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, principalID string) error {
	if _, err := s.db.ExecContext(ctx, s.deleteQuery, principalID); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) UpdateCSRF(ctx context.Context, principalID, csrfToken string) error {
	res, err := s.db.ExecContext(ctx, s.updateQuery, principalID, csrfToken, s.now().UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n == 0 {
		return ErrPrincipalNotFound
	}
	return nil
}

// RotateCSRF swaps the CSRF token with a conditional UPDATE. When no row
// matches it reads the record back to tell a missing session from a stale one.
func (s *PostgresStore) RotateCSRF(ctx context.Context, principalID, opaqueValue, expectedCSRF, nextCSRF string) error {
	res, err := s.db.ExecContext(ctx, s.rotateQuery, principalID, opaqueValue, expectedCSRF, nextCSRF, s.now().UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n > 0 {
		return nil
	}

	if _, err := s.Get(ctx, principalID); err != nil {
		return err
	}
	return ErrMismatch
}

// PurgeExpired deletes rows whose expiry has passed and reports how many
// were removed. Reads already ignore such rows; this only reclaims space.
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.purgeQuery, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// Ping checks the database connection and reports the round-trip latency.
func (s *PostgresStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.db.PingContext(ctx); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}
