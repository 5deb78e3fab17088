package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists notification records for the gateway.
type Store interface {
	Insert(ctx context.Context, req Request) (*Record, error)
	// ClaimDue leases up to limit due PENDING or FAILED records by pushing
	// their next attempt lease into the future, so concurrent dispatchers skip them.
	ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Record, error)
	MarkSent(ctx context.Context, id uuid.UUID, retryCount int, now time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, retryCount int, nextAttempt time.Time, reason string) error
	MarkPermanentlyFailed(ctx context.Context, id uuid.UUID, retryCount int, reason string) error
}

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx, so records can be appended
// inside a booking transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const recordColumns = `id, reservation_id, recipient, type, status, message, retry_count,
	next_attempt_at, last_error, sent_at, created_at, updated_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record

	err := row.Scan(
		&r.ID,
		&r.ReservationID,
		&r.Recipient,
		&r.Type,
		&r.Status,
		&r.Message,
		&r.RetryCount,
		&r.NextAttemptAt,
		&r.LastError,
		&r.SentAt,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &r, nil
}

// Append writes a PENDING record through q.
func Append(ctx context.Context, q DBTX, req Request) (*Record, error) {
	row := q.QueryRow(ctx, `
		INSERT INTO notification_records (id, reservation_id, recipient, type, status, message, retry_count, next_attempt_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'PENDING', $5, 0, now(), now(), now())
		RETURNING `+recordColumns,
		uuid.New(), req.ReservationID, req.Recipient, req.Type, req.Message)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("insert notification %s: %w", req.Type, err)
	}
	return rec, nil
}

// AppendReminderOnce writes a REMINDER_24H record unless the reservation
// already has one. It reports whether a record was created.
func AppendReminderOnce(ctx context.Context, q DBTX, req Request) (bool, error) {
	tag, err := q.Exec(ctx, `
		INSERT INTO notification_records (id, reservation_id, recipient, type, status, message, retry_count, next_attempt_at, created_at, updated_at)
		VALUES ($1, $2, $3, 'REMINDER_24H', 'PENDING', $4, 0, now(), now(), now())
		ON CONFLICT (reservation_id) WHERE type = 'REMINDER_24H' DO NOTHING`,
		uuid.New(), req.ReservationID, req.Recipient, req.Message)
	if err != nil {
		return false, fmt.Errorf("insert reminder: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) Insert(ctx context.Context, req Request) (*Record, error) {
	return Append(ctx, s.pool, req)
}

func (s *PgStore) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE notification_records
		SET next_attempt_at = $3,
		    updated_at = now()
		WHERE id IN (
			SELECT id
			FROM notification_records
			WHERE status IN ('PENDING', 'FAILED')
			  AND next_attempt_at <= $1
			ORDER BY next_attempt_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+recordColumns,
		now, limit, now.Add(lease))
	if err != nil {
		return nil, fmt.Errorf("claim due notifications: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *PgStore) MarkSent(ctx context.Context, id uuid.UUID, retryCount int, now time.Time) error {
	return s.exec(ctx, `
		UPDATE notification_records
		SET status = 'SENT', retry_count = $2, sent_at = $3, last_error = NULL, updated_at = now()
		WHERE id = $1`, id, retryCount, now)
}

func (s *PgStore) MarkFailed(ctx context.Context, id uuid.UUID, retryCount int, nextAttempt time.Time, reason string) error {
	return s.exec(ctx, `
		UPDATE notification_records
		SET status = 'FAILED', retry_count = $2, next_attempt_at = $3, last_error = $4, updated_at = now()
		WHERE id = $1`, id, retryCount, nextAttempt, reason)
}

func (s *PgStore) MarkPermanentlyFailed(ctx context.Context, id uuid.UUID, retryCount int, reason string) error {
	return s.exec(ctx, `
		UPDATE notification_records
		SET status = 'PERMANENTLY_FAILED', retry_count = $2, last_error = $3, updated_at = now()
		WHERE id = $1`, id, retryCount, reason)
}

func (s *PgStore) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}
