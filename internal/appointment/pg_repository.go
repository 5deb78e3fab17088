package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-booking-platform/internal/conflict"
	"github.com/hackgods/clinic-booking-platform/internal/db"
	"github.com/hackgods/clinic-booking-platform/internal/notification"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const reservationColumns = `id, doctor_id, clinic_id, patient_id, appointment_type_id, status,
	start_at, end_at, proposed_start_at, proposed_end_at, hold_expires_at, pending_expires_at,
	idempotency_key, created_at, updated_at`

// activeStatuses as a SQL array literal argument.
var activeStatusArg = []string{
	string(StatusHold), string(StatusPendingApproval), string(StatusProposedTime), string(StatusConfirmed),
}

func scanReservation(row pgx.Row) (*Reservation, error) {
	var r Reservation

	err := row.Scan(
		&r.ID,
		&r.DoctorID,
		&r.ClinicID,
		&r.PatientID,
		&r.AppointmentTypeID,
		&r.Status,
		&r.StartAt,
		&r.EndAt,
		&r.ProposedStartAt,
		&r.ProposedEndAt,
		&r.HoldExpiresAt,
		&r.PendingExpiresAt,
		&r.IdempotencyKey,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}

	normalise(&r)
	return &r, nil
}

// normalise puts every instant in UTC.
func normalise(r *Reservation) {
	r.StartAt = r.StartAt.UTC()
	r.EndAt = r.EndAt.UTC()
	for _, t := range []*time.Time{r.ProposedStartAt, r.ProposedEndAt, r.HoldExpiresAt, r.PendingExpiresAt} {
		if t != nil {
			*t = t.UTC()
		}
	}
}

func collectReservations(rows pgx.Rows) ([]Reservation, error) {
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id)
	return scanReservation(row)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE patient_id = $1
		ORDER BY start_at
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list reservations by patient: %w", err)
	}
	return collectReservations(rows)
}

func (r *PgRepository) ListByClinic(ctx context.Context, clinicID uuid.UUID, statuses []Status, limit, offset int) ([]Reservation, error) {
	var statusArg []string
	for _, s := range statuses {
		statusArg = append(statusArg, string(s))
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE clinic_id = $1
		  AND ($2::text[] IS NULL OR status = ANY($2))
		ORDER BY start_at
		LIMIT $3 OFFSET $4
	`, clinicID, statusArg, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list reservations by clinic: %w", err)
	}
	return collectReservations(rows)
}

func (r *PgRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE doctor_id = $1
		  AND start_at < $3
		  AND end_at > $2
		ORDER BY start_at
	`, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list reservations by doctor: %w", err)
	}
	return collectReservations(rows)
}

// ListBlocking serves the slot read path. Expired HOLDs not yet swept are
// already free for display.
func (r *PgRepository) ListBlocking(ctx context.Context, doctorID uuid.UUID, from, to, now time.Time) ([]conflict.Range, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT lower(active_range), upper(active_range)
		FROM reservations
		WHERE doctor_id = $1
		  AND status = ANY($4)
		  AND active_range && tstzrange($2, $3, '[)')
		  AND (status <> 'HOLD' OR hold_expires_at > $5)
		ORDER BY lower(active_range)
	`, doctorID, from, to, activeStatusArg, now)
	if err != nil {
		return nil, fmt.Errorf("list blocking ranges: %w", err)
	}
	defer rows.Close()

	var out []conflict.Range
	for rows.Next() {
		var rng conflict.Range
		if err := rows.Scan(&rng.Start, &rng.End); err != nil {
			return nil, err
		}
		rng.Start, rng.End = rng.Start.UTC(), rng.End.UTC()
		out = append(out, rng)
	}
	return out, rows.Err()
}

func (r *PgRepository) ListConfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE status = 'CONFIRMED'
		  AND start_at BETWEEN $1 AND $2
		ORDER BY start_at
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list confirmed reservations: %w", err)
	}
	return collectReservations(rows)
}

func (r *PgRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if db.IsConflict(err) {
			return ErrSlotUnavailable
		}
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

// writeErr translates constraint violations on reservations.
func writeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsConflict(err):
		return ErrSlotUnavailable
	case db.IsCheckViolation(err):
		return fmt.Errorf("%w: %v", ErrInvariant, err)
	default:
		return err
	}
}

func (t *pgTx) LockDoctor(ctx context.Context, doctorID uuid.UUID) error {
	return db.LockDoctor(ctx, t.tx, doctorID)
}

func (t *pgTx) ActiveOverlapping(ctx context.Context, doctorID uuid.UUID, rng conflict.Range, excludeID uuid.UUID) ([]Reservation, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE doctor_id = $1
		  AND status = ANY($4)
		  AND active_range && tstzrange($2, $3, '[)')
		  AND id <> $5
		FOR UPDATE
	`, doctorID, rng.Start, rng.End, activeStatusArg, excludeID)
	if err != nil {
		return nil, fmt.Errorf("select overlapping reservations: %w", err)
	}
	return collectReservations(rows)
}

func (t *pgTx) GetForUpdate(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1 FOR UPDATE`, id)
	return scanReservation(row)
}

func (t *pgTx) FindByIdempotencyKey(ctx context.Context, patientID, doctorID uuid.UUID, key string) (*Reservation, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE patient_id = $1 AND doctor_id = $2 AND idempotency_key = $3
	`, patientID, doctorID, key)
	return scanReservation(row)
}

func (t *pgTx) ActiveByPatientDoctor(ctx context.Context, patientID, doctorID uuid.UUID) ([]Reservation, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE patient_id = $1 AND doctor_id = $2 AND status = ANY($3)
		ORDER BY created_at
		FOR UPDATE
	`, patientID, doctorID, activeStatusArg)
	if err != nil {
		return nil, fmt.Errorf("select patient reservations: %w", err)
	}
	return collectReservations(rows)
}

func (t *pgTx) Insert(ctx context.Context, r Reservation) (*Reservation, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO reservations (
			id, doctor_id, clinic_id, patient_id, appointment_type_id, status,
			start_at, end_at, proposed_start_at, proposed_end_at, hold_expires_at, pending_expires_at,
			idempotency_key, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
		RETURNING `+reservationColumns,
		r.ID, r.DoctorID, r.ClinicID, r.PatientID, r.AppointmentTypeID, r.Status,
		r.StartAt, r.EndAt, r.ProposedStartAt, r.ProposedEndAt, r.HoldExpiresAt, r.PendingExpiresAt,
		r.IdempotencyKey)
	out, err := scanReservation(row)
	if err != nil {
		return nil, writeErr(err)
	}
	return out, nil
}

func (t *pgTx) Update(ctx context.Context, r Reservation, from Status) (*Reservation, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE reservations
		SET status = $3,
		    start_at = $4,
		    end_at = $5,
		    proposed_start_at = $6,
		    proposed_end_at = $7,
		    hold_expires_at = $8,
		    pending_expires_at = $9,
		    updated_at = now()
		WHERE id = $1
		  AND status = $2
		RETURNING `+reservationColumns,
		r.ID, from, r.Status, r.StartAt, r.EndAt,
		r.ProposedStartAt, r.ProposedEndAt, r.HoldExpiresAt, r.PendingExpiresAt)
	out, err := scanReservation(row)
	if errors.Is(err, ErrReservationNotFound) {
		return nil, fmt.Errorf("%w: %s is no longer %s", ErrInvalidTransition, r.ID, from)
	}
	if err != nil {
		return nil, writeErr(err)
	}
	return out, nil
}

func (t *pgTx) ExpireDue(ctx context.Context, status Status, now time.Time) ([]Reservation, error) {
	deadline := "pending_expires_at"
	if status == StatusHold {
		deadline = "hold_expires_at"
	}

	rows, err := t.tx.Query(ctx, `
		UPDATE reservations
		SET status = 'EXPIRED',
		    hold_expires_at = NULL,
		    pending_expires_at = NULL,
		    proposed_start_at = NULL,
		    proposed_end_at = NULL,
		    updated_at = now()
		WHERE status = $1
		  AND `+deadline+` <= $2
		RETURNING `+reservationColumns,
		status, now)
	if err != nil {
		return nil, fmt.Errorf("expire %s reservations: %w", status, err)
	}
	return collectReservations(rows)
}

func (t *pgTx) AppendNotification(ctx context.Context, req notification.Request) error {
	_, err := notification.Append(ctx, t.tx, req)
	return err
}

func (t *pgTx) AppendReminderOnce(ctx context.Context, req notification.Request) (bool, error) {
	return notification.AppendReminderOnce(ctx, t.tx, req)
}

func (t *pgTx) SaveIntake(ctx context.Context, reservationID uuid.UUID, answers json.RawMessage) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO intake_submissions (reservation_id, answers, submitted_at)
		VALUES ($1, $2, now())
		ON CONFLICT (reservation_id) DO UPDATE
		SET answers = EXCLUDED.answers, submitted_at = now()
	`, reservationID, answers)
	if err != nil {
		return fmt.Errorf("save intake: %w", err)
	}
	return nil
}

func (t *pgTx) IntakeComplete(ctx context.Context, reservationID uuid.UUID) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM intake_submissions WHERE reservation_id = $1)`, reservationID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check intake: %w", err)
	}
	return ok, nil
}
