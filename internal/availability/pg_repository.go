package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-booking-platform/internal/db"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const (
	clinicColumns = `id, name, timezone, requires_approval, cancellation_notice_minutes, active, created_at, updated_at`
	windowColumns = `id, doctor_id, clinic_id, day_of_week, start_minute, end_minute, active, created_at, updated_at`
	typeColumns   = `id, doctor_id, clinic_id, name, duration_minutes, active, created_at, updated_at`
)

func scanClinic(row pgx.Row) (*Clinic, error) {
	var c Clinic
	var noticeMinutes int

	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Timezone,
		&c.RequiresApproval,
		&noticeMinutes,
		&c.Active,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClinicNotFound
		}
		return nil, err
	}

	c.CancellationNotice = time.Duration(noticeMinutes) * time.Minute
	return &c, nil
}

func scanWindow(row pgx.Row) (*Window, error) {
	var w Window

	err := row.Scan(
		&w.ID,
		&w.DoctorID,
		&w.ClinicID,
		&w.Day,
		&w.StartMinute,
		&w.EndMinute,
		&w.Active,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWindowNotFound
		}
		return nil, err
	}
	return &w, nil
}

func scanAppointmentType(row pgx.Row) (*AppointmentType, error) {
	var t AppointmentType
	var minutes int

	err := row.Scan(
		&t.ID,
		&t.DoctorID,
		&t.ClinicID,
		&t.Name,
		&minutes,
		&t.Active,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentTypeNotFound
		}
		return nil, err
	}

	t.Duration = time.Duration(minutes) * time.Minute
	return &t, nil
}

func collectWindows(rows pgx.Rows) ([]Window, error) {
	defer rows.Close()

	var out []Window
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func (r *PgRepository) GetClinic(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+clinicColumns+` FROM clinics WHERE id = $1`, id)
	return scanClinic(row)
}

func (r *PgRepository) CreateClinic(ctx context.Context, c Clinic) (*Clinic, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO clinics (id, name, timezone, requires_approval, cancellation_notice_minutes, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING `+clinicColumns,
		c.ID, c.Name, c.Timezone, c.RequiresApproval, int(c.CancellationNotice/time.Minute), c.Active)
	return scanClinic(row)
}

func (r *PgRepository) GetAppointmentType(ctx context.Context, id uuid.UUID) (*AppointmentType, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+typeColumns+` FROM appointment_types WHERE id = $1`, id)
	return scanAppointmentType(row)
}

func (r *PgRepository) CreateAppointmentType(ctx context.Context, t AppointmentType) (*AppointmentType, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointment_types (id, doctor_id, clinic_id, name, duration_minutes, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, now(), now())
		RETURNING `+typeColumns,
		t.ID, t.DoctorID, t.ClinicID, t.Name, int(t.Duration/time.Minute))
	return scanAppointmentType(row)
}

func (r *PgRepository) ListAppointmentTypes(ctx context.Context, doctorID uuid.UUID, clinicID *uuid.UUID) ([]AppointmentType, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+typeColumns+`
		FROM appointment_types
		WHERE doctor_id = $1
		  AND active
		  AND ($2::uuid IS NULL OR clinic_id = $2)
		ORDER BY name
	`, doctorID, clinicID)
	if err != nil {
		return nil, fmt.Errorf("list appointment types: %w", err)
	}
	defer rows.Close()

	var out []AppointmentType
	for rows.Next() {
		t, err := scanAppointmentType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *PgRepository) GetWindow(ctx context.Context, id uuid.UUID) (*Window, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+windowColumns+` FROM availability_windows WHERE id = $1`, id)
	return scanWindow(row)
}

func (r *PgRepository) ListActiveWindows(ctx context.Context, doctorID, clinicID uuid.UUID, day int) ([]Window, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE doctor_id = $1 AND clinic_id = $2 AND day_of_week = $3 AND active
		ORDER BY start_minute
	`, doctorID, clinicID, day)
	if err != nil {
		return nil, fmt.Errorf("list active windows: %w", err)
	}
	return collectWindows(rows)
}

func (r *PgRepository) ListWindowsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Window, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE doctor_id = $1
		ORDER BY day_of_week, start_minute
	`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}
	return collectWindows(rows)
}

func (r *PgRepository) WithDoctorTx(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context, tx WindowTx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := db.LockDoctor(ctx, tx, doctorID); err != nil {
		return err
	}

	if err := fn(ctx, &pgWindowTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if db.IsConflict(err) {
			return ErrAvailabilityConflict
		}
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type pgWindowTx struct {
	tx pgx.Tx
}

func (t *pgWindowTx) ActiveWindowsForDoctor(ctx context.Context, doctorID uuid.UUID) ([]Window, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE doctor_id = $1 AND active
		ORDER BY day_of_week, start_minute
	`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list doctor windows: %w", err)
	}
	return collectWindows(rows)
}

func (t *pgWindowTx) GetWindowForUpdate(ctx context.Context, id uuid.UUID) (*Window, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+windowColumns+` FROM availability_windows WHERE id = $1 FOR UPDATE`, id)
	return scanWindow(row)
}

func (t *pgWindowTx) InsertWindow(ctx context.Context, w Window) (*Window, error) {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	row := t.tx.QueryRow(ctx, `
		INSERT INTO availability_windows (id, doctor_id, clinic_id, day_of_week, start_minute, end_minute, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, now(), now())
		RETURNING `+windowColumns,
		w.ID, w.DoctorID, w.ClinicID, w.Day, w.StartMinute, w.EndMinute)
	out, err := scanWindow(row)
	if err != nil && db.IsConflict(err) {
		return nil, ErrAvailabilityConflict
	}
	return out, err
}

func (t *pgWindowTx) UpdateWindow(ctx context.Context, w Window) (*Window, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE availability_windows
		SET day_of_week = $2,
		    start_minute = $3,
		    end_minute = $4,
		    updated_at = now()
		WHERE id = $1 AND active
		RETURNING `+windowColumns,
		w.ID, w.Day, w.StartMinute, w.EndMinute)
	out, err := scanWindow(row)
	if err != nil && db.IsConflict(err) {
		return nil, ErrAvailabilityConflict
	}
	return out, err
}

func (t *pgWindowTx) DeactivateWindow(ctx context.Context, id uuid.UUID) (*Window, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE availability_windows
		SET active = FALSE,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+windowColumns, id)
	return scanWindow(row)
}
