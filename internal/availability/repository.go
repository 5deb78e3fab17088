package availability

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking-platform/internal/conflict"
)

var (
	ErrAvailabilityConflict    = errors.New("availability window overlaps an existing window")
	ErrWindowNotFound          = errors.New("availability window not found")
	ErrAppointmentTypeNotFound = errors.New("appointment type not found")
	ErrClinicNotFound          = errors.New("clinic not found")
	ErrInvalidWindow           = errors.New("invalid availability window")
	ErrInvalidAppointmentType  = errors.New("invalid appointment type")
	ErrForbidden               = errors.New("not allowed to manage this availability")
)

// WindowConflictError names the window a candidate collided with.
type WindowConflictError struct {
	Candidate  conflict.WeeklySpan
	Existing   Window
	SameClinic bool
}

func (e *WindowConflictError) Error() string {
	if e.SameClinic {
		return fmt.Sprintf("%s overlaps existing window %s at this clinic",
			e.Candidate, e.Existing.Span())
	}
	return fmt.Sprintf("%s overlaps window %s the doctor already has at clinic %s",
		e.Candidate, e.Existing.Span(), e.Existing.ClinicID)
}

func (e *WindowConflictError) Unwrap() error { return ErrAvailabilityConflict }

// Reader is the read side consumed by slot generation and the booking engine.
type Reader interface {
	GetClinic(ctx context.Context, id uuid.UUID) (*Clinic, error)
	GetAppointmentType(ctx context.Context, id uuid.UUID) (*AppointmentType, error)
	// ListActiveWindows returns the doctor's active windows at one clinic on
	// one weekday, ordered by start.
	ListActiveWindows(ctx context.Context, doctorID, clinicID uuid.UUID, day int) ([]Window, error)
}

// Repository contains all DB interactions needed by the admin service.
type Repository interface {
	Reader

	CreateClinic(ctx context.Context, c Clinic) (*Clinic, error)
	GetWindow(ctx context.Context, id uuid.UUID) (*Window, error)
	ListWindowsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Window, error)
	CreateAppointmentType(ctx context.Context, t AppointmentType) (*AppointmentType, error)
	ListAppointmentTypes(ctx context.Context, doctorID uuid.UUID, clinicID *uuid.UUID) ([]AppointmentType, error)

	// WithDoctorTx runs fn in one transaction holding the doctor's calendar lock.
	WithDoctorTx(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context, tx WindowTx) error) error
}

// WindowTx is the window write surface available under the doctor lock.
type WindowTx interface {
	// ActiveWindowsForDoctor returns every active window of the doctor across all clinics.
	ActiveWindowsForDoctor(ctx context.Context, doctorID uuid.UUID) ([]Window, error)
	GetWindowForUpdate(ctx context.Context, id uuid.UUID) (*Window, error)
	InsertWindow(ctx context.Context, w Window) (*Window, error)
	UpdateWindow(ctx context.Context, w Window) (*Window, error)
	DeactivateWindow(ctx context.Context, id uuid.UUID) (*Window, error)
}
