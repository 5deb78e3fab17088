package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking-platform/internal/conflict"
	"github.com/hackgods/clinic-booking-platform/internal/notification"
)

var (
	ErrSlotUnavailable     = errors.New("slot is no longer available")
	ErrHoldExpired         = errors.New("hold has expired")
	ErrProposalExpired     = errors.New("proposal has expired")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrForbidden           = errors.New("not allowed to act on this reservation")
	ErrInvalidSlot         = errors.New("requested range is not a bookable slot")
	ErrSlotInPast          = errors.New("requested slot is in the past")
	ErrIntakeIncomplete    = errors.New("intake form has not been submitted")
	ErrRateLimited         = errors.New("too many booking attempts")
	ErrCancellationNotice  = errors.New("cancellation is inside the clinic notice window")
	ErrInvalidRange        = errors.New("invalid time range")
	ErrLockTimeout         = errors.New("calendar is busy, please retry")
	ErrInvariant           = errors.New("reservation invariant violated")
)

// Repository is the Reservation Store.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*Reservation, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Reservation, error)
	ListByClinic(ctx context.Context, clinicID uuid.UUID, statuses []Status, limit, offset int) ([]Reservation, error)
	// ListByDoctor returns the doctor's reservations in every clinic whose
	// booked range intersects [from, to).
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Reservation, error)
	ListBlocking(ctx context.Context, doctorID uuid.UUID, from, to, now time.Time) ([]conflict.Range, error)
	ListConfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]Reservation, error)

	// WithinTx runs fn in one transaction. Any error rolls everything back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// IntakeChecker reports whether the intake answers for a reservation exist.
type IntakeChecker interface {
	IntakeComplete(ctx context.Context, reservationID uuid.UUID) (bool, error)
}

// Tx is the write surface of one Reservation Store transaction.
type Tx interface {
	IntakeChecker

	// LockDoctor serialises calendar writes for the doctor until commit.
	LockDoctor(ctx context.Context, doctorID uuid.UUID) error
	// ActiveOverlapping locks and returns the doctor's active reservations
	// whose active range overlaps r, ignoring excludeID.
	ActiveOverlapping(ctx context.Context, doctorID uuid.UUID, r conflict.Range, excludeID uuid.UUID) ([]Reservation, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Reservation, error)
	FindByIdempotencyKey(ctx context.Context, patientID, doctorID uuid.UUID, key string) (*Reservation, error)
	// ActiveByPatientDoctor locks the patient's active reservations with the doctor.
	ActiveByPatientDoctor(ctx context.Context, patientID, doctorID uuid.UUID) ([]Reservation, error)
	Insert(ctx context.Context, r Reservation) (*Reservation, error)
	// Update writes r if its stored status is still from.
	Update(ctx context.Context, r Reservation, from Status) (*Reservation, error)
	// ExpireDue moves every reservation in status whose deadline is at or
	// before now to EXPIRED and returns the expired rows.
	ExpireDue(ctx context.Context, status Status, now time.Time) ([]Reservation, error)

	AppendNotification(ctx context.Context, req notification.Request) error
	// AppendReminderOnce reports whether a new reminder record was written.
	AppendReminderOnce(ctx context.Context, req notification.Request) (bool, error)
	SaveIntake(ctx context.Context, reservationID uuid.UUID, answers json.RawMessage) error
}

// RateLimiter caps booking attempts per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
