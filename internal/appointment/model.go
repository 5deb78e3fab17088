package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking-platform/internal/conflict"
)

type Status string

const (
	StatusHold            Status = "HOLD"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusProposedTime    Status = "PROPOSED_TIME"
	StatusConfirmed       Status = "CONFIRMED"
	StatusRejected        Status = "REJECTED"
	StatusExpired         Status = "EXPIRED"
	StatusCancelled       Status = "CANCELLED"
	StatusCompleted       Status = "COMPLETED"
	StatusNoShow          Status = "NO_SHOW"
)

// ActiveStatuses occupy the doctor's calendar.
var ActiveStatuses = []Status{StatusHold, StatusPendingApproval, StatusProposedTime, StatusConfirmed}

func (s Status) IsActive() bool {
	switch s {
	case StatusHold, StatusPendingApproval, StatusProposedTime, StatusConfirmed:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	switch s {
	case StatusRejected, StatusExpired, StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if st.IsActive() || st.IsTerminal() {
		return st, nil
	}
	return "", fmt.Errorf("unknown reservation status %q", s)
}

// Reservation is the persisted, flat form of an appointment. Field/status
// consistency is checked by Validate; code changes status only via apply.
type Reservation struct {
	ID                uuid.UUID
	DoctorID          uuid.UUID
	ClinicID          uuid.UUID
	PatientID         uuid.UUID
	AppointmentTypeID uuid.UUID
	Status            Status
	StartAt           time.Time
	EndAt             time.Time
	ProposedStartAt   *time.Time
	ProposedEndAt     *time.Time
	HoldExpiresAt     *time.Time
	PendingExpiresAt  *time.Time
	IdempotencyKey    *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (r Reservation) Range() conflict.Range {
	return conflict.Range{Start: r.StartAt, End: r.EndAt}
}

// ActiveRange is the part of the calendar the reservation blocks: the
// proposed range while PROPOSED_TIME, the booked range otherwise.
func (r Reservation) ActiveRange() conflict.Range {
	if r.Status == StatusProposedTime && r.ProposedStartAt != nil && r.ProposedEndAt != nil {
		return conflict.Range{Start: *r.ProposedStartAt, End: *r.ProposedEndAt}
	}
	return r.Range()
}

// Validate checks the field invariants that the database also enforces.
func (r Reservation) Validate() error {
	if !r.StartAt.Before(r.EndAt) {
		return fmt.Errorf("%w: start_at must be before end_at", ErrInvariant)
	}
	if (r.ProposedStartAt == nil) != (r.ProposedEndAt == nil) {
		return fmt.Errorf("%w: proposed range half set", ErrInvariant)
	}
	if r.ProposedStartAt != nil && !r.ProposedStartAt.Before(*r.ProposedEndAt) {
		return fmt.Errorf("%w: proposed_start_at must be before proposed_end_at", ErrInvariant)
	}
	if (r.HoldExpiresAt != nil) != (r.Status == StatusHold) {
		return fmt.Errorf("%w: hold_expires_at set iff HOLD (status %s)", ErrInvariant, r.Status)
	}
	pending := r.Status == StatusPendingApproval || r.Status == StatusProposedTime
	if (r.PendingExpiresAt != nil) != pending {
		return fmt.Errorf("%w: pending_expires_at set iff PENDING_APPROVAL or PROPOSED_TIME (status %s)", ErrInvariant, r.Status)
	}
	if (r.ProposedStartAt != nil) != (r.Status == StatusProposedTime) {
		return fmt.Errorf("%w: proposed range set iff PROPOSED_TIME (status %s)", ErrInvariant, r.Status)
	}
	return nil
}

// State is one case per lifecycle phase, carrying only the fields valid in
// that phase.
type State interface {
	Status() Status
}

type Held struct {
	ExpiresAt time.Time
}

type AwaitingApproval struct {
	ExpiresAt time.Time
}

type Proposed struct {
	Range     conflict.Range
	ExpiresAt time.Time
}

// Confirmed optionally moves the booking to a new range, as when a proposal
// is accepted.
type Confirmed struct {
	MoveTo *conflict.Range
}

// Closed is any terminal status.
type Closed struct {
	Final Status
}

func (Held) Status() Status             { return StatusHold }
func (AwaitingApproval) Status() Status { return StatusPendingApproval }
func (Proposed) Status() Status         { return StatusProposedTime }
func (Confirmed) Status() Status        { return StatusConfirmed }
func (c Closed) Status() Status         { return c.Final }

// State reads the variant back from the flat record.
func (r Reservation) State() State {
	switch r.Status {
	case StatusHold:
		return Held{ExpiresAt: deref(r.HoldExpiresAt)}
	case StatusPendingApproval:
		return AwaitingApproval{ExpiresAt: deref(r.PendingExpiresAt)}
	case StatusProposedTime:
		return Proposed{Range: r.ActiveRange(), ExpiresAt: deref(r.PendingExpiresAt)}
	case StatusConfirmed:
		return Confirmed{}
	default:
		return Closed{Final: r.Status}
	}
}

// apply writes s into the flat record, clearing every field s does not carry.
func (r *Reservation) apply(s State) {
	r.Status = s.Status()
	r.HoldExpiresAt = nil
	r.PendingExpiresAt = nil
	r.ProposedStartAt = nil
	r.ProposedEndAt = nil

	switch v := s.(type) {
	case Held:
		r.HoldExpiresAt = ptr(v.ExpiresAt)
	case AwaitingApproval:
		r.PendingExpiresAt = ptr(v.ExpiresAt)
	case Proposed:
		r.ProposedStartAt = ptr(v.Range.Start)
		r.ProposedEndAt = ptr(v.Range.End)
		r.PendingExpiresAt = ptr(v.ExpiresAt)
	case Confirmed:
		if v.MoveTo != nil {
			r.StartAt, r.EndAt = v.MoveTo.Start, v.MoveTo.End
		}
	}
}

func ptr[T any](v T) *T { return &v }

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// Dashboard is a patient's reservations split around now.
type Dashboard struct {
	Upcoming []Reservation
	Past     []Reservation
}
