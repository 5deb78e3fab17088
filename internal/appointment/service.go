package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking-platform/internal/actor"
	"github.com/hackgods/clinic-booking-platform/internal/availability"
	"github.com/hackgods/clinic-booking-platform/internal/config"
	"github.com/hackgods/clinic-booking-platform/internal/conflict"
	"github.com/hackgods/clinic-booking-platform/internal/metrics"
	redisclient "github.com/hackgods/clinic-booking-platform/internal/redis"
	"github.com/hackgods/clinic-booking-platform/internal/slots"
)

// Deps are the collaborators of the booking engine.
type Deps struct {
	Repo         Repository
	Locker       redisclient.Locker
	Availability availability.Reader
	Limiter      RateLimiter
	Policy       CancellationPolicy
	Logger       *zap.Logger
	Now          func() time.Time
}

// Service is the Booking Engine. It owns the reservation state machine; every
// call names its actor explicitly.
type Service struct {
	repo   Repository
	locker redisclient.Locker
	avail  availability.Reader
	limit  RateLimiter
	policy CancellationPolicy
	log    *zap.Logger
	now    func() time.Time
	cfg    config.Config
}

func NewService(d Deps, cfg config.Config) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Policy == nil {
		d.Policy = NewCancellationPolicy(cfg.CancelNoticeMode)
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Service{
		repo:   d.Repo,
		locker: d.Locker,
		avail:  d.Availability,
		limit:  d.Limiter,
		policy: d.Policy,
		log:    d.Logger,
		now:    func() time.Time { return d.Now().UTC() },
		cfg:    cfg,
	}
}

// withDoctor runs fn in one transaction that holds the doctor's distributed
// lock and advisory lock.
func (s *Service) withDoctor(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context, tx Tx) error) error {
	err := s.locker.WithDoctorLock(ctx, doctorID, func(lockCtx context.Context) error {
		return s.repo.WithinTx(lockCtx, func(ctx context.Context, tx Tx) error {
			if err := tx.LockDoctor(ctx, doctorID); err != nil {
				return err
			}
			return fn(ctx, tx)
		})
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrLockTimeout
	}
	return err
}

type HoldRequest struct {
	DoctorID          uuid.UUID
	ClinicID          uuid.UUID
	AppointmentTypeID uuid.UUID
	Start             time.Time
	IdempotencyKey    string
}

// CreateHold reserves a generated slot for the calling patient. A retried
// request carrying the same idempotency key returns the original reservation
// with replayed set.
func (s *Service) CreateHold(ctx context.Context, a actor.Actor, req HoldRequest) (*Reservation, bool, error) {
	res, replayed, err := s.createHold(ctx, a, req)

	outcome := "created"
	switch {
	case err == nil && replayed:
		outcome = "replayed"
	case errors.Is(err, ErrSlotUnavailable):
		outcome = "slot_unavailable"
	case errors.Is(err, ErrRateLimited):
		outcome = "rate_limited"
	case errors.Is(err, ErrInvalidSlot), errors.Is(err, ErrSlotInPast), errors.Is(err, ErrForbidden):
		outcome = "invalid"
	case err != nil:
		outcome = "error"
	}
	metrics.HoldAttempts.WithLabelValues(outcome).Inc()

	return res, replayed, err
}

func (s *Service) createHold(ctx context.Context, a actor.Actor, req HoldRequest) (*Reservation, bool, error) {
	if a.Role != actor.RolePatient {
		return nil, false, ErrForbidden
	}
	patientID := a.ID

	if s.limit != nil {
		ok, err := s.limit.Allow(ctx, patientID.String())
		if err != nil {
			s.log.Warn("booking rate limiter unavailable", zap.Error(err))
		}
		if !ok {
			return nil, false, ErrRateLimited
		}
	}

	typ, err := s.avail.GetAppointmentType(ctx, req.AppointmentTypeID)
	if err != nil {
		if errors.Is(err, availability.ErrAppointmentTypeNotFound) {
			return nil, false, fmt.Errorf("%w: unknown appointment type", ErrInvalidSlot)
		}
		return nil, false, fmt.Errorf("load appointment type: %w", err)
	}
	if !typ.Bookable(req.DoctorID, req.ClinicID) {
		return nil, false, fmt.Errorf("%w: appointment type is not offered by this doctor at this clinic", ErrInvalidSlot)
	}

	clinic, err := s.avail.GetClinic(ctx, req.ClinicID)
	if err != nil {
		if errors.Is(err, availability.ErrClinicNotFound) {
			return nil, false, fmt.Errorf("%w: unknown clinic", ErrInvalidSlot)
		}
		return nil, false, fmt.Errorf("load clinic: %w", err)
	}
	if !clinic.Active {
		return nil, false, fmt.Errorf("%w: clinic is not taking bookings", ErrInvalidSlot)
	}

	now := s.now()
	rng := conflict.Range{Start: req.Start.UTC(), End: req.Start.UTC().Add(typ.Duration)}
	if !rng.Start.After(now) {
		return nil, false, ErrSlotInPast
	}
	if err := s.checkTile(ctx, *clinic, req.DoctorID, rng, typ.Duration); err != nil {
		return nil, false, err
	}

	key := strings.TrimSpace(req.IdempotencyKey)

	var (
		created  *Reservation
		replayed bool
	)
	err = s.withDoctor(ctx, req.DoctorID, func(ctx context.Context, tx Tx) error {
		if key != "" {
			existing, err := tx.FindByIdempotencyKey(ctx, patientID, req.DoctorID, key)
			switch {
			case err == nil:
				if !existing.StartAt.Equal(rng.Start) || existing.AppointmentTypeID != req.AppointmentTypeID || existing.ClinicID != req.ClinicID {
					return fmt.Errorf("%w: idempotency key already used for a different slot", ErrInvalidSlot)
				}
				created, replayed = existing, true
				return nil
			case !errors.Is(err, ErrReservationNotFound):
				return fmt.Errorf("lookup idempotency key: %w", err)
			}
		}

		if err := s.releasePriorHolds(ctx, tx, patientID, req.DoctorID); err != nil {
			return err
		}

		blocking, err := tx.ActiveOverlapping(ctx, req.DoctorID, rng, uuid.Nil)
		if err != nil {
			return err
		}
		if len(blocking) > 0 {
			return ErrSlotUnavailable
		}

		r := Reservation{
			ID:                uuid.New(),
			DoctorID:          req.DoctorID,
			ClinicID:          req.ClinicID,
			PatientID:         patientID,
			AppointmentTypeID: req.AppointmentTypeID,
			StartAt:           rng.Start,
			EndAt:             rng.End,
		}
		if key != "" {
			r.IdempotencyKey = &key
		}
		r.apply(Held{ExpiresAt: now.Add(s.cfg.HoldTTL)})
		if err := r.Validate(); err != nil {
			return err
		}

		created, err = tx.Insert(ctx, r)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	if !replayed {
		metrics.Transitions.WithLabelValues("NONE", string(StatusHold)).Inc()
		s.log.Info("hold created",
			zap.Stringer("reservation_id", created.ID),
			zap.Stringer("doctor_id", created.DoctorID),
			zap.Stringer("clinic_id", created.ClinicID),
			zap.Stringer("patient_id", created.PatientID),
			zap.Time("start_at", created.StartAt),
			zap.Timep("hold_expires_at", created.HoldExpiresAt),
		)
	}
	return created, replayed, nil
}

// checkTile rejects ranges that are not one of the generated slots of their
// local day.
func (s *Service) checkTile(ctx context.Context, clinic availability.Clinic, doctorID uuid.UUID, rng conflict.Range, duration time.Duration) error {
	loc, err := clinic.Location()
	if err != nil {
		return err
	}
	local := rng.Start.In(loc)
	windows, err := s.avail.ListActiveWindows(ctx, doctorID, clinic.ID, conflict.Weekday(local.Weekday()))
	if err != nil {
		return fmt.Errorf("load windows: %w", err)
	}
	if !slots.Contains(slots.Tile(windows, local, loc, duration), rng) {
		return fmt.Errorf("%w: %s", ErrInvalidSlot, rng)
	}
	return nil
}

// releasePriorHolds cancels the patient's outstanding HOLDs with the doctor.
// Other active bookings with the same doctor are left alone but logged.
func (s *Service) releasePriorHolds(ctx context.Context, tx Tx, patientID, doctorID uuid.UUID) error {
	mine, err := tx.ActiveByPatientDoctor(ctx, patientID, doctorID)
	if err != nil {
		return err
	}
	for _, r := range mine {
		if r.Status != StatusHold {
			s.log.Warn("patient already has an active booking with this doctor",
				zap.Stringer("patient_id", patientID),
				zap.Stringer("doctor_id", doctorID),
				zap.Stringer("reservation_id", r.ID),
				zap.String("status", string(r.Status)),
			)
			continue
		}
		r.apply(Closed{Final: StatusCancelled})
		if _, err := tx.Update(ctx, r, StatusHold); err != nil {
			return fmt.Errorf("release prior hold %s: %w", r.ID, err)
		}
		s.log.Info("prior hold released", zap.Stringer("reservation_id", r.ID))
	}
	return nil
}

// step describes one lifecycle action on an existing reservation.
type step struct {
	name string
	// lock takes the per-doctor lock; required whenever the action keeps or
	// moves the reservation into the calendar.
	lock bool
	from []Status
	// authorize returns ErrForbidden when the actor may not take this step.
	authorize func(r *Reservation) error
	// next decides the target state under the row lock.
	next   func(ctx context.Context, tx Tx, r *Reservation, now time.Time) (State, error)
	reason string
}

func (s *Service) transition(ctx context.Context, a actor.Actor, id uuid.UUID, st step) (*Reservation, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := st.authorize(current); err != nil {
		return nil, err
	}

	var (
		updated *Reservation
		from    Status
	)
	run := func(ctx context.Context, tx Tx) error {
		r, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = r.Status
		if !slices.Contains(st.from, from) {
			return fmt.Errorf("%w: cannot %s a %s reservation", ErrInvalidTransition, st.name, from)
		}

		now := s.now()
		next, err := st.next(ctx, tx, r, now)
		if err != nil {
			return err
		}
		if err := checkTransition(from, next.Status()); err != nil {
			return err
		}

		r.apply(next)
		if err := r.Validate(); err != nil {
			return err
		}

		updated, err = tx.Update(ctx, *r, from)
		if err != nil {
			return err
		}

		if t, ok := notificationFor(from, updated.Status); ok {
			if err := tx.AppendNotification(ctx, notificationRequest(t, *updated, st.reason)); err != nil {
				return err
			}
		}
		return nil
	}

	if st.lock {
		err = s.withDoctor(ctx, current.DoctorID, run)
	} else {
		err = s.repo.WithinTx(ctx, run)
	}
	if err != nil {
		return nil, err
	}

	metrics.Transitions.WithLabelValues(string(from), string(updated.Status)).Inc()
	s.log.Info("reservation transition",
		zap.Stringer("reservation_id", updated.ID),
		zap.String("action", st.name),
		zap.String("from", string(from)),
		zap.String("to", string(updated.Status)),
		zap.Stringer("actor", a),
	)
	return updated, nil
}

func ownedBy(a actor.Actor) func(r *Reservation) error {
	return func(r *Reservation) error {
		if !a.IsPatient(r.PatientID) {
			return ErrForbidden
		}
		return nil
	}
}

func staffOf(a actor.Actor) func(r *Reservation) error {
	return func(r *Reservation) error {
		if !a.ManagesClinic(r.ClinicID) {
			return ErrForbidden
		}
		return nil
	}
}

func staffOrDoctor(a actor.Actor) func(r *Reservation) error {
	return func(r *Reservation) error {
		if !a.ManagesClinic(r.ClinicID) && !a.IsDoctor(r.DoctorID) {
			return ErrForbidden
		}
		return nil
	}
}

// requireFree fails with ErrSlotUnavailable when rng collides with another
// active reservation of the doctor.
func requireFree(ctx context.Context, tx Tx, r *Reservation, rng conflict.Range) error {
	blocking, err := tx.ActiveOverlapping(ctx, r.DoctorID, rng, r.ID)
	if err != nil {
		return err
	}
	if len(blocking) > 0 {
		return ErrSlotUnavailable
	}
	return nil
}

// ReleaseHold lets a patient drop their own HOLD. Nothing is sent.
func (s *Service) ReleaseHold(ctx context.Context, a actor.Actor, id uuid.UUID) (*Reservation, error) {
	return s.transition(ctx, a, id, step{
		name:      "release",
		from:      []Status{StatusHold},
		authorize: ownedBy(a),
		next: func(context.Context, Tx, *Reservation, time.Time) (State, error) {
			return Closed{Final: StatusCancelled}, nil
		},
	})
}

// SubmitIntake stores the patient's intake answers while the HOLD is open.
func (s *Service) SubmitIntake(ctx context.Context, a actor.Actor, id uuid.UUID, answers json.RawMessage) error {
	if len(answers) == 0 || !json.Valid(answers) {
		return fmt.Errorf("%w: answers must be valid JSON", ErrIntakeIncomplete)
	}

	return s.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		r, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !a.IsPatient(r.PatientID) {
			return ErrForbidden
		}
		if r.Status != StatusHold {
			return fmt.Errorf("%w: intake can only be submitted while HOLD, reservation is %s", ErrInvalidTransition, r.Status)
		}
		return tx.SaveIntake(ctx, id, answers)
	})
}

// Submit finalises a HOLD: PENDING_APPROVAL when the clinic reviews bookings,
// CONFIRMED otherwise.
func (s *Service) Submit(ctx context.Context, a actor.Actor, id uuid.UUID) (*Reservation, error) {
	return s.transition(ctx, a, id, step{
		name:      "submit",
		lock:      true,
		from:      []Status{StatusHold},
		authorize: ownedBy(a),
		next: func(ctx context.Context, tx Tx, r *Reservation, now time.Time) (State, error) {
			if r.HoldExpiresAt != nil && !r.HoldExpiresAt.After(now) {
				return nil, ErrHoldExpired
			}
			if !r.StartAt.After(now) {
				return nil, ErrSlotInPast
			}
			ok, err := tx.IntakeComplete(ctx, r.ID)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, ErrIntakeIncomplete
			}
			if err := requireFree(ctx, tx, r, r.Range()); err != nil {
				return nil, err
			}

			clinic, err := s.avail.GetClinic(ctx, r.ClinicID)
			if err != nil {
				return nil, fmt.Errorf("load clinic: %w", err)
			}
			if !clinic.RequiresApproval {
				return Confirmed{}, nil
			}

			deadline := now.Add(s.cfg.PendingApprovalTTL)
			if r.StartAt.Before(deadline) {
				deadline = r.StartAt
			}
			return AwaitingApproval{ExpiresAt: deadline}, nil
		},
	})
}

func (s *Service) Approve(ctx context.Context, a actor.Actor, id uuid.UUID) (*Reservation, error) {
	return s.transition(ctx, a, id, step{
		name:      "approve",
		lock:      true,
		from:      []Status{StatusPendingApproval},
		authorize: staffOf(a),
		next: func(ctx context.Context, tx Tx, r *Reservation, _ time.Time) (State, error) {
			if err := requireFree(ctx, tx, r, r.Range()); err != nil {
				return nil, err
			}
			return Confirmed{}, nil
		},
	})
}

func (s *Service) Reject(ctx context.Context, a actor.Actor, id uuid.UUID, reason string) (*Reservation, error) {
	return s.transition(ctx, a, id, step{
		name:      "reject",
		from:      []Status{StatusPendingApproval},
		authorize: staffOf(a),
		reason:    reason,
		next: func(context.Context, Tx, *Reservation, time.Time) (State, error) {
			return Closed{Final: StatusRejected}, nil
		},
	})
}

// ProposeAlternative offers the patient a different range for a booking
// awaiting approval. The reservation's own range never counts as a conflict.
// The proposal deadline is capped at the proposed start.
func (s *Service) ProposeAlternative(ctx context.Context, a actor.Actor, id uuid.UUID, start, end time.Time) (*Reservation, error) {
	proposed := conflict.Range{Start: start.UTC(), End: end.UTC()}
	if !proposed.Valid() {
		return nil, ErrInvalidRange
	}

	return s.transition(ctx, a, id, step{
		name:      "propose",
		lock:      true,
		from:      []Status{StatusPendingApproval},
		authorize: staffOf(a),
		next: func(ctx context.Context, tx Tx, r *Reservation, now time.Time) (State, error) {
			if !proposed.Start.After(now) {
				return nil, ErrSlotInPast
			}
			if err := requireFree(ctx, tx, r, proposed); err != nil {
				return nil, err
			}
			deadline := now.Add(s.cfg.ProposalTTL)
			if proposed.Start.Before(deadline) {
				deadline = proposed.Start
			}
			return Proposed{Range: proposed, ExpiresAt: deadline}, nil
		},
	})
}

// AcceptProposal moves the booking onto the proposed range and confirms it.
func (s *Service) AcceptProposal(ctx context.Context, a actor.Actor, id uuid.UUID) (*Reservation, error) {
	return s.transition(ctx, a, id, step{
		name:      "accept proposal",
		lock:      true,
		from:      []Status{StatusProposedTime},
		authorize: ownedBy(a),
		next: func(ctx context.Context, tx Tx, r *Reservation, now time.Time) (State, error) {
			if r.PendingExpiresAt != nil && !r.PendingExpiresAt.After(now) {
				return nil, ErrProposalExpired
			}
			proposed := r.ActiveRange()
			if err := requireFree(ctx, tx, r, proposed); err != nil {
				return nil, err
			}
			return Confirmed{MoveTo: &proposed}, nil
		},
	})
}

func (s *Service) RejectProposal(ctx context.Context, a actor.Actor, id uuid.UUID) (*Reservation, error) {
	return s.transition(ctx, a, id, step{
		name:      "reject proposal",
		from:      []Status{StatusProposedTime},
		authorize: ownedBy(a),
		next: func(context.Context, Tx, *Reservation, time.Time) (State, error) {
			return Closed{Final: StatusCancelled}, nil
		},
	})
}

// Cancel lets the patient cancel a PENDING_APPROVAL or CONFIRMED booking and
// clinic staff cancel a CONFIRMED one. A CONFIRMED cancellation goes through
// the cancellation policy, whose warning is returned.
func (s *Service) Cancel(ctx context.Context, a actor.Actor, id uuid.UUID, reason string) (*Reservation, string, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}

	var from []Status
	switch {
	case a.IsPatient(current.PatientID):
		from = []Status{StatusPendingApproval, StatusConfirmed}
	case a.ManagesClinic(current.ClinicID):
		from = []Status{StatusConfirmed}
	default:
		return nil, "", ErrForbidden
	}

	clinic, err := s.avail.GetClinic(ctx, current.ClinicID)
	if err != nil {
		return nil, "", fmt.Errorf("load clinic: %w", err)
	}

	var warning string
	updated, err := s.transition(ctx, a, id, step{
		name:      "cancel",
		from:      from,
		authorize: func(*Reservation) error { return nil },
		reason:    reason,
		next: func(_ context.Context, _ Tx, r *Reservation, now time.Time) (State, error) {
			if r.Status == StatusConfirmed {
				w, err := s.policy.Check(*clinic, *r, now)
				if err != nil {
					return nil, err
				}
				warning = w
			}
			return Closed{Final: StatusCancelled}, nil
		},
	})
	if err != nil {
		return nil, "", err
	}
	return updated, warning, nil
}

func (s *Service) Complete(ctx context.Context, a actor.Actor, id uuid.UUID) (*Reservation, error) {
	return s.transition(ctx, a, id, step{
		name:      "complete",
		from:      []Status{StatusConfirmed},
		authorize: staffOrDoctor(a),
		next:      closeAfterStart(StatusCompleted),
	})
}

func (s *Service) MarkNoShow(ctx context.Context, a actor.Actor, id uuid.UUID) (*Reservation, error) {
	return s.transition(ctx, a, id, step{
		name:      "mark no-show",
		from:      []Status{StatusConfirmed},
		authorize: staffOrDoctor(a),
		next:      closeAfterStart(StatusNoShow),
	})
}

// closeAfterStart refuses to close an appointment that has not begun yet.
func closeAfterStart(final Status) func(context.Context, Tx, *Reservation, time.Time) (State, error) {
	return func(_ context.Context, _ Tx, r *Reservation, now time.Time) (State, error) {
		if now.Before(r.StartAt) {
			return nil, fmt.Errorf("%w: appointment has not started", ErrInvalidTransition)
		}
		return Closed{Final: final}, nil
	}
}

// Get returns a reservation visible to the actor.
func (s *Service) Get(ctx context.Context, a actor.Actor, id uuid.UUID) (*Reservation, error) {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.IsPatient(r.PatientID) && !a.IsDoctor(r.DoctorID) && !a.ManagesClinic(r.ClinicID) {
		return nil, ErrForbidden
	}
	return r, nil
}

// ListForPatient splits the calling patient's reservations into upcoming
// (active and not yet over, soonest first) and past (latest first).
func (s *Service) ListForPatient(ctx context.Context, a actor.Actor) (*Dashboard, error) {
	if a.Role != actor.RolePatient {
		return nil, ErrForbidden
	}
	all, err := s.repo.ListByPatient(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("list reservations by patient: %w", err)
	}

	now := s.now()
	d := &Dashboard{Upcoming: []Reservation{}, Past: []Reservation{}}
	for _, r := range all {
		if r.Status.IsActive() && r.EndAt.After(now) {
			d.Upcoming = append(d.Upcoming, r)
		} else {
			d.Past = append(d.Past, r)
		}
	}
	sort.Slice(d.Upcoming, func(i, j int) bool { return d.Upcoming[i].StartAt.Before(d.Upcoming[j].StartAt) })
	sort.Slice(d.Past, func(i, j int) bool { return d.Past[i].StartAt.After(d.Past[j].StartAt) })
	return d, nil
}

// ListForClinic is the staff work queue of one clinic.
func (s *Service) ListForClinic(ctx context.Context, a actor.Actor, clinicID uuid.UUID, statuses []Status, limit, offset int) ([]Reservation, error) {
	if !a.ManagesClinic(clinicID) {
		return nil, ErrForbidden
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	out, err := s.repo.ListByClinic(ctx, clinicID, statuses, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list reservations by clinic: %w", err)
	}
	return out, nil
}

// ListForDoctor returns a doctor's schedule across every clinic. Staff see
// only the part that belongs to their clinic.
func (s *Service) ListForDoctor(ctx context.Context, a actor.Actor, doctorID uuid.UUID, from, to time.Time) ([]Reservation, error) {
	if !to.After(from) {
		return nil, ErrInvalidRange
	}
	if !a.IsDoctor(doctorID) && a.Role != actor.RoleAdmin && a.Role != actor.RoleStaff && a.Role != actor.RoleSystem {
		return nil, ErrForbidden
	}

	all, err := s.repo.ListByDoctor(ctx, doctorID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list reservations by doctor: %w", err)
	}
	if a.Role != actor.RoleStaff {
		return all, nil
	}

	out := all[:0]
	for _, r := range all {
		if a.ManagesClinic(r.ClinicID) {
			out = append(out, r)
		}
	}
	return out, nil
}
