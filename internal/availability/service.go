package availability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking-platform/internal/actor"
	"github.com/hackgods/clinic-booking-platform/internal/conflict"
)

type Service struct {
	repo Repository
	log  *zap.Logger
}

func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, log: logger}
}

type WindowInput struct {
	DoctorID    uuid.UUID
	ClinicID    uuid.UUID
	Day         int
	StartMinute int
	EndMinute   int
}

func (in WindowInput) span() conflict.WeeklySpan {
	return conflict.WeeklySpan{Day: in.Day, Start: in.StartMinute, End: in.EndMinute}
}

type AppointmentTypeInput struct {
	DoctorID uuid.UUID
	ClinicID uuid.UUID
	Name     string
	Duration time.Duration
}

// authorize: admins manage everything, staff their own clinic, doctors only
// their own calendar.
func authorize(a actor.Actor, doctorID, clinicID uuid.UUID) error {
	if a.ManagesClinic(clinicID) || a.IsDoctor(doctorID) {
		return nil
	}
	return ErrForbidden
}

// checkOverlap compares a candidate against every active window of the doctor
// in every clinic, ignoring the window being edited.
func checkOverlap(existing []Window, candidate conflict.WeeklySpan, clinicID, self uuid.UUID) error {
	for _, w := range existing {
		if w.ID == self {
			continue
		}
		if w.Span().Overlaps(candidate) {
			return &WindowConflictError{
				Candidate:  candidate,
				Existing:   w,
				SameClinic: w.ClinicID == clinicID,
			}
		}
	}
	return nil
}

func (s *Service) CreateWindow(ctx context.Context, a actor.Actor, in WindowInput) (*Window, error) {
	if err := authorize(a, in.DoctorID, in.ClinicID); err != nil {
		return nil, err
	}
	span := in.span()
	if !span.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidWindow, span)
	}
	if _, err := s.repo.GetClinic(ctx, in.ClinicID); err != nil {
		return nil, err
	}

	var created *Window
	err := s.repo.WithDoctorTx(ctx, in.DoctorID, func(ctx context.Context, tx WindowTx) error {
		existing, err := tx.ActiveWindowsForDoctor(ctx, in.DoctorID)
		if err != nil {
			return err
		}
		if err := checkOverlap(existing, span, in.ClinicID, uuid.Nil); err != nil {
			return err
		}

		created, err = tx.InsertWindow(ctx, Window{
			DoctorID:    in.DoctorID,
			ClinicID:    in.ClinicID,
			Day:         in.Day,
			StartMinute: in.StartMinute,
			EndMinute:   in.EndMinute,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("availability window created",
		zap.Stringer("window_id", created.ID),
		zap.Stringer("doctor_id", created.DoctorID),
		zap.Stringer("clinic_id", created.ClinicID),
		zap.String("span", created.Span().String()),
		zap.Stringer("actor", a),
	)
	return created, nil
}

// UpdateWindow moves a window to a new day or time range. Its clinic and
// doctor never change.
func (s *Service) UpdateWindow(ctx context.Context, a actor.Actor, id uuid.UUID, day, startMinute, endMinute int) (*Window, error) {
	current, err := s.repo.GetWindow(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(a, current.DoctorID, current.ClinicID); err != nil {
		return nil, err
	}
	span := conflict.WeeklySpan{Day: day, Start: startMinute, End: endMinute}
	if !span.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidWindow, span)
	}

	var updated *Window
	err = s.repo.WithDoctorTx(ctx, current.DoctorID, func(ctx context.Context, tx WindowTx) error {
		w, err := tx.GetWindowForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !w.Active {
			return fmt.Errorf("%w: window is inactive", ErrInvalidWindow)
		}

		existing, err := tx.ActiveWindowsForDoctor(ctx, w.DoctorID)
		if err != nil {
			return err
		}
		if err := checkOverlap(existing, span, w.ClinicID, w.ID); err != nil {
			return err
		}

		w.Day, w.StartMinute, w.EndMinute = day, startMinute, endMinute
		updated, err = tx.UpdateWindow(ctx, *w)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("availability window updated",
		zap.Stringer("window_id", updated.ID),
		zap.String("span", updated.Span().String()),
		zap.Stringer("actor", a),
	)
	return updated, nil
}

// DeactivateWindow retires a window. Existing reservations inside it are kept.
func (s *Service) DeactivateWindow(ctx context.Context, a actor.Actor, id uuid.UUID) (*Window, error) {
	current, err := s.repo.GetWindow(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(a, current.DoctorID, current.ClinicID); err != nil {
		return nil, err
	}

	var out *Window
	err = s.repo.WithDoctorTx(ctx, current.DoctorID, func(ctx context.Context, tx WindowTx) error {
		var err error
		out, err = tx.DeactivateWindow(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("availability window deactivated", zap.Stringer("window_id", id), zap.Stringer("actor", a))
	return out, nil
}

func (s *Service) ListWindows(ctx context.Context, doctorID uuid.UUID) ([]Window, error) {
	return s.repo.ListWindowsByDoctor(ctx, doctorID)
}

func (s *Service) CreateAppointmentType(ctx context.Context, a actor.Actor, in AppointmentTypeInput) (*AppointmentType, error) {
	if err := authorize(a, in.DoctorID, in.ClinicID); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidAppointmentType)
	}
	if in.Duration <= 0 || in.Duration%time.Minute != 0 {
		return nil, fmt.Errorf("%w: duration must be a positive whole number of minutes", ErrInvalidAppointmentType)
	}
	if _, err := s.repo.GetClinic(ctx, in.ClinicID); err != nil {
		return nil, err
	}

	t, err := s.repo.CreateAppointmentType(ctx, AppointmentType{
		DoctorID: in.DoctorID,
		ClinicID: in.ClinicID,
		Name:     in.Name,
		Duration: in.Duration,
	})
	if err != nil {
		return nil, fmt.Errorf("create appointment type: %w", err)
	}
	return t, nil
}

func (s *Service) ListAppointmentTypes(ctx context.Context, doctorID uuid.UUID, clinicID *uuid.UUID) ([]AppointmentType, error) {
	return s.repo.ListAppointmentTypes(ctx, doctorID, clinicID)
}

// CreateClinic is restricted to admins.
func (s *Service) CreateClinic(ctx context.Context, a actor.Actor, c Clinic) (*Clinic, error) {
	if a.Role != actor.RoleAdmin && a.Role != actor.RoleSystem {
		return nil, ErrForbidden
	}
	if strings.TrimSpace(c.Name) == "" {
		return nil, errors.New("clinic name is required")
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if _, err := c.Location(); err != nil {
		return nil, err
	}
	c.Active = true
	return s.repo.CreateClinic(ctx, c)
}

func (s *Service) GetClinic(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	return s.repo.GetClinic(ctx, id)
}
