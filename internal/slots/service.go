package slots

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking-platform/internal/availability"
	"github.com/hackgods/clinic-booking-platform/internal/conflict"
)

// BlockerSource lists the active ranges occupying a doctor's calendar in
// [from, to), across every clinic. HOLDs whose deadline is at or before now
// are not blockers.
type BlockerSource interface {
	ListBlocking(ctx context.Context, doctorID uuid.UUID, from, to, now time.Time) ([]conflict.Range, error)
}

type Request struct {
	DoctorID          uuid.UUID
	ClinicID          uuid.UUID
	AppointmentTypeID uuid.UUID
	Date              time.Time
}

// Service is the read path of the booking flow. It takes no locks; the
// booking engine re-validates every candidate before reserving it.
type Service struct {
	avail    availability.Reader
	blockers BlockerSource
	now      func() time.Time
}

func NewService(avail availability.Reader, blockers BlockerSource, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{avail: avail, blockers: blockers, now: now}
}

func (s *Service) Generate(ctx context.Context, req Request) ([]conflict.Range, error) {
	typ, err := s.avail.GetAppointmentType(ctx, req.AppointmentTypeID)
	if err != nil {
		return nil, err
	}
	if !typ.Bookable(req.DoctorID, req.ClinicID) {
		return nil, availability.ErrAppointmentTypeNotFound
	}

	clinic, err := s.avail.GetClinic(ctx, req.ClinicID)
	if err != nil {
		return nil, err
	}
	loc, err := clinic.Location()
	if err != nil {
		return nil, err
	}

	y, m, d := req.Date.Date()
	day := conflict.Weekday(time.Date(y, m, d, 12, 0, 0, 0, loc).Weekday())
	windows, err := s.avail.ListActiveWindows(ctx, req.DoctorID, req.ClinicID, day)
	if err != nil {
		return nil, fmt.Errorf("load windows: %w", err)
	}
	if len(windows) == 0 {
		return []conflict.Range{}, nil
	}

	from, to := DayBounds(req.Date, loc)
	now := s.now()
	blockers, err := s.blockers.ListBlocking(ctx, req.DoctorID, from, to, now)
	if err != nil {
		return nil, fmt.Errorf("load blockers: %w", err)
	}

	return Generate(windows, blockers, req.Date, loc, typ.Duration, now), nil
}
