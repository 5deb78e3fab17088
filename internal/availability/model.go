package availability

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking-platform/internal/conflict"
)

type Clinic struct {
	ID                 uuid.UUID
	Name               string
	Timezone           string
	RequiresApproval   bool
	CancellationNotice time.Duration
	Active             bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Location resolves the clinic's IANA timezone. Window times are wall-clock
// times in this location.
func (c Clinic) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("clinic %s timezone %q: %w", c.ID, c.Timezone, err)
	}
	return loc, nil
}

// Window is a recurring weekly availability block of one doctor at one clinic.
type Window struct {
	ID          uuid.UUID
	DoctorID    uuid.UUID
	ClinicID    uuid.UUID
	Day         int // 0 = Monday
	StartMinute int
	EndMinute   int
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (w Window) Span() conflict.WeeklySpan {
	return conflict.WeeklySpan{Day: w.Day, Start: w.StartMinute, End: w.EndMinute}
}

type AppointmentType struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	ClinicID  uuid.UUID
	Name      string
	Duration  time.Duration
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Bookable reports whether the type can be used for a new booking with this
// doctor at this clinic.
func (t AppointmentType) Bookable(doctorID, clinicID uuid.UUID) bool {
	return t.Active && t.DoctorID == doctorID && t.ClinicID == clinicID && t.Duration > 0
}
