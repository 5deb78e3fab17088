package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking-platform/internal/appointment"
	"github.com/hackgods/clinic-booking-platform/internal/availability"
	"github.com/hackgods/clinic-booking-platform/internal/conflict"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type CreateHoldRequest struct {
	DoctorID          string    `json:"doctor_id"`
	ClinicID          string    `json:"clinic_id"`
	AppointmentTypeID string    `json:"appointment_type_id"`
	Start             time.Time `json:"start"`
}

type IntakeRequest struct {
	Answers json.RawMessage `json:"answers"`
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

type ProposeRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type WindowRequest struct {
	ClinicID string `json:"clinic_id"`
	Day      int    `json:"day"`
	Start    string `json:"start"` // HH:MM clinic local
	End      string `json:"end"`
}

type AppointmentTypeRequest struct {
	ClinicID        string `json:"clinic_id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
}

type ClinicRequest struct {
	Name                      string `json:"name"`
	Timezone                  string `json:"timezone"`
	RequiresApproval          bool   `json:"requires_approval"`
	CancellationNoticeMinutes int    `json:"cancellation_notice_minutes"`
}

type ReservationResponse struct {
	ID                uuid.UUID  `json:"id"`
	DoctorID          uuid.UUID  `json:"doctor_id"`
	ClinicID          uuid.UUID  `json:"clinic_id"`
	PatientID         uuid.UUID  `json:"patient_id"`
	AppointmentTypeID uuid.UUID  `json:"appointment_type_id"`
	Status            string     `json:"status"`
	Start             time.Time  `json:"start"`
	End               time.Time  `json:"end"`
	ProposedStart     *time.Time `json:"proposed_start,omitempty"`
	ProposedEnd       *time.Time `json:"proposed_end,omitempty"`
	HoldExpiresAt     *time.Time `json:"hold_expires_at,omitempty"`
	PendingExpiresAt  *time.Time `json:"pending_expires_at,omitempty"`
	Warning           string     `json:"warning,omitempty"`
}

func toReservation(r *appointment.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:                r.ID,
		DoctorID:          r.DoctorID,
		ClinicID:          r.ClinicID,
		PatientID:         r.PatientID,
		AppointmentTypeID: r.AppointmentTypeID,
		Status:            string(r.Status),
		Start:             r.StartAt,
		End:               r.EndAt,
		ProposedStart:     r.ProposedStartAt,
		ProposedEnd:       r.ProposedEndAt,
		HoldExpiresAt:     r.HoldExpiresAt,
		PendingExpiresAt:  r.PendingExpiresAt,
	}
}

func toReservations(in []appointment.Reservation) []ReservationResponse {
	out := make([]ReservationResponse, 0, len(in))
	for i := range in {
		out = append(out, toReservation(&in[i]))
	}
	return out
}

type DashboardResponse struct {
	Upcoming []ReservationResponse `json:"upcoming"`
	Past     []ReservationResponse `json:"past"`
}

type SlotResponse struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func toSlots(in []conflict.Range) []SlotResponse {
	out := make([]SlotResponse, 0, len(in))
	for _, r := range in {
		out = append(out, SlotResponse{Start: r.Start, End: r.End})
	}
	return out
}

type WindowResponse struct {
	ID       uuid.UUID `json:"id"`
	DoctorID uuid.UUID `json:"doctor_id"`
	ClinicID uuid.UUID `json:"clinic_id"`
	Day      int       `json:"day"`
	DayName  string    `json:"day_name"`
	Start    string    `json:"start"`
	End      string    `json:"end"`
	Active   bool      `json:"active"`
}

func toWindow(w *availability.Window) WindowResponse {
	return WindowResponse{
		ID:       w.ID,
		DoctorID: w.DoctorID,
		ClinicID: w.ClinicID,
		Day:      w.Day,
		DayName:  conflict.DayName(w.Day),
		Start:    conflict.FormatMinute(w.StartMinute),
		End:      conflict.FormatMinute(w.EndMinute),
		Active:   w.Active,
	}
}

type AppointmentTypeResponse struct {
	ID              uuid.UUID `json:"id"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	ClinicID        uuid.UUID `json:"clinic_id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
	Active          bool      `json:"active"`
}

func toAppointmentType(t *availability.AppointmentType) AppointmentTypeResponse {
	return AppointmentTypeResponse{
		ID:              t.ID,
		DoctorID:        t.DoctorID,
		ClinicID:        t.ClinicID,
		Name:            t.Name,
		DurationMinutes: int(t.Duration / time.Minute),
		Active:          t.Active,
	}
}

type ClinicResponse struct {
	ID                        uuid.UUID `json:"id"`
	Name                      string    `json:"name"`
	Timezone                  string    `json:"timezone"`
	RequiresApproval          bool      `json:"requires_approval"`
	CancellationNoticeMinutes int       `json:"cancellation_notice_minutes"`
	Active                    bool      `json:"active"`
}

func toClinic(c *availability.Clinic) ClinicResponse {
	return ClinicResponse{
		ID:                        c.ID,
		Name:                      c.Name,
		Timezone:                  c.Timezone,
		RequiresApproval:          c.RequiresApproval,
		CancellationNoticeMinutes: int(c.CancellationNotice / time.Minute),
		Active:                    c.Active,
	}
}
