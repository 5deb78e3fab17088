package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking-platform/internal/actor"
	"github.com/hackgods/clinic-booking-platform/internal/availability"
	"github.com/hackgods/clinic-booking-platform/internal/conflict"
	"github.com/hackgods/clinic-booking-platform/internal/slots"
)

type AvailabilityService interface {
	CreateClinic(ctx context.Context, a actor.Actor, c availability.Clinic) (*availability.Clinic, error)
	CreateWindow(ctx context.Context, a actor.Actor, in availability.WindowInput) (*availability.Window, error)
	UpdateWindow(ctx context.Context, a actor.Actor, id uuid.UUID, day, startMinute, endMinute int) (*availability.Window, error)
	DeactivateWindow(ctx context.Context, a actor.Actor, id uuid.UUID) (*availability.Window, error)
	ListWindows(ctx context.Context, doctorID uuid.UUID) ([]availability.Window, error)
	CreateAppointmentType(ctx context.Context, a actor.Actor, in availability.AppointmentTypeInput) (*availability.AppointmentType, error)
	ListAppointmentTypes(ctx context.Context, doctorID uuid.UUID, clinicID *uuid.UUID) ([]availability.AppointmentType, error)
}

type SlotService interface {
	Generate(ctx context.Context, req slots.Request) ([]conflict.Range, error)
}

type availabilityHandlers struct {
	svc   AvailabilityService
	slots SlotService
	log   *zap.Logger
}

func (h *availabilityHandlers) createClinic(w http.ResponseWriter, r *http.Request) {
	var req ClinicRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	c, err := h.svc.CreateClinic(r.Context(), ActorFrom(r.Context()), availability.Clinic{
		Name:               req.Name,
		Timezone:           req.Timezone,
		RequiresApproval:   req.RequiresApproval,
		CancellationNotice: time.Duration(req.CancellationNoticeMinutes) * time.Minute,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toClinic(c))
}

// parseSpan reads the weekly span of a window body.
func parseSpan(req WindowRequest) (day, start, end int, err error) {
	start, err = conflict.ParseClock(req.Start)
	if err != nil {
		return 0, 0, 0, err
	}
	end, err = conflict.ParseClock(req.End)
	if err != nil {
		return 0, 0, 0, err
	}
	return req.Day, start, end, nil
}

func (h *availabilityHandlers) createWindow(w http.ResponseWriter, r *http.Request) {
	doctorID, err := pathUUID(r, "doctorID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", err.Error())
		return
	}
	var req WindowRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	clinicID, err := uuid.Parse(req.ClinicID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_clinic_id", "clinic_id must be a valid UUID")
		return
	}
	day, start, end, err := parseSpan(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_window", err.Error())
		return
	}

	win, err := h.svc.CreateWindow(r.Context(), ActorFrom(r.Context()), availability.WindowInput{
		DoctorID: doctorID, ClinicID: clinicID, Day: day, StartMinute: start, EndMinute: end,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWindow(win))
}

func (h *availabilityHandlers) updateWindow(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_window_id", err.Error())
		return
	}
	var req WindowRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	day, start, end, err := parseSpan(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_window", err.Error())
		return
	}

	win, err := h.svc.UpdateWindow(r.Context(), ActorFrom(r.Context()), id, day, start, end)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toWindow(win))
}

func (h *availabilityHandlers) deactivateWindow(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_window_id", err.Error())
		return
	}
	win, err := h.svc.DeactivateWindow(r.Context(), ActorFrom(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toWindow(win))
}

func (h *availabilityHandlers) listWindows(w http.ResponseWriter, r *http.Request) {
	doctorID, err := pathUUID(r, "doctorID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", err.Error())
		return
	}
	list, err := h.svc.ListWindows(r.Context(), doctorID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	out := make([]WindowResponse, 0, len(list))
	for i := range list {
		out = append(out, toWindow(&list[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *availabilityHandlers) createAppointmentType(w http.ResponseWriter, r *http.Request) {
	doctorID, err := pathUUID(r, "doctorID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", err.Error())
		return
	}
	var req AppointmentTypeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	clinicID, err := uuid.Parse(req.ClinicID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_clinic_id", "clinic_id must be a valid UUID")
		return
	}

	t, err := h.svc.CreateAppointmentType(r.Context(), ActorFrom(r.Context()), availability.AppointmentTypeInput{
		DoctorID: doctorID,
		ClinicID: clinicID,
		Name:     req.Name,
		Duration: time.Duration(req.DurationMinutes) * time.Minute,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentType(t))
}

func (h *availabilityHandlers) listAppointmentTypes(w http.ResponseWriter, r *http.Request) {
	doctorID, err := pathUUID(r, "doctorID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", err.Error())
		return
	}
	var clinicID *uuid.UUID
	if raw := r.URL.Query().Get("clinic_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_clinic_id", "clinic_id must be a valid UUID")
			return
		}
		clinicID = &id
	}

	list, err := h.svc.ListAppointmentTypes(r.Context(), doctorID, clinicID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	out := make([]AppointmentTypeResponse, 0, len(list))
	for i := range list {
		out = append(out, toAppointmentType(&list[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *availabilityHandlers) listSlots(w http.ResponseWriter, r *http.Request) {
	doctorID, err := pathUUID(r, "doctorID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", err.Error())
		return
	}
	q := r.URL.Query()
	clinicID, err1 := uuid.Parse(q.Get("clinic_id"))
	typeID, err2 := uuid.Parse(q.Get("appointment_type_id"))
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, "invalid_query", "clinic_id and appointment_type_id must be valid UUIDs")
		return
	}
	date, err := slots.ParseDate(q.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
		return
	}

	list, err := h.slots.Generate(r.Context(), slots.Request{
		DoctorID: doctorID, ClinicID: clinicID, AppointmentTypeID: typeID, Date: date,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlots(list))
}
