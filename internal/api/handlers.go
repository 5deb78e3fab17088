package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking-platform/internal/actor"
	"github.com/hackgods/clinic-booking-platform/internal/appointment"
)

// BookingService is the booking engine as seen by the HTTP layer.
type BookingService interface {
	CreateHold(ctx context.Context, a actor.Actor, req appointment.HoldRequest) (*appointment.Reservation, bool, error)
	ReleaseHold(ctx context.Context, a actor.Actor, id uuid.UUID) (*appointment.Reservation, error)
	SubmitIntake(ctx context.Context, a actor.Actor, id uuid.UUID, answers json.RawMessage) error
	Submit(ctx context.Context, a actor.Actor, id uuid.UUID) (*appointment.Reservation, error)
	Approve(ctx context.Context, a actor.Actor, id uuid.UUID) (*appointment.Reservation, error)
	Reject(ctx context.Context, a actor.Actor, id uuid.UUID, reason string) (*appointment.Reservation, error)
	ProposeAlternative(ctx context.Context, a actor.Actor, id uuid.UUID, start, end time.Time) (*appointment.Reservation, error)
	AcceptProposal(ctx context.Context, a actor.Actor, id uuid.UUID) (*appointment.Reservation, error)
	RejectProposal(ctx context.Context, a actor.Actor, id uuid.UUID) (*appointment.Reservation, error)
	Cancel(ctx context.Context, a actor.Actor, id uuid.UUID, reason string) (*appointment.Reservation, string, error)
	Complete(ctx context.Context, a actor.Actor, id uuid.UUID) (*appointment.Reservation, error)
	MarkNoShow(ctx context.Context, a actor.Actor, id uuid.UUID) (*appointment.Reservation, error)
	Get(ctx context.Context, a actor.Actor, id uuid.UUID) (*appointment.Reservation, error)
	ListForPatient(ctx context.Context, a actor.Actor) (*appointment.Dashboard, error)
	ListForClinic(ctx context.Context, a actor.Actor, clinicID uuid.UUID, statuses []appointment.Status, limit, offset int) ([]appointment.Reservation, error)
	ListForDoctor(ctx context.Context, a actor.Actor, doctorID uuid.UUID, from, to time.Time) ([]appointment.Reservation, error)
}

type reservationHandlers struct {
	svc BookingService
	log *zap.Logger
}

func (h *reservationHandlers) create(w http.ResponseWriter, r *http.Request) {
	var req CreateHoldRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	doctorID, err1 := uuid.Parse(req.DoctorID)
	clinicID, err2 := uuid.Parse(req.ClinicID)
	typeID, err3 := uuid.Parse(req.AppointmentTypeID)
	if err1 != nil || err2 != nil || err3 != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "doctor_id, clinic_id and appointment_type_id must be valid UUIDs")
		return
	}
	if req.Start.IsZero() {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "start is required")
		return
	}

	res, replayed, err := h.svc.CreateHold(r.Context(), ActorFrom(r.Context()), appointment.HoldRequest{
		DoctorID:          doctorID,
		ClinicID:          clinicID,
		AppointmentTypeID: typeID,
		Start:             req.Start,
		IdempotencyKey:    r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
		w.Header().Set("Idempotent-Replayed", "true")
	}
	writeJSON(w, status, toReservation(res))
}

func (h *reservationHandlers) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_reservation_id", err.Error())
		return
	}
	res, err := h.svc.Get(r.Context(), ActorFrom(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservation(res))
}

func (h *reservationHandlers) intake(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_reservation_id", err.Error())
		return
	}
	var req IntakeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	if err := h.svc.SubmitIntake(r.Context(), ActorFrom(r.Context()), id, req.Answers); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// action adapts a lifecycle call that needs nothing but the reservation id.
func (h *reservationHandlers) action(call func(ctx context.Context, a actor.Actor, id uuid.UUID) (*appointment.Reservation, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_reservation_id", err.Error())
			return
		}
		res, err := call(r.Context(), ActorFrom(r.Context()), id)
		if err != nil {
			writeServiceError(w, r, h.log, err)
			return
		}
		writeJSON(w, http.StatusOK, toReservation(res))
	}
}

func (h *reservationHandlers) reject(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_reservation_id", err.Error())
		return
	}
	var req ReasonRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	res, err := h.svc.Reject(r.Context(), ActorFrom(r.Context()), id, req.Reason)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservation(res))
}

func (h *reservationHandlers) propose(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_reservation_id", err.Error())
		return
	}
	var req ProposeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	res, err := h.svc.ProposeAlternative(r.Context(), ActorFrom(r.Context()), id, req.Start, req.End)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservation(res))
}

func (h *reservationHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_reservation_id", err.Error())
		return
	}
	var req ReasonRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	res, warning, err := h.svc.Cancel(r.Context(), ActorFrom(r.Context()), id, req.Reason)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	resp := toReservation(res)
	resp.Warning = warning
	writeJSON(w, http.StatusOK, resp)
}

func (h *reservationHandlers) listMine(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.ListForPatient(r.Context(), ActorFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, DashboardResponse{
		Upcoming: toReservations(d.Upcoming),
		Past:     toReservations(d.Past),
	})
}

func (h *reservationHandlers) listClinic(w http.ResponseWriter, r *http.Request) {
	clinicID, err := pathUUID(r, "clinicID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_clinic_id", err.Error())
		return
	}

	q := r.URL.Query()
	var statuses []appointment.Status
	for _, raw := range q["status"] {
		for _, s := range strings.Split(raw, ",") {
			st, err := appointment.ParseStatus(strings.ToUpper(strings.TrimSpace(s)))
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
				return
			}
			statuses = append(statuses, st)
		}
	}
	limit, err := queryInt(q.Get("limit"), 20)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_limit", err.Error())
		return
	}
	offset, err := queryInt(q.Get("offset"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_offset", err.Error())
		return
	}

	list, err := h.svc.ListForClinic(r.Context(), ActorFrom(r.Context()), clinicID, statuses, limit, offset)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservations(list))
}

func (h *reservationHandlers) listDoctor(w http.ResponseWriter, r *http.Request) {
	doctorID, err := pathUUID(r, "doctorID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", err.Error())
		return
	}
	q := r.URL.Query()
	from, err1 := time.Parse(time.RFC3339, q.Get("from"))
	to, err2 := time.Parse(time.RFC3339, q.Get("to"))
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, "invalid_range", "from and to must be RFC 3339 timestamps")
		return
	}

	list, err := h.svc.ListForDoctor(r.Context(), ActorFrom(r.Context()), doctorID, from, to)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservations(list))
}

func queryInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
