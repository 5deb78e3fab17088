package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking-platform/internal/appointment"
	"github.com/hackgods/clinic-booking-platform/internal/availability"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s must be a valid UUID", name)
	}
	return id, nil
}

type errorMapping struct {
	target error
	status int
	code   string
	// details replaces err.Error() when set.
	details string
}

var errorMappings = []errorMapping{
	{appointment.ErrSlotUnavailable, http.StatusConflict, "slot_unavailable", "this time was just taken, refresh the slot list and pick another"},
	{appointment.ErrLockTimeout, http.StatusConflict, "calendar_busy", "the doctor's calendar is being updated, retry shortly"},
	{appointment.ErrHoldExpired, http.StatusGone, "hold_expired", ""},
	{appointment.ErrProposalExpired, http.StatusGone, "proposal_expired", ""},
	{appointment.ErrInvalidTransition, http.StatusConflict, "already_handled", ""},
	{appointment.ErrCancellationNotice, http.StatusConflict, "cancellation_notice", ""},
	{availability.ErrAvailabilityConflict, http.StatusConflict, "availability_conflict", ""},
	{appointment.ErrForbidden, http.StatusForbidden, "forbidden", ""},
	{availability.ErrForbidden, http.StatusForbidden, "forbidden", ""},
	{appointment.ErrReservationNotFound, http.StatusNotFound, "reservation_not_found", ""},
	{availability.ErrWindowNotFound, http.StatusNotFound, "window_not_found", ""},
	{availability.ErrAppointmentTypeNotFound, http.StatusNotFound, "appointment_type_not_found", ""},
	{availability.ErrClinicNotFound, http.StatusNotFound, "clinic_not_found", ""},
	{appointment.ErrRateLimited, http.StatusTooManyRequests, "rate_limited", ""},
	{appointment.ErrInvalidSlot, http.StatusBadRequest, "invalid_slot", ""},
	{appointment.ErrSlotInPast, http.StatusBadRequest, "slot_in_past", ""},
	{appointment.ErrIntakeIncomplete, http.StatusBadRequest, "intake_incomplete", ""},
	{appointment.ErrInvalidRange, http.StatusBadRequest, "invalid_range", ""},
	{availability.ErrInvalidWindow, http.StatusBadRequest, "invalid_window", ""},
	{availability.ErrInvalidAppointmentType, http.StatusBadRequest, "invalid_appointment_type", ""},
}

// writeServiceError maps a service error to its HTTP response. Unknown errors
// are logged and answered with a bare 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			details := m.details
			if details == "" {
				details = err.Error()
			}
			writeError(w, m.status, m.code, details)
			return
		}
	}
	log.Error("request failed",
		zap.String("request_id", GetRequestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal_error", "")
}
