package appointment

import (
	"fmt"
	"slices"

	"github.com/hackgods/clinic-booking-platform/internal/notification"
)

// transitions lists every allowed move. Anything absent is an invalid
// transition.
var transitions = map[Status][]Status{
	StatusHold:            {StatusPendingApproval, StatusConfirmed, StatusExpired, StatusCancelled},
	StatusPendingApproval: {StatusConfirmed, StatusRejected, StatusProposedTime, StatusExpired, StatusCancelled},
	StatusProposedTime:    {StatusConfirmed, StatusCancelled, StatusExpired},
	StatusConfirmed:       {StatusCompleted, StatusNoShow, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

func checkTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// notificationFor maps a committed transition to the record it emits.
// HOLD expiry, HOLD release and NO_SHOW are silent.
func notificationFor(from, to Status) (notification.Type, bool) {
	switch {
	case from == StatusHold && to == StatusPendingApproval:
		return notification.TypeBookingSubmitted, true
	case (from == StatusHold || from == StatusPendingApproval) && to == StatusConfirmed:
		return notification.TypeBookingConfirmed, true
	case from == StatusPendingApproval && to == StatusRejected:
		return notification.TypeBookingRejected, true
	case from == StatusPendingApproval && to == StatusProposedTime:
		return notification.TypeAlternativeProposed, true
	case from == StatusProposedTime && to == StatusConfirmed:
		return notification.TypeProposalAccepted, true
	case from == StatusProposedTime && to == StatusCancelled:
		return notification.TypeProposalRejected, true
	case (from == StatusPendingApproval || from == StatusProposedTime) && to == StatusExpired:
		return notification.TypeAppointmentExpired, true
	case (from == StatusPendingApproval || from == StatusConfirmed) && to == StatusCancelled:
		return notification.TypeAppointmentCancelled, true
	case from == StatusConfirmed && to == StatusCompleted:
		return notification.TypeAppointmentCompleted, true
	}
	return "", false
}

func notificationRequest(t notification.Type, r Reservation, reason string) notification.Request {
	id := r.ID
	return notification.Request{
		ReservationID: &id,
		Recipient:     notification.PatientRecipient(r.PatientID),
		Type:          t,
		Message: notification.Render(t, notification.Details{
			ReservationID: r.ID,
			Start:         r.StartAt,
			End:           r.EndAt,
			ProposedStart: r.ProposedStartAt,
			ProposedEnd:   r.ProposedEndAt,
			Reason:        reason,
		}),
	}
}
