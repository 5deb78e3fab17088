package notification

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Details is the data a message is rendered from.
type Details struct {
	ReservationID uuid.UUID
	Start         time.Time
	End           time.Time
	ProposedStart *time.Time
	ProposedEnd   *time.Time
	Reason        string
}

const timeLayout = "Mon 02 Jan 2006 15:04 MST"

func span(start, end time.Time) string {
	return fmt.Sprintf("%s - %s", start.UTC().Format(timeLayout), end.UTC().Format("15:04 MST"))
}

// Render produces the plain-text body for a notification type.
func Render(t Type, d Details) string {
	when := span(d.Start, d.End)
	switch t {
	case TypeBookingSubmitted:
		return fmt.Sprintf("Your booking request for %s was received and is awaiting clinic approval.", when)
	case TypeBookingConfirmed:
		return fmt.Sprintf("Your appointment on %s is confirmed.", when)
	case TypeBookingRejected:
		return fmt.Sprintf("Your booking request for %s was declined by the clinic.", when)
	case TypeAlternativeProposed:
		if d.ProposedStart != nil && d.ProposedEnd != nil {
			return fmt.Sprintf("The clinic proposed %s instead of %s. Please accept or decline.",
				span(*d.ProposedStart, *d.ProposedEnd), when)
		}
		return fmt.Sprintf("The clinic proposed a different time for %s.", when)
	case TypeProposalAccepted:
		return fmt.Sprintf("You accepted the proposed time. Your appointment on %s is confirmed.", when)
	case TypeProposalRejected:
		return fmt.Sprintf("You declined the proposed time. Your request for %s was cancelled.", when)
	case TypeAppointmentExpired:
		return fmt.Sprintf("Your booking request for %s expired before it was completed.", when)
	case TypeAppointmentCancelled:
		if d.Reason != "" {
			return fmt.Sprintf("Your appointment on %s was cancelled: %s", when, d.Reason)
		}
		return fmt.Sprintf("Your appointment on %s was cancelled.", when)
	case TypeReminder24h:
		return fmt.Sprintf("Reminder: you have an appointment on %s.", when)
	case TypeAppointmentCompleted:
		return fmt.Sprintf("Thank you for visiting. Your appointment on %s is complete.", when)
	default:
		return fmt.Sprintf("Update on your appointment %s (%s).", d.ReservationID, when)
	}
}
