// Package notification is the outbox behind the Notifier Gateway: records are
// appended by booking transactions and delivered asynchronously.
package notification

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeBookingSubmitted     Type = "BOOKING_SUBMITTED"
	TypeBookingConfirmed     Type = "BOOKING_CONFIRMED"
	TypeBookingRejected      Type = "BOOKING_REJECTED"
	TypeAlternativeProposed  Type = "ALTERNATIVE_PROPOSED"
	TypeProposalAccepted     Type = "PROPOSAL_ACCEPTED"
	TypeProposalRejected     Type = "PROPOSAL_REJECTED"
	TypeAppointmentExpired   Type = "APPOINTMENT_EXPIRED"
	TypeAppointmentCancelled Type = "APPOINTMENT_CANCELLED"
	TypeReminder24h          Type = "REMINDER_24H"
	TypeAppointmentCompleted Type = "APPOINTMENT_COMPLETED"
)

type Status string

const (
	StatusPending           Status = "PENDING"
	StatusSent              Status = "SENT"
	StatusFailed            Status = "FAILED"
	StatusPermanentlyFailed Status = "PERMANENTLY_FAILED"
)

var (
	ErrDeliveryFailure = errors.New("notification delivery failed")
	ErrRecordNotFound  = errors.New("notification record not found")
)

// Request is what producers hand to the gateway.
type Request struct {
	ReservationID *uuid.UUID
	Recipient     string
	Type          Type
	Message       string
}

type Record struct {
	ID            uuid.UUID
	ReservationID *uuid.UUID
	Recipient     string
	Type          Type
	Status        Status
	Message       string
	RetryCount    int
	NextAttemptAt time.Time
	LastError     *string
	SentAt        *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PatientRecipient is the recipient address of a patient. Resolving it to an
// email or phone number belongs to the delivery side.
func PatientRecipient(patientID uuid.UUID) string {
	return "patient:" + patientID.String()
}
