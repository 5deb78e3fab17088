package appointment

import (
	"fmt"
	"time"

	"github.com/hackgods/clinic-booking-platform/internal/availability"
)

// CancellationPolicy decides what happens when a CONFIRMED reservation is
// cancelled. A non-empty warning lets the cancellation through.
type CancellationPolicy interface {
	Check(clinic availability.Clinic, r Reservation, now time.Time) (warning string, err error)
}

const (
	NoticeModeWarn   = "warn"
	NoticeModeReject = "reject"
)

// NoticeWindowPolicy looks at the clinic's minimum cancellation notice.
type NoticeWindowPolicy struct {
	Reject bool
}

func NewCancellationPolicy(mode string) CancellationPolicy {
	return NoticeWindowPolicy{Reject: mode == NoticeModeReject}
}

func (p NoticeWindowPolicy) Check(clinic availability.Clinic, r Reservation, now time.Time) (string, error) {
	if clinic.CancellationNotice <= 0 {
		return "", nil
	}
	left := r.StartAt.Sub(now)
	if left >= clinic.CancellationNotice {
		return "", nil
	}
	if p.Reject {
		return "", fmt.Errorf("%w: %s required, %s left", ErrCancellationNotice,
			clinic.CancellationNotice, left.Truncate(time.Minute))
	}
	return fmt.Sprintf("cancelled with less than %s notice", clinic.CancellationNotice), nil
}
