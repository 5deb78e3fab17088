package appointment

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking-platform/internal/metrics"
	"github.com/hackgods/clinic-booking-platform/internal/notification"
)

// ReminderScheduler queues one REMINDER_24H per CONFIRMED reservation. The
// reminder record doubles as the dedup marker.
type ReminderScheduler struct {
	repo      Repository
	log       *zap.Logger
	now       func() time.Time
	lead      time.Duration
	tolerance time.Duration
}

func NewReminderScheduler(repo Repository, logger *zap.Logger, lead, tolerance time.Duration, now func() time.Time) *ReminderScheduler {
	if now == nil {
		now = time.Now
	}
	return &ReminderScheduler{repo: repo, log: logger, now: now, lead: lead, tolerance: tolerance}
}

// Schedule queues reminders for CONFIRMED reservations starting within
// [now+lead-tolerance, now+lead+tolerance] and reports how many were new.
func (s *ReminderScheduler) Schedule(ctx context.Context) (int, error) {
	now := s.now().UTC()
	from := now.Add(s.lead - s.tolerance)
	to := now.Add(s.lead + s.tolerance)

	due, err := s.repo.ListConfirmedStartingBetween(ctx, from, to)
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	queued := 0
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		queued = 0
		for _, candidate := range due {
			// The list was read outside this transaction; a booking cancelled
			// since then must not be reminded.
			r, err := tx.GetForUpdate(ctx, candidate.ID)
			if errors.Is(err, ErrReservationNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if r.Status != StatusConfirmed {
				continue
			}
			created, err := tx.AppendReminderOnce(ctx, notificationRequest(notification.TypeReminder24h, *r, ""))
			if err != nil {
				return err
			}
			if created {
				queued++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if queued > 0 {
		metrics.RemindersQueued.Add(float64(queued))
		s.log.Info("reminders queued", zap.Int("count", queued))
	}
	return queued, nil
}

// Run schedules on every tick until ctx is cancelled.
func (s *ReminderScheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("reminder scheduler stopping")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *ReminderScheduler) runOnce(ctx context.Context) {
	if _, err := s.Schedule(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error("reminder run failed", zap.Error(err))
	}
}
