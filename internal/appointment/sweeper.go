package appointment

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking-platform/internal/metrics"
)

// Sweeper is the only component that turns a missed deadline into EXPIRED.
type Sweeper struct {
	repo Repository
	log  *zap.Logger
	now  func() time.Time
}

func NewSweeper(repo Repository, logger *zap.Logger, now func() time.Time) *Sweeper {
	if now == nil {
		now = time.Now
	}
	return &Sweeper{repo: repo, log: logger, now: now}
}

type SweepResult struct {
	Holds     int
	Pending   int
	Proposals int
}

func (r SweepResult) Total() int { return r.Holds + r.Pending + r.Proposals }

// Sweep runs the HOLD, PENDING_APPROVAL and PROPOSED_TIME passes. Each pass is
// its own transaction; a failed pass does not undo the ones before it.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.now().UTC()

	passes := []struct {
		status Status
		count  *int
	}{
		{StatusHold, &res.Holds},
		{StatusPendingApproval, &res.Pending},
		{StatusProposedTime, &res.Proposals},
	}

	for _, p := range passes {
		n, err := s.expire(ctx, p.status, now)
		if err != nil {
			return res, err
		}
		*p.count = n
	}
	return res, nil
}

func (s *Sweeper) expire(ctx context.Context, status Status, now time.Time) (int, error) {
	var expired []Reservation
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		rows, err := tx.ExpireDue(ctx, status, now)
		if err != nil {
			return err
		}
		expired = rows

		t, notify := notificationFor(status, StatusExpired)
		if !notify {
			return nil
		}
		for _, r := range rows {
			if err := tx.AppendNotification(ctx, notificationRequest(t, r, "")); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(expired) > 0 {
		metrics.SweeperExpired.WithLabelValues(string(status)).Add(float64(len(expired)))
		metrics.Transitions.WithLabelValues(string(status), string(StatusExpired)).Add(float64(len(expired)))
		s.log.Info("reservations expired", zap.String("from", string(status)), zap.Int("count", len(expired)))
	}
	return len(expired), nil
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("expiry sweeper stopping")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	start := time.Now()
	res, err := s.Sweep(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.log.Error("sweep failed", zap.Error(err))
		}
		return
	}
	s.log.Debug("sweep done",
		zap.Int("holds", res.Holds),
		zap.Int("pending", res.Pending),
		zap.Int("proposals", res.Proposals),
		zap.Duration("took", time.Since(start)),
	)
}
