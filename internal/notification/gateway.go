package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking-platform/internal/metrics"
)

// RetryBackoff is the wait before retry n+1 after a failed attempt. A record
// whose last retry fails becomes PERMANENTLY_FAILED.
var RetryBackoff = []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute}

const defaultLease = 2 * time.Minute

// Gateway accepts fire-and-forget notification requests and delivers the
// resulting records in the background.
type Gateway struct {
	store     Store
	sender    Sender
	log       *zap.Logger
	batchSize int
	lease     time.Duration
	now       func() time.Time
}

func NewGateway(store Store, sender Sender, logger *zap.Logger, batchSize int) *Gateway {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Gateway{
		store:     store,
		sender:    sender,
		log:       logger,
		batchSize: batchSize,
		lease:     defaultLease,
		now:       time.Now,
	}
}

// Enqueue records a PENDING notification and returns without delivering it.
func (g *Gateway) Enqueue(ctx context.Context, req Request) (*Record, error) {
	return g.store.Insert(ctx, req)
}

type DispatchResult struct {
	Sent              int
	Failed            int
	PermanentlyFailed int
}

// DispatchDue attempts delivery of every due record in one batch.
func (g *Gateway) DispatchDue(ctx context.Context) (DispatchResult, error) {
	var res DispatchResult

	now := g.now()
	records, err := g.store.ClaimDue(ctx, now, g.batchSize, g.lease)
	if err != nil {
		return res, err
	}

	for _, rec := range records {
		attempt := rec.RetryCount
		if rec.Status == StatusFailed {
			attempt++
		}
		rec.RetryCount = attempt

		sendErr := g.sender.Send(ctx, rec)
		if sendErr == nil {
			if err := g.store.MarkSent(ctx, rec.ID, attempt, g.now()); err != nil {
				g.log.Error("mark notification sent", zap.Stringer("id", rec.ID), zap.Error(err))
				continue
			}
			metrics.NotificationDeliveries.WithLabelValues(string(StatusSent)).Inc()
			res.Sent++
			continue
		}

		failure := fmt.Errorf("%w: %v", ErrDeliveryFailure, sendErr)
		if attempt >= len(RetryBackoff) {
			err = g.store.MarkPermanentlyFailed(ctx, rec.ID, attempt, sendErr.Error())
			metrics.NotificationDeliveries.WithLabelValues(string(StatusPermanentlyFailed)).Inc()
			res.PermanentlyFailed++
			g.log.Error("notification permanently failed",
				zap.Stringer("id", rec.ID),
				zap.String("type", string(rec.Type)),
				zap.Int("retries", attempt),
				zap.Error(failure),
			)
		} else {
			next := g.now().Add(RetryBackoff[attempt])
			err = g.store.MarkFailed(ctx, rec.ID, attempt, next, sendErr.Error())
			metrics.NotificationDeliveries.WithLabelValues(string(StatusFailed)).Inc()
			res.Failed++
			g.log.Warn("notification delivery failed",
				zap.Stringer("id", rec.ID),
				zap.String("type", string(rec.Type)),
				zap.Int("retries", attempt),
				zap.Time("next_attempt_at", next),
				zap.Error(failure),
			)
		}
		if err != nil {
			g.log.Error("record notification failure", zap.Stringer("id", rec.ID), zap.Error(err))
		}
	}

	return res, nil
}

// Run dispatches on every tick until ctx is cancelled.
func (g *Gateway) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	g.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			g.log.Info("notifier gateway stopping")
			return
		case <-ticker.C:
			g.runOnce(ctx)
		}
	}
}

func (g *Gateway) runOnce(ctx context.Context) {
	res, err := g.DispatchDue(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			g.log.Error("dispatch notifications", zap.Error(err))
		}
		return
	}
	if res.Sent+res.Failed+res.PermanentlyFailed > 0 {
		g.log.Info("notifications dispatched",
			zap.Int("sent", res.Sent),
			zap.Int("failed", res.Failed),
			zap.Int("permanently_failed", res.PermanentlyFailed),
		)
	}
}
