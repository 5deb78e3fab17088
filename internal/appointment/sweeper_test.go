package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking-platform/internal/actor"
	"github.com/hackgods/clinic-booking-platform/internal/notification"
)

func TestSweep_ExpiresHoldSilently(t *testing.T) {
	f := newFixture(t, true)
	r := f.hold(t, actor.Patient(uuid.New()), slotAt(10, 0))
	sweeper := NewSweeper(f.repo, zap.NewNop(), f.clock.Now)

	f.clock.Advance(9 * time.Minute)
	res, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Total() != 0 {
		t.Fatalf("swept a live hold: %+v", res)
	}

	f.clock.Advance(2 * time.Minute)
	res, err = sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Holds != 1 {
		t.Fatalf("expected one expired hold, got %+v", res)
	}

	got := f.repo.get(r.ID)
	if got.Status != StatusExpired || got.HoldExpiresAt != nil {
		t.Fatalf("unexpected %+v", got)
	}
	if len(f.repo.notificationTypes(r.ID)) != 0 {
		t.Fatal("hold expiry must not notify")
	}
}

func TestSweep_ExpiresPendingOnce(t *testing.T) {
	f := newFixture(t, true)
	r := f.submitted(t, actor.Patient(uuid.New()), slotAt(10, 0))
	sweeper := NewSweeper(f.repo, zap.NewNop(), f.clock.Now)

	f.clock.t = r.PendingExpiresAt.Add(time.Second)
	for i := 0; i < 2; i++ {
		if _, err := sweeper.Sweep(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	got := f.repo.get(r.ID)
	if got.Status != StatusExpired || got.PendingExpiresAt != nil {
		t.Fatalf("unexpected %+v", got)
	}
	assertTypes(t, f.repo.notificationTypes(r.ID), notification.TypeBookingSubmitted, notification.TypeAppointmentExpired)
}

func TestSweep_ExpiresProposalAndClearsFields(t *testing.T) {
	f := newFixture(t, true)
	r := f.submitted(t, actor.Patient(uuid.New()), slotAt(10, 0))
	if _, err := f.svc.ProposeAlternative(context.Background(), f.staff, r.ID, slotAt(14, 0), slotAt(14, 30)); err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(2*time.Hour + time.Second)
	res, err := NewSweeper(f.repo, zap.NewNop(), f.clock.Now).Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Proposals != 1 || res.Pending != 0 {
		t.Fatalf("unexpected %+v", res)
	}

	got := f.repo.get(r.ID)
	if got.Status != StatusExpired || got.ProposedStartAt != nil || got.ProposedEndAt != nil || got.PendingExpiresAt != nil {
		t.Fatalf("unexpected %+v", got)
	}
	if !got.StartAt.Equal(slotAt(10, 0)) {
		t.Fatal("expiry must keep the original range")
	}
	assertTypes(t, f.repo.notificationTypes(r.ID),
		notification.TypeBookingSubmitted, notification.TypeAlternativeProposed, notification.TypeAppointmentExpired)

	// Both ranges are free again.
	f.hold(t, actor.Patient(uuid.New()), slotAt(10, 0))
	f.hold(t, actor.Patient(uuid.New()), slotAt(14, 0))
}

func TestSweep_LeavesConfirmedAlone(t *testing.T) {
	f := newFixture(t, false)
	r := f.confirmed(t, actor.Patient(uuid.New()), slotAt(10, 0))

	f.clock.Advance(72 * time.Hour)
	res, err := NewSweeper(f.repo, zap.NewNop(), f.clock.Now).Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Total() != 0 || f.repo.get(r.ID).Status != StatusConfirmed {
		t.Fatalf("confirmed booking swept: %+v", res)
	}
}
