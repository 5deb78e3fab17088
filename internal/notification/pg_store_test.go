package notification

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking-platform/internal/db/dbtest"
)

func TestPgStore_ClaimDueSkipsLockedAndLeasedRecords(t *testing.T) {
	store := NewPgStore(dbtest.NewPool(t))
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		if _, err := store.Insert(ctx, Request{
			Recipient: fmt.Sprintf("patient:%d", i),
			Type:      TypeBookingConfirmed,
			Message:   "confirmed",
		}); err != nil {
			t.Fatal(err)
		}
	}

	// Records are due from the database clock; claim a little later.
	now := time.Now().Add(time.Minute)
	lease := 5 * time.Minute

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed = map[uuid.UUID]int{}
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			recs, err := store.ClaimDue(ctx, now, 4, lease)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, r := range recs {
				claimed[r.ID]++
			}
		}()
	}
	wg.Wait()

	if len(claimed) != 6 {
		t.Fatalf("claimed %d distinct records, want 6", len(claimed))
	}
	for id, n := range claimed {
		if n != 1 {
			t.Fatalf("record %s claimed %d times", id, n)
		}
	}

	again, err := store.ClaimDue(ctx, now, 10, lease)
	if err != nil || len(again) != 0 {
		t.Fatalf("leased records reclaimed: %d %v", len(again), err)
	}

	var sent, failed uuid.UUID
	for id := range claimed {
		switch {
		case sent == uuid.Nil:
			sent = id
		case failed == uuid.Nil:
			failed = id
		}
	}
	if err := store.MarkSent(ctx, sent, 0, now); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkFailed(ctx, failed, 1, now.Add(time.Hour), "smtp down"); err != nil {
		t.Fatal(err)
	}

	afterLease, err := store.ClaimDue(ctx, now.Add(lease+time.Second), 10, lease)
	if err != nil {
		t.Fatal(err)
	}
	if len(afterLease) != 4 {
		t.Fatalf("after lease claimed %d, want 4", len(afterLease))
	}
	for _, r := range afterLease {
		if r.ID == sent || r.ID == failed {
			t.Fatalf("record %s should not be due", r.ID)
		}
	}

	retry, err := store.ClaimDue(ctx, now.Add(2*time.Hour), 10, lease)
	if err != nil {
		t.Fatal(err)
	}
	if len(retry) != 5 {
		t.Fatalf("retry claim returned %d, want 5", len(retry))
	}
	for _, r := range retry {
		if r.ID == failed && (r.Status != StatusFailed || r.RetryCount != 1) {
			t.Fatalf("failed record lost its state: %+v", r)
		}
	}

	if err := store.MarkSent(ctx, uuid.New(), 0, now); err == nil {
		t.Fatal("expected error marking an unknown record")
	}
}
