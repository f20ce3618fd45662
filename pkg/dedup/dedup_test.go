package dedup

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dietbuddy/dietbuddy/pkg/store"
)

func newTestDedup(t *testing.T) (*Deduplicator, *store.Store) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "dietbuddy.db"))
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	d := New(s, 24*time.Hour, time.Hour)
	t.Cleanup(func() {
		_ = d.Close()
		_ = s.Close()
	})
	return d, s
}

func TestDeduplicator_FreshThenDuplicate(t *testing.T) {
	d, _ := newTestDedup(t)
	ctx := context.Background()

	ticket, err := d.Admit(ctx, 1, "evt_42")
	if err != nil {
		t.Fatalf("first admit failed: %v", err)
	}
	if err := ticket.Commit(ctx); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	if _, err := d.Admit(ctx, 1, "evt_42"); !errors.Is(err, ErrDuplicateEvent) {
		t.Fatalf("expected ErrDuplicateEvent, got %v", err)
	}
}

func TestDeduplicator_ReleaseAllowsRetry(t *testing.T) {
	d, _ := newTestDedup(t)
	ctx := context.Background()

	ticket, err := d.Admit(ctx, 1, "evt_42")
	if err != nil {
		t.Fatalf("admit failed: %v", err)
	}
	// simulates a failed inbound append: no dedup record may survive
	ticket.Release()

	retry, err := d.Admit(ctx, 1, "evt_42")
	if err != nil {
		t.Fatalf("retry after release should be fresh, got %v", err)
	}
	if err := retry.Commit(ctx); err != nil {
		t.Fatalf("retry commit failed: %v", err)
	}
}

func TestDeduplicator_RedeliveredThreeTimes(t *testing.T) {
	d, _ := newTestDedup(t)
	ctx := context.Background()

	fresh := 0
	duplicates := 0
	for i := 0; i < 3; i++ {
		ticket, err := d.Admit(ctx, 7, "evt_42")
		switch {
		case err == nil:
			fresh++
			if err := ticket.Commit(ctx); err != nil {
				t.Fatalf("commit failed: %v", err)
			}
		case errors.Is(err, ErrDuplicateEvent):
			duplicates++
		default:
			t.Fatalf("unexpected admit error: %v", err)
		}
	}

	if fresh != 1 || duplicates != 2 {
		t.Fatalf("expected 1 fresh / 2 duplicates, got %d / %d", fresh, duplicates)
	}
}

func TestDeduplicator_ConcurrentSameKey(t *testing.T) {
	d, _ := newTestDedup(t)
	ctx := context.Background()

	const n = 8
	var (
		start      sync.WaitGroup
		done       sync.WaitGroup
		mu         sync.Mutex
		fresh      int
		duplicates int
	)
	start.Add(1)
	done.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer done.Done()
			start.Wait()
			ticket, err := d.Admit(ctx, 3, "evt_race")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				fresh++
				_ = ticket.Commit(ctx)
			case errors.Is(err, ErrDuplicateEvent):
				duplicates++
			default:
				t.Errorf("unexpected admit error: %v", err)
			}
		}()
	}
	start.Done()
	done.Wait()

	if fresh != 1 {
		t.Fatalf("expected exactly one fresh admission, got %d (duplicates=%d)", fresh, duplicates)
	}
	if duplicates != n-1 {
		t.Fatalf("expected %d duplicates, got %d", n-1, duplicates)
	}
}

func TestDeduplicator_ScopedPerUser(t *testing.T) {
	d, _ := newTestDedup(t)
	ctx := context.Background()

	a, err := d.Admit(ctx, 1, "evt_shared")
	if err != nil {
		t.Fatalf("user 1 admit failed: %v", err)
	}
	if err := a.Commit(ctx); err != nil {
		t.Fatalf("user 1 commit failed: %v", err)
	}

	b, err := d.Admit(ctx, 2, "evt_shared")
	if err != nil {
		t.Fatalf("same event id for a different user must be fresh, got %v", err)
	}
	b.Release()
}

func TestDeduplicator_MissingEventID(t *testing.T) {
	d, _ := newTestDedup(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ticket, err := d.Admit(ctx, 1, "")
		if err != nil {
			t.Fatalf("keyless admit %d should be fresh, got %v", i, err)
		}
		if err := ticket.Commit(ctx); err != nil {
			t.Fatalf("keyless commit failed: %v", err)
		}
	}

	d.mu.Lock()
	pendingLen := len(d.pending)
	d.mu.Unlock()
	if pendingLen != 0 {
		t.Fatalf("keyless admissions must not leak reservations, pending=%d", pendingLen)
	}
}

func TestDeduplicator_SweepPurgesExpired(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "dietbuddy.db"))
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	defer s.Close()

	d := New(s, time.Minute, time.Hour)
	defer d.Close()
	ctx := context.Background()

	old := time.Now().Add(-2 * time.Minute).UnixMilli()
	if err := s.MarkEvent(ctx, 1, "evt_expired", old); err != nil {
		t.Fatalf("MarkEvent failed: %v", err)
	}

	d.sweep()

	ticket, err := d.Admit(ctx, 1, "evt_expired")
	if err != nil {
		t.Fatalf("expired record should admit fresh again, got %v", err)
	}
	ticket.Release()
}

func TestDeduplicator_CloseIsIdempotent(t *testing.T) {
	d, _ := newTestDedup(t)
	if err := d.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

// fakeRecords injects store faults that the SQLite-backed tests cannot.
type fakeRecords struct {
	mu       sync.Mutex
	seen     map[string]bool
	failSeen bool
	failMark bool
}

func (f *fakeRecords) key(userID int64, eventID string) string {
	return fmt.Sprintf("%d:%s", userID, eventID)
}

func (f *fakeRecords) SeenEvent(ctx context.Context, userID int64, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSeen {
		return false, errors.New("lookup unavailable")
	}
	return f.seen[f.key(userID, eventID)], nil
}

func (f *fakeRecords) MarkEvent(ctx context.Context, userID int64, eventID string, seenAtMS int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMark {
		return errors.New("mark unavailable")
	}
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	f.seen[f.key(userID, eventID)] = true
	return nil
}

func (f *fakeRecords) PurgeEventsBefore(ctx context.Context, cutoffMS int64) (int64, error) {
	return 0, nil
}

func TestDeduplicator_LookupFailureReleasesReservation(t *testing.T) {
	records := &fakeRecords{failSeen: true}
	d := New(records, 24*time.Hour, time.Hour)
	defer d.Close()
	ctx := context.Background()

	if _, err := d.Admit(ctx, 1, "evt_1"); err == nil || errors.Is(err, ErrDuplicateEvent) {
		t.Fatalf("expected a store error, got %v", err)
	}

	records.mu.Lock()
	records.failSeen = false
	records.mu.Unlock()

	ticket, err := d.Admit(ctx, 1, "evt_1")
	if err != nil {
		t.Fatalf("admit after recovered lookup should be fresh, got %v", err)
	}
	ticket.Release()
}

func TestDeduplicator_CommitFailureKeepsReservation(t *testing.T) {
	records := &fakeRecords{failMark: true}
	d := New(records, 24*time.Hour, time.Hour)
	defer d.Close()
	ctx := context.Background()

	ticket, err := d.Admit(ctx, 1, "evt_1")
	if err != nil {
		t.Fatalf("admit failed: %v", err)
	}
	if err := ticket.Commit(ctx); err == nil {
		t.Fatal("expected commit to surface the mark failure")
	}

	// the in-memory reservation still blocks near-term redeliveries
	if _, err := d.Admit(ctx, 1, "evt_1"); !errors.Is(err, ErrDuplicateEvent) {
		t.Fatalf("expected ErrDuplicateEvent while reservation is held, got %v", err)
	}
}
