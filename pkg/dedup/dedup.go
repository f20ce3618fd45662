// Package dedup guards the inbound pipeline against webhook redeliveries.
// Admission is a first-class check-and-reserve: the caller gets a ticket,
// commits it once the inbound message is durably appended, or releases it
// so a later retry of the same event id can get through.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dietbuddy/dietbuddy/pkg/logger"
)

// ErrDuplicateEvent marks an event id that was already admitted. Not a
// fault: callers short-circuit and report success to the transport.
var ErrDuplicateEvent = errors.New("duplicate event")

// RecordStore is the persisted side of admission. *store.Store implements it.
type RecordStore interface {
	SeenEvent(ctx context.Context, userID int64, eventID string) (bool, error)
	MarkEvent(ctx context.Context, userID int64, eventID string, seenAtMS int64) error
	PurgeEventsBefore(ctx context.Context, cutoffMS int64) (int64, error)
}

type key struct {
	userID  int64
	eventID string
}

// Deduplicator combines an in-memory reservation set (same-key races,
// in-flight events) with durable records (redeliveries across restarts).
type Deduplicator struct {
	records   RecordStore
	retention time.Duration

	mu      sync.Mutex
	pending map[key]struct{}

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New starts the deduplicator and its retention sweeper. Retention should
// exceed the transport's maximum redelivery window; config enforces the
// 24 h floor.
func New(records RecordStore, retention, sweepInterval time.Duration) *Deduplicator {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Hour
	}

	d := &Deduplicator{
		records:   records,
		retention: retention,
		pending:   make(map[key]struct{}),
		stopCh:    make(chan struct{}),
	}
	d.wg.Add(1)
	go d.runSweeper(sweepInterval)
	return d
}

// Admit decides Fresh vs Duplicate for one delivery. Exactly one of any
// set of concurrent admissions for the same key gets a ticket; the rest
// get ErrDuplicateEvent. An empty event id cannot be deduplicated and is
// always admitted (defensive; webhook traffic always carries one).
func (d *Deduplicator) Admit(ctx context.Context, userID int64, eventID string) (*Ticket, error) {
	if strings.TrimSpace(eventID) == "" {
		return &Ticket{}, nil
	}

	k := key{userID: userID, eventID: eventID}

	d.mu.Lock()
	if _, inFlight := d.pending[k]; inFlight {
		d.mu.Unlock()
		return nil, ErrDuplicateEvent
	}
	d.pending[k] = struct{}{}
	d.mu.Unlock()

	seen, err := d.records.SeenEvent(ctx, userID, eventID)
	if err != nil {
		d.release(k)
		return nil, fmt.Errorf("dedup lookup: %w", err)
	}
	if seen {
		d.release(k)
		return nil, ErrDuplicateEvent
	}
	return &Ticket{d: d, k: k}, nil
}

func (d *Deduplicator) release(k key) {
	d.mu.Lock()
	delete(d.pending, k)
	d.mu.Unlock()
}

// Close stops the sweeper. Idempotent.
func (d *Deduplicator) Close() error {
	d.closeOnce.Do(func() {
		close(d.stopCh)
		d.wg.Wait()
	})
	return nil
}

func (d *Deduplicator) runSweeper(interval time.Duration) {
	defer d.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// one sweep at startup clears leftovers from previous runs
	d.sweep()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.sweep()
		}
	}
}

func (d *Deduplicator) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-d.retention).UnixMilli()
	n, err := d.records.PurgeEventsBefore(ctx, cutoff)
	if err != nil {
		logger.WarnCF("dedup", "Retention sweep failed", map[string]any{
			"error": err.Error(),
		})
		return
	}
	if n > 0 {
		logger.DebugCF("dedup", "Purged expired dedup records", map[string]any{
			"purged": n,
		})
	}
}

// Ticket is one fresh admission. Exactly one of Commit or Release must be
// called; both are safe to call more than once.
type Ticket struct {
	d    *Deduplicator
	k    key
	done bool
}

// Commit persists the processed-event record and ends the reservation.
// Call only after the inbound append succeeded: committing first would
// let a store outage permanently blacklist a retryable event id.
func (t *Ticket) Commit(ctx context.Context) error {
	if t == nil || t.done {
		return nil
	}
	if t.d == nil {
		t.done = true
		return nil
	}
	if err := t.d.records.MarkEvent(ctx, t.k.userID, t.k.eventID, 0); err != nil {
		// Reservation is kept on purpose: the durable record is missing,
		// but near-term redeliveries still resolve as duplicates.
		return fmt.Errorf("dedup commit: %w", err)
	}
	t.done = true
	t.d.release(t.k)
	return nil
}

// Release drops the reservation without recording the event, so a retry
// of the same event id can succeed after a failed append.
func (t *Ticket) Release() {
	if t == nil || t.done {
		return
	}
	t.done = true
	if t.d == nil {
		return
	}
	t.d.release(t.k)
}
