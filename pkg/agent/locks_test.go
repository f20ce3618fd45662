package agent

import (
	"sync"
	"testing"
	"time"
)

func TestKeyedLocks_SerializesSameKey(t *testing.T) {
	kl := newKeyedLocks()

	// The counter is guarded only by the keyed lock; lost increments
	// mean the lock failed to serialize.
	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			kl.lock("user-a")
			counter++
			kl.unlock("user-a")
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Fatalf("expected 100 increments, got %d", counter)
	}
}

func TestKeyedLocks_DifferentKeysDoNotBlock(t *testing.T) {
	kl := newKeyedLocks()
	kl.lock("user-a")
	defer kl.unlock("user-a")

	done := make(chan struct{})
	go func() {
		kl.lock("user-b")
		kl.unlock("user-b")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestKeyedLocks_EntriesAreReclaimed(t *testing.T) {
	kl := newKeyedLocks()
	for i := 0; i < 10; i++ {
		kl.lock("transient")
		kl.unlock("transient")
	}

	kl.mu.Lock()
	n := len(kl.entries)
	kl.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected the entry map to be empty after release, found %d entries", n)
	}
}

func TestKeyedLocks_UnlockOfUnheldKeyPanics(t *testing.T) {
	kl := newKeyedLocks()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on unlock of unheld key")
		}
	}()
	kl.unlock("never-locked")
}
