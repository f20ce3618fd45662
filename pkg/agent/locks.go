package agent

import "sync"

// keyedLocks serializes pipeline runs per conversation without blocking
// unrelated users. Entries are reference counted so the map only holds
// keys with an active holder or waiter.
type keyedLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{entries: map[string]*lockEntry{}}
}

func (kl *keyedLocks) lock(key string) {
	kl.mu.Lock()
	e, ok := kl.entries[key]
	if !ok {
		e = &lockEntry{}
		kl.entries[key] = e
	}
	e.refs++
	kl.mu.Unlock()

	e.mu.Lock()
}

func (kl *keyedLocks) unlock(key string) {
	kl.mu.Lock()
	e, ok := kl.entries[key]
	if !ok {
		kl.mu.Unlock()
		panic("agent: unlock of unheld key " + key)
	}
	e.refs--
	if e.refs == 0 {
		delete(kl.entries, key)
	}
	kl.mu.Unlock()

	e.mu.Unlock()
}
