// ABOUTME: Per-key mutual exclusion with reference-counted lock entries
// ABOUTME: Serializes work on one admin or conversation without a global lock

package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Locks hands out one mutex per key. Entries exist only while some caller
// holds or waits on them, so the map does not grow with every key ever seen.
type Locks struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty lock set.
func New() *Locks {
	return &Locks{entries: make(map[string]*entry)}
}

// Lock blocks until the caller holds the lock for key and returns the
// function that releases it. The release function must be called exactly once.
func (l *Locks) Lock(key string) (unlock func()) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, key)
		}
		l.mu.Unlock()
	}
}

// Len returns the number of keys currently held or awaited.
func (l *Locks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
