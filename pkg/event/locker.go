package event

import (
	"sync"

	"github.com/google/uuid"
)

// locker hands out one mutex per event ID so mutations on the same event
// are serialized while unrelated events proceed in parallel. Entries are
// refcounted and dropped when the last holder releases, keeping the map
// bounded by the number of in-flight operations.
type locker struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newLocker() *locker {
	return &locker{entries: map[uuid.UUID]*lockEntry{}}
}

// lock blocks until the caller holds the event's exclusive section and
// returns the release function. Release exactly once, on every exit path.
func (l *locker) lock(id uuid.UUID) func() {
	l.mu.Lock()
	entry, ok := l.entries[id]
	if !ok {
		entry = &lockEntry{}
		l.entries[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, id)
		}
		l.mu.Unlock()
	}
}
