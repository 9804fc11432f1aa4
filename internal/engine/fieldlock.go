package engine

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// fieldLocks serializes evaluations per field. Entries are created on first
// use and reclaimed once the last waiter is gone, so the map is bounded by
// in-flight fields rather than by every field ever evaluated.
type fieldLocks struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

func newFieldLocks() *fieldLocks {
	return &fieldLocks{entries: make(map[uuid.UUID]*lockEntry)}
}

// Acquire blocks until the field's lock is held or ctx is done. The returned
// release func must be called exactly once.
func (l *fieldLocks) Acquire(ctx context.Context, fieldID uuid.UUID) (func(), error) {
	l.mu.Lock()
	entry, ok := l.entries[fieldID]
	if !ok {
		entry = &lockEntry{ch: make(chan struct{}, 1)}
		l.entries[fieldID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
		return func() {
			<-entry.ch
			l.drop(fieldID, entry)
		}, nil
	case <-ctx.Done():
		l.drop(fieldID, entry)
		return nil, ctx.Err()
	}
}

func (l *fieldLocks) drop(fieldID uuid.UUID, entry *lockEntry) {
	l.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, fieldID)
	}
	l.mu.Unlock()
}
