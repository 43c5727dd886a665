package lock

import (
	"context"
	"sync"
)

// MemoryLocker is a process-local Locker with one semaphore per key.
// Keys are pruned once nobody holds or waits for them.
type MemoryLocker struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

type memoryEntry struct {
	slot chan struct{}
	refs int
}

// NewMemoryLocker returns an empty in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{entries: make(map[string]*memoryEntry)}
}

// Acquire blocks until key is free or ctx ends.
func (l *MemoryLocker) Acquire(ctx context.Context, key string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, acquireErr(ctx)
	}
	entry := l.ref(key)
	select {
	case entry.slot <- struct{}{}:
		return &memoryHandle{locker: l, key: key, entry: entry}, nil
	case <-ctx.Done():
		l.unref(key, entry)
		return nil, acquireErr(ctx)
	}
}

// Len reports how many keys are currently held or awaited.
func (l *MemoryLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *MemoryLocker) ref(key string) *memoryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &memoryEntry{slot: make(chan struct{}, 1)}
		l.entries[key] = entry
	}
	entry.refs++
	return entry
}

func (l *MemoryLocker) unref(key string, entry *memoryEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
}

type memoryHandle struct {
	locker *MemoryLocker
	key    string
	entry  *memoryEntry
	once   sync.Once
}

func (h *memoryHandle) Release(context.Context) error {
	h.once.Do(func() {
		<-h.entry.slot
		h.locker.unref(h.key, h.entry)
	})
	return nil
}

// Err is always nil; process-local locks do not expire.
func (h *memoryHandle) Err() error {
	return nil
}
