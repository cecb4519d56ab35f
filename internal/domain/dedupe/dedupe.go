// Package dedupe remembers recently seen surface event ids so a retried
// post is handled at most once.
package dedupe

import (
	"context"
	"sync"
)

const defaultMaxSize = 10_000

// Deduper records seen event ids.
type Deduper interface {
	// SeenAndRecord reports whether id was already seen and records it if not.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so the event can be retried, e.g. after the queue
	// rejected it.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// window keeps the last maxSize ids in a ring; the oldest is evicted first.
type window struct {
	mu      sync.Mutex
	maxSize int
	seen    map[string]int // id -> ring slot
	ring    []string
	next    int
}

// NewInMemoryDeduper creates a bounded in-memory Deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	w := &window{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(w)
	}
	w.seen = make(map[string]int, w.maxSize)
	w.ring = make([]string, w.maxSize)
	return w
}

func (w *window) SeenAndRecord(_ context.Context, id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.seen[id]; ok {
		return true
	}

	slot := w.next
	if old := w.ring[slot]; old != "" {
		if s, ok := w.seen[old]; ok && s == slot {
			delete(w.seen, old)
		}
	}
	w.ring[slot] = id
	w.seen[id] = slot
	w.next = (w.next + 1) % w.maxSize
	return false
}

func (w *window) Unrecord(_ context.Context, id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	slot, ok := w.seen[id]
	if !ok {
		return
	}
	delete(w.seen, id)
	w.ring[slot] = ""
}

func (w *window) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return int64(len(w.seen))
}
