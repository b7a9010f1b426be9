package store

import (
	"context"
	"sync"
	"time"
)

type memoryRecord struct {
	value     []byte
	expiresAt time.Time
	version   uint64
}

// memoryBackend keeps entries in process. Sessions record the version of every key
// they load and commit only when none of those versions moved.
type memoryBackend struct {
	mu     sync.RWMutex
	data   map[string]memoryRecord
	clock  uint64
	closed bool
}

// NewMemory returns a Store backed by process memory.
func NewMemory(opts ...Option) *Store {
	return newStore(&memoryBackend{data: make(map[string]memoryRecord)}, opts...)
}

func (b *memoryBackend) name() string { return "memory" }

func (b *memoryBackend) begin(context.Context) (session, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}
	return &memorySession{backend: b, reads: make(map[string]uint64)}, nil
}

func (b *memoryBackend) close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.data = nil
	return nil
}

func (b *memoryBackend) purge(_ context.Context, now time.Time) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var removed int64
	for key, rec := range b.data {
		if !rec.expiresAt.IsZero() && !now.Before(rec.expiresAt) {
			delete(b.data, key)
			removed++
		}
	}
	return removed, nil
}

type memorySession struct {
	backend *memoryBackend
	reads   map[string]uint64
}

func (s *memorySession) load(_ context.Context, key string) ([]byte, error) {
	b := s.backend
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}
	rec, ok := b.data[key]
	if !ok {
		s.reads[key] = 0
		return nil, nil
	}
	s.reads[key] = rec.version
	out := make([]byte, len(rec.value))
	copy(out, rec.value)
	return out, nil
}

func (s *memorySession) commit(_ context.Context, writes []write) error {
	if len(writes) == 0 {
		return nil
	}
	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	for key, version := range s.reads {
		if b.data[key].version != version {
			return ErrConflict
		}
	}

	b.clock++
	for _, w := range writes {
		if w.delete {
			delete(b.data, w.key)
			continue
		}
		b.data[w.key] = memoryRecord{value: w.value, expiresAt: w.expiresAt, version: b.clock}
	}
	return nil
}

func (s *memorySession) rollback(context.Context) {}
