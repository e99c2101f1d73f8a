package kv

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps buckets in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]map[string]Entry
	seq     int64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]map[string]Entry)}
}

// Open returns a session on bucket, creating the bucket on first use.
func (m *MemoryStore) Open(_ context.Context, bucket string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[bucket]; !ok {
		m.buckets[bucket] = make(map[string]Entry)
	}
	return &memorySession{store: m, bucket: bucket}, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

// nextRevision must be called with mu held.
func (m *MemoryStore) nextRevision() int64 {
	m.seq++
	return m.seq
}

type memorySession struct {
	store  *MemoryStore
	bucket string
	closed bool
}

// lock takes the store mutex and returns the bucket, or ErrClosed.
func (s *memorySession) lock() (map[string]Entry, error) {
	s.store.mu.Lock()
	if s.closed {
		s.store.mu.Unlock()
		return nil, ErrClosed
	}
	return s.store.buckets[s.bucket], nil
}

func (s *memorySession) unlock() { s.store.mu.Unlock() }

func copyEntry(e Entry) Entry {
	e.Value = append([]byte(nil), e.Value...)
	return e
}

func (s *memorySession) Get(_ context.Context, key string) (Entry, error) {
	data, err := s.lock()
	if err != nil {
		return Entry{}, err
	}
	defer s.unlock()
	e, ok := data[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return copyEntry(e), nil
}

func (s *memorySession) List(_ context.Context) ([]Entry, error) {
	data, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer s.unlock()
	entries := make([]Entry, 0, len(data))
	for _, e := range data {
		entries = append(entries, copyEntry(e))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

func (s *memorySession) Insert(_ context.Context, key string, value []byte) (Entry, error) {
	data, err := s.lock()
	if err != nil {
		return Entry{}, err
	}
	defer s.unlock()
	if _, ok := data[key]; ok {
		return Entry{}, ErrExists
	}
	e := Entry{Key: key, Value: append([]byte(nil), value...), Revision: s.store.nextRevision()}
	data[key] = e
	return copyEntry(e), nil
}

func (s *memorySession) CompareAndSwap(_ context.Context, key string, revision int64, value []byte) (Entry, error) {
	data, err := s.lock()
	if err != nil {
		return Entry{}, err
	}
	defer s.unlock()
	e, ok := data[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	if e.Revision != revision {
		return Entry{}, ErrRevisionMismatch
	}
	e.Value = append([]byte(nil), value...)
	e.Revision = s.store.nextRevision()
	data[key] = e
	return copyEntry(e), nil
}

func (s *memorySession) Delete(_ context.Context, key string) error {
	data, err := s.lock()
	if err != nil {
		return err
	}
	defer s.unlock()
	if _, ok := data[key]; !ok {
		return ErrNotFound
	}
	delete(data, key)
	return nil
}

func (s *memorySession) DeleteIf(_ context.Context, key string, revision int64) error {
	data, err := s.lock()
	if err != nil {
		return err
	}
	defer s.unlock()
	e, ok := data[key]
	if !ok {
		return ErrNotFound
	}
	if e.Revision != revision {
		return ErrRevisionMismatch
	}
	delete(data, key)
	return nil
}

func (s *memorySession) Close() error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.closed = true
	return nil
}
