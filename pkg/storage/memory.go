package storage

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps documents in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Entry
	now  func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Entry), now: time.Now}
}

func (s *MemoryStore) Get(ctx context.Context, name string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.docs[name]
	if !ok {
		return Entry{}, notFound(name)
	}
	e.Data = slices.Clone(e.Data)
	return e, nil
}

func (s *MemoryStore) Put(ctx context.Context, name string, data []byte) (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := Entry{Info: newInfo(name, data, s.now()), Data: slices.Clone(data)}
	s.docs[name] = e
	return e.Info, nil
}

func (s *MemoryStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[name]; !ok {
		return notFound(name)
	}
	delete(s.docs, name)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Info, 0, len(s.docs))
	for _, e := range s.docs {
		out = append(out, e.Info)
	}
	slices.SortFunc(out, func(a, b Info) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Close does nothing for the memory store.
func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
