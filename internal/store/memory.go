package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store used by tests and dry runs. Semantics
// mirror the Postgres implementation: shallow merge on SetMerge, and
// all-or-nothing batches whose transforms run against the committed state
// under the store lock.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]map[string]any // collection -> key -> doc
}

// NewMemory builds an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]map[string]any)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, collection, key string) (map[string]any, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.data[collection][key]
	if !ok {
		return nil, false, nil
	}
	return cloneDoc(doc), true, nil
}

// SetMerge implements Store.
func (s *MemoryStore) SetMerge(_ context.Context, collection, key string, doc map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.merge(collection, key, doc)
	return nil
}

// BatchCommit implements Store.
func (s *MemoryStore) BatchCommit(_ context.Context, collection string, writes []Write) error {
	if len(writes) > MaxBatchWrites {
		return &ErrTooManyWrites{Writes: len(writes)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// Stage every transform first so a failing Apply leaves nothing behind.
	staged := make(map[string]map[string]any, len(writes))
	for _, w := range writes {
		prev, ok := staged[w.Key]
		if !ok {
			if existing, found := s.data[collection][w.Key]; found {
				prev = cloneDoc(existing)
			}
		}
		next, err := w.Apply(prev)
		if err != nil {
			return err
		}
		staged[w.Key] = next
	}
	for key, doc := range staged {
		coll, ok := s.data[collection]
		if !ok {
			coll = make(map[string]map[string]any)
			s.data[collection] = coll
		}
		coll[key] = cloneDoc(doc)
	}
	return nil
}

// Len reports the number of documents in a collection.
func (s *MemoryStore) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[collection])
}

func (s *MemoryStore) merge(collection, key string, doc map[string]any) {
	coll, ok := s.data[collection]
	if !ok {
		coll = make(map[string]map[string]any)
		s.data[collection] = coll
	}
	existing, ok := coll[key]
	if !ok {
		coll[key] = cloneDoc(doc)
		return
	}
	for k, v := range doc {
		existing[k] = v
	}
}

func cloneDoc(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
