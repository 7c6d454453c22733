package notes

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store used in tests and single-node
// deployments without a document store.
type MemoryStore struct {
	mu    sync.Mutex
	byCID map[string][]Note
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byCID: make(map[string][]Note)}
}

// Seed registers an empty application record for a candidate. Adding a
// note for an unknown candidate fails, matching the Mongo behavior.
func (s *MemoryStore) Seed(candidateID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byCID[candidateID]; !ok {
		s.byCID[candidateID] = []Note{}
	}
}

func (s *MemoryStore) Add(_ context.Context, candidateID string, n Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byCID[candidateID]
	if !ok {
		return ErrNotFound
	}
	s.byCID[candidateID] = append(existing, n)
	return nil
}

func (s *MemoryStore) Update(_ context.Context, candidateID, noteID, content string) (Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.byCID[candidateID] {
		if n.ID == noteID {
			s.byCID[candidateID][i].Content = content
			return s.byCID[candidateID][i], nil
		}
	}
	return Note{}, ErrNotFound
}

func (s *MemoryStore) Delete(_ context.Context, candidateID, noteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.byCID[candidateID]
	for i, n := range existing {
		if n.ID == noteID {
			s.byCID[candidateID] = append(existing[:i], existing[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) List(_ context.Context, candidateID string) ([]Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byCID[candidateID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]Note, len(existing))
	copy(out, existing)
	return out, nil
}
