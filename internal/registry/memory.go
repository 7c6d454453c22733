package registry

import "sync"

// MemoryStore keeps membership in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	rooms   map[string][]string // roomID -> identities in arrival order
	byIdent map[string]string   // identity -> roomID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:   make(map[string][]string),
		byIdent: make(map[string]string),
	}
}

func (s *MemoryStore) Append(roomID, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byIdent[identity]; ok {
		return ErrAlreadyMember
	}
	s.rooms[roomID] = append(s.rooms[roomID], identity)
	s.byIdent[identity] = roomID
	return nil
}

func (s *MemoryStore) Remove(identity string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roomID, ok := s.byIdent[identity]
	if !ok {
		return "", false, ErrNotMember
	}
	delete(s.byIdent, identity)

	members := s.rooms[roomID]
	for i, m := range members {
		if m == identity {
			members = append(members[:i], members[i+1:]...)
			break
		}
	}
	if len(members) == 0 {
		delete(s.rooms, roomID)
		return roomID, true, nil
	}
	s.rooms[roomID] = members
	return roomID, false, nil
}

func (s *MemoryStore) Members(roomID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := s.rooms[roomID]
	out := make([]string, len(members))
	copy(out, members)
	return out, nil
}

func (s *MemoryStore) Room(identity string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roomID, ok := s.byIdent[identity]
	if !ok {
		return "", ErrNotMember
	}
	return roomID, nil
}
