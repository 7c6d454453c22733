package registry

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meetcore/interview-rtc/internal/auth"
)

// Participant is a connection admitted by the session gate and
// registered to a room.
type Participant struct {
	Identity string
	Role     auth.Role
	RoomID   string
	JoinedAt time.Time
}

// Registry tracks which participants are in which room. Participant
// metadata (admitted role) lives in process memory beside the injected
// membership store so role gating never trusts client claims.
type Registry struct {
	store  Store
	logger *zap.Logger

	mu           sync.Mutex
	participants map[string]Participant
}

func New(store Store, logger *zap.Logger) *Registry {
	return &Registry{
		store:        store,
		logger:       logger,
		participants: make(map[string]Participant),
	}
}

// Admit registers a participant and returns the identities that were
// already in the room, in arrival order. Those existing members are the
// negotiation initiators toward the newcomer. The whole operation is
// atomic: the participant is never visible to Members mid-admission.
func (r *Registry) Admit(identity string, role auth.Role, roomID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.store.Members(roomID)
	if err != nil {
		return nil, err
	}
	if err := r.store.Append(roomID, identity); err != nil {
		return nil, err
	}
	r.participants[identity] = Participant{
		Identity: identity,
		Role:     role,
		RoomID:   roomID,
		JoinedAt: time.Now(),
	}

	r.logger.Info("participant admitted",
		zap.String("identity", identity),
		zap.String("role", string(role)),
		zap.String("room", roomID),
		zap.Int("existing_members", len(existing)))
	return existing, nil
}

// Remove unregisters a participant, returning its room and the members
// that remain there. Removing an unknown identity is a no-op error so
// duplicate leave events stay harmless.
func (r *Registry) Remove(identity string) (roomID string, remaining []string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, empty, err := r.store.Remove(identity)
	if err != nil {
		return "", nil, err
	}
	delete(r.participants, identity)

	if !empty {
		remaining, err = r.store.Members(roomID)
		if err != nil {
			return roomID, nil, err
		}
	} else {
		r.logger.Info("room garbage-collected", zap.String("room", roomID))
	}

	r.logger.Info("participant removed",
		zap.String("identity", identity),
		zap.String("room", roomID),
		zap.Int("remaining", len(remaining)))
	return roomID, remaining, nil
}

// Members returns the room's membership in arrival order.
func (r *Registry) Members(roomID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Members(roomID)
}

// Participant returns the admitted metadata for an identity.
func (r *Registry) Participant(identity string) (Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[identity]
	return p, ok
}
