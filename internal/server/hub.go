package server

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/meetcore/interview-rtc/internal/notes"
	"github.com/meetcore/interview-rtc/internal/registry"
	"github.com/meetcore/interview-rtc/internal/signal"
)

// Hub owns the live connection set. Room membership truth lives in the
// Registry; the hub only maps identities to their sockets and fans
// envelopes out.
type Hub struct {
	registry *registry.Registry
	notes    *notes.Service
	logger   *zap.Logger
	echoChat bool

	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub(reg *registry.Registry, noteSvc *notes.Service, echoChat bool, logger *zap.Logger) *Hub {
	return &Hub{
		registry: reg,
		notes:    noteSvc,
		logger:   logger,
		echoChat: echoChat,
		clients:  make(map[string]*Client),
	}
}

// attach registers the connection. The participant is not yet a room
// member; that happens when its join event arrives.
func (h *Hub) attach(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.Identity] = c
}

// disconnect implies leave: membership is cleared and the room is told.
// The send channel is never closed; a broadcast that grabbed the client
// before removal must stay a safe no-op. writePump ends when the
// connection closes.
func (h *Hub) disconnect(c *Client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.Identity]; !ok || cur != c {
		// A newer connection for this identity already replaced us.
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.Identity)
	h.mu.Unlock()

	h.leave(c)
}

// join admits the participant into its room and notifies the members
// that were already there; each of them initiates negotiation toward
// the newcomer. Duplicate join events are idempotent.
func (h *Hub) join(c *Client) {
	existing, err := h.registry.Admit(c.Identity, c.Role, c.RoomID)
	if err != nil {
		if errors.Is(err, registry.ErrAlreadyMember) {
			h.logger.Warn("dropping duplicate join",
				zap.String("identity", c.Identity), zap.String("room", c.RoomID))
			return
		}
		h.logger.Error("admission failed", zap.String("identity", c.Identity), zap.Error(err))
		c.deliver(signal.Envelope{Type: signal.EventError, Error: "admission failed"})
		return
	}

	joined := signal.Envelope{
		Type:   signal.EventPeerJoined,
		From:   c.Identity,
		RoomID: c.RoomID,
	}
	for _, identity := range existing {
		h.sendTo(identity, joined)
	}

	// Confirmation back to the joiner.
	c.deliver(signal.Envelope{Type: signal.EventJoin, From: c.Identity, RoomID: c.RoomID})
}

// leave removes the participant from its room and tells the remaining
// members so they release their link halves deterministically.
func (h *Hub) leave(c *Client) {
	_, remaining, err := h.registry.Remove(c.Identity)
	if err != nil {
		// Never joined, or an explicit leave already ran.
		return
	}
	left := signal.Envelope{
		Type:   signal.EventPeerLeft,
		From:   c.Identity,
		RoomID: c.RoomID,
	}
	for _, identity := range remaining {
		h.sendTo(identity, left)
	}
}

// sendTo delivers an envelope to one identity's connection, if any.
func (h *Hub) sendTo(identity string, env signal.Envelope) {
	h.mu.RLock()
	target, ok := h.clients[identity]
	h.mu.RUnlock()
	if !ok {
		h.logger.Debug("relay target not connected", zap.String("identity", identity))
		return
	}
	target.deliver(env)
}

// broadcast delivers an envelope to every member of a room, optionally
// excluding one identity.
func (h *Hub) broadcast(roomID string, env signal.Envelope, exclude string) {
	members, err := h.registry.Members(roomID)
	if err != nil {
		h.logger.Error("broadcast membership lookup failed",
			zap.String("room", roomID), zap.Error(err))
		return
	}
	for _, identity := range members {
		if identity == exclude {
			continue
		}
		h.sendTo(identity, env)
	}
}
