package server

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/meetcore/interview-rtc/internal/notes"
	"github.com/meetcore/interview-rtc/internal/signal"
)

// noteOpTimeout bounds the persistence round-trip so a slow document
// store cannot hold a connection's read loop indefinitely.
const noteOpTimeout = 10 * time.Second

// HandleEnvelope routes one event from a connection. From and RoomID
// are stamped from the admitted connection; client-supplied values are
// ignored. Errors are contained to the single request: a bad event
// never affects the room or other links.
func (h *Hub) HandleEnvelope(c *Client, env signal.Envelope) {
	env.From = c.Identity
	env.RoomID = c.RoomID

	switch env.Type {
	case signal.EventJoin:
		h.join(c)

	case signal.EventOffer, signal.EventAnswer,
		signal.EventRenegotiateOffer, signal.EventRenegotiateAnswer:
		if env.To == "" {
			h.logger.Warn("dropping untargeted negotiation event",
				zap.String("identity", c.Identity), zap.String("type", string(env.Type)))
			return
		}
		h.sendTo(env.To, env)

	case signal.EventToggle:
		h.broadcast(c.RoomID, env, c.Identity)

	case signal.EventLeave:
		h.leave(c)

	case signal.EventChatMessage:
		h.handleChat(c, env)

	case signal.EventNoteAdd, signal.EventNoteUpdate, signal.EventNoteDelete, signal.EventNoteGet:
		h.handleNote(c, env)

	default:
		h.logger.Warn("unknown event type",
			zap.String("identity", c.Identity), zap.String("type", string(env.Type)))
	}
}

// handleChat stamps the sender's admitted role and a server-side
// timestamp, broadcasts, and acks. Delivery is fire-and-forget;
// durability is an external collaborator's concern.
func (h *Hub) handleChat(c *Client, env signal.Envelope) {
	var in signal.ChatPayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &in); err != nil {
			h.ack(c, env.Seq, signal.AckPayload{Success: false, Message: "malformed chat payload"})
			return
		}
	}

	out := signal.ChatPayload{
		Sender:    string(c.Role),
		Message:   in.Message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	payload, err := signal.Marshal(out)
	if err != nil {
		h.ack(c, env.Seq, signal.AckPayload{Success: false, Message: "failed to send message"})
		return
	}

	exclude := c.Identity
	if h.echoChat {
		exclude = ""
	}
	h.broadcast(c.RoomID, signal.Envelope{
		Type:    signal.EventChatMessage,
		From:    c.Identity,
		RoomID:  c.RoomID,
		Payload: payload,
	}, exclude)

	h.ack(c, env.Seq, signal.AckPayload{Success: true, Message: "message sent", Data: payload})
}

// handleNote runs a role-gated, ack-based note operation. The gate
// checks the role admitted at connection time. Only this connection
// waits on the store round-trip.
func (h *Hub) handleNote(c *Client, env signal.Envelope) {
	var in signal.NotePayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &in); err != nil {
			h.ack(c, env.Seq, signal.AckPayload{Success: false, Message: "malformed note payload"})
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), noteOpTimeout)
	defer cancel()

	var (
		data any
		err  error
	)
	switch env.Type {
	case signal.EventNoteAdd:
		data, err = h.notes.Add(ctx, c.Role, c.CandidateID, in.Content)
	case signal.EventNoteUpdate:
		data, err = h.notes.Update(ctx, c.Role, c.CandidateID, in.ID, in.Content)
	case signal.EventNoteDelete:
		err = h.notes.Delete(ctx, c.Role, c.CandidateID, in.ID)
	case signal.EventNoteGet:
		data, err = h.notes.List(ctx, c.Role, c.CandidateID)
	}
	if err != nil {
		h.ack(c, env.Seq, signal.AckPayload{Success: false, Message: noteFailureMessage(err)})
		return
	}

	ack := signal.AckPayload{Success: true}
	if data != nil {
		if ack.Data, err = signal.Marshal(data); err != nil {
			h.ack(c, env.Seq, signal.AckPayload{Success: false, Message: "failed to encode note"})
			return
		}
	}
	h.ack(c, env.Seq, ack)
}

func noteFailureMessage(err error) string {
	switch {
	case errors.Is(err, notes.ErrForbidden):
		return "notes are restricted to the interviewer"
	case errors.Is(err, notes.ErrNotFound):
		return "note not found"
	default:
		return "note operation failed, please try again"
	}
}

func (h *Hub) ack(c *Client, seq uint64, payload signal.AckPayload) {
	data, err := signal.Marshal(payload)
	if err != nil {
		h.logger.Error("marshaling ack", zap.Error(err))
		return
	}
	c.deliver(signal.Envelope{Type: signal.EventAck, Seq: seq, Payload: data})
}
