// Package signal defines the JSON event envelope exchanged between
// participants and the signaling server.
package signal

import "encoding/json"

// EventType identifies the kind of signaling event.
type EventType string

const (
	EventJoin              EventType = "join"
	EventPeerJoined        EventType = "peer-joined"
	EventOffer             EventType = "offer"
	EventAnswer            EventType = "answer"
	EventRenegotiateOffer  EventType = "renegotiate-offer"
	EventRenegotiateAnswer EventType = "renegotiate-answer"
	EventToggle            EventType = "toggle"
	EventLeave             EventType = "leave"
	EventPeerLeft          EventType = "peer-left"
	EventChatMessage       EventType = "chat-message"
	EventNoteAdd           EventType = "note-add"
	EventNoteUpdate        EventType = "note-update"
	EventNoteDelete        EventType = "note-delete"
	EventNoteGet           EventType = "note-get"
	EventAck               EventType = "ack"
	EventError             EventType = "error"
)

// Channel names a toggleable media channel.
type Channel string

const (
	ChannelAudio Channel = "audio"
	ChannelVideo Channel = "video"
)

// Envelope is the wire structure for every event. From and RoomID are
// always stamped by the server from the admitted connection, never
// trusted from the client.
type Envelope struct {
	Type    EventType       `json:"type"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
	RoomID  string          `json:"roomId,omitempty"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// SessionDescription carries an SDP offer or answer between peers.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Valid reports whether the description carries the fields a remote
// negotiation machine needs. Missing fields abort only the one link.
func (d SessionDescription) Valid() bool {
	return d.SDP != "" && (d.Type == "offer" || d.Type == "answer")
}

// TogglePayload is the body of a toggle event. Seq is the sender's
// per-identity monotone counter used for idempotent application.
type TogglePayload struct {
	Channel Channel `json:"channel"`
	Enabled bool    `json:"enabled"`
	Seq     uint64  `json:"seq"`
}

// ChatPayload is the body of a chat-message event.
type ChatPayload struct {
	Sender    string `json:"sender"` // role of the sender
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"` // RFC3339, stamped server-side
}

// NotePayload is the body of note-add/update/delete/get requests and
// of their acks.
type NotePayload struct {
	ID      string `json:"id,omitempty"`
	Content string `json:"content,omitempty"`
}

// AckPayload is the response body for request/response events
// (note-* and chat-message). Seq on the enclosing envelope correlates
// the ack with its request.
type AckPayload struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Marshal encodes v into a RawMessage for an Envelope payload.
func Marshal(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
