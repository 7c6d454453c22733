// Package server is the signaling surface: it gates connections into
// rooms, relays negotiation events between peers, and fans out
// room-scoped presence, chat, and note traffic.
package server

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/meetcore/interview-rtc/internal/auth"
	"github.com/meetcore/interview-rtc/internal/signal"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// Client is one admitted WebSocket connection. Identity, role, and the
// meeting's candidate id come from the gate, never from the wire.
type Client struct {
	Identity    string
	Role        auth.Role
	RoomID      string
	CandidateID string

	conn   *websocket.Conn
	send   chan []byte
	logger *zap.Logger
}

func newClient(adm *auth.Admission, conn *websocket.Conn, logger *zap.Logger) *Client {
	return &Client{
		Identity:    adm.Identity,
		Role:        adm.Role,
		RoomID:      adm.RoomID,
		CandidateID: adm.Meeting.CandidateID,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		logger:      logger,
	}
}

// deliver queues an envelope without blocking; a full buffer drops the
// message, matching the relay's no-durability contract.
func (c *Client) deliver(env signal.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		c.logger.Error("marshaling envelope", zap.Error(err))
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("send buffer full, dropping envelope",
			zap.String("identity", c.Identity), zap.String("type", string(env.Type)))
	}
}

// readPump reads envelopes off the socket one at a time, which gives
// every sender FIFO ordering of its own events. Disconnect implies
// leave.
func (c *Client) readPump(hub *Hub) {
	defer func() {
		hub.disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error",
					zap.String("identity", c.Identity), zap.Error(err))
			}
			return
		}

		var env signal.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.logger.Warn("dropping unparseable envelope",
				zap.String("identity", c.Identity), zap.Error(err))
			continue
		}
		hub.HandleEnvelope(c, env)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn("websocket write error",
					zap.String("identity", c.Identity), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
