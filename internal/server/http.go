package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/meetcore/interview-rtc/internal/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware.
		return true
	},
}

// Server wires the HTTP surface: health, a read-only meeting view, and
// the WebSocket signaling endpoint.
type Server struct {
	hub    *Hub
	gate   *auth.Gate
	logger *zap.Logger
}

func New(hub *Hub, gate *auth.Gate, logger *zap.Logger) *Server {
	return &Server{hub: hub, gate: gate, logger: logger}
}

// Register mounts the routes on a gin router.
func (s *Server) Register(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.GET("/meetings/:roomId", s.handleMeetingInfo)
	}

	ws := router.Group("/ws")
	{
		ws.GET("/signal", s.handleSignaling)
	}
}

// bundleFromRequest collects the admission credentials from query
// parameters or headers.
func bundleFromRequest(c *gin.Context) auth.Bundle {
	bundle := auth.Bundle{
		Token:       c.Query("token"),
		MeetingLink: c.Query("meetingLink"),
	}
	if bundle.Token == "" {
		bundle.Token = c.GetHeader("Authorization")
	}
	if bundle.MeetingLink == "" {
		bundle.MeetingLink = c.GetHeader("X-Meeting-Link")
	}
	return bundle
}

// handleMeetingInfo returns the room's current membership, in arrival
// order, to admitted participants of that room only. Profile and job
// data live with external collaborators; only the room-scoped view is
// served here.
func (s *Server) handleMeetingInfo(c *gin.Context) {
	roomID := c.Param("roomId")

	adm, err := s.gate.Admit(bundleFromRequest(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if adm.RoomID != roomID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant of this meeting"})
		return
	}

	members, err := s.hub.registry.Members(roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read room"})
		return
	}
	if len(members) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	type memberInfo struct {
		Identity string `json:"identity"`
		Role     string `json:"role"`
	}
	out := make([]memberInfo, 0, len(members))
	for _, identity := range members {
		info := memberInfo{Identity: identity}
		if p, ok := s.hub.registry.Participant(identity); ok {
			info.Role = string(p.Role)
		}
		out = append(out, info)
	}
	c.JSON(http.StatusOK, gin.H{"roomId": roomID, "members": out})
}

// handleSignaling gates the admission bundle before upgrading. A
// rejected bundle closes the attempt with 401 and never touches room
// state.
func (s *Server) handleSignaling(c *gin.Context) {
	adm, err := s.gate.Admit(bundleFromRequest(c))
	if err != nil {
		s.logger.Warn("admission rejected", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(adm, conn, s.logger)
	s.hub.attach(client)

	s.logger.Info("participant connected",
		zap.String("identity", adm.Identity),
		zap.String("role", string(adm.Role)),
		zap.String("room", adm.RoomID))

	go client.writePump()
	go client.readPump(s.hub)
}
