package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/meetcore/interview-rtc/internal/auth"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := newTestHub(t, false)
	router := gin.New()
	New(hub, auth.NewGate("test-secret"), zap.NewNop()).Register(router)
	return router, hub
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
}

func TestSignalingRejectsBadBundleBeforeUpgrade(t *testing.T) {
	router, hub := newTestRouter(t)

	// A real identity token signed with the wrong secret.
	claims := auth.IdentityClaims{
		UserID: "hr-1",
		Role:   "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/ws/signal", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Meeting-Link", "garbage")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	// Rejection must leave no trace in room state.
	if members, _ := hub.registry.Members("r1"); len(members) != 0 {
		t.Fatalf("rejected bundle mutated room state: %v", members)
	}
}

// signTestBundle issues a valid interviewer credential pair for a room.
func signTestBundle(t *testing.T, roomID string) (token, meetingLink string) {
	t.Helper()
	identity := auth.IdentityClaims{
		UserID: "hr-1",
		Role:   "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, identity).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signing identity token: %v", err)
	}
	meeting := auth.MeetingClaims{
		InterviewerID: "hr-1",
		CandidateID:   "cand-1",
		JobID:         "job-1",
		RoomID:        roomID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	link, err := jwt.NewWithClaims(jwt.SigningMethodHS256, meeting).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signing meeting link: %v", err)
	}
	return "Bearer " + signed, link
}

func meetingInfoRequest(roomID, token, meetingLink string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/meetings/"+roomID, nil)
	if token != "" {
		req.Header.Set("Authorization", token)
		req.Header.Set("X-Meeting-Link", meetingLink)
	}
	return req
}

func TestMeetingInfo(t *testing.T) {
	router, hub := newTestRouter(t)
	token, meetingLink := signTestBundle(t, "r1")

	// No credentials: the membership view is not public.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, meetingInfoRequest("r1", "", ""))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", w.Code)
	}

	// Valid credentials for another meeting must not enumerate this one.
	otherToken, otherLink := signTestBundle(t, "r2")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, meetingInfoRequest("r1", otherToken, otherLink))
	if w.Code != http.StatusForbidden {
		t.Fatalf("cross-room status = %d, want 403", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, meetingInfoRequest("r1", token, meetingLink))
	if w.Code != http.StatusNotFound {
		t.Fatalf("empty room status = %d, want 404", w.Code)
	}

	hr := newTestClient("hr", auth.RoleInterviewer)
	joinRoom(t, hub, hr)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, meetingInfoRequest("r1", token, meetingLink))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		RoomID  string `json:"roomId"`
		Members []struct {
			Identity string `json:"identity"`
			Role     string `json:"role"`
		} `json:"members"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.RoomID != "r1" || len(body.Members) != 1 {
		t.Fatalf("body = %+v", body)
	}
	if body.Members[0].Identity != "hr" || body.Members[0].Role != "interviewer" {
		t.Fatalf("member = %+v", body.Members[0])
	}
}

func TestOriginFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(OriginFilter([]string{"http://localhost:3000"}))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	testCases := []struct {
		name   string
		origin string
		want   int
	}{
		{"no origin passes", "", http.StatusOK},
		{"allowed origin passes", "http://localhost:3000", http.StatusOK},
		{"unlisted origin rejected", "https://evil.example", http.StatusForbidden},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}
