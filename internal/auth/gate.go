// Package auth implements the session gate that decides whether an
// incoming connection is entitled to a specific meeting room.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned for any malformed, expired, or mismatched
// admission bundle. It is fatal to the connection attempt.
var ErrUnauthorized = errors.New("unauthorized")

// Role is the admitted role of a participant.
type Role string

const (
	RoleInterviewer Role = "interviewer"
	RoleCandidate   Role = "candidate"
)

// IdentityClaims is the role-and-identity assertion. The legacy issuer
// spells the interviewer role "admin"; the gate normalizes it.
type IdentityClaims struct {
	UserID string `json:"id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// MeetingClaims is the meeting-scope assertion recording which
// identities are expected on each side of the session.
type MeetingClaims struct {
	InterviewerID string `json:"hrUserId"`
	CandidateID   string `json:"candidateUserId"`
	JobID         string `json:"jobId"`
	RoomID        string `json:"roomId"`
	jwt.RegisteredClaims
}

// Bundle is the opaque credential bundle presented at connection time:
// a bearer identity token plus the signed meeting link token.
type Bundle struct {
	Token       string
	MeetingLink string
}

// Admission is the result of a successful gate check.
type Admission struct {
	Identity string
	Role     Role
	RoomID   string
	Meeting  MeetingClaims
}

// Gate validates admission bundles against a shared HMAC secret.
type Gate struct {
	secret []byte
}

func NewGate(secret string) *Gate {
	return &Gate{secret: []byte(secret)}
}

// Admit validates the bundle and returns the admission result. The
// identity inside the role assertion must match the role-specific
// counterpart recorded in the meeting assertion. Admit has no side
// effects; registering the participant is the caller's job.
func (g *Gate) Admit(bundle Bundle) (*Admission, error) {
	if !strings.HasPrefix(bundle.Token, "Bearer ") {
		return nil, fmt.Errorf("%w: token missing or invalid format", ErrUnauthorized)
	}

	var identity IdentityClaims
	if err := g.parse(strings.TrimPrefix(bundle.Token, "Bearer "), &identity); err != nil {
		return nil, fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}

	var meeting MeetingClaims
	if err := g.parse(bundle.MeetingLink, &meeting); err != nil {
		return nil, fmt.Errorf("%w: invalid meeting link", ErrUnauthorized)
	}

	role, err := normalizeRole(identity.Role)
	if err != nil {
		return nil, err
	}

	switch role {
	case RoleInterviewer:
		if identity.UserID == "" || identity.UserID != meeting.InterviewerID {
			return nil, fmt.Errorf("%w: not the interviewer of this meeting", ErrUnauthorized)
		}
	case RoleCandidate:
		if identity.UserID == "" || identity.UserID != meeting.CandidateID {
			return nil, fmt.Errorf("%w: not the candidate of this meeting", ErrUnauthorized)
		}
	}

	if meeting.RoomID == "" {
		return nil, fmt.Errorf("%w: meeting link carries no room", ErrUnauthorized)
	}

	return &Admission{
		Identity: identity.UserID,
		Role:     role,
		RoomID:   meeting.RoomID,
		Meeting:  meeting,
	}, nil
}

func (g *Gate) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return g.secret, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("token invalid")
	}
	return nil
}

func normalizeRole(raw string) (Role, error) {
	switch raw {
	case "interviewer", "admin": // "admin" is the legacy interviewer role
		return RoleInterviewer, nil
	case "candidate", "user": // non-admin identities are candidates
		return RoleCandidate, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrUnauthorized, raw)
	}
}
