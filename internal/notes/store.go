// Package notes persists interviewer notes against a candidate's
// application record. Only the interviewer role may touch notes; the
// service checks the admitted role, never a client-supplied claim.
package notes

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrForbidden indicates the caller's admitted role may not access notes.
	ErrForbidden = errors.New("notes are restricted to the interviewer")

	// ErrNotFound indicates the note or application record is missing.
	ErrNotFound = errors.New("note not found")

	// ErrPersistence wraps backend failures. Surfaced as a failed ack;
	// never affects connection state.
	ErrPersistence = errors.New("note persistence failed")
)

// Note is one interviewer note on a candidate.
type Note struct {
	ID        string    `json:"id" bson:"_id"`
	Content   string    `json:"content" bson:"note"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// Store is the persistence backend for notes, keyed by candidate
// identity. The Mongo implementation serves production; the in-memory
// one serves tests.
type Store interface {
	Add(ctx context.Context, candidateID string, n Note) error
	Update(ctx context.Context, candidateID, noteID, content string) (Note, error)
	Delete(ctx context.Context, candidateID, noteID string) error
	List(ctx context.Context, candidateID string) ([]Note, error)
}
