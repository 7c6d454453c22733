// Package registry is the single source of truth for room membership.
// All admissions and removals funnel through one service so that a
// participant is never observable mid-admission.
package registry

import "errors"

var (
	// ErrAlreadyMember indicates the identity is already registered to a
	// room; a participant belongs to at most one room at a time.
	ErrAlreadyMember = errors.New("identity already registered to a room")

	// ErrNotMember indicates the identity is not registered anywhere.
	ErrNotMember = errors.New("identity not registered to any room")
)

// Store is the membership backend. The in-memory implementation serves
// single-process deployments; the Redis implementation lets several
// signaling processes share one membership view.
//
// Member order is arrival order and is significant: it determines which
// side of a new peer pair initiates negotiation.
type Store interface {
	// Append adds identity to the end of roomID's member list, creating
	// the room lazily. It fails with ErrAlreadyMember if the identity is
	// registered to any room.
	Append(roomID, identity string) error

	// Remove deletes identity from its room and reports whether the room
	// became empty (and was garbage-collected). ErrNotMember if absent.
	Remove(identity string) (roomID string, empty bool, err error)

	// Members returns the room's member identities in arrival order.
	// A missing room yields an empty slice.
	Members(roomID string) ([]string, error)

	// Room returns the room an identity is registered to.
	Room(identity string) (string, error)
}
