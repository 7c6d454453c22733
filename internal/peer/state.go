// Package peer drives the per-pair negotiation protocol that brings two
// media endpoints into a synchronized, renegotiable connection state
// over the relayed signaling channel.
package peer

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateLink marks a join/offer for an identity that already
	// has a live link. Dropped and logged, never surfaced to the user.
	ErrDuplicateLink = errors.New("duplicate peer link")

	// ErrStaleMessage marks an answer or offer arriving after the link
	// state has moved on. Expected under network jitter; dropped silently.
	ErrStaleMessage = errors.New("stale negotiation message")

	// ErrNegotiationTimeout closes links stuck before connected.
	ErrNegotiationTimeout = errors.New("negotiation timed out")

	// ErrMalformedDescription aborts a single link on an offer or answer
	// missing required negotiation fields.
	ErrMalformedDescription = errors.New("malformed session description")

	// ErrIllegalTransition is returned when a requested state change is
	// not in the transition table.
	ErrIllegalTransition = errors.New("illegal link state transition")
)

// LinkState is the negotiation state of one peer link.
type LinkState int

const (
	StateIdle LinkState = iota
	StateLocalOfferPending
	StateOfferSent
	StateAwaitingAnswer
	StateAnswerReceived
	StateConnected
	StateRenegotiating
	StateClosed
)

var stateNames = map[LinkState]string{
	StateIdle:              "idle",
	StateLocalOfferPending: "local-offer-pending",
	StateOfferSent:         "offer-sent",
	StateAwaitingAnswer:    "awaiting-answer",
	StateAnswerReceived:    "answer-received",
	StateConnected:         "connected",
	StateRenegotiating:     "renegotiating",
	StateClosed:            "closed",
}

func (s LinkState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// transitions enumerates every legal state change. StateIdle →
// StateConnected is the answering side, which never holds an offer of
// its own for the first connection. StateClosed is reachable from any
// non-closed state and is terminal.
var transitions = map[LinkState][]LinkState{
	StateIdle:              {StateLocalOfferPending, StateConnected},
	StateLocalOfferPending: {StateOfferSent},
	StateOfferSent:         {StateAwaitingAnswer},
	StateAwaitingAnswer:    {StateAnswerReceived},
	StateAnswerReceived:    {StateConnected},
	StateConnected:         {StateRenegotiating},
	StateRenegotiating:     {StateConnected},
	StateClosed:            {},
}

// CanTransition reports whether s → to is in the transition table.
func (s LinkState) CanTransition(to LinkState) bool {
	if to == StateClosed {
		return s != StateClosed
	}
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Live reports whether the link still participates in the room's link
// set. A live link suppresses duplicate join/offer events for its pair.
func (s LinkState) Live() bool {
	return s != StateClosed
}

// inFlight reports whether a first-connection offer is outstanding.
func (s LinkState) inFlight() bool {
	return s == StateLocalOfferPending || s == StateOfferSent || s == StateAwaitingAnswer || s == StateAnswerReceived
}
