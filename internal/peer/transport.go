package peer

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/meetcore/interview-rtc/internal/signal"
)

// TrackSender is one outbound track slot on a transport. Same-kind
// replacement happens in place without renegotiation.
type TrackSender interface {
	Kind() string
	ReplaceTrack(t webrtc.TrackLocal) error
}

// Transport is the media connection under one peer link. The production
// implementation wraps a pion PeerConnection; tests substitute a fake.
// Offer and answer creation suspend on codec/ICE gathering, so both
// take a context.
type Transport interface {
	// CreateOffer produces a local offer with candidates gathered, ready
	// to relay. The link owns the pacing; the transport only negotiates.
	CreateOffer(ctx context.Context) (signal.SessionDescription, error)

	// AcceptOffer applies a remote offer and produces the answer.
	AcceptOffer(ctx context.Context, offer signal.SessionDescription) (signal.SessionDescription, error)

	// AcceptAnswer applies the remote answer to a pending local offer.
	AcceptAnswer(ctx context.Context, answer signal.SessionDescription) error

	// AddTrack attaches an outbound track and returns its sender slot.
	AddTrack(t webrtc.TrackLocal) (TrackSender, error)

	// Senders lists the current outbound track slots.
	Senders() []TrackSender

	Close() error
}

// TransportFactory creates one Transport per peer link.
type TransportFactory func() (Transport, error)
