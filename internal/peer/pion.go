package peer

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/meetcore/interview-rtc/internal/signal"
)

// STUN servers for ICE candidate gathering.
var stunServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:global.stun.twilio.com:3478",
}

// NewPionTransportFactory returns a TransportFactory backed by pion
// PeerConnections configured with public STUN servers.
//
// Offers and answers are sent with candidates already gathered, so no
// separate candidate relay is needed on the signaling channel.
func NewPionTransportFactory() TransportFactory {
	return func() (Transport, error) {
		pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
			ICEServers: []webrtc.ICEServer{{URLs: stunServers}},
		})
		if err != nil {
			return nil, fmt.Errorf("creating peer connection: %w", err)
		}
		return &pionTransport{pc: pc}, nil
	}
}

type pionTransport struct {
	pc *webrtc.PeerConnection
}

func (t *pionTransport) CreateOffer(ctx context.Context) (signal.SessionDescription, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return signal.SessionDescription{}, fmt.Errorf("creating offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return signal.SessionDescription{}, fmt.Errorf("setting local offer: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return signal.SessionDescription{}, ctx.Err()
	}
	local := t.pc.LocalDescription()
	return signal.SessionDescription{Type: local.Type.String(), SDP: local.SDP}, nil
}

func (t *pionTransport) AcceptOffer(ctx context.Context, offer signal.SessionDescription) (signal.SessionDescription, error) {
	if !offer.Valid() {
		return signal.SessionDescription{}, ErrMalformedDescription
	}
	remote := webrtc.SessionDescription{Type: webrtc.NewSDPType(offer.Type), SDP: offer.SDP}
	if err := t.pc.SetRemoteDescription(remote); err != nil {
		return signal.SessionDescription{}, fmt.Errorf("setting remote offer: %w", err)
	}

	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return signal.SessionDescription{}, fmt.Errorf("creating answer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return signal.SessionDescription{}, fmt.Errorf("setting local answer: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return signal.SessionDescription{}, ctx.Err()
	}
	local := t.pc.LocalDescription()
	return signal.SessionDescription{Type: local.Type.String(), SDP: local.SDP}, nil
}

func (t *pionTransport) AcceptAnswer(_ context.Context, answer signal.SessionDescription) error {
	if !answer.Valid() {
		return ErrMalformedDescription
	}
	// The signaling-state guard mirrors the browser client: an answer is
	// only meaningful against an outstanding local offer.
	if t.pc.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		return fmt.Errorf("%w: signaling state %s", ErrStaleMessage, t.pc.SignalingState())
	}
	remote := webrtc.SessionDescription{Type: webrtc.NewSDPType(answer.Type), SDP: answer.SDP}
	if err := t.pc.SetRemoteDescription(remote); err != nil {
		return fmt.Errorf("setting remote answer: %w", err)
	}
	return nil
}

func (t *pionTransport) AddTrack(track webrtc.TrackLocal) (TrackSender, error) {
	sender, err := t.pc.AddTrack(track)
	if err != nil {
		return nil, fmt.Errorf("adding track: %w", err)
	}
	return &pionSender{sender: sender}, nil
}

func (t *pionTransport) Senders() []TrackSender {
	raw := t.pc.GetSenders()
	out := make([]TrackSender, 0, len(raw))
	for _, s := range raw {
		if s.Track() != nil {
			out = append(out, &pionSender{sender: s})
		}
	}
	return out
}

func (t *pionTransport) Close() error {
	return t.pc.Close()
}

type pionSender struct {
	sender *webrtc.RTPSender
}

func (s *pionSender) Kind() string {
	if track := s.sender.Track(); track != nil {
		return track.Kind().String()
	}
	return ""
}

func (s *pionSender) ReplaceTrack(t webrtc.TrackLocal) error {
	return s.sender.ReplaceTrack(t)
}
