package peer

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/meetcore/interview-rtc/internal/signal"
)

// fakeSignaler records every envelope the engine sends.
type fakeSignaler struct {
	mu   sync.Mutex
	sent []signal.Envelope
}

func (s *fakeSignaler) Send(env signal.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, env)
	return nil
}

func (s *fakeSignaler) take() []signal.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.sent
	s.sent = nil
	return out
}

func (s *fakeSignaler) ofType(t signal.EventType) []signal.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []signal.Envelope
	for _, env := range s.sent {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

type fakeSender struct {
	mu       sync.Mutex
	kind     string
	track    webrtc.TrackLocal
	replaced int
}

func (s *fakeSender) Kind() string { return s.kind }

func (s *fakeSender) ReplaceTrack(t webrtc.TrackLocal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t == nil {
		return fmt.Errorf("nil track")
	}
	s.track = t
	s.replaced++
	return nil
}

// fakeTransport negotiates instantly with canned descriptions.
type fakeTransport struct {
	mu           sync.Mutex
	senders      []*fakeSender
	offersMade   int
	answersMade  int
	answersTaken int
	closed       bool

	failAnswer error // returned by AcceptAnswer when set
}

func (t *fakeTransport) CreateOffer(context.Context) (signal.SessionDescription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.offersMade++
	return signal.SessionDescription{Type: "offer", SDP: fmt.Sprintf("v=0 offer %d", t.offersMade)}, nil
}

func (t *fakeTransport) AcceptOffer(_ context.Context, offer signal.SessionDescription) (signal.SessionDescription, error) {
	if !offer.Valid() {
		return signal.SessionDescription{}, ErrMalformedDescription
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.answersMade++
	return signal.SessionDescription{Type: "answer", SDP: "v=0 answer"}, nil
}

func (t *fakeTransport) AcceptAnswer(_ context.Context, answer signal.SessionDescription) error {
	if !answer.Valid() {
		return ErrMalformedDescription
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failAnswer != nil {
		return t.failAnswer
	}
	t.answersTaken++
	return nil
}

func (t *fakeTransport) AddTrack(track webrtc.TrackLocal) (TrackSender, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := &fakeSender{kind: track.Kind().String(), track: track}
	t.senders = append(t.senders, s)
	return s, nil
}

func (t *fakeTransport) Senders() []TrackSender {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TrackSender, len(t.senders))
	for i, s := range t.senders {
		out[i] = s
	}
	return out
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// fakeFactory hands out fakeTransports and remembers them in order.
type fakeFactory struct {
	mu         sync.Mutex
	transports []*fakeTransport
}

func (f *fakeFactory) factory() (Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTransport{}
	f.transports = append(f.transports, t)
	return t, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transports)
}

func (f *fakeFactory) last() *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.transports) == 0 {
		return nil
	}
	return f.transports[len(f.transports)-1]
}

// fakeCapture returns queued streams, then an error when exhausted.
type fakeCapture struct {
	mu      sync.Mutex
	streams []*LocalStream
	fail    error
}

func (c *fakeCapture) Acquire(context.Context, DeviceSelection) (*LocalStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return nil, c.fail
	}
	if len(c.streams) == 0 {
		return nil, fmt.Errorf("no capture stream queued")
	}
	s := c.streams[0]
	c.streams = c.streams[1:]
	return s, nil
}

func audioTrack(t *testing.T) webrtc.TrackLocal {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "capture")
	if err != nil {
		t.Fatalf("creating audio track: %v", err)
	}
	return track
}

func videoTrack(t *testing.T) webrtc.TrackLocal {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "capture")
	if err != nil {
		t.Fatalf("creating video track: %v", err)
	}
	return track
}

// trackedStream wraps a LocalStream and records whether it was released.
type trackedStream struct {
	stream   *LocalStream
	released bool
}

func newTrackedStream(t *testing.T, id string, tracks ...webrtc.TrackLocal) *trackedStream {
	t.Helper()
	ts := &trackedStream{}
	ts.stream = NewLocalStream(id, tracks, func() { ts.released = true })
	return ts
}
