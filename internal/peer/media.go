package peer

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"
)

// ErrDeviceAcquisitionFailed is returned when a new capture stream
// cannot be acquired. Recoverable: the previous stream stays
// authoritative and keeps flowing.
var ErrDeviceAcquisitionFailed = errors.New("device acquisition failed")

// DeviceSelection identifies the capture devices to acquire. Device
// enumeration itself is outside this module; only the identifiers pass
// through.
type DeviceSelection struct {
	AudioDeviceID string
	VideoDeviceID string
}

// LocalStream is one acquired capture stream: the set of outbound
// tracks produced by the selected devices, plus a release hook that
// stops the underlying capture.
type LocalStream struct {
	ID      string
	Tracks  []webrtc.TrackLocal
	release func()
}

// NewLocalStream builds a stream from already-created tracks. release
// may be nil when the tracks need no explicit teardown.
func NewLocalStream(id string, tracks []webrtc.TrackLocal, release func()) *LocalStream {
	return &LocalStream{ID: id, Tracks: tracks, release: release}
}

// TrackOfKind returns the first track of the given kind ("audio" or
// "video"), or nil.
func (s *LocalStream) TrackOfKind(kind string) webrtc.TrackLocal {
	for _, t := range s.Tracks {
		if t.Kind().String() == kind {
			return t
		}
	}
	return nil
}

// KindSet returns the set of track kinds present in the stream.
func (s *LocalStream) KindSet() map[string]int {
	kinds := make(map[string]int)
	for _, t := range s.Tracks {
		kinds[t.Kind().String()]++
	}
	return kinds
}

// Close stops the capture behind the stream.
func (s *LocalStream) Close() {
	if s.release != nil {
		s.release()
	}
}

// sameKindSet reports whether two streams carry the same kinds with the
// same counts. A changed kind set forces renegotiation; a same-kind
// swap replaces tracks in place.
func sameKindSet(a, b *LocalStream) bool {
	ka, kb := a.KindSet(), b.KindSet()
	if len(ka) != len(kb) {
		return false
	}
	for kind, n := range ka {
		if kb[kind] != n {
			return false
		}
	}
	return true
}

// CaptureSource acquires a capture stream for a device selection.
// Acquisition is the only suspension point of track replacement, so it
// takes a context.
type CaptureSource interface {
	Acquire(ctx context.Context, sel DeviceSelection) (*LocalStream, error)
}
