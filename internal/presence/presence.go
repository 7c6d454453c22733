// Package presence tracks mute/video-enabled state per participant.
//
// Flips are local-authoritative: a participant's own flags change only
// through its own Toggle calls, never through a remote echo. Remote
// flags are applied idempotently using the sender's monotone toggle
// counter, since delivery order across transports is not guaranteed.
package presence

import (
	"sync"

	"github.com/meetcore/interview-rtc/internal/signal"
)

// Flags are the broadcast media-enabled flags of one participant.
// VideoEnabled == true means the video track is being sent and
// rendered; audio likewise.
type Flags struct {
	AudioEnabled bool
	VideoEnabled bool
}

// Local holds this participant's own flags and its toggle counter.
type Local struct {
	mu    sync.Mutex
	flags Flags
	seq   uint64
}

// NewLocal starts with both channels enabled, matching a freshly
// acquired capture stream.
func NewLocal() *Local {
	return &Local{flags: Flags{AudioEnabled: true, VideoEnabled: true}}
}

// Toggle flips the named channel and returns the payload to broadcast.
// The returned Seq is strictly increasing across both channels.
func (l *Local) Toggle(channel signal.Channel) signal.TogglePayload {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	var enabled bool
	switch channel {
	case signal.ChannelAudio:
		l.flags.AudioEnabled = !l.flags.AudioEnabled
		enabled = l.flags.AudioEnabled
	case signal.ChannelVideo:
		l.flags.VideoEnabled = !l.flags.VideoEnabled
		enabled = l.flags.VideoEnabled
	}
	return signal.TogglePayload{Channel: channel, Enabled: enabled, Seq: l.seq}
}

// Flags returns a snapshot of the local flags.
func (l *Local) Flags() Flags {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flags
}

type remoteState struct {
	flags   Flags
	lastSeq map[signal.Channel]uint64
}

// Tracker applies remote toggle events idempotently. It tracks the last
// applied counter per (identity, channel) and ignores stale repeats.
type Tracker struct {
	mu     sync.Mutex
	states map[string]*remoteState
}

func NewTracker() *Tracker {
	return &Tracker{states: make(map[string]*remoteState)}
}

// Apply records a remote toggle and reports whether it changed state.
// Events whose counter is not newer than the last applied one for that
// channel are dropped.
func (t *Tracker) Apply(identity string, p signal.TogglePayload) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[identity]
	if !ok {
		st = &remoteState{
			flags:   Flags{AudioEnabled: true, VideoEnabled: true},
			lastSeq: make(map[signal.Channel]uint64),
		}
		t.states[identity] = st
	}

	if p.Seq <= st.lastSeq[p.Channel] {
		return false
	}
	st.lastSeq[p.Channel] = p.Seq

	switch p.Channel {
	case signal.ChannelAudio:
		st.flags.AudioEnabled = p.Enabled
	case signal.ChannelVideo:
		st.flags.VideoEnabled = p.Enabled
	default:
		return false
	}
	return true
}

// Flags returns the tracked flags for an identity.
func (t *Tracker) Flags(identity string) (Flags, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[identity]
	if !ok {
		return Flags{}, false
	}
	return st.flags, true
}

// Forget drops all state for an identity. Called on leave so a
// reconnecting participant starts from a fresh counter.
func (t *Tracker) Forget(identity string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, identity)
}
