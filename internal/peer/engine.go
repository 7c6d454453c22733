package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meetcore/interview-rtc/internal/presence"
	"github.com/meetcore/interview-rtc/internal/signal"
)

// Signaler delivers envelopes to the signaling server for relay.
type Signaler interface {
	Send(env signal.Envelope) error
}

// Config holds the per-participant engine settings.
type Config struct {
	Identity string
	RoomID   string

	// NegotiationTimeout bounds how long a link may sit with an
	// unanswered offer before it is closed. Zero means 30 seconds.
	NegotiationTimeout time.Duration

	Logger *zap.Logger
}

// link is one peer pair's negotiation state, owned by this engine's
// half of the pair. It exists only while both endpoints share a room.
type link struct {
	remote       string
	initiator    bool
	state        LinkState
	offerVersion uint64
	pendingReneg bool
	transport    Transport
	timer        *time.Timer
}

func (l *link) transition(to LinkState) error {
	if !l.state.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, l.state, to)
	}
	l.state = to
	return nil
}

// Engine runs this participant's side of the negotiation protocol: one
// state machine per peer link, duplicate suppression, renegotiation
// coalescing, and track replacement across all live links.
//
// State transitions are atomic under the engine mutex; offer/answer
// creation and device acquisition suspend outside it, and every
// post-suspension step re-checks that the link is still live, so a
// leave arriving mid-negotiation cancels cleanly.
type Engine struct {
	identity string
	roomID   string
	timeout  time.Duration
	logger   *zap.Logger

	signaler     Signaler
	newTransport TransportFactory
	capture      CaptureSource

	local  *presence.Local
	remote *presence.Tracker

	onClosed func(remote string, reason error)

	mu     sync.Mutex
	stream *LocalStream
	links  map[string]*link
}

func NewEngine(cfg Config, signaler Signaler, factory TransportFactory, capture CaptureSource) *Engine {
	timeout := cfg.NegotiationTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		identity:     cfg.Identity,
		roomID:       cfg.RoomID,
		timeout:      timeout,
		logger:       logger,
		signaler:     signaler,
		newTransport: factory,
		capture:      capture,
		local:        presence.NewLocal(),
		remote:       presence.NewTracker(),
		links:        make(map[string]*link),
	}
}

// OnLinkClosed registers a callback fired whenever a link closes for a
// reason other than an orderly leave (timeout, malformed description).
// Safe to call after Start; the timeout goroutine reads the callback
// under the engine mutex.
func (e *Engine) OnLinkClosed(fn func(remote string, reason error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onClosed = fn
}

// Start acquires the initial capture stream and requests admission to
// the room. Existing members will initiate toward us; we only answer.
func (e *Engine) Start(ctx context.Context, sel DeviceSelection) error {
	stream, err := e.capture.Acquire(ctx, sel)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceAcquisitionFailed, err)
	}
	e.mu.Lock()
	e.stream = stream
	e.mu.Unlock()

	return e.signaler.Send(signal.Envelope{
		Type:   signal.EventJoin,
		From:   e.identity,
		RoomID: e.roomID,
	})
}

// Dispatch routes one relayed envelope into the engine. Stale and
// duplicate events are dropped here, never returned as errors.
func (e *Engine) Dispatch(ctx context.Context, env signal.Envelope) error {
	switch env.Type {
	case signal.EventPeerJoined:
		return e.handlePeerJoined(ctx, env.From)
	case signal.EventOffer:
		return e.handleOffer(ctx, env.From, env.Payload)
	case signal.EventRenegotiateOffer:
		return e.handleRenegotiateOffer(ctx, env.From, env.Payload)
	case signal.EventAnswer:
		return e.handleAnswer(ctx, env.From, env.Payload)
	case signal.EventRenegotiateAnswer:
		return e.handleRenegotiateAnswer(ctx, env.From, env.Payload)
	case signal.EventToggle:
		return e.handleToggle(env)
	case signal.EventLeave, signal.EventPeerLeft:
		e.HandlePeerLeft(env.From)
		return nil
	default:
		e.logger.Debug("ignoring unhandled event", zap.String("type", string(env.Type)))
		return nil
	}
}

// handlePeerJoined initiates a call toward a newly joined participant.
// Existing members are always the offerers; the fixed asymmetry keeps
// both sides from offering at once on first connection.
func (e *Engine) handlePeerJoined(ctx context.Context, remote string) error {
	if remote == e.identity {
		return nil
	}

	e.mu.Lock()
	if existing, ok := e.links[remote]; ok && existing.state.Live() {
		e.mu.Unlock()
		e.logger.Warn("dropping duplicate peer-joined",
			zap.String("remote", remote), zap.Error(ErrDuplicateLink))
		return nil
	}

	transport, err := e.newTransport()
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("initiating link to %s: %w", remote, err)
	}
	if err := e.attachStreamLocked(transport); err != nil {
		e.mu.Unlock()
		transport.Close()
		return fmt.Errorf("initiating link to %s: %w", remote, err)
	}
	l := &link{remote: remote, initiator: true, state: StateIdle, transport: transport}
	if err := l.transition(StateLocalOfferPending); err != nil {
		e.mu.Unlock()
		transport.Close()
		return err
	}
	l.offerVersion = 1
	e.links[remote] = l
	e.mu.Unlock()

	offer, err := transport.CreateOffer(ctx)
	if err != nil {
		e.closeLink(remote, err)
		return nil
	}

	e.mu.Lock()
	if cur, ok := e.links[remote]; !ok || cur != l || !l.state.Live() {
		// The peer left while the offer was being created.
		e.mu.Unlock()
		return nil
	}
	if err := l.transition(StateOfferSent); err != nil {
		e.mu.Unlock()
		e.closeLink(remote, err)
		return nil
	}
	e.armTimeoutLocked(l)
	e.mu.Unlock()

	if err := e.sendDescription(signal.EventOffer, remote, offer); err != nil {
		e.closeLink(remote, err)
		return nil
	}

	e.mu.Lock()
	if cur, ok := e.links[remote]; ok && cur == l && l.state == StateOfferSent {
		l.transition(StateAwaitingAnswer)
	}
	e.mu.Unlock()
	return nil
}

// handleOffer answers a first-connection offer from an existing member.
func (e *Engine) handleOffer(ctx context.Context, from string, payload json.RawMessage) error {
	offer, err := decodeDescription(payload)
	if err != nil {
		e.logger.Warn("dropping malformed offer", zap.String("from", from), zap.Error(err))
		e.closeLink(from, ErrMalformedDescription)
		return nil
	}

	e.mu.Lock()
	if existing, ok := e.links[from]; ok && existing.state.Live() {
		e.mu.Unlock()
		e.logger.Warn("dropping duplicate incoming call",
			zap.String("from", from), zap.Error(ErrDuplicateLink))
		return nil
	}

	transport, err := e.newTransport()
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("answering link from %s: %w", from, err)
	}
	if err := e.attachStreamLocked(transport); err != nil {
		e.mu.Unlock()
		transport.Close()
		return fmt.Errorf("answering link from %s: %w", from, err)
	}
	l := &link{remote: from, state: StateIdle, transport: transport}
	e.links[from] = l
	e.mu.Unlock()

	answer, err := transport.AcceptOffer(ctx, offer)
	if err != nil {
		e.closeLink(from, err)
		return nil
	}

	e.mu.Lock()
	if cur, ok := e.links[from]; !ok || cur != l || !l.state.Live() {
		e.mu.Unlock()
		return nil
	}
	if err := l.transition(StateConnected); err != nil {
		e.mu.Unlock()
		e.closeLink(from, err)
		return nil
	}
	e.mu.Unlock()

	if err := e.sendDescription(signal.EventAnswer, from, answer); err != nil {
		e.closeLink(from, err)
	}
	return nil
}

// handleAnswer completes a first-connection negotiation on the
// initiating side. Late or mismatched answers are dropped, not errored;
// they are expected under network jitter.
func (e *Engine) handleAnswer(ctx context.Context, from string, payload json.RawMessage) error {
	e.mu.Lock()
	l, ok := e.links[from]
	if !ok || (l.state != StateOfferSent && l.state != StateAwaitingAnswer) {
		e.mu.Unlock()
		e.logger.Debug("dropping stale answer", zap.String("from", from), zap.Error(ErrStaleMessage))
		return nil
	}
	if l.state == StateOfferSent {
		l.transition(StateAwaitingAnswer)
	}
	if err := l.transition(StateAnswerReceived); err != nil {
		e.mu.Unlock()
		return nil
	}
	e.disarmTimeoutLocked(l)
	transport := l.transport
	e.mu.Unlock()

	answer, err := decodeDescription(payload)
	if err != nil {
		e.closeLink(from, ErrMalformedDescription)
		return nil
	}
	if err := transport.AcceptAnswer(ctx, answer); err != nil {
		if errors.Is(err, ErrStaleMessage) {
			e.logger.Debug("dropping answer in wrong signaling state", zap.String("from", from))
			// The offer is still outstanding: roll the link back to
			// awaiting-answer and re-arm the timer so it completes on a
			// usable answer or times out, never leaks half-open.
			e.mu.Lock()
			if cur, ok := e.links[from]; ok && cur == l && l.state == StateAnswerReceived {
				l.state = StateAwaitingAnswer
				e.armTimeoutLocked(l)
			}
			e.mu.Unlock()
			return nil
		}
		e.closeLink(from, err)
		return nil
	}

	e.mu.Lock()
	var pending bool
	if cur, ok := e.links[from]; ok && cur == l && l.state.Live() {
		l.transition(StateConnected)
		pending = l.pendingReneg
		l.pendingReneg = false
	}
	e.mu.Unlock()

	if pending {
		return e.RequestRenegotiation(ctx, from)
	}
	return nil
}

// RequestRenegotiation runs the offer/answer exchange again on a
// connected link, typically after the local track set changed. Requests
// against a link that is already renegotiating are coalesced into a
// single follow-up offer.
func (e *Engine) RequestRenegotiation(ctx context.Context, remote string) error {
	e.mu.Lock()
	l, ok := e.links[remote]
	if !ok || !l.state.Live() {
		e.mu.Unlock()
		return fmt.Errorf("%w: no live link to %s", ErrStaleMessage, remote)
	}
	if l.state == StateRenegotiating || l.pendingReneg {
		l.pendingReneg = true
		e.mu.Unlock()
		e.logger.Debug("coalescing renegotiation request", zap.String("remote", remote))
		return nil
	}
	if l.state != StateConnected {
		// First connection still in flight; the fresh tracks are already
		// attached, so the pending offer carries them.
		l.pendingReneg = true
		e.mu.Unlock()
		return nil
	}
	if err := l.transition(StateRenegotiating); err != nil {
		e.mu.Unlock()
		return err
	}
	l.offerVersion++
	transport := l.transport
	e.mu.Unlock()

	offer, err := transport.CreateOffer(ctx)
	if err != nil {
		e.closeLink(remote, err)
		return nil
	}

	e.mu.Lock()
	if cur, ok := e.links[remote]; !ok || cur != l || l.state != StateRenegotiating {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	if err := e.sendDescription(signal.EventRenegotiateOffer, remote, offer); err != nil {
		e.closeLink(remote, err)
	}
	return nil
}

// handleRenegotiateOffer answers a mid-session renegotiation.
func (e *Engine) handleRenegotiateOffer(ctx context.Context, from string, payload json.RawMessage) error {
	offer, err := decodeDescription(payload)
	if err != nil {
		e.closeLink(from, ErrMalformedDescription)
		return nil
	}

	e.mu.Lock()
	l, ok := e.links[from]
	if !ok || l.state != StateConnected {
		e.mu.Unlock()
		e.logger.Debug("dropping renegotiation offer outside connected state",
			zap.String("from", from), zap.Error(ErrStaleMessage))
		return nil
	}
	if err := l.transition(StateRenegotiating); err != nil {
		e.mu.Unlock()
		return nil
	}
	transport := l.transport
	e.mu.Unlock()

	answer, err := transport.AcceptOffer(ctx, offer)
	if err != nil {
		e.closeLink(from, err)
		return nil
	}

	e.mu.Lock()
	var pending bool
	if cur, ok := e.links[from]; ok && cur == l && l.state == StateRenegotiating {
		l.transition(StateConnected)
		pending = l.pendingReneg
		l.pendingReneg = false
	}
	e.mu.Unlock()

	if err := e.sendDescription(signal.EventRenegotiateAnswer, from, answer); err != nil {
		e.closeLink(from, err)
		return nil
	}
	if pending {
		return e.RequestRenegotiation(ctx, from)
	}
	return nil
}

// handleRenegotiateAnswer completes a renegotiation we initiated.
func (e *Engine) handleRenegotiateAnswer(ctx context.Context, from string, payload json.RawMessage) error {
	e.mu.Lock()
	l, ok := e.links[from]
	if !ok || l.state != StateRenegotiating {
		e.mu.Unlock()
		e.logger.Debug("dropping stale renegotiation answer",
			zap.String("from", from), zap.Error(ErrStaleMessage))
		return nil
	}
	transport := l.transport
	e.mu.Unlock()

	answer, err := decodeDescription(payload)
	if err != nil {
		e.closeLink(from, ErrMalformedDescription)
		return nil
	}
	if err := transport.AcceptAnswer(ctx, answer); err != nil {
		if errors.Is(err, ErrStaleMessage) {
			return nil
		}
		e.closeLink(from, err)
		return nil
	}

	e.mu.Lock()
	var pending bool
	if cur, ok := e.links[from]; ok && cur == l && l.state == StateRenegotiating {
		l.transition(StateConnected)
		pending = l.pendingReneg
		l.pendingReneg = false
	}
	e.mu.Unlock()

	if pending {
		return e.RequestRenegotiation(ctx, from)
	}
	return nil
}

// ReplaceLocalTracks reacts to a device change: the new stream is
// acquired before the old one is released, so a failed acquisition
// leaves the previous stream authoritative and flowing. Same-kind
// tracks are swapped in place on every live link; a changed kind set
// triggers renegotiation on connected links. Links with in-flight
// offers pick up the fresh tracks through their senders.
func (e *Engine) ReplaceLocalTracks(ctx context.Context, sel DeviceSelection) ([]string, error) {
	newStream, err := e.capture.Acquire(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceAcquisitionFailed, err)
	}

	e.mu.Lock()
	old := e.stream
	e.stream = newStream
	kindChanged := old != nil && !sameKindSet(old, newStream)

	var affected, needReneg []string
	for remote, l := range e.links {
		if !l.state.Live() {
			continue
		}
		seen := make(map[string]bool)
		for _, sender := range l.transport.Senders() {
			kind := sender.Kind()
			seen[kind] = true
			if track := newStream.TrackOfKind(kind); track != nil {
				if err := sender.ReplaceTrack(track); err != nil {
					e.logger.Warn("track replacement failed",
						zap.String("remote", remote), zap.String("kind", kind), zap.Error(err))
				}
			}
		}
		// Kinds new to the stream need a fresh sender and a new offer.
		for _, track := range newStream.Tracks {
			if !seen[track.Kind().String()] {
				if _, err := l.transport.AddTrack(track); err != nil {
					e.logger.Warn("adding new track kind failed",
						zap.String("remote", remote), zap.Error(err))
				}
			}
		}
		if l.state.inFlight() {
			// In-flight offers must describe the latest tracks, not a
			// stale snapshot.
			l.offerVersion++
		}
		affected = append(affected, remote)
		if kindChanged {
			needReneg = append(needReneg, remote)
		}
	}
	e.mu.Unlock()

	if old != nil {
		old.Close()
	}

	for _, remote := range needReneg {
		if err := e.RequestRenegotiation(ctx, remote); err != nil {
			e.logger.Warn("renegotiation after track replacement failed",
				zap.String("remote", remote), zap.Error(err))
		}
	}
	return affected, nil
}

// Toggle flips the local audio or video flag and broadcasts the new
// state. The local flag is authoritative; echoes never override it.
func (e *Engine) Toggle(channel signal.Channel) error {
	p := e.local.Toggle(channel)
	payload, err := signal.Marshal(p)
	if err != nil {
		return err
	}
	return e.signaler.Send(signal.Envelope{
		Type:    signal.EventToggle,
		From:    e.identity,
		RoomID:  e.roomID,
		Payload: payload,
	})
}

func (e *Engine) handleToggle(env signal.Envelope) error {
	if env.From == e.identity {
		// Echo of our own toggle; local state is authoritative.
		return nil
	}
	var p signal.TogglePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		e.logger.Warn("dropping malformed toggle", zap.String("from", env.From), zap.Error(err))
		return nil
	}
	if !e.remote.Apply(env.From, p) {
		e.logger.Debug("dropping stale toggle",
			zap.String("from", env.From), zap.Uint64("seq", p.Seq))
	}
	return nil
}

// HandlePeerLeft releases our half of every link with the leaving
// identity. The explicit notification lets both sides tear down
// deterministically instead of waiting on a transport timeout.
func (e *Engine) HandlePeerLeft(remote string) {
	e.closeLink(remote, nil)
	e.remote.Forget(remote)
}

// Leave announces departure and closes every link this engine owns.
func (e *Engine) Leave() error {
	err := e.signaler.Send(signal.Envelope{
		Type:   signal.EventLeave,
		From:   e.identity,
		RoomID: e.roomID,
	})

	e.mu.Lock()
	remotes := make([]string, 0, len(e.links))
	for remote := range e.links {
		remotes = append(remotes, remote)
	}
	stream := e.stream
	e.stream = nil
	e.mu.Unlock()

	for _, remote := range remotes {
		e.closeLink(remote, nil)
	}
	if stream != nil {
		stream.Close()
	}
	return err
}

// LocalFlags returns this participant's broadcast media flags.
func (e *Engine) LocalFlags() presence.Flags {
	return e.local.Flags()
}

// RemoteFlags returns the tracked flags of another participant.
func (e *Engine) RemoteFlags(identity string) (presence.Flags, bool) {
	return e.remote.Flags(identity)
}

// LinkState reports the negotiation state of the link to a remote.
// Closed links are removed, so a missing link reports StateClosed.
func (e *Engine) LinkState(remote string) LinkState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if l, ok := e.links[remote]; ok {
		return l.state
	}
	return StateClosed
}

func (e *Engine) closeLink(remote string, reason error) {
	e.mu.Lock()
	l, ok := e.links[remote]
	if !ok {
		e.mu.Unlock()
		return
	}
	e.disarmTimeoutLocked(l)
	l.state = StateClosed
	delete(e.links, remote)
	transport := l.transport
	onClosed := e.onClosed
	e.mu.Unlock()

	if transport != nil {
		transport.Close()
	}
	if reason != nil {
		e.logger.Warn("peer link closed", zap.String("remote", remote), zap.Error(reason))
		if onClosed != nil {
			onClosed(remote, reason)
		}
	} else {
		e.logger.Info("peer link released", zap.String("remote", remote))
	}
}

// attachStreamLocked adds every current local track to a fresh
// transport. Caller holds e.mu.
func (e *Engine) attachStreamLocked(t Transport) error {
	if e.stream == nil {
		return nil
	}
	for _, track := range e.stream.Tracks {
		if _, err := t.AddTrack(track); err != nil {
			return err
		}
	}
	return nil
}

// armTimeoutLocked starts the stuck-offer timer. Caller holds e.mu.
func (e *Engine) armTimeoutLocked(l *link) {
	remote := l.remote
	l.timer = time.AfterFunc(e.timeout, func() {
		e.mu.Lock()
		cur, ok := e.links[remote]
		stuck := ok && cur == l && l.state.inFlight()
		e.mu.Unlock()
		if stuck {
			e.closeLink(remote, ErrNegotiationTimeout)
		}
	})
}

func (e *Engine) disarmTimeoutLocked(l *link) {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

func (e *Engine) sendDescription(event signal.EventType, to string, desc signal.SessionDescription) error {
	payload, err := signal.Marshal(desc)
	if err != nil {
		return err
	}
	return e.signaler.Send(signal.Envelope{
		Type:    event,
		From:    e.identity,
		To:      to,
		RoomID:  e.roomID,
		Payload: payload,
	})
}

func decodeDescription(payload json.RawMessage) (signal.SessionDescription, error) {
	var desc signal.SessionDescription
	if err := json.Unmarshal(payload, &desc); err != nil {
		return signal.SessionDescription{}, fmt.Errorf("%w: %v", ErrMalformedDescription, err)
	}
	if !desc.Valid() {
		return signal.SessionDescription{}, ErrMalformedDescription
	}
	return desc, nil
}
