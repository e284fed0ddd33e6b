// Package tracker follows an asynchronous processing session over the
// service's push stream and reports its terminal outcome.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"capitao/caverna"

	"github.com/rs/zerolog"
)

// State is the connection/processing state of a Tracker
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateUpdating     State = "updating"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
	StateDisconnected State = "disconnected"
	StateCancelled    State = "cancelled"
	StateClosed       State = "closed"
)

// Terminal reports whether no further events will be processed in this state
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateClosed:
		return true
	}
	return false
}

var (
	// ErrEmptySessionID is returned by Open without a session id
	ErrEmptySessionID = errors.New("session id is required")

	// ErrAlreadyOpen is returned when Open is called twice on one tracker
	ErrAlreadyOpen = errors.New("tracker already opened")
)

// Messages reported through OnError for failures the server did not phrase
const (
	MsgCompletedWithoutResult = "processing completed without a result"
	MsgReconnectExhausted     = "lost connection to the processing stream"
)

// Stream is an open push-stream connection
type Stream interface {
	// Next blocks for the next event payload
	Next() ([]byte, error)
	Close() error
}

// Dialer opens a push stream scoped to a session
type Dialer interface {
	Dial(ctx context.Context, sessionID string) (Stream, error)
}

// DialerFunc adapts a function to Dialer
type DialerFunc func(ctx context.Context, sessionID string) (Stream, error)

// Dial implements Dialer
func (f DialerFunc) Dial(ctx context.Context, sessionID string) (Stream, error) {
	return f(ctx, sessionID)
}

// SSEDialer dials the server-sent event stream
func SSEDialer(client *caverna.Client) Dialer {
	return DialerFunc(func(ctx context.Context, sessionID string) (Stream, error) {
		return client.OpenProcessingStream(ctx, sessionID)
	})
}

// WebSocketDialer dials the WebSocket variant of the stream
func WebSocketDialer(client *caverna.Client) Dialer {
	return DialerFunc(func(ctx context.Context, sessionID string) (Stream, error) {
		return client.OpenProcessingSocket(ctx, sessionID)
	})
}

// Callbacks receive the tracker's outcome. OnComplete, OnError and OnCancel
// are mutually exclusive and each fires at most once. All callbacks run on
// the tracker goroutine (or the caller of Cancel) without locks held.
type Callbacks struct {
	OnComplete func(result *caverna.QuestionResponse)
	OnError    func(message string)
	OnCancel   func()

	// OnChange observes every state or session change
	OnChange func(Snapshot)
}

// Snapshot is a point-in-time view of the tracker
type Snapshot struct {
	SessionID string
	State     State
	Connected bool

	// Session is the last accepted server snapshot, nil before the first one
	Session *caverna.Session

	// Progress is the display percentage: 0..100, never decreasing
	Progress int

	// Reconnects counts consecutive reconnect attempts since the last good connection
	Reconnects int
}

// Option configures a Tracker
type Option func(*Tracker)

// WithReconnectPolicy replaces the default fixed 3s policy
func WithReconnectPolicy(p ReconnectPolicy) Option {
	return func(t *Tracker) {
		t.policy = p
	}
}

// WithLogger sets the structured logger
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger.With().Str("component", "tracker").Logger()
	}
}

// WithTimer replaces time.After, mainly for tests
func WithTimer(after func(time.Duration) <-chan time.Time) Option {
	return func(t *Tracker) {
		t.after = after
	}
}

// Tracker is the push-stream state machine for one session
type Tracker struct {
	dialer Dialer
	cb     Callbacks
	policy ReconnectPolicy
	logger zerolog.Logger
	after  func(time.Duration) <-chan time.Time

	mu         sync.Mutex
	sessionID  string
	state      State
	session    *caverna.Session
	progress   int
	reconnects int
	stream     Stream
	opened     bool
	finished   bool
	cancel     context.CancelFunc

	done     chan struct{}
	doneOnce sync.Once
}

// New creates a tracker; call Open to start it
func New(dialer Dialer, cb Callbacks, opts ...Option) *Tracker {
	t := &Tracker{
		dialer: dialer,
		cb:     cb,
		policy: FixedReconnect(DefaultReconnectDelay),
		logger: zerolog.Nop(),
		after:  time.After,
		state:  StateConnecting,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Open starts following the session in the background. The connection is
// (re)established asynchronously; observe it through OnChange or Snapshot.
func (t *Tracker) Open(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	t.mu.Lock()
	if t.opened || t.finished {
		t.mu.Unlock()
		return ErrAlreadyOpen
	}
	ctx, cancel := context.WithCancel(ctx)
	t.opened = true
	t.sessionID = sessionID
	t.cancel = cancel
	t.state = StateConnecting
	t.mu.Unlock()

	t.logger.Info().Str("session_id", sessionID).Msg("tracking session")
	go t.run(ctx)
	return nil
}

// Done is closed once the tracker has stopped and released its connection
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the tracker stops or ctx ends
func (t *Tracker) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current view of the tracker
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:  t.sessionID,
		State:      t.state,
		Connected:  t.state == StateConnected || t.state == StateUpdating,
		Progress:   t.progress,
		Reconnects: t.reconnects,
	}
	if t.session != nil {
		s := *t.session
		s.Steps = append([]caverna.Step(nil), t.session.Steps...)
		snap.Session = &s
	}
	return snap
}

// Cancel stops tracking on the client side and fires OnCancel. Nothing is
// sent to the server. It is a no-op once the tracker reached a terminal state.
func (t *Tracker) Cancel() {
	if !t.stop(StateCancelled) {
		return
	}
	t.logger.Info().Str("session_id", t.sessionID).Msg("tracking cancelled")
	if t.cb.OnCancel != nil {
		t.cb.OnCancel()
	}
}

// Close tears the tracker down without firing outcome callbacks
func (t *Tracker) Close() {
	t.stop(StateClosed)
}

// stop moves to a client-local terminal state and releases the connection
func (t *Tracker) stop(state State) bool {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return false
	}
	t.finished = true
	t.state = state
	stream := t.stream
	t.stream = nil
	cancel := t.cancel
	opened := t.opened
	snap := t.snapshotLocked()
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stream != nil {
		_ = stream.Close()
	}
	if !opened {
		t.markDone()
	}
	t.notify(snap)
	return true
}

func (t *Tracker) markDone() {
	t.doneOnce.Do(func() { close(t.done) })
}

func (t *Tracker) notify(snap Snapshot) {
	if t.cb.OnChange != nil {
		t.cb.OnChange(snap)
	}
}

// setState records a non-terminal state; it fails once the tracker finished
func (t *Tracker) setState(state State) bool {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return false
	}
	t.state = state
	if state == StateConnected {
		t.reconnects = 0
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.notify(snap)
	return true
}

func (t *Tracker) isFinished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finished
}

// run owns the connection for the tracker's lifetime
func (t *Tracker) run(ctx context.Context) {
	defer t.markDone()

	for {
		if !t.setState(StateConnecting) {
			return
		}

		stream, err := t.dialer.Dial(ctx, t.sessionID)
		if err != nil {
			if ctx.Err() != nil || !t.transportError(ctx, err) {
				return
			}
			continue
		}

		if !t.attach(stream) {
			_ = stream.Close()
			return
		}
		t.logger.Debug().Str("session_id", t.sessionID).Msg("connected to processing stream")
		if !t.setState(StateConnected) {
			return
		}

		err = t.consume(stream)
		if err == nil || ctx.Err() != nil || t.isFinished() {
			return
		}
		if !t.transportError(ctx, err) {
			return
		}
	}
}

func (t *Tracker) attach(stream Stream) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return false
	}
	t.stream = stream
	return true
}

// detach forgets the current stream and returns it for closing
func (t *Tracker) detach() Stream {
	t.mu.Lock()
	defer t.mu.Unlock()
	stream := t.stream
	t.stream = nil
	return stream
}

// consume reads events until a terminal snapshot (nil) or a transport error
func (t *Tracker) consume(stream Stream) error {
	for {
		payload, err := stream.Next()
		if err != nil {
			return err
		}
		if t.handle(payload) {
			return nil
		}
	}
}

// transportError closes the dead stream and waits for the next attempt. It
// returns false when tracking must stop instead.
func (t *Tracker) transportError(ctx context.Context, cause error) bool {
	if stream := t.detach(); stream != nil {
		_ = stream.Close()
	}

	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return false
	}
	t.state = StateDisconnected
	t.reconnects++
	attempt := t.reconnects
	snap := t.snapshotLocked()
	t.mu.Unlock()
	t.notify(snap)

	if t.policy.Exhausted(attempt) {
		t.logger.Error().Err(cause).Int("attempts", attempt-1).Msg("giving up on processing stream")
		t.fail(MsgReconnectExhausted)
		return false
	}

	delay := t.policy.Backoff(attempt)
	t.logger.Warn().Err(cause).Int("attempt", attempt).Dur("delay", delay).Msg("processing stream dropped, reconnecting")

	select {
	case <-ctx.Done():
		return false
	case <-t.after(delay):
	}
	return !t.isFinished()
}

// handle applies one payload and reports whether the tracker is now terminal
func (t *Tracker) handle(payload []byte) bool {
	event, err := DecodeEvent(payload)
	if err != nil {
		t.logger.Warn().Err(err).Int("bytes", len(payload)).Msg("discarding event")
		return false
	}
	if event.Session.ID != "" && event.Session.ID != t.sessionID {
		t.logger.Warn().Str("event_session", event.Session.ID).Msg("discarding event for another session")
		return false
	}

	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return true
	}
	t.session = event.Session
	if p := event.Session.ClampedProgress(); p > t.progress {
		t.progress = p
	}
	t.state = StateUpdating

	var (
		result  *caverna.QuestionResponse
		failure string
	)
	switch {
	case event.Session.Completed && event.Session.Result != nil:
		result = event.Session.Result
		t.state = StateCompleted
		t.progress = 100
	case event.Session.Error != "":
		failure = event.Session.Error
		t.state = StateFailed
	case event.Session.Completed:
		failure = MsgCompletedWithoutResult
		t.state = StateFailed
	}

	terminal := t.state.Terminal()
	var stream Stream
	if terminal {
		t.finished = true
		stream = t.stream
		t.stream = nil
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()

	if stream != nil {
		_ = stream.Close()
	}
	t.notify(snap)

	switch {
	case result != nil:
		t.logger.Info().Str("session_id", t.sessionID).Msg("processing completed")
		if t.cb.OnComplete != nil {
			t.cb.OnComplete(result)
		}
	case failure != "":
		t.logger.Warn().Str("session_id", t.sessionID).Str("error", failure).Msg("processing failed")
		if t.cb.OnError != nil {
			t.cb.OnError(failure)
		}
	}
	return terminal
}

// fail ends tracking with a client-detected error
func (t *Tracker) fail(message string) {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return
	}
	t.finished = true
	t.state = StateFailed
	stream := t.stream
	t.stream = nil
	snap := t.snapshotLocked()
	t.mu.Unlock()

	if stream != nil {
		_ = stream.Close()
	}
	t.notify(snap)
	if t.cb.OnError != nil {
		t.cb.OnError(message)
	}
}

// String is a one-line description used in logs and the CLI
func (s Snapshot) String() string {
	msg := ""
	if s.Session != nil {
		msg = s.Session.Message
	}
	return fmt.Sprintf("%s %3d%% %s", s.State, s.Progress, msg)
}
