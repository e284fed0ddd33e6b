// Package submit drives one question submission at a time: upload or test
// question, optional session tracking, and the resulting state.
package submit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"capitao/capture"
	"capitao/caverna"
	"capitao/tracker"

	"github.com/rs/zerolog"
)

// State is the controller lifecycle state
type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateError      State = "error"
)

// Messages shown through the Notifier
const (
	MsgSelectMedia       = "Selecione um arquivo de vídeo ou áudio."
	MsgConsentRequired   = "Você deve concordar com os termos para continuar."
	MsgEmptyQuestion     = "Digite uma pergunta para testar."
	MsgUploadStarted     = "Upload iniciado! Acompanhe o progresso abaixo."
	MsgUploadFailed      = "Erro ao enviar arquivo. Tente novamente."
	MsgTestSucceeded     = "Resposta gerada com sucesso!"
	MsgTestFailed        = "Erro ao gerar resposta. Tente novamente."
	MsgProcessingDone    = "Processamento concluído! 🎉"
	MsgProcessingFailed  = "Erro no processamento: "
	MsgProcessingStopped = "Processamento cancelado."
)

var (
	// ErrBusy is returned when a submission is started while another is in flight
	ErrBusy = errors.New("a submission is already processing; reset first")

	// ErrNoMedia is returned by SubmitFile without media
	ErrNoMedia = errors.New("no media selected")

	// ErrConsentRequired is returned when the terms were not accepted
	ErrConsentRequired = errors.New("consent is required")

	// ErrEmptyQuestion is returned for a blank test question
	ErrEmptyQuestion = errors.New("question is empty")
)

// API is the part of the remote client the controller needs
type API interface {
	UploadQuestion(ctx context.Context, filename, contentType string, media io.Reader) (*caverna.UploadOutcome, error)
	TestResponse(ctx context.Context, question string) (*caverna.QuestionResponse, error)
}

// Notifier receives user-facing messages
type Notifier interface {
	Success(message string)
	Info(message string)
	Error(message string)
}

// NopNotifier discards every message
type NopNotifier struct{}

func (NopNotifier) Success(string) {}
func (NopNotifier) Info(string)    {}
func (NopNotifier) Error(string)   {}

// Snapshot is a copy of the controller state
type Snapshot struct {
	State     State
	MediaName string
	Question  string
	Consent   bool

	// SessionID is set while an asynchronous session is tracked
	SessionID string

	// Upload is the last local stage of the synchronous path
	Upload caverna.UploadProgress

	// Tracking mirrors the tracker while a session is followed
	Tracking *tracker.Snapshot

	Result *caverna.QuestionResponse
	Error  string
}

// Option configures a Controller
type Option func(*Controller)

// WithNotifier sets the message sink
func WithNotifier(n Notifier) Option {
	return func(c *Controller) {
		c.notifier = n
	}
}

// WithDialer sets how sessions are followed
func WithDialer(d tracker.Dialer) Option {
	return func(c *Controller) {
		c.dialer = d
	}
}

// WithTrackerOptions are passed to every tracker the controller creates
func WithTrackerOptions(opts ...tracker.Option) Option {
	return func(c *Controller) {
		c.trackerOpts = append(c.trackerOpts, opts...)
	}
}

// WithLogger sets the structured logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger.With().Str("component", "submit").Logger()
	}
}

// RequireConsent toggles the terms acceptance check
func RequireConsent(required bool) Option {
	return func(c *Controller) {
		c.requireConsent = required
	}
}

// OnChange observes every state change
func OnChange(fn func(Snapshot)) Option {
	return func(c *Controller) {
		c.onChange = fn
	}
}

// Controller owns at most one in-flight submission
type Controller struct {
	api            API
	dialer         tracker.Dialer
	trackerOpts    []tracker.Option
	notifier       Notifier
	logger         zerolog.Logger
	requireConsent bool
	onChange       func(Snapshot)

	mu        sync.Mutex
	state     State
	selection capture.Selection
	question  string
	consent   bool
	sessionID string
	upload    caverna.UploadProgress
	tracking  *tracker.Snapshot
	result    *caverna.QuestionResponse
	errMsg    string

	// gen invalidates callbacks of submissions that were cancelled or reset
	gen     uint64
	cancel  context.CancelFunc
	tracker *tracker.Tracker
	idle    chan struct{}
}

// New creates a controller. Without WithDialer asynchronous sessions fail.
func New(api API, opts ...Option) *Controller {
	c := &Controller{
		api:            api,
		notifier:       NopNotifier{},
		logger:         zerolog.Nop(),
		requireConsent: true,
		state:          StateIdle,
		idle:           closedChan(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// SetConsent records whether the user accepted the terms
func (c *Controller) SetConsent(accepted bool) {
	c.mu.Lock()
	c.consent = accepted
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap)
}

// SetQuestion stores the test question text without submitting it
func (c *Controller) SetQuestion(text string) {
	c.mu.Lock()
	c.question = text
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap)
}

// SelectMedia makes m the current media, releasing the previous selection
func (c *Controller) SelectMedia(m *capture.Media) error {
	c.mu.Lock()
	if c.state == StateProcessing {
		c.mu.Unlock()
		return ErrBusy
	}
	c.mu.Unlock()

	if err := c.selection.Set(m); err != nil {
		c.logger.Warn().Err(err).Msg("failed to release previous media")
	}
	c.emit(c.Snapshot())
	return nil
}

// Snapshot returns the current state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// State returns the lifecycle state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:     c.state,
		Question:  c.question,
		Consent:   c.consent,
		SessionID: c.sessionID,
		Upload:    c.upload,
		Result:    c.result,
		Error:     c.errMsg,
	}
	if m := c.selection.Current(); m != nil {
		snap.MediaName = m.Name
	}
	if c.tracking != nil {
		t := *c.tracking
		snap.Tracking = &t
	}
	return snap
}

func (c *Controller) emit(snap Snapshot) {
	if c.onChange != nil {
		c.onChange(snap)
	}
}

// begin validates the preconditions shared by both submit paths and
// moves to processing. It returns the generation and a cancellable context.
func (c *Controller) begin(ctx context.Context) (uint64, context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateProcessing {
		return 0, nil, ErrBusy
	}
	if c.requireConsent && !c.consent {
		c.notifier.Error(MsgConsentRequired)
		return 0, nil, ErrConsentRequired
	}

	c.gen++
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.state = StateProcessing
	c.sessionID = ""
	c.tracking = nil
	c.result = nil
	c.errMsg = ""
	c.upload = caverna.UploadProgress{}
	c.idle = make(chan struct{})
	return c.gen, ctx, nil
}

// current reports whether gen is still the live submission
func (c *Controller) currentLocked(gen uint64) bool {
	return c.gen == gen && c.state == StateProcessing
}

// finishLocked leaves processing; the caller emits the snapshot
func (c *Controller) finishLocked(state State) {
	c.state = state
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.tracker = nil
	c.sessionID = ""
	select {
	case <-c.idle:
	default:
		close(c.idle)
	}
}

// SubmitFile uploads the selected media, or m when it is not nil. It blocks
// until the upload is answered; an asynchronous session keeps being tracked
// in the background (see Wait).
func (c *Controller) SubmitFile(ctx context.Context, m *capture.Media) error {
	if m != nil {
		if err := c.SelectMedia(m); err != nil {
			return err
		}
	}
	m = c.selection.Current()
	if m == nil {
		c.notifier.Error(MsgSelectMedia)
		return ErrNoMedia
	}
	if m.Kind() == "" {
		c.notifier.Error(MsgSelectMedia)
		return fmt.Errorf("%w: %s", capture.ErrUnsupportedMedia, m.ContentType)
	}

	gen, ctx, err := c.begin(ctx)
	if err != nil {
		return err
	}
	c.logger.Info().Str("file", m.Name).Str("content_type", m.ContentType).Int64("size", m.Size).Msg("uploading question")
	c.stage(gen, caverna.StageUploading, 10, "Enviando arquivo...")

	outcome, err := c.api.UploadQuestion(ctx, m.Name, m.ContentType, m.Reader())
	if err != nil {
		if ctx.Err() != nil && !c.isCurrent(gen) {
			return context.Canceled
		}
		c.logger.Error().Err(err).Msg("upload failed")
		c.fail(gen, err.Error(), MsgUploadFailed)
		return fmt.Errorf("failed to upload question: %w", err)
	}

	if !outcome.Async() {
		c.stage(gen, caverna.StageTranscribing, 40, "Transcrevendo áudio...")
		c.stage(gen, caverna.StageGenerating, 70, "Gerando resposta...")
		c.stage(gen, caverna.StageComplete, 100, "Concluído!")
		c.complete(gen, outcome.Result, MsgProcessingDone)
		return nil
	}

	return c.track(ctx, gen, outcome.SessionID)
}

// SubmitTestQuestion asks the synchronous test endpoint. Blank text is
// rejected before any request is made.
func (c *Controller) SubmitTestQuestion(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		c.notifier.Error(MsgEmptyQuestion)
		return ErrEmptyQuestion
	}

	c.mu.Lock()
	c.question = text
	c.mu.Unlock()

	gen, ctx, err := c.begin(ctx)
	if err != nil {
		return err
	}
	c.logger.Info().Int("length", len(text)).Msg("sending test question")
	c.emit(c.Snapshot())

	resp, err := c.api.TestResponse(ctx, strings.TrimSpace(text))
	if err != nil {
		if ctx.Err() != nil && !c.isCurrent(gen) {
			return context.Canceled
		}
		c.logger.Error().Err(err).Msg("test question failed")
		c.fail(gen, err.Error(), MsgTestFailed)
		return fmt.Errorf("failed to get test response: %w", err)
	}

	c.complete(gen, resp, MsgTestSucceeded)
	return nil
}

func (c *Controller) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLocked(gen)
}

func (c *Controller) stage(gen uint64, stage caverna.UploadStage, progress int, message string) {
	c.mu.Lock()
	if !c.currentLocked(gen) {
		c.mu.Unlock()
		return
	}
	c.upload = caverna.UploadProgress{Stage: stage, Progress: progress, Message: message}
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap)
}

func (c *Controller) complete(gen uint64, result *caverna.QuestionResponse, message string) {
	c.mu.Lock()
	if !c.currentLocked(gen) {
		c.mu.Unlock()
		return
	}
	c.result = result
	c.finishLocked(StateCompleted)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notifier.Success(message)
	c.emit(snap)
}

func (c *Controller) fail(gen uint64, detail, message string) {
	c.mu.Lock()
	if !c.currentLocked(gen) {
		c.mu.Unlock()
		return
	}
	c.errMsg = detail
	c.finishLocked(StateError)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notifier.Error(message)
	c.emit(snap)
}

// track hands the session to a tracker whose callbacks settle the state
func (c *Controller) track(ctx context.Context, gen uint64, sessionID string) error {
	if c.dialer == nil {
		c.fail(gen, "no stream dialer configured", MsgUploadFailed)
		return errors.New("cannot follow session without a stream dialer")
	}

	cb := tracker.Callbacks{
		OnComplete: func(result *caverna.QuestionResponse) {
			c.complete(gen, result, MsgProcessingDone)
		},
		OnError: func(message string) {
			c.fail(gen, message, MsgProcessingFailed+message)
		},
		OnCancel: func() {
			c.cancelled(gen)
		},
		OnChange: func(s tracker.Snapshot) {
			c.mu.Lock()
			if !c.currentLocked(gen) {
				c.mu.Unlock()
				return
			}
			c.tracking = &s
			snap := c.snapshotLocked()
			c.mu.Unlock()
			c.emit(snap)
		},
	}
	t := tracker.New(c.dialer, cb, c.trackerOpts...)

	c.mu.Lock()
	if !c.currentLocked(gen) {
		c.mu.Unlock()
		t.Close()
		return context.Canceled
	}
	c.tracker = t
	c.sessionID = sessionID
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info().Str("session_id", sessionID).Msg("upload accepted, following session")
	c.notifier.Success(MsgUploadStarted)
	c.emit(snap)

	if err := t.Open(ctx, sessionID); err != nil {
		// a Cancel or Reset that raced the hand-off already settled the state
		if !c.isCurrent(gen) {
			return context.Canceled
		}
		c.fail(gen, err.Error(), MsgUploadFailed)
		return fmt.Errorf("failed to follow session: %w", err)
	}
	return nil
}

func (c *Controller) cancelled(gen uint64) {
	c.mu.Lock()
	if !c.currentLocked(gen) {
		c.mu.Unlock()
		return
	}
	c.finishLocked(StateIdle)
	c.errMsg = ""
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notifier.Info(MsgProcessingStopped)
	c.emit(snap)
}

// Cancel abandons the in-flight submission, client side only. It returns
// false when nothing was processing.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	if c.state != StateProcessing {
		c.mu.Unlock()
		return false
	}
	t := c.tracker
	gen := c.gen
	c.mu.Unlock()

	if t != nil {
		// fires OnCancel, which settles the state
		t.Cancel()
	}
	c.cancelled(gen)
	c.logger.Info().Msg("submission cancelled")
	return true
}

// Reset returns to idle and forgets media, question, result, error and consent
func (c *Controller) Reset() {
	c.mu.Lock()
	t := c.tracker
	c.gen++
	c.finishLocked(StateIdle)
	c.question = ""
	c.consent = false
	c.result = nil
	c.errMsg = ""
	c.tracking = nil
	c.upload = caverna.UploadProgress{}
	c.mu.Unlock()

	if t != nil {
		t.Close()
	}
	if err := c.selection.Clear(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to release media")
	}
	c.emit(c.Snapshot())
}

// Wait blocks until the controller is no longer processing
func (c *Controller) Wait(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return c.Snapshot(), nil
	case <-ctx.Done():
		return c.Snapshot(), ctx.Err()
	}
}

// Close tears down any tracker and releases the media
func (c *Controller) Close() {
	c.Reset()
}
