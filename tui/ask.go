package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"capitao/caverna"
	"capitao/present"
	"capitao/submit"
	"capitao/tracker"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// AskStep is the screen the ask flow is on
type AskStep int

const (
	AStepProcessing AskStep = iota
	AStepComplete
	AStepError
	AStepCancelled
)

// Canceller stops an in-flight submission
type Canceller interface {
	Cancel() bool
}

// SubmitFunc starts a submission; it returns once the request is answered
type SubmitFunc func() error

type submitDoneMsg struct{ err error }

type copiedMsg struct{ err error }

// AskModel follows one submission from upload to answer
type AskModel struct {
	step   AskStep
	title  string
	submit SubmitFunc
	cancel Canceller

	spinner  spinner.Model
	progress progress.Model
	feed     *ActivityFeed

	snap        submit.Snapshot
	result      *caverna.QuestionResponse
	errMessage  string
	notice      string
	noticeKind  NoticeKind
	showDetails bool

	// change tracking for the activity feed
	lastMessage    string
	lastStep       string
	lastConnected  bool
	lastReconnects int
	sessionSeen    bool

	width     int
	height    int
	startTime time.Time
	quitting  bool
	again     bool
}

// NewAskModel creates the model. submit may be nil when the submission is
// started elsewhere and only snapshots are fed in.
func NewAskModel(title string, fn SubmitFunc, cancel Canceller) AskModel {
	s := spinner.New()
	s.Spinner = spinner.Spinner{
		Frames: []string{"(o_o) ", "(o_o)~", "(o_o)~~", "(-_-)~~", "(o_o)~ ", "(o_o) "},
		FPS:    time.Second / 8,
	}
	s.Style = lipgloss.NewStyle().Foreground(ColorAccent)

	p := progress.New(
		progress.WithGradient("#B91C1C", "#FBBF24"),
		progress.WithWidth(50),
	)

	return AskModel{
		step:      AStepProcessing,
		title:     title,
		submit:    fn,
		cancel:    cancel,
		spinner:   s,
		progress:  p,
		feed:      NewActivityFeed(70, 6),
		width:     80,
		height:    24,
		startTime: time.Now(),
	}
}

// Init starts the spinner and the submission
func (m AskModel) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick}
	if m.submit != nil {
		fn := m.submit
		cmds = append(cmds, func() tea.Msg {
			return submitDoneMsg{err: fn()}
		})
	}
	return tea.Batch(cmds...)
}

// Update handles messages
func (m AskModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = max(m.width-20, 10)
		m.feed.SetSize(max(m.width-10, 20), 6)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		return m, cmd

	case NoticeMsg:
		m.notice = msg.Text
		m.noticeKind = msg.Kind
		return m, nil

	case SnapshotMsg:
		return m.applySnapshot(msg.Snapshot)

	case submitDoneMsg:
		if msg.err == nil || errors.Is(msg.err, context.Canceled) {
			return m, nil
		}
		// failures after processing started arrive as snapshots; this
		// covers rejected preconditions
		if m.step == AStepProcessing && m.snap.State != submit.StateError {
			m.errMessage = msg.err.Error()
			m.step = AStepError
		}
		return m, nil

	case copiedMsg:
		if msg.err != nil {
			m.notice = msg.err.Error()
			m.noticeKind = NoticeError
		} else {
			m.notice = "Texto copiado para a área de transferência"
			m.noticeKind = NoticeSuccess
		}
		return m, nil
	}

	return m, nil
}

func (m AskModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		// the caller cancels whatever is still processing once Run returns
		m.quitting = true
		return m, tea.Quit
	}

	switch m.step {
	case AStepProcessing:
		if key == "esc" && m.cancel != nil {
			// Cancel notifies through the program, so it must not run inside Update
			c := m.cancel
			return m, func() tea.Msg {
				c.Cancel()
				return nil
			}
		}
		return m, nil

	case AStepComplete:
		switch key {
		case "d":
			m.showDetails = !m.showDetails
		case "c", "s":
			resp := m.result
			return m, func() tea.Msg {
				return copiedMsg{err: present.CopyShareText(resp)}
			}
		case "n":
			m.again = true
			return m, tea.Quit
		case "q", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case AStepError, AStepCancelled:
		switch key {
		case "n", "r":
			m.again = true
			return m, tea.Quit
		case "q", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m AskModel) applySnapshot(s submit.Snapshot) (tea.Model, tea.Cmd) {
	prev := m.snap.State
	m.snap = s
	m.recordActivity(s)

	switch s.State {
	case submit.StateCompleted:
		m.result = s.Result
		m.step = AStepComplete
		return m, m.progress.SetPercent(1)
	case submit.StateError:
		m.errMessage = s.Error
		m.step = AStepError
		return m, nil
	case submit.StateIdle:
		if prev == submit.StateProcessing {
			m.step = AStepCancelled
		}
		return m, nil
	}

	return m, m.progress.SetPercent(float64(m.percent()) / 100)
}

// recordActivity appends feed entries for what changed since the last snapshot
func (m *AskModel) recordActivity(s submit.Snapshot) {
	if s.Tracking == nil && s.Upload.Message != "" && s.Upload.Message != m.lastMessage {
		m.lastMessage = s.Upload.Message
		m.feed.Add(FeedUpload, s.Upload.Message, fmt.Sprintf("%d%%", s.Upload.Progress))
	}

	if s.SessionID != "" && !m.sessionSeen {
		m.sessionSeen = true
		m.feed.Add(FeedStatus, "Sessão criada", s.SessionID)
	}

	if t := s.Tracking; t != nil {
		if t.Connected && !m.lastConnected {
			m.feed.Add(FeedStatus, "Conectado ao servidor", "")
		}
		if t.Reconnects > m.lastReconnects {
			m.feed.Add(FeedReconnect, "Conexão perdida, reconectando", fmt.Sprintf("tentativa %d", t.Reconnects))
		}
		m.lastConnected = t.Connected
		m.lastReconnects = t.Reconnects

		if sess := t.Session; sess != nil {
			if sess.CurrentStep != "" && sess.CurrentStep != m.lastStep {
				m.lastStep = sess.CurrentStep
				m.feed.Add(FeedStep, stepName(sess.Steps, sess.CurrentStep), "")
			}
			if sess.Message != "" && sess.Message != m.lastMessage {
				m.lastMessage = sess.Message
				m.feed.Add(FeedStatus, sess.Message, "")
			}
		}
	}

	switch s.State {
	case submit.StateCompleted:
		m.feed.Add(FeedComplete, "Resposta pronta", "")
	case submit.StateError:
		m.feed.Add(FeedError, "Falha no processamento", s.Error)
	}
}

func stepName(steps []caverna.Step, id string) string {
	for _, step := range steps {
		if step.ID == id && step.Name != "" {
			return step.Name
		}
	}
	return id
}

// percent is the progress shown by the bar
func (m AskModel) percent() int {
	if t := m.snap.Tracking; t != nil {
		// hold the upload progress until the server reports a session
		if t.Session == nil {
			return max(m.snap.Upload.Progress, t.Progress)
		}
		return t.Progress
	}
	return m.snap.Upload.Progress
}

// View renders the current screen
func (m AskModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.step {
	case AStepProcessing:
		content = m.renderProcessing()
	case AStepComplete:
		content = m.renderComplete()
	case AStepError:
		content = m.renderError()
	case AStepCancelled:
		content = m.renderCancelled()
	}

	notice := Notice(m.noticeKind, m.notice)
	if notice != "" {
		content += "\n" + notice
	}

	return lipgloss.JoinVertical(lipgloss.Left, Header(), content, m.renderHelp())
}

func (m AskModel) statusMessage() string {
	if t := m.snap.Tracking; t != nil {
		if t.Session != nil && t.Session.Message != "" {
			return t.Session.Message
		}
		switch t.State {
		case tracker.StateConnecting:
			return "Conectando ao servidor..."
		case tracker.StateDisconnected:
			return "Conexão perdida, tentando novamente..."
		}
		return "Processando..."
	}
	if m.snap.Upload.Message != "" {
		return m.snap.Upload.Message
	}
	return "Enviando..."
}

func (m AskModel) renderProcessing() string {
	title := TitleStyle.Render(m.title)

	status := m.spinner.View() + " " + BodyStyle.Render(m.statusMessage())
	bar := m.progress.View()

	var meta []string
	elapsed := MutedStyle.Render("Tempo: " + present.FormatSeconds(time.Since(m.startTime).Seconds()))
	meta = append(meta, elapsed)

	var steps string
	if t := m.snap.Tracking; t != nil {
		reconnecting := !t.Connected && t.Reconnects > 0
		meta = append([]string{ConnectionBadge(t.Connected, reconnecting)}, meta...)
		if sess := t.Session; sess != nil {
			if sess.EstimatedTimeRemaining != nil {
				meta = append(meta, MutedStyle.Render("Restante: "+present.FormatETA(*sess.EstimatedTimeRemaining)))
			}
			steps = StepList(sess.Steps, sess.CurrentStep)
		}
	}

	body := title + "\n" + status + "\n\n" + bar + "\n" + lipgloss.JoinHorizontal(lipgloss.Top, joinSpaced(meta)...)
	if steps != "" {
		body += "\n\n" + steps
	}
	body += "\n\n" + m.feed.View()
	return BoxStyle.Render(body)
}

func joinSpaced(parts []string) []string {
	out := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			out = append(out, "  ")
		}
		out = append(out, p)
	}
	return out
}

func (m AskModel) renderComplete() string {
	if m.result == nil {
		return BoxStyle.Render(SuccessStyle.Render("Concluído"))
	}
	md := present.Text(m.result, m.showDetails)
	return present.Render(md, max(m.width-4, 40))
}

func (m AskModel) renderError() string {
	title := ErrorStyle.Render("Erro no processamento")
	msg := m.errMessage
	if msg == "" {
		msg = "Erro desconhecido"
	}
	return BoxStyle.Render(title + "\n\n" + ErrorBoxStyle.Render(msg))
}

func (m AskModel) renderCancelled() string {
	return BoxStyle.Render(WarningStyle.Render(submit.MsgProcessingStopped))
}

func (m AskModel) renderHelp() string {
	switch m.step {
	case AStepProcessing:
		return KeyHelp(Key{"esc", "Cancelar"}, Key{"ctrl+c", "Sair"})
	case AStepComplete:
		details := "Ver detalhes"
		if m.showDetails {
			details = "Ocultar detalhes"
		}
		return KeyHelp(Key{"d", details}, Key{"c", "Copiar"}, Key{"n", "Nova pergunta"}, Key{"q", "Sair"})
	default:
		return KeyHelp(Key{"n", "Tentar novamente"}, Key{"q", "Sair"})
	}
}

// Step returns the current screen
func (m AskModel) Step() AskStep { return m.step }

// Result returns the answer once completed
func (m AskModel) Result() *caverna.QuestionResponse { return m.result }

// ErrorMessage returns the failure detail on the error screen
func (m AskModel) ErrorMessage() string { return m.errMessage }

// ShowDetails reports whether technical details are visible
func (m AskModel) ShowDetails() bool { return m.showDetails }

// AskAgain reports whether the user asked for a new question
func (m AskModel) AskAgain() bool { return m.again }

// IsQuitting reports whether the user quit
func (m AskModel) IsQuitting() bool { return m.quitting }

// FeedLen returns the number of activity entries
func (m AskModel) FeedLen() int { return m.feed.Len() }
