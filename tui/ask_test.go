package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	"capitao/caverna"
	"capitao/submit"
	"capitao/tracker"

	tea "github.com/charmbracelet/bubbletea"
)

type fakeCanceller struct{ calls int }

func (f *fakeCanceller) Cancel() bool {
	f.calls++
	return true
}

func key(s string) tea.KeyMsg {
	switch s {
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m AskModel, msg tea.Msg) AskModel {
	t.Helper()
	next, _ := m.Update(msg)
	am, ok := next.(AskModel)
	if !ok {
		t.Fatalf("Expected AskModel, got %T", next)
	}
	return am
}

func answer() *caverna.QuestionResponse {
	return &caverna.QuestionResponse{
		Question:  "Como vencer a procrastinação?",
		Response:  "Comece agora, guerreiro.",
		WordCount: 4,
		Timestamp: "2026-10-19T10:00:00Z",
	}
}

func trackingSnapshot(step string, progress int, connected bool, reconnects int) submit.Snapshot {
	eta := 12
	return submit.Snapshot{
		State:     submit.StateProcessing,
		SessionID: "abc123",
		Tracking: &tracker.Snapshot{
			SessionID:  "abc123",
			State:      tracker.StateUpdating,
			Connected:  connected,
			Progress:   progress,
			Reconnects: reconnects,
			Session: &caverna.Session{
				ID:                     "abc123",
				CurrentStep:            step,
				Progress:               progress,
				Message:                "Processando " + step,
				EstimatedTimeRemaining: &eta,
				Steps: []caverna.Step{
					{ID: "transcribe", Name: "Transcrição", Completed: step != "transcribe"},
					{ID: "generate", Name: "Geração"},
				},
			},
		},
	}
}

func TestNewAskModel(t *testing.T) {
	m := NewAskModel("Enviando pergunta", nil, nil)

	if m.Step() != AStepProcessing {
		t.Errorf("Expected initial step to be AStepProcessing, got %v", m.Step())
	}
	if m.width != 80 || m.height != 24 {
		t.Errorf("Expected default size 80x24, got %dx%d", m.width, m.height)
	}
	if m.Init() == nil {
		t.Error("Expected Init to return a non-nil command")
	}
}

func TestAskModelRunsSubmit(t *testing.T) {
	called := false
	m := NewAskModel("Enviando", func() error {
		called = true
		return nil
	}, nil)

	// Init batches the spinner tick with the submission; run the batch
	batch, ok := m.Init()().(tea.BatchMsg)
	if !ok {
		t.Fatal("Expected Init to return a batch")
	}
	for _, cmd := range batch {
		if msg, ok := cmd().(submitDoneMsg); ok && msg.err != nil {
			t.Errorf("Unexpected submit error: %v", msg.err)
		}
	}
	if !called {
		t.Error("Expected the submit function to be called")
	}
}

func TestAskModelUploadStages(t *testing.T) {
	m := NewAskModel("Enviando", nil, nil)

	for _, s := range []caverna.UploadProgress{
		{Stage: caverna.StageUploading, Progress: 10, Message: "Enviando arquivo..."},
		{Stage: caverna.StageTranscribing, Progress: 40, Message: "Transcrevendo áudio..."},
		{Stage: caverna.StageTranscribing, Progress: 40, Message: "Transcrevendo áudio..."},
	} {
		m = update(t, m, SnapshotMsg{Snapshot: submit.Snapshot{State: submit.StateProcessing, Upload: s}})
	}

	if m.FeedLen() != 2 {
		t.Errorf("Expected 2 feed entries for 2 distinct stages, got %d", m.FeedLen())
	}
	if m.percent() != 40 {
		t.Errorf("Expected 40%%, got %d", m.percent())
	}
	if !strings.Contains(m.View(), "Transcrevendo") {
		t.Error("Expected the current stage message in the view")
	}
}

func TestAskModelTracking(t *testing.T) {
	m := NewAskModel("Enviando", nil, nil)

	m = update(t, m, SnapshotMsg{Snapshot: trackingSnapshot("transcribe", 30, true, 0)})
	view := m.View()
	for _, want := range []string{"conectado", "Transcrição", "Restante: 12s"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected view to contain %q", want)
		}
	}

	m = update(t, m, SnapshotMsg{Snapshot: trackingSnapshot("transcribe", 30, false, 1)})
	if !strings.Contains(m.View(), "reconectando") {
		t.Error("Expected the reconnecting badge after a dropped connection")
	}

	before := m.FeedLen()
	m = update(t, m, SnapshotMsg{Snapshot: trackingSnapshot("generate", 70, true, 0)})
	if m.FeedLen() <= before {
		t.Error("Expected new feed entries for the step change")
	}
	if m.percent() != 70 {
		t.Errorf("Expected 70%%, got %d", m.percent())
	}
}

func TestAskModelKeepsUploadProgressUntilSession(t *testing.T) {
	m := NewAskModel("Enviando", nil, nil)
	upload := caverna.UploadProgress{Stage: caverna.StageUploading, Progress: 10, Message: "Enviando arquivo..."}

	m = update(t, m, SnapshotMsg{Snapshot: submit.Snapshot{State: submit.StateProcessing, Upload: upload}})
	m = update(t, m, SnapshotMsg{Snapshot: submit.Snapshot{
		State:     submit.StateProcessing,
		SessionID: "abc123",
		Upload:    upload,
		Tracking:  &tracker.Snapshot{SessionID: "abc123", State: tracker.StateConnecting},
	}})
	if m.percent() != 10 {
		t.Errorf("Expected the bar to stay at 10%% before the first session, got %d", m.percent())
	}

	snap := trackingSnapshot("transcribe", 5, true, 0)
	snap.Upload = upload
	m = update(t, m, SnapshotMsg{Snapshot: snap})
	if m.percent() != 5 {
		t.Errorf("Expected the server progress once a session arrives, got %d", m.percent())
	}
}

func TestAskModelCompletes(t *testing.T) {
	m := NewAskModel("Enviando", nil, nil)
	m = update(t, m, SnapshotMsg{Snapshot: submit.Snapshot{State: submit.StateProcessing}})
	m = update(t, m, SnapshotMsg{Snapshot: submit.Snapshot{State: submit.StateCompleted, Result: answer()}})

	if m.Step() != AStepComplete {
		t.Fatalf("Expected AStepComplete, got %v", m.Step())
	}
	if m.Result() == nil || m.Result().Response != "Comece agora, guerreiro." {
		t.Error("Expected the result to be kept")
	}

	m = update(t, m, key("d"))
	if !m.ShowDetails() {
		t.Error("Expected d to show details")
	}
	m = update(t, m, key("d"))
	if m.ShowDetails() {
		t.Error("Expected a second d to hide details")
	}

	next, cmd := m.Update(key("n"))
	m = next.(AskModel)
	if !m.AskAgain() || cmd == nil {
		t.Error("Expected n to quit asking for a new question")
	}
}

func TestAskModelCopy(t *testing.T) {
	m := NewAskModel("Enviando", nil, nil)
	m = update(t, m, SnapshotMsg{Snapshot: submit.Snapshot{State: submit.StateCompleted, Result: answer()}})

	_, cmd := m.Update(key("c"))
	if cmd == nil {
		t.Fatal("Expected c to return a copy command")
	}

	m = update(t, m, copiedMsg{err: errors.New("no clipboard")})
	if m.noticeKind != NoticeError || m.notice != "no clipboard" {
		t.Errorf("Expected the copy error as a notice, got %q", m.notice)
	}
	m = update(t, m, copiedMsg{})
	if m.noticeKind != NoticeSuccess {
		t.Error("Expected a success notice after copying")
	}
}

func TestAskModelError(t *testing.T) {
	m := NewAskModel("Enviando", nil, nil)
	m = update(t, m, SnapshotMsg{Snapshot: submit.Snapshot{State: submit.StateError, Error: "falha na transcrição"}})

	if m.Step() != AStepError {
		t.Fatalf("Expected AStepError, got %v", m.Step())
	}
	if !strings.Contains(m.View(), "falha na transcrição") {
		t.Error("Expected the error detail in the view")
	}
}

func TestAskModelPreconditionError(t *testing.T) {
	m := NewAskModel("Enviando", nil, nil)
	m = update(t, m, submitDoneMsg{err: submit.ErrConsentRequired})
	if m.Step() != AStepError || m.ErrorMessage() != submit.ErrConsentRequired.Error() {
		t.Errorf("Expected the precondition error, got step %v %q", m.Step(), m.ErrorMessage())
	}

	m = NewAskModel("Enviando", nil, nil)
	m = update(t, m, submitDoneMsg{err: context.Canceled})
	if m.Step() != AStepProcessing {
		t.Error("Expected cancellation to be left to snapshots")
	}
}

func TestAskModelCancel(t *testing.T) {
	c := &fakeCanceller{}
	m := NewAskModel("Enviando", nil, c)
	m = update(t, m, SnapshotMsg{Snapshot: submit.Snapshot{State: submit.StateProcessing}})

	_, cmd := m.Update(key("esc"))
	if cmd == nil {
		t.Fatal("Expected esc to return a cancel command")
	}
	cmd()
	if c.calls != 1 {
		t.Errorf("Expected esc to cancel once, got %d", c.calls)
	}

	m = update(t, m, NoticeMsg{Kind: NoticeInfo, Text: submit.MsgProcessingStopped})
	m = update(t, m, SnapshotMsg{Snapshot: submit.Snapshot{State: submit.StateIdle}})
	if m.Step() != AStepCancelled {
		t.Fatalf("Expected AStepCancelled, got %v", m.Step())
	}
	if !strings.Contains(m.View(), submit.MsgProcessingStopped) {
		t.Error("Expected the cancellation message in the view")
	}

	// esc on the cancelled screen leaves, it does not cancel again
	m = update(t, m, key("esc"))
	if c.calls != 1 || !m.IsQuitting() {
		t.Error("Expected esc to quit without cancelling again")
	}
}

func TestAskModelCtrlC(t *testing.T) {
	c := &fakeCanceller{}
	m := NewAskModel("Enviando", nil, c)

	next, cmd := m.Update(key("ctrl+c"))
	m = next.(AskModel)
	if !m.IsQuitting() || cmd == nil {
		t.Error("Expected ctrl+c to quit")
	}
	if c.calls != 0 {
		t.Error("Expected ctrl+c to leave cancelling to the caller")
	}
	if m.View() != "" {
		t.Error("Expected an empty view after quitting")
	}
}

func TestAskModelWindowResize(t *testing.T) {
	m := NewAskModel("Enviando", nil, nil)
	m = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})

	if m.width != 120 || m.height != 40 {
		t.Errorf("Expected 120x40, got %dx%d", m.width, m.height)
	}
	if m.progress.Width != 100 {
		t.Errorf("Expected progress width 100, got %d", m.progress.Width)
	}
}
