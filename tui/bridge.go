package tui

import (
	"sync"

	"capitao/submit"

	tea "github.com/charmbracelet/bubbletea"
)

// SnapshotMsg carries a controller state change into the program
type SnapshotMsg struct {
	Snapshot submit.Snapshot
}

// NoticeMsg carries a user-facing message into the program
type NoticeMsg struct {
	Kind NoticeKind
	Text string
}

// Bridge forwards controller callbacks to whichever program is attached.
// It implements submit.Notifier; pass OnChange to submit.OnChange.
type Bridge struct {
	mu      sync.Mutex
	program *tea.Program
}

// Attach routes messages to p; nil detaches
func (b *Bridge) Attach(p *tea.Program) {
	b.mu.Lock()
	b.program = p
	b.mu.Unlock()
}

// Send delivers msg to the attached program, if any
func (b *Bridge) Send(msg tea.Msg) {
	b.mu.Lock()
	p := b.program
	b.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// OnChange forwards a controller snapshot
func (b *Bridge) OnChange(s submit.Snapshot) {
	b.Send(SnapshotMsg{Snapshot: s})
}

func (b *Bridge) Success(message string) { b.Send(NoticeMsg{Kind: NoticeSuccess, Text: message}) }
func (b *Bridge) Info(message string)    { b.Send(NoticeMsg{Kind: NoticeInfo, Text: message}) }
func (b *Bridge) Error(message string)   { b.Send(NoticeMsg{Kind: NoticeError, Text: message}) }
