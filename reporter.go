package main

import (
	"fmt"
	"io"
	"sync"

	"capitao/present"
	"capitao/submit"
	"capitao/tui"
)

// lineReporter prints one line per visible change, for pipes and --no-tui.
// It implements submit.Notifier.
type lineReporter struct {
	mu sync.Mutex
	w  io.Writer

	lastLine       string
	lastReconnects int
	connected      bool
}

func newLineReporter(w io.Writer) *lineReporter {
	return &lineReporter{w: w}
}

func (r *lineReporter) Success(message string) {
	r.print(tui.SuccessStyle.Render("✓ " + message))
}

func (r *lineReporter) Info(message string) {
	r.print(tui.InfoStyle.Render("• " + message))
}

func (r *lineReporter) Error(message string) {
	r.print(tui.ErrorStyle.Render("✗ " + message))
}

func (r *lineReporter) print(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, line)
}

// OnChange prints stage, step and connectivity changes
func (r *lineReporter) OnChange(s submit.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t := s.Tracking; t != nil {
		if t.Reconnects > r.lastReconnects {
			fmt.Fprintln(r.w, tui.WarningStyle.Render(fmt.Sprintf("~ conexão perdida, reconectando (tentativa %d)", t.Reconnects)))
		} else if t.Connected && !r.connected {
			fmt.Fprintln(r.w, tui.MutedStyle.Render("~ conectado ao servidor"))
		}
		r.lastReconnects = t.Reconnects
		r.connected = t.Connected

		if sess := t.Session; sess != nil {
			line := progressLine(t.Progress, sess.Message)
			if sess.EstimatedTimeRemaining != nil {
				line += tui.MutedStyle.Render(" (restante " + present.FormatETA(*sess.EstimatedTimeRemaining) + ")")
			}
			r.printChanged(line)
		}
		return
	}

	if s.Upload.Message != "" {
		r.printChanged(progressLine(s.Upload.Progress, s.Upload.Message))
	}
}

func (r *lineReporter) printChanged(line string) {
	if line == r.lastLine {
		return
	}
	r.lastLine = line
	fmt.Fprintln(r.w, line)
}

func progressLine(progress int, message string) string {
	if message == "" {
		message = "Processando..."
	}
	return fmt.Sprintf("[%3d%%] %s", progress, message)
}
