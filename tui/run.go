package tui

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"
)

// IsTTY reports whether stdout is a terminal
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// RunAsk runs m full screen with b attached for the duration of the program
// and returns the final model.
func RunAsk(m AskModel, b *Bridge) (AskModel, error) {
	p := tea.NewProgram(m, tea.WithAltScreen())
	b.Attach(p)
	defer b.Attach(nil)

	final, err := p.Run()
	if err != nil {
		return m, fmt.Errorf("failed to run UI: %w", err)
	}
	am, ok := final.(AskModel)
	if !ok {
		return m, fmt.Errorf("unexpected model type %T", final)
	}
	return am, nil
}
