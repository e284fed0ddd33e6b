// Package tui provides the terminal UI for capitao using Charm libraries
package tui

import (
	"fmt"
	"strings"

	"capitao/caverna"

	"github.com/charmbracelet/lipgloss"
)

// Color palette - cave reds and warm stone greys
var (
	ColorPrimary   = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"} // Cave red
	ColorSecondary = lipgloss.AdaptiveColor{Light: "#0E7490", Dark: "#22D3EE"} // Cyan
	ColorAccent    = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"} // Torch amber

	ColorSuccess = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}
	ColorError   = lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#F87171"}
	ColorInfo    = lipgloss.AdaptiveColor{Light: "#4F46E5", Dark: "#818CF8"}

	ColorText   = lipgloss.AdaptiveColor{Light: "#1C1917", Dark: "#F5F5F4"}
	ColorSubtle = lipgloss.AdaptiveColor{Light: "#57534E", Dark: "#A8A29E"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#A8A29E", Dark: "#78716C"}
	ColorBorder = lipgloss.AdaptiveColor{Light: "#D6D3D1", Dark: "#44403C"}
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			MarginBottom(1)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(ColorSecondary)

	BodyStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	SuccessStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorSuccess)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorError)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	InfoStyle = lipgloss.NewStyle().
			Foreground(ColorInfo)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(1, 2)

	ErrorBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorError).
			Padding(1, 2)

	BadgeSuccessStyle = lipgloss.NewStyle().
				Padding(0, 1).
				Background(ColorSuccess).
				Foreground(lipgloss.Color("#FFFFFF"))

	BadgeWarningStyle = lipgloss.NewStyle().
				Padding(0, 1).
				Background(ColorWarning).
				Foreground(lipgloss.Color("#000000"))

	BadgeErrorStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Background(ColorError).
			Foreground(lipgloss.Color("#FFFFFF"))
)

// CaveHeader is the banner shown above every screen
var CaveHeader = `
   ___   _   ___ ___ _____ _   ___
  / __| /_\ | _ \_ _|_   _/_\ / _ \
 | (__ / _ \|  _/| |  | |/ _ \ (_) |
  \___/_/ \_\_| |___| |_/_/ \_\___/
`

// Header returns the styled banner
func Header() string {
	return lipgloss.NewStyle().
		Foreground(ColorPrimary).
		Bold(true).
		Render(CaveHeader)
}

// StepIcon renders the status icon of a processing step
func StepIcon(status caverna.StepStatus) string {
	switch status {
	case caverna.StepCompleted:
		return lipgloss.NewStyle().Foreground(ColorSuccess).Render("[x]")
	case caverna.StepProcessing:
		return lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true).Render("[>]")
	case caverna.StepFailed:
		return lipgloss.NewStyle().Foreground(ColorError).Render("[!]")
	default:
		return lipgloss.NewStyle().Foreground(ColorMuted).Render("[ ]")
	}
}

// StepList renders the server's steps, one per line
func StepList(steps []caverna.Step, currentStep string) string {
	if len(steps) == 0 {
		return ""
	}
	lines := make([]string, 0, len(steps))
	for _, step := range steps {
		status := step.Status(currentStep)
		name := step.Name
		if name == "" {
			name = step.ID
		}

		style := MutedStyle
		switch status {
		case caverna.StepProcessing:
			style = lipgloss.NewStyle().Foreground(ColorText).Bold(true)
		case caverna.StepCompleted:
			style = lipgloss.NewStyle().Foreground(ColorSuccess)
		case caverna.StepFailed:
			style = lipgloss.NewStyle().Foreground(ColorError)
		}

		line := StepIcon(status) + " " + style.Render(name)
		if status == caverna.StepProcessing && step.Progress > 0 {
			line += MutedStyle.Render(fmt.Sprintf(" %d%%", step.Progress))
		}
		if step.Error != "" {
			line += " " + ErrorStyle.Render("- "+step.Error)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// ConnectionBadge shows whether the push stream is up
func ConnectionBadge(connected, reconnecting bool) string {
	switch {
	case connected:
		return BadgeSuccessStyle.Render("conectado")
	case reconnecting:
		return BadgeWarningStyle.Render("reconectando")
	default:
		return BadgeErrorStyle.Render("desconectado")
	}
}

// Card renders a titled box
func Card(title, content string, width int) string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary).
		MarginBottom(1)

	cardStyle := BoxStyle.Width(width)
	return cardStyle.Render(titleStyle.Render(title) + "\n" + BodyStyle.Render(content))
}

// Key is one entry of the help line
type Key struct {
	Key  string
	Desc string
}

// KeyHelp renders keyboard shortcut help in the given order
func KeyHelp(keys ...Key) string {
	keyStyle := lipgloss.NewStyle().
		Foreground(ColorSubtle).
		Bold(true)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, keyStyle.Render(k.Key)+MutedStyle.Render(" "+k.Desc))
	}

	sep := lipgloss.NewStyle().Foreground(ColorBorder).Render(" | ")
	return lipgloss.NewStyle().MarginTop(1).Render(strings.Join(parts, sep))
}

// NoticeKind is the severity of a toast line
type NoticeKind int

const (
	NoticeInfo NoticeKind = iota
	NoticeSuccess
	NoticeError
)

// Notice renders a one-line toast
func Notice(kind NoticeKind, text string) string {
	if text == "" {
		return ""
	}
	switch kind {
	case NoticeSuccess:
		return SuccessStyle.Render("✓ " + text)
	case NoticeError:
		return ErrorStyle.Render("✗ " + text)
	default:
		return InfoStyle.Render("• " + text)
	}
}
