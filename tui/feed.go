package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
)

// FeedEntryType classifies an activity feed line
type FeedEntryType string

const (
	FeedUpload    FeedEntryType = "upload"
	FeedStatus    FeedEntryType = "status"
	FeedStep      FeedEntryType = "step"
	FeedReconnect FeedEntryType = "reconnect"
	FeedError     FeedEntryType = "error"
	FeedComplete  FeedEntryType = "complete"
)

// FeedEntry is one line of the activity feed
type FeedEntry struct {
	Timestamp time.Time
	Type      FeedEntryType
	Title     string
	Detail    string
}

// ActivityFeed is a scrolling log of what happened to the submission
type ActivityFeed struct {
	Entries     []FeedEntry
	Viewport    viewport.Model
	MaxEntries  int
	Placeholder string
}

// NewActivityFeed creates a feed with the given dimensions
func NewActivityFeed(width, height int) *ActivityFeed {
	vp := viewport.New(width, height)
	f := &ActivityFeed{
		Viewport:    vp,
		MaxEntries:  100,
		Placeholder: "Aguardando o servidor...",
	}
	f.Viewport.SetContent(f.Render())
	return f
}

// Add appends an entry and scrolls to it
func (f *ActivityFeed) Add(typ FeedEntryType, title, detail string) {
	f.Entries = append(f.Entries, FeedEntry{
		Timestamp: time.Now(),
		Type:      typ,
		Title:     title,
		Detail:    detail,
	})
	if f.MaxEntries > 0 && len(f.Entries) > f.MaxEntries {
		f.Entries = f.Entries[len(f.Entries)-f.MaxEntries:]
	}
	f.Viewport.SetContent(f.Render())
	f.Viewport.GotoBottom()
}

// Len returns the number of entries
func (f *ActivityFeed) Len() int {
	return len(f.Entries)
}

// SetSize resizes the viewport
func (f *ActivityFeed) SetSize(width, height int) {
	f.Viewport.Width = width
	f.Viewport.Height = height
	f.Viewport.SetContent(f.Render())
}

// View returns the viewport view
func (f *ActivityFeed) View() string {
	return f.Viewport.View()
}

// Render renders all entries
func (f *ActivityFeed) Render() string {
	if len(f.Entries) == 0 {
		return MutedStyle.Render("  " + f.Placeholder)
	}

	lines := make([]string, 0, len(f.Entries))
	for _, e := range f.Entries {
		lines = append(lines, renderEntry(e))
	}
	return strings.Join(lines, "\n")
}

func renderEntry(e FeedEntry) string {
	icon, style := entryStyle(e.Type)
	ts := lipgloss.NewStyle().Foreground(ColorMuted).Render(e.Timestamp.Format("15:04:05"))

	line := fmt.Sprintf("%s %s %s", ts, style.Render(icon), style.Render(e.Title))
	if e.Detail != "" {
		line += " " + MutedStyle.Render("("+truncate(e.Detail, 60)+")")
	}
	return line
}

func entryStyle(t FeedEntryType) (string, lipgloss.Style) {
	switch t {
	case FeedUpload:
		return "[>]", lipgloss.NewStyle().Foreground(ColorSecondary)
	case FeedStep:
		return "[.]", lipgloss.NewStyle().Foreground(ColorAccent)
	case FeedReconnect:
		return "[~]", lipgloss.NewStyle().Foreground(ColorWarning)
	case FeedError:
		return "[!]", lipgloss.NewStyle().Foreground(ColorError)
	case FeedComplete:
		return "[x]", lipgloss.NewStyle().Foreground(ColorSuccess)
	default:
		return "[-]", lipgloss.NewStyle().Foreground(ColorPrimary)
	}
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")

	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
