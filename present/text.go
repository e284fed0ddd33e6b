// Package present renders a finished answer for people (markdown, share
// text) and for machines (JSON, YAML, lip-sync subtitles).
package present

import (
	"fmt"
	"strings"

	"capitao/capture"
	"capitao/caverna"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// ShareTags close every shared answer
const ShareTags = "#ModoCaverna #CapitaoCaverna"

// Suggested names for downloaded media
const (
	VideoDownloadName = "capitao-caverna-resposta.mp4"
	AudioDownloadName = "capitao-caverna-audio.mp3"
)

// Text renders an answer as markdown. showDetails adds the technical block
// (tokens, phonemes, mouth shapes).
func Text(resp *caverna.QuestionResponse, showDetails bool) string {
	if resp == nil {
		return ""
	}

	var sb strings.Builder

	sb.WriteString("## 🐺 Resposta do Capitão Caverna\n\n")
	if resp.FromCache {
		sb.WriteString("`Cache Hit`\n\n")
	}

	if resp.Question != "" {
		sb.WriteString("**Sua pergunta**\n\n")
		sb.WriteString(quote(resp.Question))
		sb.WriteString("\n\n")
	}

	sb.WriteString("**Resposta do Capitão**\n\n")
	sb.WriteString(quote(resp.Response))
	sb.WriteString("\n\n")

	var facts []string
	if d := resp.PhonemeAnalysis.EstimatedDurationSeconds; d > 0 {
		facts = append(facts, "Duração: "+FormatSeconds(d))
	}
	if resp.WordCount > 0 {
		facts = append(facts, fmt.Sprintf("Palavras: %d", resp.WordCount))
	}
	if resp.FromCache {
		facts = append(facts, fmt.Sprintf("Cache Hits: %d", resp.CacheHits))
		if t := resp.CachedTime(); !t.IsZero() {
			facts = append(facts, "Cached: "+t.Local().Format("15:04:05"))
		} else {
			facts = append(facts, "Cached: N/A")
		}
	}
	if len(facts) > 0 {
		sb.WriteString(strings.Join(facts, " · "))
		sb.WriteString("\n\n")
	}

	if showDetails {
		sb.WriteString("### Detalhes Técnicos\n\n")
		if resp.TokensUsed > 0 {
			fmt.Fprintf(&sb, "- Tokens: %d\n", resp.TokensUsed)
		}
		pa := resp.PhonemeAnalysis
		fmt.Fprintf(&sb, "- Fonemas: %d\n", pa.TotalPhonemes)
		if len(pa.UniqueMouthShapes) > 0 {
			fmt.Fprintf(&sb, "- Formas da boca: %s\n", strings.Join(pa.UniqueMouthShapes, ", "))
		}
		if resp.FileInfo != nil {
			fmt.Fprintf(&sb, "- Arquivo: %s (%s, %s)\n", resp.FileInfo.Name, resp.FileInfo.Type, capture.FormatSize(resp.FileInfo.Size))
		}
		if resp.VideoURL != "" {
			fmt.Fprintf(&sb, "- Vídeo: %s\n", resp.VideoURL)
		}
		if resp.AudioURL != "" {
			fmt.Fprintf(&sb, "- Áudio: %s\n", resp.AudioURL)
		}
		sb.WriteString("\n")
	}

	if t := resp.GeneratedAt(); !t.IsZero() {
		fmt.Fprintf(&sb, "_Gerado em %s_\n", t.Local().Format("02/01/2006 15:04:05"))
	}

	return strings.TrimRight(sb.String(), "\n") + "\n"
}

func quote(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}

// Render draws markdown for the terminal. It falls back to the raw text
// when glamour cannot build a renderer.
func Render(markdown string, width int) string {
	if strings.TrimSpace(markdown) == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return markdown
	}
	out, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(strings.TrimRight(out, "\n"))
}

// ShareText is the text copied when sharing an answer
func ShareText(resp *caverna.QuestionResponse) string {
	return fmt.Sprintf("Pergunta: \"%s\"\n\nResposta: \"%s\"\n\n%s", resp.Question, resp.Response, ShareTags)
}

// CopyShareText puts the share text on the system clipboard
func CopyShareText(resp *caverna.QuestionResponse) error {
	if clipboard.Unsupported {
		return fmt.Errorf("clipboard is not available on this system")
	}
	if err := clipboard.WriteAll(ShareText(resp)); err != nil {
		return fmt.Errorf("failed to copy to clipboard: %w", err)
	}
	return nil
}

// FormatETA renders a remaining-time estimate: "45s" or "2m 5s"
func FormatETA(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
}

// FormatSeconds renders a duration in seconds with one decimal
func FormatSeconds(seconds float64) string {
	return fmt.Sprintf("%.1fs", seconds)
}
