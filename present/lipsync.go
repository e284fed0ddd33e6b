package present

import (
	"fmt"
	"strings"
	"time"

	"capitao/caverna"
)

// LipSyncFormat selects the subtitle flavour of the mouth-shape track
type LipSyncFormat string

const (
	LipSyncSRT LipSyncFormat = "srt"
	LipSyncVTT LipSyncFormat = "vtt"
)

// Cue is one span of a single mouth shape
type Cue struct {
	Index      int
	Start      time.Duration
	End        time.Duration
	MouthShape string
	Phonemes   []string
}

// LipSyncCues lays the phonemes end to end and merges runs that keep the
// same mouth shape. Phonemes without a duration are skipped.
func LipSyncCues(analysis caverna.PhonemeAnalysis) []Cue {
	var cues []Cue
	var current *Cue
	var at time.Duration

	for _, p := range analysis.Phonemes {
		if p.DurationMS <= 0 {
			continue
		}
		d := time.Duration(p.DurationMS) * time.Millisecond
		shape := p.MouthShape
		if shape == "" {
			shape = "rest"
		}

		if current != nil && current.MouthShape == shape {
			current.End = at + d
			current.Phonemes = append(current.Phonemes, p.Phoneme)
		} else {
			if current != nil {
				cues = append(cues, *current)
			}
			current = &Cue{
				Start:      at,
				End:        at + d,
				MouthShape: shape,
				Phonemes:   []string{p.Phoneme},
			}
		}
		at += d
	}
	if current != nil {
		cues = append(cues, *current)
	}

	for i := range cues {
		cues[i].Index = i + 1
	}
	return cues
}

func (c Cue) text() string {
	return fmt.Sprintf("%s [%s]", c.MouthShape, strings.Join(c.Phonemes, " "))
}

// FormatSRT renders cues as SubRip text
func FormatSRT(cues []Cue) string {
	var sb strings.Builder
	for i, cue := range cues {
		fmt.Fprintf(&sb, "%d\n", i+1)
		fmt.Fprintf(&sb, "%s --> %s\n", srtTimestamp(cue.Start), srtTimestamp(cue.End))
		sb.WriteString(cue.text())
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}

// FormatVTT renders cues as WebVTT, one voice per mouth shape
func FormatVTT(cues []Cue) string {
	var sb strings.Builder
	sb.WriteString("WEBVTT\n")
	sb.WriteString("Kind: metadata\n")
	sb.WriteString("Language: pt-BR\n\n")

	for i, cue := range cues {
		fmt.Fprintf(&sb, "%d\n", i+1)
		fmt.Fprintf(&sb, "%s --> %s\n", vttTimestamp(cue.Start), vttTimestamp(cue.End))
		fmt.Fprintf(&sb, "<v %s>%s</v>", cue.MouthShape, strings.Join(cue.Phonemes, " "))
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}

// FormatLipSync dispatches on format
func FormatLipSync(cues []Cue, format LipSyncFormat) (string, error) {
	switch format {
	case LipSyncSRT, "":
		return FormatSRT(cues), nil
	case LipSyncVTT:
		return FormatVTT(cues), nil
	}
	return "", fmt.Errorf("unsupported lip-sync format: %s", format)
}

// HH:MM:SS,mmm
func srtTimestamp(d time.Duration) string {
	h, m, s, ms := splitDuration(d)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// HH:MM:SS.mmm
func vttTimestamp(d time.Duration) string {
	h, m, s, ms := splitDuration(d)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

func splitDuration(d time.Duration) (h, m, s, ms int) {
	total := int(d.Milliseconds())
	h = total / 3600000
	m = (total % 3600000) / 60000
	s = (total % 60000) / 1000
	ms = total % 1000
	return
}
