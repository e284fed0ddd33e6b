package present

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"capitao/caverna"

	"gopkg.in/yaml.v3"
)

// Format selects how results are written
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates an --output value
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unsupported output format %q (use text, json or yaml)", s)
}

// JSON writes v indented
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// YAML writes v as a YAML document
func YAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return enc.Close()
}

// WriteResult writes an answer in the requested format. Text is rendered
// through glamour when width > 0.
func WriteResult(w io.Writer, format Format, resp *caverna.QuestionResponse, showDetails bool, width int) error {
	switch format {
	case FormatJSON:
		return JSON(w, resp)
	case FormatYAML:
		return YAML(w, resp)
	}

	md := Text(resp, showDetails)
	if width > 0 {
		md = Render(md, width)
	}
	_, err := fmt.Fprintln(w, strings.TrimRight(md, "\n"))
	return err
}

// Write writes any value; text falls back to fmt's %v
func Write(w io.Writer, format Format, v any) error {
	switch format {
	case FormatJSON:
		return JSON(w, v)
	case FormatYAML:
		return YAML(w, v)
	}
	_, err := fmt.Fprintf(w, "%v\n", v)
	return err
}
