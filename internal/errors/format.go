package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
)

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
	ansiCyan   = "\033[36m"
	ansiGray   = "\033[90m"

	// detailWidth is the column at which Detail text wraps.
	detailWidth = 72
)

var plain atomic.Bool

// DisableColors turns off ANSI escapes in Format and PrintError.
func DisableColors() { plain.Store(true) }

// EnableColors turns ANSI escapes back on.
func EnableColors() { plain.Store(false) }

func paint(text string, codes ...string) string {
	if plain.Load() || len(codes) == 0 {
		return text
	}
	return strings.Join(codes, "") + text + ansiReset
}

// Format renders the error for a terminal: a header, the source excerpt
// when a location is known, then cause, detail, hint and docs link.
func (e *CodedError) Format() string {
	var b strings.Builder
	b.WriteByte('\n')

	label := "ERROR: "
	if e.Code != "" {
		label = "ERROR " + e.Code + ": "
	}
	b.WriteString(paint(label, ansiBold, ansiRed))
	b.WriteString(e.Message)
	b.WriteString("\n\n")

	if e.Location != nil {
		fmt.Fprintf(&b, "  %s\n\n", paint(e.Location.String(), ansiCyan))
		if len(e.Context) > 0 {
			e.writeExcerpt(&b)
			b.WriteByte('\n')
		}
	}

	if e.Wrapped != nil {
		fmt.Fprintf(&b, "  %s%s\n\n", paint("Cause: ", ansiYellow), e.Wrapped.Error())
	}
	if e.Detail != "" {
		for _, line := range wrapText(e.Detail, detailWidth) {
			fmt.Fprintf(&b, "  %s\n", line)
		}
		b.WriteByte('\n')
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&b, "  %s%s\n\n", paint("Hint: ", ansiCyan), e.Suggestion)
	}
	if e.DocURL != "" {
		fmt.Fprintf(&b, "  %s%s\n", paint("Learn more: ", ansiGray), paint(e.DocURL, ansiBlue))
	}
	return b.String()
}

// writeExcerpt prints the context lines with numbers, marking the error
// line with an arrow and the column with a caret.
func (e *CodedError) writeExcerpt(b *strings.Builder) {
	first := max(e.Location.Line-contextRadius, 1)
	bar := paint(" │ ", ansiGray)
	for i, text := range e.Context {
		n := first + i
		marker := "  "
		if n == e.Location.Line {
			marker = paint("→ ", ansiRed)
		}
		fmt.Fprintf(b, "  %s%4d%s%s\n", marker, n, bar, text)
		if n == e.Location.Line && e.Location.Column > 0 {
			fmt.Fprintf(b, "        %s%s\n", paint("│ ", ansiGray), strings.Repeat(" ", e.Location.Column-1)+paint("^", ansiRed))
		}
	}
}

// FormatCompact renders the error on one line, prefixed with its location.
func (e *CodedError) FormatCompact() string {
	var parts []string
	if e.Location != nil {
		parts = append(parts, e.Location.String())
	}
	if e.Code != "" {
		parts = append(parts, e.Code)
	}
	parts = append(parts, e.Message)
	return strings.Join(parts, ": ")
}

type jsonLocation struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

type jsonError struct {
	Code       string        `json:"code,omitempty"`
	Category   Category      `json:"category"`
	Message    string        `json:"message"`
	Detail     string        `json:"detail,omitempty"`
	Location   *jsonLocation `json:"location,omitempty"`
	Cause      string        `json:"cause,omitempty"`
	Suggestion string        `json:"suggestion,omitempty"`
	DocURL     string        `json:"docUrl,omitempty"`
}

// FormatJSON renders the error as a single JSON object.
func (e *CodedError) FormatJSON() string {
	out := jsonError{
		Code:       e.Code,
		Category:   e.Category,
		Message:    e.Message,
		Detail:     e.Detail,
		Suggestion: e.Suggestion,
		DocURL:     e.DocURL,
	}
	if e.Location != nil {
		out.Location = &jsonLocation{File: e.Location.File, Line: e.Location.Line, Column: e.Location.Column}
	}
	if e.Wrapped != nil {
		out.Cause = e.Wrapped.Error()
	}
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Sprintf(`{"message":%q}`, e.Error())
	}
	return string(data)
}

// wrapText breaks text into lines of at most width runes where word
// boundaries allow.
func wrapText(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	lines := make([]string, 0, len(text)/width+1)
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) > width {
			lines = append(lines, line)
			line = w
			continue
		}
		line += " " + w
	}
	return append(lines, line)
}

// PrintError writes err to stderr, formatted when it is a *CodedError.
func PrintError(err error) {
	fprintError(os.Stderr, err)
}

func fprintError(w io.Writer, err error) {
	var ce *CodedError
	if stderrors.As(err, &ce) {
		io.WriteString(w, ce.Format())
		return
	}
	fmt.Fprintf(w, "\n%s%s\n\n", paint("ERROR: ", ansiBold, ansiRed), err)
}
