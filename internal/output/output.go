// Package output provides consistent CLI output formatting. Styling is
// applied only when writing to a terminal; piped output stays plain so
// results compose with grep and friends.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	locationStyle = lipgloss.NewStyle().Bold(true)
	scoreStyle    = lipgloss.NewStyle().Faint(true)
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
)

// Writer provides formatted output for CLI commands.
type Writer struct {
	out      io.Writer
	useColor bool
}

// New creates a Writer. Color is enabled when out is a terminal and
// NO_COLOR is unset.
func New(out io.Writer) *Writer {
	return &Writer{out: out, useColor: detectColor(out)}
}

func detectColor(out io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (w *Writer) style(s lipgloss.Style, msg string) string {
	if !w.useColor {
		return msg
	}
	return s.Render(msg)
}

// Println writes a plain line.
func (w *Writer) Println(msg string) {
	_, _ = fmt.Fprintln(w.out, msg)
}

// Printf writes a formatted plain line.
func (w *Writer) Printf(format string, args ...any) {
	w.Println(fmt.Sprintf(format, args...))
}

// Header writes an emphasized section line.
func (w *Writer) Header(msg string) {
	_, _ = fmt.Fprintln(w.out, w.style(headerStyle, msg))
}

// Success writes a success line.
func (w *Writer) Success(msg string) {
	_, _ = fmt.Fprintf(w.out, "%s %s\n", w.style(successStyle, "ok"), msg)
}

// Successf writes a formatted success line.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning writes a warning line.
func (w *Writer) Warning(msg string) {
	_, _ = fmt.Fprintf(w.out, "%s %s\n", w.style(warningStyle, "warning:"), msg)
}

// Warningf writes a formatted warning line.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error writes an error line.
func (w *Writer) Error(msg string) {
	_, _ = fmt.Fprintf(w.out, "%s %s\n", w.style(errorStyle, "error:"), msg)
}

// Errorf writes a formatted error line.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Result writes one search hit: rank, location, score, then an indented
// snippet of the first lines.
func (w *Writer) Result(rank int, location string, score float64, text string, snippetLines int) {
	_, _ = fmt.Fprintf(w.out, "%d. %s %s\n",
		rank,
		w.style(locationStyle, location),
		w.style(scoreStyle, fmt.Sprintf("(score: %.3f)", score)),
	)
	for _, line := range snippet(text, snippetLines) {
		_, _ = fmt.Fprintf(w.out, "   %s\n", line)
	}
}

// Field writes an aligned key/value line for status output.
func (w *Writer) Field(key, value string) {
	_, _ = fmt.Fprintf(w.out, "  %-12s %s\n", key+":", value)
}

// Newline writes an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// snippet returns the first n non-trailing-blank lines of text.
func snippet(text string, n int) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
