// Package terminal provides styled terminal output for herald's reports.
// No TUI framework - just print and style.
package terminal

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Writer provides styled terminal output.
type Writer struct {
	out   io.Writer
	color bool
	mu    sync.Mutex

	errorStyle   lipgloss.Style
	warnStyle    lipgloss.Style
	successStyle lipgloss.Style
	dimStyle     lipgloss.Style
	boldStyle    lipgloss.Style
	headerStyle  lipgloss.Style
}

// New creates a terminal Writer on stdout, with color when stdout is a TTY.
func New() *Writer {
	color := term.IsTerminal(int(os.Stdout.Fd()))
	return NewWithOutput(os.Stdout, color)
}

// NewWithOutput creates a terminal Writer with a custom destination.
func NewWithOutput(out io.Writer, color bool) *Writer {
	// lipgloss consults the termenv profile for AdaptiveColor
	_ = termenv.ColorProfile()

	return &Writer{
		out:   out,
		color: color,

		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#D00000", Dark: "#FF5555"}).
			Bold(true),

		warnStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#B8860B", Dark: "#FFAA00"}),

		successStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#008000", Dark: "#55FF55"}),

		dimStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#888888"}),

		boldStyle: lipgloss.NewStyle().Bold(true),

		headerStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#333333", Dark: "#FFFFFF"}).
			Bold(true).
			Underline(true),
	}
}

func (w *Writer) render(style lipgloss.Style, s string) string {
	if !w.color {
		return s
	}
	return style.Render(s)
}

func (w *Writer) println(s string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintln(w.out, s)
}

// Printf writes unstyled output.
func (w *Writer) Printf(format string, args ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.out, format, args...)
}

// Success writes a green line.
func (w *Writer) Success(format string, args ...any) {
	w.println(w.render(w.successStyle, fmt.Sprintf(format, args...)))
}

// Warn writes a yellow line.
func (w *Writer) Warn(format string, args ...any) {
	w.println(w.render(w.warnStyle, fmt.Sprintf(format, args...)))
}

// Error writes a red line.
func (w *Writer) Error(format string, args ...any) {
	w.println(w.render(w.errorStyle, fmt.Sprintf(format, args...)))
}

// Dim writes a dimmed line for secondary content.
func (w *Writer) Dim(format string, args ...any) {
	w.println(w.render(w.dimStyle, fmt.Sprintf(format, args...)))
}

// Header writes a bold underlined section header.
func (w *Writer) Header(format string, args ...any) {
	w.println(w.render(w.headerStyle, fmt.Sprintf(format, args...)))
}

// Table writes rows under a bold header row, columns padded to fit.
func (w *Writer) Table(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	for i, h := range headers {
		if i > 0 {
			b.WriteString("  ")
		}
		b.WriteString(pad(h, widths[i]))
	}
	w.println(w.render(w.boldStyle, b.String()))

	for _, row := range rows {
		b.Reset()
		for i, cell := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			if i < len(widths) {
				cell = pad(cell, widths[i])
			}
			b.WriteString(cell)
		}
		w.println(b.String())
	}
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
