// Package ui provides terminal output helpers for ragctl.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

var (
	out    io.Writer = os.Stdout
	errOut io.Writer = os.Stderr
)

// SetOutput redirects regular output to w.
func SetOutput(w io.Writer) {
	out = w
}

// Init applies the global color setting.
func Init(noColor bool) {
	if noColor {
		color.NoColor = true
	}
}

// Success prints a success message.
func Success(format string, args ...interface{}) {
	color.New(color.FgGreen).Fprintf(out, "✓ %s\n", fmt.Sprintf(format, args...))
}

// Error prints an error message to stderr.
func Error(format string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(errOut, "✗ %s\n", fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func Warning(format string, args ...interface{}) {
	color.New(color.FgYellow).Fprintf(out, "⚠ %s\n", fmt.Sprintf(format, args...))
}

// Info prints an informational message.
func Info(format string, args ...interface{}) {
	color.New(color.FgCyan).Fprintf(out, "ℹ %s\n", fmt.Sprintf(format, args...))
}

// Section prints a section header.
func Section(title string) {
	color.New(color.FgMagenta, color.Bold).Fprintf(out, "\n━━━ %s ━━━\n", strings.ToUpper(title))
}

// Table prints rows as aligned columns under a bold header.
func Table(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len([]rune(h))
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len([]rune(cell)) > widths[i] {
				widths[i] = len([]rune(cell))
			}
		}
	}

	header := color.New(color.FgCyan, color.Bold)
	for i, h := range headers {
		header.Fprint(out, pad(h, widths[i]))
		fmt.Fprint(out, "  ")
	}
	fmt.Fprintln(out)

	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				break
			}
			fmt.Fprint(out, pad(cell, widths[i]), "  ")
		}
		fmt.Fprintln(out)
	}
}

func pad(s string, width int) string {
	n := width - len([]rune(s))
	if n <= 0 {
		return s
	}
	return s + strings.Repeat(" ", n)
}

// FormatDuration renders d rounded for humans.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return d.Round(time.Second).String()
	}
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
