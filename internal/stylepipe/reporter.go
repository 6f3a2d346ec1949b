package stylepipe

import (
	"io"
	"os"
	"strings"
	"sync"
)

// bell is the alert emitted after every reported error
const bell = "\a"

// ErrorReporter writes one line per recovered build error and rings the bell.
// It never aborts the caller; a watch session keeps running after a report.
type ErrorReporter struct {
	mu        sync.Mutex
	w         io.Writer
	useColors bool
	beep      bool
	count     int
}

// NewErrorReporter creates a reporter writing to w (os.Stderr when nil)
func NewErrorReporter(w io.Writer, useColors, beep bool) *ErrorReporter {
	if w == nil {
		w = os.Stderr
	}
	return &ErrorReporter{w: w, useColors: useColors, beep: beep}
}

// ShouldUseColors determines if colors should be enabled for w
func ShouldUseColors(force bool, w io.Writer) bool {
	// Explicit flag wins
	if force {
		return true
	}

	// Check for FORCE_COLOR environment variable (GitHub Actions, etc.)
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}

	// GitHub Actions supports colors
	if os.Getenv("GITHUB_ACTIONS") == "true" {
		return true
	}

	// Auto-detect TTY
	if f, ok := w.(*os.File); ok {
		if fileInfo, err := f.Stat(); err == nil && (fileInfo.Mode()&os.ModeCharDevice) != 0 {
			return true
		}
	}

	return false
}

// Report formats err as a single line: "[plugin] file: message"
func (r *ErrorReporter) Report(err *BuildError) {
	if err == nil {
		return
	}

	var line strings.Builder
	line.WriteString(RenderStyle(StyleRed, "["+err.Plugin+"]", r.useColors))
	line.WriteString(" ")
	if err.File != "" {
		line.WriteString(RenderStyle(StyleCyan, err.File+":", r.useColors))
		line.WriteString(" ")
	}
	line.WriteString(singleLine(err.Message))
	line.WriteString("\n")
	if r.beep {
		line.WriteString(bell)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
	// write errors are ignored
	_, _ = io.WriteString(r.w, line.String())
}

// Count returns the number of errors reported so far
func (r *ErrorReporter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// singleLine collapses a multi-line compiler message into one line
func singleLine(msg string) string {
	lines := strings.Split(strings.ReplaceAll(msg, "\r\n", "\n"), "\n")
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		if t := strings.Join(strings.Fields(l), " "); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return "unknown error"
	}
	return strings.Join(parts, " | ")
}
