package stylepipe

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yacobolo/stylepipe/internal/stylepipe"
)

// OutputFormat selects how a build summary is written
type OutputFormat string

const (
	// OutputText is a short colored summary (default)
	OutputText OutputFormat = "text"
	// OutputJSON is machine-readable JSON
	OutputJSON OutputFormat = "json"
	// OutputNone writes nothing (exit code only)
	OutputNone OutputFormat = "none"
)

// DetermineOutputFormat selects the output format from flags
func DetermineOutputFormat(formatFlag string, quiet bool) OutputFormat {
	// Explicit --quiet wins
	if quiet {
		return OutputNone
	}

	switch formatFlag {
	case "json":
		return OutputJSON
	case "none":
		return OutputNone
	default:
		// Empty or unknown: fall back to text
		return OutputText
	}
}

// WriteOutput writes the summary of a run. err is the fatal error returned by
// the run, if any; result may be nil when the run never started.
func WriteOutput(w io.Writer, result *Result, err error, format OutputFormat, useColors bool) error {
	switch format {
	case OutputNone:
		return nil
	case OutputJSON:
		return WriteJSON(w, result, err)
	default:
		writeText(w, result, err, useColors)
		return nil
	}
}

func writeText(w io.Writer, result *Result, err error, useColors bool) {
	if err != nil {
		fmt.Fprintf(w, "%s %s\n", stylepipe.RenderStyle(stylepipe.StyleRed, "✗", useColors), err)
		return
	}
	if result == nil {
		return
	}

	for _, path := range result.Written {
		fmt.Fprintf(w, "  %s\n", stylepipe.RenderStyle(stylepipe.StyleCyan, displayPath(path), useColors))
	}

	duration := stylepipe.RenderStyle(stylepipe.StyleGray, fmt.Sprintf("(%s)", result.Duration.Round(time.Millisecond)), useColors)
	written := pluralize(len(result.Written), "file", "files")
	if result.OK() {
		mark := stylepipe.RenderStyle(stylepipe.StyleGreen, "✓", useColors)
		fmt.Fprintf(w, "%s %s: %s written %s\n", mark, result.Preprocessor, written, duration)
		return
	}

	mark := stylepipe.RenderStyle(stylepipe.StyleYellow, "⚠", useColors)
	fmt.Fprintf(w, "%s %s: %s written, %s %s\n", mark, result.Preprocessor, written,
		pluralize(len(result.Errors), "error", "errors"), duration)
}

// displayPath shortens path relative to the working directory when possible
func displayPath(path string) string {
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	if rel, err := filepath.Rel(wd, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	return fmt.Sprintf("%d %s", n, plural)
}
