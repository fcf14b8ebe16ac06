package main

import (
	"fmt"
	"io"
	"time"

	"github.com/archconv/archconv/internal/engine"
	"github.com/fatih/color"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed, color.Bold)
	dimColor  = color.New(color.Faint)
)

// printResult writes a human readable summary of one transcode to w.
func printResult(w io.Writer, label string, result engine.Result) {
	switch result.Status {
	case engine.StatusCompleted:
		okColor.Fprint(w, "✓ ")
	case engine.StatusCancelled:
		warnColor.Fprint(w, "◌ ")
	default:
		failColor.Fprint(w, "✗ ")
	}

	fmt.Fprintf(w, "%s", label)
	if result.SourceFormat != engine.FormatUnknown {
		dimColor.Fprintf(w, " (%s → %s)", result.SourceFormat, result.Format)
	}
	fmt.Fprintf(w, ": %d copied, %d skipped", result.Copied, result.Skipped)
	if result.Copied > 0 {
		fmt.Fprintf(w, ", %s", formatBytes(result.BytesCopied))
	}
	if !result.Finished.IsZero() {
		dimColor.Fprintf(w, " in %s", result.Duration().Round(time.Millisecond))
	}
	fmt.Fprintln(w)

	for _, er := range result.SkippedEntries() {
		warnColor.Fprintf(w, "  skipped %s", er.Path)
		fmt.Fprintf(w, ": %s\n", er.Reason)
	}
	for _, er := range result.CopiedEntries() {
		for _, d := range er.Diagnostics {
			dimColor.Fprintf(w, "  %s: %s\n", er.Path, d)
		}
	}

	switch result.Status {
	case engine.StatusCancelled:
		warnColor.Fprintf(w, "  cancelled: %v\n", result.Err)
	case engine.StatusFailed:
		failColor.Fprintf(w, "  error: %v\n", result.Err)
	}
}
