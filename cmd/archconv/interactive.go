package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/archconv/archconv/internal/engine"
	"golang.org/x/term"
)

type interactiveCtxKeyType struct{}

var interactiveCtxKey = interactiveCtxKeyType{}

// isInteractiveEnvironment reports whether progress can be redrawn in place. Progress
// goes to stderr so stdout stays usable for archives.
func isInteractiveEnvironment() bool {
	if os.Getenv("CI") != "" {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func withInteractive(ctx context.Context, interactive bool) context.Context {
	return context.WithValue(ctx, interactiveCtxKey, interactive)
}

func isInteractive(ctx context.Context) bool {
	interactive, ok := ctx.Value(interactiveCtxKey).(bool)
	if !ok {
		return false
	}
	return interactive
}

// progressLine redraws a single status line per conversion.
type progressLine struct {
	mu    sync.Mutex
	w     io.Writer
	width int
}

func newProgressLine(w io.Writer) *progressLine {
	width := 80
	if cols, _, err := term.GetSize(int(os.Stderr.Fd())); err == nil && cols > 0 {
		width = cols
	}
	return &progressLine{w: w, width: width}
}

func (p *progressLine) report(label string, progress engine.Progress) {
	line := fmt.Sprintf("%s: %d entries, %s", label, progress.Processed, formatBytes(progress.BytesRead))
	if progress.Total > 0 {
		line += fmt.Sprintf(" (%.0f%%)", progress.Ratio*100)
	}
	if len(line) > p.width-1 {
		line = line[:p.width-1]
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "\r\033[K%s", line)
}

func (p *progressLine) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.w, "\r\033[K")
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
