package sources

import (
	"context"
	"io"

	"github.com/archconv/archconv/internal/engine"
)

// StreamSource spools a stream such as stdin.
type StreamSource struct {
	r     io.Reader
	spool engine.SpoolConfig
}

func NewStreamSource(r io.Reader, spool engine.SpoolConfig) *StreamSource {
	return &StreamSource{r: r, spool: spool}
}

func (s *StreamSource) Name() string {
	return "stdin"
}

func (s *StreamSource) Kind() string {
	return engine.SchemeStdio
}

func (s *StreamSource) Open(ctx context.Context) (engine.Handle, error) {
	return spoolFrom(s.spool, s.r, "stdin")
}
