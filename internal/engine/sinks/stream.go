package sinks

import (
	"context"
	"fmt"
	"io"

	"github.com/archconv/archconv/internal/engine"
)

// StreamSink delivers archives to a writer such as stdout. Output is spooled first so a
// failed transcode never emits a truncated archive.
type StreamSink struct {
	w     io.Writer
	spool engine.SpoolConfig
}

func NewStreamSink(w io.Writer, spool engine.SpoolConfig) *StreamSink {
	return &StreamSink{w: w, spool: spool}
}

func (s *StreamSink) Name() string {
	return "stream"
}

func (s *StreamSink) Kind() string {
	return "stream"
}

func (s *StreamSink) Create(ctx context.Context, path string, format engine.Format) (engine.Destination, error) {
	f, err := s.spool.Create()
	if err != nil {
		return nil, err
	}
	return &spooledDestination{SpoolFile: f, publish: func(ctx context.Context, r io.Reader) error {
		if _, err := io.Copy(s.w, r); err != nil {
			return fmt.Errorf("failed to copy data: %w", err)
		}
		return nil
	}}, nil
}

func (s *StreamSink) Close(ctx context.Context) error {
	return nil
}

// spooledDestination buffers the archive in a spool file and hands it to publish on Commit.
type spooledDestination struct {
	*engine.SpoolFile
	publish func(ctx context.Context, r io.Reader) error
	done    bool
}

func (d *spooledDestination) Commit(ctx context.Context) (err error) {
	d.done = true
	defer func() {
		if cerr := d.SpoolFile.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to remove spool file: %w", cerr)
		}
	}()

	if err := d.Rewind(); err != nil {
		return fmt.Errorf("failed to rewind spool file: %w", err)
	}
	return d.publish(ctx, d.SpoolFile)
}

func (d *spooledDestination) Abort() error {
	if d.done {
		return nil
	}
	d.done = true
	return d.SpoolFile.Close()
}
