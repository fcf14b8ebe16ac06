// Package writers encodes engine entries into supported container formats.
package writers

import (
	"context"
	"fmt"
	"io"

	"github.com/archconv/archconv/internal/engine"
	"github.com/klauspost/compress/flate"
)

// Options tune the writers. The zero value is usable.
type Options struct {
	// Level is the compression level from 1 (fastest) to 9 (smallest); 0 picks the default.
	Level int

	// MinimalZip drops unix modes from zip output: permissions are replaced by a fixed
	// mask (recorded as a diagnostic) and symlinks are rejected.
	MinimalZip bool

	// Spool is where entries of unknown size and 7z packed streams are buffered.
	Spool engine.SpoolConfig
}

func (o Options) validate() error {
	if o.Level < 0 || o.Level > 9 {
		return fmt.Errorf("compression level %d out of range 0-9", o.Level)
	}
	return nil
}

func (o Options) flateLevel() int {
	if o.Level == 0 {
		return flate.DefaultCompression
	}
	return o.Level
}

// New returns the writer for format, encoding into dst. The writer never closes dst.
func New(format engine.Format, dst io.Writer, opts Options) (engine.Writer, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	switch format {
	case engine.FormatZip:
		return NewZipWriter(dst, opts), nil
	case engine.FormatTarGz, engine.FormatTarZst, engine.FormatTar:
		return NewTarWriter(format, dst, opts)
	case engine.FormatSevenZ:
		return NewSevenZipWriter(dst, opts)
	default:
		return nil, fmt.Errorf("%w: cannot write %s", engine.ErrUnsupportedFormat, format)
	}
}

// ioWriter tags every destination error with ErrWriteIO so it can be told apart from
// source read errors inside io.Copy.
type ioWriter struct {
	w  io.Writer
	op string
}

func (w ioWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	return n, engine.WriteIOError(w.op, err)
}

// nopWriteCloser wraps a Writer to provide a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (n *nopWriteCloser) Close() error {
	return nil
}

func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", engine.ErrCancelled, err)
	}
	return nil
}
