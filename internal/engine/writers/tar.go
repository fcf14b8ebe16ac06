package writers

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/archconv/archconv/internal/engine"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// CompressionType defines supported compression algorithms.
type CompressionType string

const (
	CompressionGzip CompressionType = "gzip"
	CompressionZstd CompressionType = "zstd"
	CompressionNone CompressionType = "none"
)

// Compression returns the tar compression used by format.
func Compression(format engine.Format) (CompressionType, error) {
	switch format {
	case engine.FormatTarGz:
		return CompressionGzip, nil
	case engine.FormatTarZst:
		return CompressionZstd, nil
	case engine.FormatTar:
		return CompressionNone, nil
	default:
		return "", fmt.Errorf("%w: %s is not a tar format", engine.ErrUnsupportedFormat, format)
	}
}

// TarWriter streams entries into a tar archive with optional compression.
type TarWriter struct {
	format     engine.Format
	compressor io.WriteCloser
	tarWriter  *tar.Writer
	spool      engine.SpoolConfig
	state      engine.WriterState
}

// NewTarWriter creates a tar writer for tar, tar.gz or tar.zst output.
func NewTarWriter(format engine.Format, dst io.Writer, opts Options) (*TarWriter, error) {
	ct, err := Compression(format)
	if err != nil {
		return nil, err
	}

	var compressor io.WriteCloser
	switch ct {
	case CompressionGzip:
		compressor, err = gzip.NewWriterLevel(dst, opts.flateLevel())
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip writer: %w", err)
		}
	case CompressionZstd:
		level := zstd.SpeedDefault
		if opts.Level != 0 {
			level = zstd.EncoderLevelFromZstd(opts.Level)
		}
		compressor, err = zstd.NewWriter(dst, zstd.WithEncoderLevel(level))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
	case CompressionNone:
		compressor = &nopWriteCloser{dst}
	}

	return &TarWriter{
		format:     format,
		compressor: compressor,
		tarWriter:  tar.NewWriter(ioWriter{w: compressor, op: "failed to write tar stream"}),
		spool:      opts.Spool,
	}, nil
}

func (w *TarWriter) Format() engine.Format {
	return w.format
}

// Append writes the header and content of one entry. Entries of unknown size are spooled
// first since tar headers carry the size up front.
func (w *TarWriter) Append(ctx context.Context, e *engine.Entry) ([]engine.Diagnostic, error) {
	if err := w.state.BeginAppend(); err != nil {
		return nil, err
	}
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	header := &tar.Header{
		Name:    e.Name(),
		Mode:    unixPerm(e.Perm()),
		ModTime: e.ModTime,
	}
	if header.ModTime.IsZero() {
		header.ModTime = time.Unix(0, 0)
	}

	switch e.Kind {
	case engine.KindDirectory:
		header.Typeflag = tar.TypeDir
		return nil, w.writeHeader(header, e)
	case engine.KindSymlink:
		header.Typeflag = tar.TypeSymlink
		header.Linkname = e.LinkTarget
		return nil, w.writeHeader(header, e)
	}

	header.Typeflag = tar.TypeReg

	rc, err := e.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var content io.Reader = rc
	header.Size = e.Size
	if e.Size == engine.SizeUnknown {
		spooled, size, err := w.spoolContent(rc)
		if err != nil {
			return nil, err
		}
		defer spooled.Close()
		content = spooled
		header.Size = size
	}

	if err := w.tarWriter.WriteHeader(header); err != nil {
		return nil, engine.WriteIOError(fmt.Sprintf("failed to write tar header for %q", header.Name), err)
	}

	n, err := io.CopyN(w.tarWriter, content, header.Size)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, engine.CorruptError(fmt.Sprintf("entry %q", header.Name), fmt.Errorf("content ended after %d of %d bytes", n, header.Size))
		}
		if errors.Is(err, engine.ErrWriteIO) || errors.Is(err, engine.ErrCorruptArchive) {
			return nil, err
		}
		return nil, engine.WriteIOError("failed to write tar content", err)
	}

	// Decoders verify checksums at EOF, so the content must be drained past its size.
	var extra [1]byte
	if _, err := io.ReadFull(content, extra[:]); err == nil {
		return nil, engine.CorruptError(fmt.Sprintf("entry %q", header.Name), errors.New("content longer than declared size"))
	} else if !errors.Is(err, io.EOF) {
		return nil, err
	}

	w.state.Appended()
	return nil, nil
}

func (w *TarWriter) writeHeader(header *tar.Header, e *engine.Entry) error {
	if err := w.tarWriter.WriteHeader(header); err != nil {
		return engine.WriteIOError(fmt.Sprintf("failed to write tar header for %q", e.Name()), err)
	}
	w.state.Appended()
	return nil
}

func (w *TarWriter) spoolContent(r io.Reader) (*engine.SpoolFile, int64, error) {
	f, err := w.spool.Create()
	if err != nil {
		return nil, 0, engine.WriteIOError("failed to spool entry", err)
	}

	n, err := io.Copy(ioWriter{w: f, op: "failed to spool entry"}, r)
	if err == nil {
		err = f.Rewind()
	}
	if err != nil {
		return nil, 0, errors.Join(err, f.Close())
	}
	return f, n, nil
}

// Finalize writes the end-of-archive records and flushes the compressor.
func (w *TarWriter) Finalize() error {
	if err := w.state.BeginFinalize(); err != nil {
		return err
	}

	if err := w.tarWriter.Close(); err != nil {
		return engine.WriteIOError("failed to close tar writer", err)
	}

	if err := w.compressor.Close(); err != nil {
		return engine.WriteIOError("failed to close compressor", err)
	}

	return nil
}

// Close flushes the compressor of an unfinalized writer. The tar stream is left without
// its end-of-archive records.
func (w *TarWriter) Close() error {
	if w.state.Finalized() {
		return nil
	}
	if f, ok := w.compressor.(interface{ Flush() error }); ok {
		return engine.WriteIOError("failed to flush compressor", f.Flush())
	}
	return nil
}

// unixPerm converts permission and special bits to their unix numeric form.
func unixPerm(mode fs.FileMode) int64 {
	perm := int64(mode.Perm())
	if mode&fs.ModeSetuid != 0 {
		perm |= 0o4000
	}
	if mode&fs.ModeSetgid != 0 {
		perm |= 0o2000
	}
	if mode&fs.ModeSticky != 0 {
		perm |= 0o1000
	}
	return perm
}
