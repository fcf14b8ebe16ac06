package writers

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/archconv/archconv/internal/engine"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

const msdosDirAttr = 0x10

var (
	// Range representable by both the MS-DOS date fields and the 32-bit extended timestamp.
	zipMinTime = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	zipMaxTime = time.Date(2106, 2, 7, 6, 28, 15, 0, time.UTC)
)

// ZipWriter streams entries into a zip archive. Members are written with data
// descriptors so content never has to be buffered; the central directory is kept in
// memory and emitted by Finalize.
type ZipWriter struct {
	zw      *zip.Writer
	minimal bool
	state   engine.WriterState
}

func NewZipWriter(dst io.Writer, opts Options) *ZipWriter {
	zw := zip.NewWriter(dst)
	level := opts.flateLevel()
	zw.RegisterCompressor(zip.Deflate, func(target io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(target, level)
	})
	return &ZipWriter{zw: zw, minimal: opts.MinimalZip}
}

func (w *ZipWriter) Format() engine.Format {
	return engine.FormatZip
}

func (w *ZipWriter) Append(ctx context.Context, e *engine.Entry) ([]engine.Diagnostic, error) {
	if err := w.state.BeginAppend(); err != nil {
		return nil, err
	}
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	var diagnostics []engine.Diagnostic

	hdr := &zip.FileHeader{
		Name:   e.Name(),
		Method: zip.Deflate,
	}

	if !e.ModTime.IsZero() {
		modTime := e.ModTime
		switch {
		case modTime.Before(zipMinTime):
			modTime = zipMinTime
		case modTime.After(zipMaxTime):
			modTime = zipMaxTime
		}
		if !modTime.Equal(e.ModTime) {
			diagnostics = append(diagnostics, engine.Diagnostic{
				Field:   "mtime",
				Message: fmt.Sprintf("%s outside zip range, clamped to %s", e.ModTime.UTC().Format(time.RFC3339), modTime.Format(time.RFC3339)),
			})
		}
		hdr.Modified = modTime
	}

	if e.Kind == engine.KindDirectory || e.Kind == engine.KindSymlink || e.Size == 0 {
		hdr.Method = zip.Store
	}

	if w.minimal {
		if e.Kind == engine.KindSymlink {
			return nil, engine.NewEntryError(e.Name(), engine.ErrUnsupportedFeature, "symlink needs unix modes, disabled for minimal zip output")
		}
		mask := fs.FileMode(0o644)
		if e.Kind == engine.KindDirectory {
			mask = 0o755
			hdr.ExternalAttrs = msdosDirAttr
		}
		if e.Mode != 0 && e.Perm() != mask {
			diagnostics = append(diagnostics, engine.Diagnostic{
				Field:   "mode",
				Message: fmt.Sprintf("permissions %04o not representable, using %04o", uint32(e.Perm()), uint32(mask)),
			})
		}
	} else {
		hdr.SetMode(e.FileMode())
	}

	// Open the content before any header is written so a refusal leaves no partial member.
	var content io.ReadCloser
	if e.HasContent() {
		rc, err := e.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		content = rc
	}

	out, err := w.zw.CreateHeader(hdr)
	if err != nil {
		return nil, engine.WriteIOError(fmt.Sprintf("failed to write zip header for %q", hdr.Name), err)
	}

	switch {
	case content != nil:
		if _, err := io.Copy(ioWriter{w: out, op: "failed to write zip content"}, content); err != nil {
			return nil, err
		}
	case e.Kind == engine.KindSymlink:
		if _, err := io.WriteString(out, e.LinkTarget); err != nil {
			return nil, engine.WriteIOError("failed to write symlink target", err)
		}
	}

	w.state.Appended()
	return diagnostics, nil
}

func (w *ZipWriter) Finalize() error {
	if err := w.state.BeginFinalize(); err != nil {
		return err
	}
	if err := w.zw.Close(); err != nil {
		return engine.WriteIOError("failed to write zip central directory", err)
	}
	return nil
}

// Close flushes the members of an unfinalized writer. The archive has no central
// directory then.
func (w *ZipWriter) Close() error {
	if w.state.Finalized() {
		return nil
	}
	return engine.WriteIOError("failed to flush zip writer", w.zw.Flush())
}
