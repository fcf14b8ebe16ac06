package readers

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"strings"

	"github.com/archconv/archconv/internal/engine"
	"github.com/klauspost/compress/zip"
)

const zipFlagEncrypted = 0x1

// ZipReader reads zip archives through their central directory. Members can be opened in
// any order while the reader is open.
type ZipReader struct {
	zr     *zip.Reader
	once   engine.Once
	closed bool
}

func NewZipReader(src io.ReaderAt, size int64) (*ZipReader, error) {
	zr, err := zip.NewReader(src, size)
	if err != nil {
		return nil, engine.CorruptError("failed to read zip central directory", err)
	}
	return &ZipReader{zr: zr}, nil
}

func (r *ZipReader) Format() engine.Format {
	return engine.FormatZip
}

func (r *ZipReader) Len() int {
	return len(r.zr.File)
}

func (r *ZipReader) UncompressedSize() int64 {
	var total int64
	for _, f := range r.zr.File {
		total += int64(f.UncompressedSize64)
	}
	return total
}

func (r *ZipReader) Entries() iter.Seq2[*engine.Entry, error] {
	if err := r.once.Start(); err != nil {
		return engine.Failed(err)
	}

	return func(yield func(*engine.Entry, error) bool) {
		for _, f := range r.zr.File {
			if !yield(r.entry(f)) {
				return
			}
		}
	}
}

// Lookup returns the first member whose normalized name matches name.
func (r *ZipReader) Lookup(name string) (*engine.Entry, error) {
	want, err := engine.ParsePath(name)
	if err != nil {
		return nil, err
	}

	for _, f := range r.zr.File {
		got, err := engine.ParsePath(f.Name)
		if err != nil {
			continue
		}
		if got.Equal(want) {
			return r.entry(f)
		}
	}
	return nil, fmt.Errorf("zip member %q: %w", name, fs.ErrNotExist)
}

func (r *ZipReader) Close() error {
	r.closed = true
	return nil
}

func (r *ZipReader) entry(f *zip.File) (*engine.Entry, error) {
	path, err := engine.ParsePath(f.Name)
	if err != nil {
		return nil, err
	}

	if f.Flags&zipFlagEncrypted != 0 {
		return nil, engine.NewEntryError(f.Name, engine.ErrUnsupportedFeature, "encrypted member")
	}

	mode := f.Mode()
	switch {
	case mode&fs.ModeSymlink != 0:
		rc, err := r.open(f)
		if err != nil {
			return nil, err
		}
		target, err := readLinkTarget(rc)
		if err != nil {
			return nil, engine.CorruptError(fmt.Sprintf("failed to read symlink %q", f.Name), err)
		}
		return engine.NewSymlink(path, target, mode, f.Modified), nil

	case mode.IsDir() || strings.HasSuffix(f.Name, "/"):
		return engine.NewDirectory(path, mode, f.Modified), nil

	case mode.Type() != 0:
		return nil, engine.NewEntryError(f.Name, engine.ErrUnsupportedFeature, "special file %s", mode.Type())

	case f.Method != zip.Store && f.Method != zip.Deflate:
		return nil, engine.NewEntryError(f.Name, engine.ErrUnsupportedFeature, "compression method %d", f.Method)
	}

	return engine.NewFile(path, int64(f.UncompressedSize64), mode, f.Modified, func() (io.ReadCloser, error) {
		return r.open(f)
	}), nil
}

func (r *ZipReader) open(f *zip.File) (io.ReadCloser, error) {
	if r.closed {
		return nil, fmt.Errorf("zip member %q: %w", f.Name, fs.ErrClosed)
	}

	rc, err := f.Open()
	switch {
	case err == nil:
		return rc, nil
	case errors.Is(err, zip.ErrAlgorithm):
		return nil, engine.NewEntryError(f.Name, engine.ErrUnsupportedFeature, "compression method %d", f.Method)
	default:
		return nil, engine.CorruptError(fmt.Sprintf("failed to open zip member %q", f.Name), err)
	}
}
