package readers

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/archconv/archconv/internal/engine"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// TarReader reads tar archives, optionally gzip or zstd compressed. It is strictly
// sequential: entries can only be opened before the next one is requested.
type TarReader struct {
	format  engine.Format
	tr      *tar.Reader
	closer  func() error
	cursor  engine.Cursor
	once    engine.Once
	stopped bool
	size    int64
}

func NewTarReader(format engine.Format, src io.Reader) (*TarReader, error) {
	r := &TarReader{format: format, closer: func() error { return nil }}

	switch format {
	case engine.FormatTarGz:
		gr, err := gzip.NewReader(src)
		if err != nil {
			return nil, engine.CorruptError("failed to read gzip header", err)
		}
		r.tr = tar.NewReader(gr)
		r.closer = gr.Close
	case engine.FormatTarZst:
		zr, err := zstd.NewReader(src)
		if err != nil {
			return nil, engine.CorruptError("failed to create zstd reader", err)
		}
		r.tr = tar.NewReader(zr)
		r.closer = func() error {
			zr.Close()
			return nil
		}
	case engine.FormatTar:
		r.tr = tar.NewReader(src)
	default:
		return nil, fmt.Errorf("%w: %s is not a tar format", engine.ErrUnsupportedFormat, format)
	}

	return r, nil
}

func (r *TarReader) Format() engine.Format {
	return r.format
}

// UncompressedSize is the total content size found by ScanTarSize, or 0 when unknown.
func (r *TarReader) UncompressedSize() int64 {
	return r.size
}

// ScanTarSize adds up the content sizes of the regular members of a tar archive with a
// header-only pass. Compressed archives are decompressed once for it.
func ScanTarSize(format engine.Format, src io.Reader) (int64, error) {
	r, err := NewTarReader(format, src)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	var total int64
	for {
		hdr, err := r.tr.Next()
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, engine.CorruptError("failed to scan tar headers", err)
		}
		switch hdr.Typeflag {
		case tar.TypeReg, tar.TypeCont, tar.TypeGNUSparse:
			total += hdr.Size
		}
	}
}

func (r *TarReader) Entries() iter.Seq2[*engine.Entry, error] {
	if err := r.once.Start(); err != nil {
		return engine.Failed(err)
	}

	return func(yield func(*engine.Entry, error) bool) {
		for !r.stopped {
			hdr, err := r.tr.Next()
			r.cursor.Advance()
			if errors.Is(err, io.EOF) {
				return
			}
			if errors.Is(err, tar.ErrInsecurePath) && hdr != nil {
				if !yield(nil, engine.NewEntryError(hdr.Name, engine.ErrUnsafePath, "insecure tar path")) {
					return
				}
				continue
			}
			if err != nil {
				r.stopped = true
				yield(nil, engine.CorruptError("failed to read tar header", err))
				return
			}
			if hdr.Typeflag == tar.TypeXGlobalHeader {
				continue
			}

			entry, err := r.entry(hdr)
			if entry != nil {
				entry.Bind(&r.cursor)
			}
			if !yield(entry, err) {
				return
			}
		}
	}
}

func (r *TarReader) entry(hdr *tar.Header) (*engine.Entry, error) {
	path, err := engine.ParsePath(hdr.Name)
	if err != nil {
		return nil, err
	}

	mode := hdr.FileInfo().Mode()
	switch hdr.Typeflag {
	case tar.TypeReg, tar.TypeCont, tar.TypeGNUSparse:
		return engine.NewFile(path, hdr.Size, mode, hdr.ModTime, func() (io.ReadCloser, error) {
			return io.NopCloser(r.tr), nil
		}), nil
	case tar.TypeDir:
		return engine.NewDirectory(path, mode, hdr.ModTime), nil
	case tar.TypeSymlink:
		return engine.NewSymlink(path, hdr.Linkname, mode, hdr.ModTime), nil
	case tar.TypeLink:
		return nil, engine.NewEntryError(hdr.Name, engine.ErrUnsupportedFeature, "hard link to %q", hdr.Linkname)
	case tar.TypeChar, tar.TypeBlock, tar.TypeFifo:
		return nil, engine.NewEntryError(hdr.Name, engine.ErrUnsupportedFeature, "device or fifo (type %q)", hdr.Typeflag)
	default:
		return nil, engine.NewEntryError(hdr.Name, engine.ErrUnsupportedFeature, "tar type flag %q", hdr.Typeflag)
	}
}

func (r *TarReader) Close() error {
	r.cursor.Invalidate()
	r.stopped = true
	return r.closer()
}
