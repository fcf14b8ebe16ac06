package readers

import (
	"fmt"
	"io"
	"io/fs"
	"iter"
	"strings"

	"github.com/archconv/archconv/internal/engine"
	"github.com/bodgit/sevenzip"
)

// Windows attribute bits used by 7z, with the p7zip convention of storing the unix mode
// in the high 16 bits.
const (
	sevenZipAttrReadOnly      = 0x1
	sevenZipAttrDirectory     = 0x10
	sevenZipAttrUnixExtension = 0x8000

	unixTypeMask    = 0o170000
	unixTypeRegular = 0o100000
	unixTypeDir     = 0o040000
	unixTypeSymlink = 0o120000
)

// SevenZipReader reads 7z archives. Support is experimental: whatever coders
// bodgit/sevenzip decodes are accepted, encrypted or unknown streams are skipped as
// unsupported. Access is sequential, matching the other stream formats.
type SevenZipReader struct {
	r      *sevenzip.Reader
	cursor engine.Cursor
	once   engine.Once
}

func NewSevenZipReader(src io.ReaderAt, size int64) (*SevenZipReader, error) {
	r, err := sevenzip.NewReader(src, size)
	if err != nil {
		return nil, classifySevenZipError("failed to read 7z header", err)
	}
	return &SevenZipReader{r: r}, nil
}

func (r *SevenZipReader) Format() engine.Format {
	return engine.FormatSevenZ
}

func (r *SevenZipReader) UncompressedSize() int64 {
	var total int64
	for _, f := range r.r.File {
		total += int64(f.UncompressedSize)
	}
	return total
}

func (r *SevenZipReader) Entries() iter.Seq2[*engine.Entry, error] {
	if err := r.once.Start(); err != nil {
		return engine.Failed(err)
	}

	return func(yield func(*engine.Entry, error) bool) {
		for _, f := range r.r.File {
			r.cursor.Advance()
			entry, err := r.entry(f)
			if entry != nil {
				entry.Bind(&r.cursor)
			}
			if !yield(entry, err) {
				return
			}
		}
	}
}

func (r *SevenZipReader) entry(f *sevenzip.File) (*engine.Entry, error) {
	path, err := engine.ParsePath(f.Name)
	if err != nil {
		return nil, err
	}

	attrs := f.Attributes
	unixMode := uint32(0)
	if attrs&sevenZipAttrUnixExtension != 0 {
		unixMode = attrs >> 16
	}
	perm := sevenZipPerm(attrs, unixMode)

	isDir := attrs&sevenZipAttrDirectory != 0 || f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/")
	switch {
	case unixMode&unixTypeMask == unixTypeSymlink:
		rc, err := f.Open()
		if err != nil {
			return nil, classifySevenZipEntryError(f.Name, err)
		}
		target, err := readLinkTarget(rc)
		if err != nil {
			return nil, classifySevenZipEntryError(f.Name, err)
		}
		return engine.NewSymlink(path, target, perm, f.Modified), nil

	case isDir || unixMode&unixTypeMask == unixTypeDir:
		return engine.NewDirectory(path, perm, f.Modified), nil

	case unixMode != 0 && unixMode&unixTypeMask != unixTypeRegular && unixMode&unixTypeMask != 0:
		return nil, engine.NewEntryError(f.Name, engine.ErrUnsupportedFeature, "special file (unix mode %o)", unixMode)
	}

	return engine.NewFile(path, int64(f.UncompressedSize), perm, f.Modified, func() (io.ReadCloser, error) {
		rc, err := f.Open()
		if err != nil {
			return nil, classifySevenZipEntryError(f.Name, err)
		}
		return rc, nil
	}), nil
}

func (r *SevenZipReader) Close() error {
	r.cursor.Invalidate()
	return nil
}

func sevenZipPerm(attrs, unixMode uint32) fs.FileMode {
	if unixMode != 0 {
		perm := fs.FileMode(unixMode & 0o777)
		if unixMode&0o4000 != 0 {
			perm |= fs.ModeSetuid
		}
		if unixMode&0o2000 != 0 {
			perm |= fs.ModeSetgid
		}
		if unixMode&0o1000 != 0 {
			perm |= fs.ModeSticky
		}
		return perm
	}
	if attrs&sevenZipAttrReadOnly != 0 {
		return 0o444
	}
	return 0
}

// bodgit/sevenzip does not export typed errors for missing coders or passwords, so the
// message is the only signal available.
func isSevenZipUnsupported(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"unsupported", "password", "encrypt", "unknown method", "aes"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

func classifySevenZipError(op string, err error) error {
	if isSevenZipUnsupported(err) {
		return fmt.Errorf("%w: %s: %w", engine.ErrUnsupportedFeature, op, err)
	}
	return engine.CorruptError(op, err)
}

func classifySevenZipEntryError(name string, err error) error {
	if isSevenZipUnsupported(err) {
		return &engine.EntryError{Path: name, Err: fmt.Errorf("%w: %w", engine.ErrUnsupportedFeature, err)}
	}
	return engine.CorruptError(fmt.Sprintf("failed to open 7z member %q", name), err)
}
