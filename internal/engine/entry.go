package engine

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"
)

// Kind is the type of an archive member.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
	KindSymlink
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

const (
	// SizeUnknown marks an entry whose size is only known once its content is read.
	SizeUnknown int64 = -1

	defaultFileMode    fs.FileMode = 0o644
	defaultDirMode     fs.FileMode = 0o755
	defaultSymlinkMode fs.FileMode = 0o777

	// ModePermMask keeps permission bits plus setuid, setgid and sticky.
	ModePermMask = fs.ModePerm | fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky
)

// OpenFunc lazily opens the decode pipeline of a single member.
type OpenFunc func() (io.ReadCloser, error)

// Entry is one member of an archive, independent of the container format.
//
// Content is single-consume: Open may be called once, a second call fails with
// ErrStreamExhausted. Entries produced by sequential readers are bound to a Cursor and
// fail with ErrOutOfOrderAccess once the reader has moved past them.
type Entry struct {
	Path       Path
	Kind       Kind
	Size       int64
	Mode       fs.FileMode
	ModTime    time.Time
	LinkTarget string

	open      OpenFunc
	opened    bool
	cursor    *Cursor
	position  int
	observers []io.Writer
}

// NewFile creates a regular file entry whose content is produced by open.
func NewFile(path Path, size int64, mode fs.FileMode, modTime time.Time, open OpenFunc) *Entry {
	return &Entry{
		Path:    path,
		Kind:    KindFile,
		Size:    size,
		Mode:    mode & ModePermMask,
		ModTime: modTime,
		open:    open,
	}
}

// NewDirectory creates a directory entry.
func NewDirectory(path Path, mode fs.FileMode, modTime time.Time) *Entry {
	return &Entry{
		Path:    path,
		Kind:    KindDirectory,
		Mode:    mode & ModePermMask,
		ModTime: modTime,
	}
}

// NewSymlink creates a symbolic link entry pointing at target.
func NewSymlink(path Path, target string, mode fs.FileMode, modTime time.Time) *Entry {
	return &Entry{
		Path:       path,
		Kind:       KindSymlink,
		Mode:       mode & ModePermMask,
		ModTime:    modTime,
		LinkTarget: target,
	}
}

// Bind ties the entry to the current position of a sequential reader.
func (e *Entry) Bind(c *Cursor) *Entry {
	e.cursor = c
	e.position = c.position
	return e
}

// HasContent reports whether the entry carries a byte stream.
func (e *Entry) HasContent() bool {
	return e.Kind == KindFile
}

// Name is the member name as written into archives: directories carry a trailing slash.
func (e *Entry) Name() string {
	if e.Kind == KindDirectory {
		return e.Path.String() + "/"
	}
	return e.Path.String()
}

// Perm returns the permission bits, falling back to a per-kind default when none were recorded.
func (e *Entry) Perm() fs.FileMode {
	if e.Mode&ModePermMask != 0 {
		return e.Mode & ModePermMask
	}
	switch e.Kind {
	case KindDirectory:
		return defaultDirMode
	case KindSymlink:
		return defaultSymlinkMode
	default:
		return defaultFileMode
	}
}

// FileMode combines Kind and Perm into an fs.FileMode.
func (e *Entry) FileMode() fs.FileMode {
	switch e.Kind {
	case KindDirectory:
		return fs.ModeDir | e.Perm()
	case KindSymlink:
		return fs.ModeSymlink | e.Perm()
	default:
		return e.Perm()
	}
}

// Tee registers w to receive every content byte as it is consumed. Must be called before Open.
func (e *Entry) Tee(w io.Writer) {
	e.observers = append(e.observers, w)
}

// Open returns the member content. It can be called only once.
func (e *Entry) Open() (io.ReadCloser, error) {
	if !e.HasContent() || e.open == nil {
		return nil, NewEntryError(e.Path.String(), ErrUnsupportedFeature, "%s has no content", e.Kind)
	}
	if e.opened {
		return nil, &EntryError{Path: e.Path.String(), Err: ErrStreamExhausted}
	}
	if err := e.checkPosition(); err != nil {
		return nil, err
	}
	e.opened = true

	rc, err := e.open()
	if err != nil {
		return nil, err
	}

	cr := &contentReader{entry: e, rc: rc}
	switch len(e.observers) {
	case 0:
	case 1:
		cr.tee = e.observers[0]
	default:
		cr.tee = io.MultiWriter(e.observers...)
	}
	return cr, nil
}

func (e *Entry) checkPosition() error {
	if e.cursor == nil || e.cursor.position == e.position {
		return nil
	}
	return &EntryError{Path: e.Path.String(), Err: ErrOutOfOrderAccess}
}

type contentReader struct {
	entry *Entry
	rc    io.ReadCloser
	tee   io.Writer
}

func (r *contentReader) Read(p []byte) (int, error) {
	if err := r.entry.checkPosition(); err != nil {
		return 0, err
	}

	n, err := r.rc.Read(p)
	if n > 0 && r.tee != nil {
		if _, werr := r.tee.Write(p[:n]); werr != nil {
			return n, werr
		}
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return n, CorruptError(fmt.Sprintf("failed to read %q", r.entry.Path.String()), err)
	}
	return n, err
}

func (r *contentReader) Close() error {
	return r.rc.Close()
}

// Cursor tracks the position of a sequential reader. Not safe for concurrent use.
type Cursor struct {
	position int
}

// Advance moves the cursor to the next member, invalidating entries bound to the previous one.
func (c *Cursor) Advance() {
	c.position++
}

// Invalidate makes every bound entry unreadable, used when the reader is closed.
func (c *Cursor) Invalidate() {
	c.position = -1
}
