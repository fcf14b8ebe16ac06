package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
)

type Named interface {
	Name() string
	Kind() string
}

type Closer interface {
	Close(context.Context) error
}

// Handle is an open source archive.
type Handle interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

// Source resolves one location into an archive handle.
type Source interface {
	Named
	Open(ctx context.Context) (Handle, error)
}

// Destination receives the bytes of one produced archive. Exactly one of Commit or Abort
// must be called; Abort after Commit is a no-op.
type Destination interface {
	io.Writer
	Commit(ctx context.Context) error
	Abort() error
}

// Sink is where produced archives are delivered.
type Sink interface {
	Named
	Closer
	Create(ctx context.Context, name string, format Format) (Destination, error)
}

const (
	// ISO8601Basic is a URL-safe timestamp format without colons.
	// This is the recommended format for S3 keys and filesystem paths.
	ISO8601Basic = "20060102T150405Z"

	spoolPattern = "archconv-spool-*"
)

// SpoolConfig tells readers and writers where they may create temporary files.
// An empty Dir means the OS temp directory; a nil FS means the OS filesystem.
type SpoolConfig struct {
	FS  afero.Fs
	Dir string
}

func (c SpoolConfig) fs() afero.Fs {
	if c.FS == nil {
		return afero.NewOsFs()
	}
	return c.FS
}

// SpoolFile is a temporary file that removes itself on Close.
type SpoolFile struct {
	afero.File
	fs afero.Fs
}

// Create opens a new spool file.
func (c SpoolConfig) Create() (*SpoolFile, error) {
	fs := c.fs()

	dir := c.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory %s: %w", dir, err)
	}

	f, err := afero.TempFile(fs, dir, spoolPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}
	return &SpoolFile{File: f, fs: fs}, nil
}

// Rewind seeks back to the start of the spooled data.
func (f *SpoolFile) Rewind() error {
	_, err := f.Seek(0, 0)
	return err
}

func (f *SpoolFile) Close() error {
	name := f.Name()
	return errors.Join(f.File.Close(), f.fs.Remove(name))
}
