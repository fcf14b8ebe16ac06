package sinks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/archconv/archconv/internal/engine"
	"github.com/spf13/afero"
)

// FilesystemSink writes archives to a temporary file next to the destination and renames
// it into place on Commit, so an existing file is only replaced by a committed archive.
type FilesystemSink struct {
	fs afero.Fs
}

func NewFilesystemSink(fs afero.Fs) *FilesystemSink {
	return &FilesystemSink{fs: fs}
}

// NewFilesystemSinkFromPath roots the sink at path, creating it if needed.
func NewFilesystemSinkFromPath(path string) (*FilesystemSink, error) {
	cleanPath := filepath.Clean(path)

	if err := os.MkdirAll(cleanPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", cleanPath, err)
	}

	return NewFilesystemSink(afero.NewBasePathFs(afero.NewOsFs(), cleanPath)), nil
}

func (s *FilesystemSink) Name() string {
	return fmt.Sprintf("filesystem(%s)", s.fs.Name())
}

func (s *FilesystemSink) Kind() string {
	return "filesystem"
}

func (s *FilesystemSink) Create(ctx context.Context, path string, format engine.Format) (engine.Destination, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := s.fs.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	f, err := afero.TempFile(s.fs, dir, "."+filepath.Base(path)+".*.partial")
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return &fileDestination{File: f, fs: s.fs, path: path}, nil
}

func (s *FilesystemSink) Close(ctx context.Context) error {
	return nil
}

type fileDestination struct {
	afero.File
	fs   afero.Fs
	path string
	done bool
}

// Commit moves the written file to its final path.
func (d *fileDestination) Commit(ctx context.Context) error {
	d.done = true
	if err := d.File.Close(); err != nil {
		return errors.Join(fmt.Errorf("failed to close %s: %w", d.path, err), d.fs.Remove(d.File.Name()))
	}
	if err := d.fs.Chmod(d.File.Name(), 0o644); err != nil {
		return errors.Join(fmt.Errorf("failed to chmod %s: %w", d.path, err), d.fs.Remove(d.File.Name()))
	}
	if err := d.fs.Rename(d.File.Name(), d.path); err != nil {
		return errors.Join(fmt.Errorf("failed to rename into %s: %w", d.path, err), d.fs.Remove(d.File.Name()))
	}
	return nil
}

// Abort removes the temporary file and leaves the destination path untouched.
func (d *fileDestination) Abort() error {
	if d.done {
		return nil
	}
	d.done = true
	return errors.Join(d.File.Close(), d.fs.Remove(d.File.Name()))
}
