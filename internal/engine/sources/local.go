package sources

import (
	"context"
	"fmt"

	"github.com/archconv/archconv/internal/engine"
	"github.com/spf13/afero"
)

// LocalSource opens archives on a filesystem.
type LocalSource struct {
	fs   afero.Fs
	path string
}

func NewLocalSource(fs afero.Fs, path string) *LocalSource {
	return &LocalSource{fs: fs, path: path}
}

func (s *LocalSource) Name() string {
	return s.path
}

func (s *LocalSource) Kind() string {
	return engine.SchemeFile
}

func (s *LocalSource) Open(ctx context.Context) (engine.Handle, error) {
	f, err := s.fs.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", s.path, err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("%s is a directory", s.path)
	}

	return &fileHandle{File: f, size: info.Size()}, nil
}
