// Package sources resolves source locations into random-access archive handles. Remote
// and streamed sources are downloaded into the spool directory first since every reader
// needs io.ReaderAt.
package sources

import (
	"fmt"
	"io"

	"github.com/archconv/archconv/internal/engine"
	"github.com/spf13/afero"
)

type fileHandle struct {
	afero.File
	size int64
}

func (h *fileHandle) Size() int64 {
	return h.size
}

// spoolHandle owns a spool file and removes it on Close.
type spoolHandle struct {
	*engine.SpoolFile
	size int64
}

func (h *spoolHandle) Size() int64 {
	return h.size
}

// spoolFrom copies r into a new spool file.
func spoolFrom(spool engine.SpoolConfig, r io.Reader, what string) (engine.Handle, error) {
	f, err := spool.Create()
	if err != nil {
		return nil, err
	}

	n, err := io.Copy(f, r)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to download %s: %w", what, err)
	}
	return &spoolHandle{SpoolFile: f, size: n}, nil
}
