package archconv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/archconv/archconv/internal/engine"
	"github.com/opencontainers/go-digest"
	"go.uber.org/zap"
)

// Listing describes one archive member.
type Listing struct {
	Path       string        `json:"path"`
	Kind       engine.Kind   `json:"kind"`
	Size       int64         `json:"size"`
	Mode       fs.FileMode   `json:"mode"`
	ModTime    time.Time     `json:"mtime"`
	LinkTarget string        `json:"link_target,omitempty"`
	Digest     digest.Digest `json:"digest,omitempty"`
	// Skipped holds the reason a member cannot be converted, if any.
	Skipped string `json:"skipped,omitempty"`
}

// List reads every member of the archive at location and digests file contents.
// Members that cannot be converted are listed with the reason.
func (e *Engine) List(ctx context.Context, location string) ([]Listing, error) {
	loc, err := engine.ParseLocation(location)
	if err != nil {
		return nil, err
	}

	logger := e.logger.With(zap.String("source", location))
	in, err := e.open(ctx, logger, loc, engine.FormatUnknown)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	var listings []Listing
	for entry, err := range in.reader.Entries() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return listings, fmt.Errorf("%w: %w", engine.ErrCancelled, ctxErr)
		}
		if err != nil {
			if engine.IsRecoverable(err) {
				listings = append(listings, skippedListing(err))
				continue
			}
			return listings, err
		}

		l := Listing{
			Path:       entry.Name(),
			Kind:       entry.Kind,
			Size:       entry.Size,
			Mode:       entry.FileMode(),
			ModTime:    entry.ModTime,
			LinkTarget: entry.LinkTarget,
		}
		if entry.HasContent() {
			l.Size, l.Digest, err = digestEntry(entry)
			if err != nil {
				return listings, fmt.Errorf("failed to read %q: %w", l.Path, err)
			}
		}
		listings = append(listings, l)
	}
	return listings, nil
}

func digestEntry(entry *engine.Entry) (int64, digest.Digest, error) {
	rc, err := entry.Open()
	if err != nil {
		return 0, "", err
	}
	defer rc.Close()

	digester := digest.Canonical.Digester()
	n, err := io.Copy(digester.Hash(), rc)
	if err != nil {
		return n, "", err
	}
	return n, digester.Digest(), nil
}

func skippedListing(err error) Listing {
	l := Listing{Skipped: err.Error()}
	var entryErr *engine.EntryError
	if errors.As(err, &entryErr) {
		l.Path = entryErr.Path
		l.Skipped = entryErr.Err.Error()
	}
	return l
}
