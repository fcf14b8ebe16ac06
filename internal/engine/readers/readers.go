// Package readers decodes supported container formats into engine entries.
package readers

import (
	"fmt"
	"io"

	"github.com/archconv/archconv/internal/engine"
	"go.uber.org/zap"
)

// Open sniffs src and returns the reader for format. The signature must match the
// requested format, otherwise ErrUnsupportedFormat is returned. The reader does not take
// ownership of src; the caller closes it after closing the reader.
func Open(format engine.Format, src io.ReaderAt, size int64, logger *zap.Logger) (engine.Reader, error) {
	sniffed, err := engine.Sniff(src)
	if err != nil {
		return nil, err
	}
	if sniffed != format {
		return nil, fmt.Errorf("%w: expected %s signature, found %s", engine.ErrUnsupportedFormat, format, sniffed)
	}

	logger.Debug("opening archive", zap.Stringer("format", format), zap.Int64("size", size))

	switch format {
	case engine.FormatZip:
		return NewZipReader(src, size)
	case engine.FormatTarGz, engine.FormatTarZst, engine.FormatTar:
		total, err := ScanTarSize(format, io.NewSectionReader(src, 0, size))
		if err != nil {
			// The entry pass reports the failure where it happens.
			logger.Debug("failed to compute uncompressed size", zap.Error(err))
		}
		r, err := NewTarReader(format, io.NewSectionReader(src, 0, size))
		if err != nil {
			return nil, err
		}
		r.size = total
		return r, nil
	case engine.FormatSevenZ:
		return NewSevenZipReader(src, size)
	default:
		return nil, fmt.Errorf("%w: %s", engine.ErrUnsupportedFormat, format)
	}
}

// readLinkTarget reads a symlink target stored as member content.
func readLinkTarget(rc io.ReadCloser) (string, error) {
	defer rc.Close()

	const maxTarget = 64 << 10
	target, err := io.ReadAll(io.LimitReader(rc, maxTarget+1))
	if err != nil {
		return "", err
	}
	if len(target) > maxTarget {
		return "", fmt.Errorf("symlink target longer than %d bytes", maxTarget)
	}
	return string(target), nil
}
