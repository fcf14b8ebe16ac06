package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat is returned when a byte signature matches no supported container.
	ErrUnsupportedFormat = errors.New("unsupported archive format")

	// ErrCorruptArchive is returned when headers or the central directory are malformed.
	ErrCorruptArchive = errors.New("corrupt archive")

	// ErrUnsupportedFeature is returned for structures the engine recognizes but cannot handle,
	// such as encrypted members, device nodes or unknown compression methods.
	ErrUnsupportedFeature = errors.New("unsupported archive feature")

	// ErrOutOfOrderAccess is returned when a sequential reader is asked for content it already passed.
	ErrOutOfOrderAccess = errors.New("out of order access")

	// ErrStreamExhausted is returned when entry content is opened a second time.
	ErrStreamExhausted = errors.New("stream exhausted")

	// ErrWriteIO is returned when the destination could not be written.
	ErrWriteIO = errors.New("write failed")

	// ErrWriterClosed is returned when a finalized writer is used again.
	ErrWriterClosed = errors.New("writer closed")

	// ErrCancelled is returned when a transcode stopped because its context was cancelled.
	ErrCancelled = errors.New("cancelled")

	// ErrAlreadyIterating is returned by a second call to Reader.Entries.
	ErrAlreadyIterating = errors.New("entries already iterating")

	// ErrUnsafePath is returned for member names that are empty or escape the archive root.
	ErrUnsafePath = errors.New("unsafe entry path")
)

// EntryError ties an error to a single archive member.
type EntryError struct {
	Path string
	Err  error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("entry %q: %v", e.Path, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// NewEntryError wraps err for the member at path, attaching it to the sentinel kind.
func NewEntryError(path string, kind error, format string, args ...any) *EntryError {
	return &EntryError{
		Path: path,
		Err:  fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...)),
	}
}

// IsRecoverable reports whether err only affects one entry, so a transcode can skip it and continue.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrUnsupportedFeature) || errors.Is(err, ErrUnsafePath)
}

// WriteIOError marks err as a destination failure.
func WriteIOError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrWriteIO) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrWriteIO, op, err)
}

// CorruptError marks err as a structural failure in the source.
func CorruptError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCorruptArchive) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrCorruptArchive, op, err)
}
