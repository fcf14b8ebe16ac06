package engine

import (
	"context"
	"fmt"
)

// Writer encodes entries into a container format.
type Writer interface {
	// Format returns the container format being produced.
	Format() Format

	// Append writes one entry, consuming its content fully. Entries the format cannot
	// represent are rejected with ErrUnsupportedFeature before anything is written.
	// The returned diagnostics record metadata that had to be approximated.
	// ErrCancelled is only returned before anything of the entry was written.
	Append(ctx context.Context, entry *Entry) ([]Diagnostic, error)

	// Finalize flushes trailing structures. The writer cannot be used afterwards.
	// It does not close the underlying handle.
	Finalize() error

	// Close releases temporary resources. It is safe to call after Finalize or instead of it;
	// without Finalize it flushes the bytes already encoded so written entries reach the
	// destination.
	Close() error
}

// Diagnostic records a lossy metadata translation for one entry.
type Diagnostic struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s", d.Field, d.Message)
}

// WriterState implements the Open -> Appending -> Finalized state machine shared by writers.
type WriterState struct {
	finalized bool
	appended  int
}

// BeginAppend fails with ErrWriterClosed once the writer has been finalized.
func (s *WriterState) BeginAppend() error {
	if s.finalized {
		return ErrWriterClosed
	}
	return nil
}

// Appended counts a successfully written entry.
func (s *WriterState) Appended() {
	s.appended++
}

// Count returns the number of entries written so far.
func (s *WriterState) Count() int {
	return s.appended
}

// Finalized reports whether BeginFinalize was called.
func (s *WriterState) Finalized() bool {
	return s.finalized
}

// BeginFinalize moves to Finalized, failing with ErrWriterClosed if already there.
func (s *WriterState) BeginFinalize() error {
	if s.finalized {
		return ErrWriterClosed
	}
	s.finalized = true
	return nil
}
