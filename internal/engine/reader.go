package engine

import (
	"iter"
)

// Reader produces the members of an archive in their native order.
type Reader interface {
	// Format returns the container format being decoded.
	Format() Format

	// Entries returns the lazy member sequence. Per-entry problems are yielded as *EntryError
	// and iteration continues; structural errors end the sequence. Entries can only be
	// iterated once: a second call yields a single ErrAlreadyIterating.
	Entries() iter.Seq2[*Entry, error]

	// Close releases the decoder. It does not close the underlying handle.
	Close() error
}

// RandomAccessReader is implemented by readers whose format has a directory of member
// offsets. Entries it returns may be opened in any order while the reader is open.
type RandomAccessReader interface {
	Reader

	// Lookup returns the first member named path.
	Lookup(path string) (*Entry, error)

	// Len returns the number of members listed in the directory.
	Len() int
}

// Once guards the single iteration of Reader.Entries.
type Once struct {
	started bool
}

// Start marks iteration as started, returning ErrAlreadyIterating if it already was.
func (o *Once) Start() error {
	if o.started {
		return ErrAlreadyIterating
	}
	o.started = true
	return nil
}

// Failed is a sequence yielding a single error.
func Failed(err error) iter.Seq2[*Entry, error] {
	return func(yield func(*Entry, error) bool) {
		yield(nil, err)
	}
}
