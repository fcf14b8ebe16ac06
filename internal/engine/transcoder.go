package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/opencontainers/go-digest"
	"go.uber.org/zap"
)

// EntryFilter decides whether an entry is copied.
type EntryFilter interface {
	Match(entry *Entry) (bool, error)
}

// Sizer is implemented by readers that know the total uncompressed size up front.
type Sizer interface {
	UncompressedSize() int64
}

// Progress is reported after every entry.
type Progress struct {
	Entry     EntryResult
	Processed int
	BytesRead int64
	Total     int64
	// Ratio is BytesRead/Total, or 0 when the total is unknown.
	Ratio float64
}

type TranscoderOption func(*Transcoder)

// WithFilter skips entries the filter rejects, recording them as skipped.
func WithFilter(filter EntryFilter) TranscoderOption {
	return func(t *Transcoder) {
		t.filter = filter
	}
}

// WithProgress registers a callback invoked after every entry.
func WithProgress(fn func(Progress)) TranscoderOption {
	return func(t *Transcoder) {
		t.progress = fn
	}
}

// Transcoder drives one reader into one writer, entry by entry.
type Transcoder struct {
	logger   *zap.Logger
	filter   EntryFilter
	progress func(Progress)
}

func NewTranscoder(logger *zap.Logger, opts ...TranscoderOption) *Transcoder {
	t := &Transcoder{logger: logger}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run copies every entry of r into w and finalizes w.
//
// Recoverable entry problems are recorded as skipped. A writer failure aborts the run
// without finalizing since the destination may hold a partial entry. A reader failure
// or a cancelled context between entries still finalizes w so the destination holds a
// valid archive of everything written so far.
func (t *Transcoder) Run(ctx context.Context, r Reader, w Writer) Result {
	result := Result{
		SourceFormat: r.Format(),
		Format:       w.Format(),
		Status:       StatusCompleted,
		Started:      time.Now().UTC(),
	}
	defer func() {
		result.Finished = time.Now().UTC()
	}()

	var total int64
	if sizer, ok := r.(Sizer); ok {
		total = sizer.UncompressedSize()
	}

	logger := t.logger.With(zap.Stringer("from", r.Format()), zap.Stringer("to", w.Format()))
	index := 0
	finalize := true

	for entry, err := range r.Entries() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			logger.Info("transcode cancelled", zap.Int("entries_written", result.Copied))
			result.fail(StatusCancelled, fmt.Errorf("%w after %d entries: %w", ErrCancelled, result.Copied, ctxErr))
			break
		}

		if err != nil {
			if IsRecoverable(err) {
				er := EntryResult{Index: index, Path: entryErrorPath(err), Outcome: OutcomeSkipped, Reason: err.Error(), Err: err}
				logger.Warn("skipping entry", zap.String("path", er.Path), zap.Error(err))
				t.record(&result, er, total)
				index++
				continue
			}
			logger.Error("failed to read source", zap.Error(err))
			result.fail(StatusFailed, fmt.Errorf("failed to read entry %d: %w", index, err))
			break
		}

		er, fatal := t.copyEntry(ctx, w, entry, index)
		if errors.Is(fatal, ErrCancelled) {
			// The writer wrote nothing of this entry, so it is left out of the result.
			logger.Info("transcode cancelled", zap.Int("entries_written", result.Copied))
			result.fail(StatusCancelled, fatal)
			break
		}
		index++
		t.record(&result, er, total)
		if fatal == nil {
			continue
		}

		logger.Error("failed to write entry", zap.String("path", er.Path), zap.Error(fatal))
		result.fail(StatusFailed, fmt.Errorf("failed to write entry %q: %w", er.Path, fatal))
		finalize = false
		break
	}

	if !finalize {
		return result
	}

	if err := w.Finalize(); err != nil {
		result.fail(StatusFailed, fmt.Errorf("failed to finalize %s archive: %w", w.Format(), err))
		return result
	}
	result.Finalized = true

	logger.Info("transcode finished",
		zap.String("status", string(result.Status)),
		zap.Int("copied", result.Copied),
		zap.Int("skipped", result.Skipped),
		zap.Int64("bytes", result.BytesCopied),
	)
	return result
}

func (t *Transcoder) copyEntry(ctx context.Context, w Writer, entry *Entry, index int) (EntryResult, error) {
	er := EntryResult{
		Index: index,
		Path:  entry.Name(),
		Kind:  entry.Kind,
	}

	if t.filter != nil {
		ok, err := t.filter.Match(entry)
		if err != nil {
			er.Outcome = OutcomeFailed
			er.Err = err
			return er, fmt.Errorf("failed to evaluate filter: %w", err)
		}
		if !ok {
			er.Outcome = OutcomeSkipped
			er.Reason = "excluded by filter"
			return er, nil
		}
	}

	var digester digest.Digester
	counter := &countingWriter{}
	if entry.HasContent() {
		digester = digest.Canonical.Digester()
		entry.Tee(digester.Hash())
		entry.Tee(counter)
	}

	diagnostics, err := w.Append(ctx, entry)
	er.Diagnostics = diagnostics
	if err != nil {
		er.Err = err
		if IsRecoverable(err) {
			er.Outcome = OutcomeSkipped
			er.Reason = err.Error()
			t.logger.Warn("skipping entry", zap.String("path", er.Path), zap.Error(err))
			return er, nil
		}
		er.Outcome = OutcomeFailed
		return er, err
	}

	er.Outcome = OutcomeCopied
	er.Size = counter.n
	if digester != nil {
		er.Digest = digester.Digest()
	}
	for _, d := range diagnostics {
		t.logger.Info("approximated entry metadata", zap.String("path", er.Path), zap.Stringer("diagnostic", d))
	}
	t.logger.Debug("copied entry", zap.String("path", er.Path), zap.Stringer("kind", entry.Kind), zap.Int64("size", er.Size))
	return er, nil
}

func (t *Transcoder) record(result *Result, er EntryResult, total int64) {
	result.add(er)
	if t.progress == nil {
		return
	}

	p := Progress{
		Entry:     er,
		Processed: len(result.Entries),
		BytesRead: result.BytesCopied,
		Total:     total,
	}
	if total > 0 {
		p.Ratio = min(float64(result.BytesCopied)/float64(total), 1)
	}
	t.progress(p)
}

func entryErrorPath(err error) string {
	var entryErr *EntryError
	if errors.As(err, &entryErr) {
		return entryErr.Path
	}
	return ""
}

type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

var _ io.Writer = (*countingWriter)(nil)
