package engine

import (
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/samber/lo"
)

// Outcome is what happened to a single entry.
type Outcome string

const (
	OutcomeCopied  Outcome = "copied"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Status is the aggregate state of a transcode.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

type EntryResult struct {
	Index       int           `json:"index"`
	Path        string        `json:"path"`
	Kind        Kind          `json:"kind"`
	Size        int64         `json:"size"`
	Outcome     Outcome       `json:"outcome"`
	Reason      string        `json:"reason,omitempty"`
	Err         error         `json:"-"`
	Diagnostics []Diagnostic  `json:"diagnostics,omitempty"`
	Digest      digest.Digest `json:"digest,omitempty"`
}

type Result struct {
	Source       string        `json:"source"`
	Destination  string        `json:"destination"`
	SourceFormat Format        `json:"source_format"`
	Format       Format        `json:"format"`
	Status       Status        `json:"status"`
	Entries      []EntryResult `json:"entries"`
	Copied       int           `json:"copied"`
	Skipped      int           `json:"skipped"`
	Failed       int           `json:"failed"`
	BytesCopied  int64         `json:"bytes_copied"`
	// Finalized reports whether the writer emitted its trailing structures, i.e. whether
	// the destination holds a complete archive.
	Finalized    bool          `json:"finalized"`
	Err          error         `json:"-"`
	Started      time.Time     `json:"started"`
	Finished     time.Time     `json:"finished"`
}

// FailedResult builds the result of an operation that stopped before any entry was read.
func FailedResult(source, destination string, err error) Result {
	now := time.Now().UTC()
	return Result{
		Source:      source,
		Destination: destination,
		Status:      StatusFailed,
		Err:         err,
		Started:     now,
		Finished:    now,
	}
}

func (r *Result) add(er EntryResult) {
	switch er.Outcome {
	case OutcomeCopied:
		r.Copied++
		r.BytesCopied += er.Size
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeFailed:
		r.Failed++
	}
	r.Entries = append(r.Entries, er)
}

// fail records the first fatal error; later ones are ignored.
func (r *Result) fail(status Status, err error) {
	r.Status = status
	if r.Err == nil {
		r.Err = err
	}
}

// SkippedEntries returns every skipped entry with its reason.
func (r *Result) SkippedEntries() []EntryResult {
	return lo.Filter(r.Entries, func(er EntryResult, _ int) bool {
		return er.Outcome == OutcomeSkipped
	})
}

// CopiedEntries returns the entries written to the destination, in order.
func (r *Result) CopiedEntries() []EntryResult {
	return lo.Filter(r.Entries, func(er EntryResult, _ int) bool {
		return er.Outcome == OutcomeCopied
	})
}

func (r *Result) Succeeded() bool {
	return r.Status == StatusCompleted
}

func (r *Result) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}
