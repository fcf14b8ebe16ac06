package archconv

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/archconv/archconv/internal/engine"
	"github.com/archconv/archconv/internal/engine/filter"
	"github.com/archconv/archconv/internal/engine/readers"
	"github.com/archconv/archconv/internal/engine/writers"
	"go.uber.org/zap"
)

// Request describes one conversion.
type Request struct {
	// Source is a local path, "-" for stdin, or an http(s):// or s3:// URL.
	Source string
	// Destination is a local path, "-" for stdout, or an s3:// URL.
	Destination string

	// SourceHint is the format the caller believes the source has. The signature is
	// always sniffed; a mismatching hint is logged and ignored.
	SourceHint engine.Format
	// Format is the output format. When empty it is derived from the destination name.
	Format engine.Format

	// Filter is an optional CEL expression selecting the entries to copy.
	Filter string

	Level      int
	MinimalZip bool

	// Progress is called after every entry.
	Progress func(engine.Progress)
}

// TargetFormat resolves the output format of r.
func (r Request) TargetFormat() (engine.Format, error) {
	if r.Format != engine.FormatUnknown {
		if !engine.IsSupported(r.Format) {
			return engine.FormatUnknown, fmt.Errorf("%w: %q", engine.ErrUnsupportedFormat, r.Format)
		}
		return r.Format, nil
	}
	if f := engine.FormatFromPath(r.Destination); f != engine.FormatUnknown {
		return f, nil
	}
	return engine.FormatUnknown, fmt.Errorf("%w: cannot infer output format from %q", engine.ErrUnsupportedFormat, r.Destination)
}

// Transcode converts req.Source into req.Destination.
//
// The destination is committed once the transcoder has run. After cancellation or a
// source read failure it holds a valid archive of the entries copied so far. After a
// writer failure it keeps the entries already written, without the trailing structures
// (Result.Finalized is false). The destination is only aborted when setup fails.
func (e *Engine) Transcode(ctx context.Context, req Request) engine.Result {
	logger := e.logger.With(zap.String("source", req.Source), zap.String("destination", req.Destination))

	result, err := e.transcode(ctx, logger, req)
	if err != nil {
		logger.Error("transcode failed", zap.Error(err))
		return engine.FailedResult(req.Source, req.Destination, err)
	}
	return result
}

func (e *Engine) transcode(ctx context.Context, logger *zap.Logger, req Request) (engine.Result, error) {
	format, err := req.TargetFormat()
	if err != nil {
		return engine.Result{}, err
	}

	src, err := engine.ParseLocation(req.Source)
	if err != nil {
		return engine.Result{}, fmt.Errorf("invalid source: %w", err)
	}
	dst, err := engine.ParseLocation(req.Destination)
	if err != nil {
		return engine.Result{}, fmt.Errorf("invalid destination: %w", err)
	}
	if sameLocation(src, dst) {
		return engine.Result{}, fmt.Errorf("source and destination are the same file: %s", src.Path)
	}

	opts := writers.Options{Level: req.Level, MinimalZip: req.MinimalZip, Spool: e.cfg.Spool}
	var topts []engine.TranscoderOption
	if req.Filter != "" {
		f, err := filter.New(req.Filter)
		if err != nil {
			return engine.Result{}, err
		}
		topts = append(topts, engine.WithFilter(f))
	}
	if req.Progress != nil {
		topts = append(topts, engine.WithProgress(req.Progress))
	}

	in, err := e.open(ctx, logger, src, req.SourceHint)
	if err != nil {
		return engine.Result{}, err
	}
	defer in.Close()

	sink, err := e.registry.CreateSink(ctx, dst)
	if err != nil {
		return engine.Result{}, fmt.Errorf("failed to create sink: %w", err)
	}
	defer func() {
		if err := sink.Close(ctx); err != nil {
			logger.Warn("failed to close sink", zap.Error(err))
		}
	}()

	out, err := sink.Create(ctx, dst.Path, format)
	if err != nil {
		return engine.Result{}, fmt.Errorf("failed to create destination: %w", err)
	}

	w, err := writers.New(format, out, opts)
	if err != nil {
		return engine.Result{}, errors.Join(err, out.Abort())
	}

	result := engine.NewTranscoder(logger.Named("transcoder"), topts...).Run(ctx, in.reader, w)
	result.Source = req.Source
	result.Destination = req.Destination

	// Without Finalize this flushes the entries written before the failure.
	if err := w.Close(); err != nil {
		logger.Warn("failed to close writer", zap.Error(err))
	}
	if !result.Finalized {
		logger.Warn("keeping unfinalized output", zap.Int("copied", result.Copied))
	}

	// Publishing must survive a cancelled context.
	if err := out.Commit(context.WithoutCancel(ctx)); err != nil {
		result.Status = engine.StatusFailed
		result.Err = errors.Join(result.Err, fmt.Errorf("failed to commit %s: %w", dst, err))
	}
	return result, nil
}

// Probe identifies the container format of the archive at location.
func (e *Engine) Probe(ctx context.Context, location string) (engine.Format, error) {
	loc, err := engine.ParseLocation(location)
	if err != nil {
		return engine.FormatUnknown, err
	}

	handle, err := e.openHandle(ctx, loc)
	if err != nil {
		return engine.FormatUnknown, err
	}
	defer handle.Close()

	return engine.Sniff(handle)
}

// OutputPath names the converted form of source inside dir: the source base name with
// its archive extension replaced by the one of format.
func OutputPath(dir, source string, format engine.Format) string {
	base := filepath.Base(source)
	if loc, err := engine.ParseLocation(source); err == nil {
		base = loc.Base()
	}
	name := engine.TrimExtension(base) + format.Extension()

	if strings.Contains(dir, "://") {
		return strings.TrimSuffix(dir, "/") + "/" + name
	}
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, name)
}

type opened struct {
	handle engine.Handle
	reader engine.Reader
}

func (o *opened) Close() error {
	return errors.Join(o.reader.Close(), o.handle.Close())
}

func (e *Engine) openHandle(ctx context.Context, loc engine.Location) (engine.Handle, error) {
	source, err := e.registry.CreateSource(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to create source: %w", err)
	}
	return source.Open(ctx)
}

// open sniffs the source and returns its reader. The hint only produces a warning.
func (e *Engine) open(ctx context.Context, logger *zap.Logger, loc engine.Location, hint engine.Format) (*opened, error) {
	handle, err := e.openHandle(ctx, loc)
	if err != nil {
		return nil, err
	}

	format, err := engine.Sniff(handle)
	if err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("failed to identify %s: %w", loc, err)
	}
	if hint != engine.FormatUnknown && hint != format {
		logger.Warn("source format hint does not match its signature",
			zap.Stringer("hint", hint),
			zap.Stringer("sniffed", format),
		)
	}

	r, err := readers.Open(format, handle, handle.Size(), logger.Named("reader"))
	if err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("failed to open %s archive: %w", format, err)
	}
	return &opened{handle: handle, reader: r}, nil
}

func sameLocation(a, b engine.Location) bool {
	if a.Scheme != b.Scheme {
		return false
	}
	switch a.Scheme {
	case engine.SchemeFile:
		pa, errA := filepath.Abs(a.Path)
		pb, errB := filepath.Abs(b.Path)
		return errA == nil && errB == nil && pa == pb
	case engine.SchemeS3:
		return a.Host == b.Host && path.Clean(a.Path) == path.Clean(b.Path)
	default:
		return false
	}
}
