package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	v1 "github.com/archconv/archconv/apis/v1"
	"github.com/archconv/archconv/internal/engine"
	"github.com/archconv/archconv/internal/engine/sinks"
	"github.com/archconv/archconv/internal/engine/sources"
	"github.com/archconv/archconv/pkg/archconv"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultConcurrency = 4

// Options carry the process environment into a Runner.
type Options struct {
	// FS backs local paths and the spool directory. Defaults to the OS filesystem.
	FS     afero.Fs
	Stdin  io.Reader
	Stdout io.Writer

	// Progress, when set, receives entry progress of every conversion.
	Progress func(id string, p engine.Progress)
}

// Runner executes the conversions of an expanded ConvertJob.
type Runner struct {
	logger      *zap.Logger
	job         v1.ConvertJob
	engine      *archconv.Engine
	requests    []archconv.Request
	concurrency int
	progress    func(id string, p engine.Progress)
}

// ConversionResult is the outcome of one conversion of the job.
type ConversionResult struct {
	ID string `json:"id"`
	engine.Result
}

// Report collects the results of a run in job order.
type Report struct {
	Job      string             `json:"job"`
	Results  []ConversionResult `json:"results"`
	Duration time.Duration      `json:"duration"`
}

// Failed returns the conversions that did not complete.
func (r Report) Failed() []ConversionResult {
	return lo.Filter(r.Results, func(res ConversionResult, _ int) bool {
		return !res.Succeeded()
	})
}

// New prepares a runner. job must already have been expanded with ExpandJob.
func New(logger *zap.Logger, job v1.ConvertJob, opts Options) (*Runner, error) {
	logger.Info("creating runner",
		zap.String("job_name", job.Metadata.Name),
		zap.Int("conversions", len(job.Spec.Conversions)),
	)

	requests := make([]archconv.Request, 0, len(job.Spec.Conversions))
	for _, c := range job.Spec.Conversions {
		req, err := buildRequest(c)
		if err != nil {
			return nil, fmt.Errorf("conversion %q: %w", c.ID, err)
		}
		requests = append(requests, req)
	}

	destinations := lo.Map(requests, func(req archconv.Request, _ int) string { return req.Destination })
	if dups := lo.FindDuplicates(destinations); len(dups) > 0 {
		return nil, fmt.Errorf("conversions share destinations: %v", dups)
	}

	concurrency := job.Spec.Concurrency
	if concurrency == 0 {
		concurrency = DefaultConcurrency
	}

	return &Runner{
		logger:      logger,
		job:         job,
		engine:      archconv.New(logger.Named("engine"), buildConfig(job, opts)),
		requests:    requests,
		concurrency: concurrency,
		progress:    opts.Progress,
	}, nil
}

// Run executes every conversion with at most the configured concurrency. A failed
// conversion does not stop the others; the returned error joins every failure.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	started := time.Now()
	report := Report{
		Job:     r.job.Metadata.Name,
		Results: make([]ConversionResult, len(r.requests)),
	}

	var g errgroup.Group
	g.SetLimit(r.concurrency)

	for i, req := range r.requests {
		id := r.job.Spec.Conversions[i].ID
		if r.progress != nil {
			req.Progress = func(p engine.Progress) {
				r.progress(id, p)
			}
		}

		g.Go(func() error {
			logger := r.logger.With(zap.String("conversion_id", id))
			logger.Info("starting conversion", zap.String("source", req.Source), zap.String("destination", req.Destination))

			result := r.engine.Transcode(ctx, req)
			report.Results[i] = ConversionResult{ID: id, Result: result}

			if result.Succeeded() {
				logger.Info("conversion finished", zap.Int("copied", result.Copied), zap.Int("skipped", result.Skipped))
			} else {
				logger.Error("conversion failed", zap.String("status", string(result.Status)), zap.Error(result.Err))
			}
			return nil
		})
	}
	_ = g.Wait()
	report.Duration = time.Since(started)

	var errs error
	for _, res := range report.Failed() {
		errs = errors.Join(errs, fmt.Errorf("conversion %q %s: %w", res.ID, res.Status, res.Err))
	}
	return report, errs
}

func buildRequest(c v1.Conversion) (archconv.Request, error) {
	req := archconv.Request{
		Source:      c.Source,
		Destination: c.Destination,
		Filter:      c.Filter,
		MinimalZip:  c.MinimalZip,
	}

	if c.Format != "" {
		format, err := engine.ParseFormat(c.Format)
		if err != nil {
			return archconv.Request{}, err
		}
		req.Format = format
	}
	if c.SourceFormat != "" {
		hint, err := engine.ParseFormat(c.SourceFormat)
		if err != nil {
			return archconv.Request{}, err
		}
		req.SourceHint = hint
	}
	if c.Level != nil {
		req.Level = *c.Level
	}

	if req.Destination == "" {
		req.Destination = archconv.OutputPath(c.OutputDir, c.Source, req.Format)
	}
	return req, nil
}

func buildConfig(job v1.ConvertJob, opts Options) archconv.Config {
	cfg := archconv.Config{
		FS:     opts.FS,
		Spool:  engine.SpoolConfig{FS: opts.FS, Dir: job.Spec.SpoolDir},
		Stdin:  opts.Stdin,
		Stdout: opts.Stdout,
	}

	if s3Spec := job.Spec.S3; s3Spec != nil {
		cfg.S3 = sinks.S3Config{
			Region:         lo.FromPtr(s3Spec.Region),
			Endpoint:       lo.FromPtr(s3Spec.Endpoint),
			ForcePathStyle: s3Spec.ForcePathStyle,
		}
		if s3Spec.Credentials != nil {
			cfg.S3.AccessKeyID = s3Spec.Credentials.AccessKeyID
			cfg.S3.SecretAccessKey = s3Spec.Credentials.SecretAccessKey
		}
	}

	if httpSpec := job.Spec.HTTP; httpSpec != nil {
		cfg.HTTP = sources.HTTPConfig{
			Headers:  httpSpec.Headers,
			Insecure: httpSpec.Insecure,
		}
		if httpSpec.Auth != nil && httpSpec.Auth.Basic != nil {
			cfg.HTTP.Auth = &sources.BasicAuthConfig{
				Username: httpSpec.Auth.Basic.Username,
				Password: httpSpec.Auth.Basic.Password,
				Encoded:  httpSpec.Auth.Basic.Encoded,
			}
		}
		if httpSpec.Timeout != nil {
			cfg.HTTP.Timeout = time.Duration(*httpSpec.Timeout) * time.Second
		}
	}

	return cfg
}
