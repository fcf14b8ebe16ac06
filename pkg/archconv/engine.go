// Package archconv converts archives between container formats. It resolves source and
// destination locations, sniffs the source format, and drives the streaming transcoder.
package archconv

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/archconv/archconv/internal/engine"
	"github.com/archconv/archconv/internal/engine/sinks"
	"github.com/archconv/archconv/internal/engine/sources"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Config holds everything an Engine needs from its environment. The zero value uses the
// OS filesystem, the OS temp directory and the process stdio.
type Config struct {
	// FS backs local sources and destinations.
	FS afero.Fs

	// Spool is where remote sources, streamed output and 7z packed streams are buffered.
	Spool engine.SpoolConfig

	S3   sinks.S3Config
	HTTP sources.HTTPConfig

	Stdin  io.Reader
	Stdout io.Writer
}

// Engine runs transcode operations. It is safe for concurrent use.
type Engine struct {
	logger   *zap.Logger
	cfg      Config
	registry *engine.Registry

	s3Once   sync.Once
	s3Client *s3.Client
	s3Err    error

	mu         sync.Mutex
	nextID     uint64
	operations map[string]*Operation
}

func New(logger *zap.Logger, cfg Config) *Engine {
	if cfg.FS == nil {
		cfg.FS = afero.NewOsFs()
	}
	if cfg.Stdin == nil {
		cfg.Stdin = os.Stdin
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}

	e := &Engine{
		logger:     logger,
		cfg:        cfg,
		registry:   engine.NewRegistry(logger.Named("registry")),
		operations: make(map[string]*Operation),
	}
	e.registerDefaults()
	return e
}

// Registry exposes the scheme registry so callers can add or replace sources and sinks.
func (e *Engine) Registry() *engine.Registry {
	return e.registry
}

func (e *Engine) registerDefaults() {
	e.registry.RegisterSource(engine.SchemeFile, func(ctx context.Context, logger *zap.Logger, loc engine.Location) (engine.Source, error) {
		return sources.NewLocalSource(e.cfg.FS, loc.Path), nil
	})
	e.registry.RegisterSink(engine.SchemeFile, func(ctx context.Context, logger *zap.Logger, loc engine.Location) (engine.Sink, error) {
		return sinks.NewFilesystemSink(e.cfg.FS), nil
	})

	e.registry.RegisterSource(engine.SchemeStdio, func(ctx context.Context, logger *zap.Logger, loc engine.Location) (engine.Source, error) {
		return sources.NewStreamSource(e.cfg.Stdin, e.cfg.Spool), nil
	})
	e.registry.RegisterSink(engine.SchemeStdio, func(ctx context.Context, logger *zap.Logger, loc engine.Location) (engine.Sink, error) {
		return sinks.NewStreamSink(e.cfg.Stdout, e.cfg.Spool), nil
	})

	httpSource := func(ctx context.Context, logger *zap.Logger, loc engine.Location) (engine.Source, error) {
		return sources.NewHTTPSource(loc.Raw, e.cfg.HTTP, e.cfg.Spool)
	}
	e.registry.RegisterSource(engine.SchemeHTTP, httpSource)
	e.registry.RegisterSource(engine.SchemeHTTPS, httpSource)

	e.registry.RegisterSource(engine.SchemeS3, func(ctx context.Context, logger *zap.Logger, loc engine.Location) (engine.Source, error) {
		client, err := e.s3(ctx)
		if err != nil {
			return nil, err
		}
		return sources.NewS3Source(client, loc.Host, loc.Path, e.cfg.Spool), nil
	})
	e.registry.RegisterSink(engine.SchemeS3, func(ctx context.Context, logger *zap.Logger, loc engine.Location) (engine.Sink, error) {
		return sinks.NewS3Sink(ctx, e.cfg.S3, loc.Host, "", e.cfg.Spool)
	})
}

// s3 lazily builds the client shared by S3 sources.
func (e *Engine) s3(ctx context.Context) (*s3.Client, error) {
	e.s3Once.Do(func() {
		e.s3Client, e.s3Err = sinks.NewS3Client(ctx, e.cfg.S3)
	})
	return e.s3Client, e.s3Err
}
