package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

type SourceFactory func(ctx context.Context, logger *zap.Logger, location Location) (Source, error)
type SinkFactory func(ctx context.Context, logger *zap.Logger, location Location) (Sink, error)

// UnsupportedTypeError is returned when no source or sink is registered for a scheme.
type UnsupportedTypeError struct {
	Category  string   // "source" or "sink"
	Kind      string   // the requested scheme
	Available []string // registered schemes
}

func (e *UnsupportedTypeError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("unsupported %s type %q: no %ss registered", e.Category, e.Kind, e.Category)
	}
	return fmt.Sprintf("unsupported %s type %q (available: %v)", e.Category, e.Kind, e.Available)
}

// Registry maps location schemes to source and sink factories.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]SourceFactory
	sinks   map[string]SinkFactory
	logger  *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		sources: make(map[string]SourceFactory),
		sinks:   make(map[string]SinkFactory),
		logger:  logger,
	}
}

func (r *Registry) RegisterSource(scheme string, factory SourceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[scheme] = factory
}

func (r *Registry) RegisterSink(scheme string, factory SinkFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[scheme] = factory
}

func (r *Registry) CreateSource(ctx context.Context, location Location) (Source, error) {
	r.mu.RLock()
	factory, ok := r.sources[location.Scheme]
	available := r.availableSources()
	r.mu.RUnlock()
	if !ok {
		return nil, &UnsupportedTypeError{Category: "source", Kind: location.Scheme, Available: available}
	}
	return factory(ctx, r.logger, location)
}

func (r *Registry) CreateSink(ctx context.Context, location Location) (Sink, error) {
	r.mu.RLock()
	factory, ok := r.sinks[location.Scheme]
	available := r.availableSinks()
	r.mu.RUnlock()
	if !ok {
		return nil, &UnsupportedTypeError{Category: "sink", Kind: location.Scheme, Available: available}
	}
	return factory(ctx, r.logger, location)
}

func (r *Registry) AvailableSources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.availableSources()
}

func (r *Registry) availableSources() []string {
	sources := lo.Keys(r.sources)
	slices.Sort(sources)
	return sources
}

func (r *Registry) AvailableSinks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.availableSinks()
}

func (r *Registry) availableSinks() []string {
	sinks := lo.Keys(r.sinks)
	slices.Sort(sinks)
	return sinks
}
