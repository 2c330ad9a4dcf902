package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"kiln/internal/content"
	"kiln/internal/urlattrs"
)

// ErrNotFound marks a lookup for a name nobody registered.
var ErrNotFound = errors.New("not registered")

// Kind labels the three callable families.
type Kind string

const (
	KindProcessor Kind = "processor"
	KindGenerator Kind = "generator"
	KindAnalyser  Kind = "analyser"
)

// Processor transforms existing content.
type Processor interface {
	Process(ctx context.Context, c *content.Content, args ...any) error
}

// Generator produces content from its arguments alone.
type Generator interface {
	Generate(ctx context.Context, c *content.Content, args ...any) error
}

// Analyser computes a value from content without changing it.
type Analyser interface {
	Analyse(ctx context.Context, c *content.Content, args ...any) (any, error)
}

// URLUpdater is implemented by processors and generators that want to
// influence URL attributes at step-construction time.
type URLUpdater interface {
	UpdateURL(attrs urlattrs.Attrs, args ...any)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, c *content.Content, args ...any) error

func (f ProcessorFunc) Process(ctx context.Context, c *content.Content, args ...any) error {
	return f(ctx, c, args...)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, c *content.Content, args ...any) error

func (f GeneratorFunc) Generate(ctx context.Context, c *content.Content, args ...any) error {
	return f(ctx, c, args...)
}

// AnalyserFunc adapts a function to Analyser.
type AnalyserFunc func(ctx context.Context, c *content.Content, args ...any) (any, error)

func (f AnalyserFunc) Analyse(ctx context.Context, c *content.Content, args ...any) (any, error) {
	return f(ctx, c, args...)
}

// URLUpdateFunc adapts a function to URLUpdater.
type URLUpdateFunc func(attrs urlattrs.Attrs, args ...any)

// Registry is a concurrency-safe name table.
type Registry struct {
	mu         sync.RWMutex
	processors map[string]Processor
	generators map[string]Generator
	analysers  map[string]Analyser
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		processors: map[string]Processor{},
		generators: map[string]Generator{},
		analysers:  map[string]Analyser{},
	}
}

// AddProcessor registers p under name, replacing any previous entry.
func (r *Registry) AddProcessor(name string, p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[name] = p
}

// AddGenerator registers g under name, replacing any previous entry.
func (r *Registry) AddGenerator(name string, g Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generators[name] = g
}

// AddAnalyser registers a under name, replacing any previous entry.
func (r *Registry) AddAnalyser(name string, a Analyser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analysers[name] = a
}

// Processor looks up a processor by name.
func (r *Registry) Processor(name string) (Processor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.processors[name]; ok {
		return p, nil
	}
	return nil, notFound(KindProcessor, name)
}

// Generator looks up a generator by name.
func (r *Registry) Generator(name string) (Generator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if g, ok := r.generators[name]; ok {
		return g, nil
	}
	return nil, notFound(KindGenerator, name)
}

// Analyser looks up an analyser by name.
func (r *Registry) Analyser(name string) (Analyser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.analysers[name]; ok {
		return a, nil
	}
	return nil, notFound(KindAnalyser, name)
}

// Names lists registered names of the given kind, sorted.
func (r *Registry) Names(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case KindProcessor:
		for name := range r.processors {
			names = append(names, name)
		}
	case KindGenerator:
		for name := range r.generators {
			names = append(names, name)
		}
	case KindAnalyser:
		for name := range r.analysers {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func notFound(kind Kind, name string) error {
	return fmt.Errorf("%s %q: %w", kind, name, ErrNotFound)
}
