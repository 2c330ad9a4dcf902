package registry

import "kiln/internal/urlattrs"

// WithURLUpdate decorates a processor with a construction-time URL hook.
func WithURLUpdate(p Processor, hook URLUpdateFunc) Processor {
	return hookedProcessor{Processor: p, hook: hook}
}

// GeneratorWithURLUpdate decorates a generator with a construction-time URL hook.
func GeneratorWithURLUpdate(g Generator, hook URLUpdateFunc) Generator {
	return hookedGenerator{Generator: g, hook: hook}
}

type hookedProcessor struct {
	Processor
	hook URLUpdateFunc
}

func (h hookedProcessor) UpdateURL(attrs urlattrs.Attrs, args ...any) {
	if h.hook != nil {
		h.hook(attrs, args...)
	}
}

type hookedGenerator struct {
	Generator
	hook URLUpdateFunc
}

func (h hookedGenerator) UpdateURL(attrs urlattrs.Attrs, args ...any) {
	if h.hook != nil {
		h.hook(attrs, args...)
	}
}
