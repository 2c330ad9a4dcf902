package registry

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"kiln/internal/content"
	"kiln/internal/urlattrs"
)

func TestLookupUnknownNameReturnsNotFound(t *testing.T) {
	reg := New()
	_, err := reg.Processor("resize")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), `processor "resize"`) {
		t.Fatalf("expected kind and name in error, got %q", err)
	}
	if _, err := reg.Generator("plasma"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for generator, got %v", err)
	}
	if _, err := reg.Analyser("width"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for analyser, got %v", err)
	}
}

func TestProcessorFuncInvoked(t *testing.T) {
	reg := New()
	reg.AddProcessor("double", ProcessorFunc(func(_ context.Context, c *content.Content, _ ...any) error {
		c.Update(append(append([]byte(nil), c.Data()...), c.Data()...), nil)
		return nil
	}))

	p, err := reg.Processor("double")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	c := content.New([]byte("ab"))
	if err := p.Process(context.Background(), c); err != nil {
		t.Fatalf("process: %v", err)
	}
	if string(c.Data()) != "abab" {
		t.Fatalf("unexpected data %q", c.Data())
	}
}

func TestWithURLUpdateExposesHook(t *testing.T) {
	var gotArgs []any
	p := WithURLUpdate(ProcessorFunc(func(context.Context, *content.Content, ...any) error { return nil }),
		func(attrs urlattrs.Attrs, args ...any) {
			gotArgs = args
			attrs.Set("size", args[0])
		})

	updater, ok := p.(URLUpdater)
	if !ok {
		t.Fatal("expected decorated processor to implement URLUpdater")
	}
	attrs := urlattrs.New()
	updater.UpdateURL(attrs, "20x30")
	if attrs.String("size") != "20x30" {
		t.Fatalf("hook did not run: %v", attrs)
	}
	if !reflect.DeepEqual(gotArgs, []any{"20x30"}) {
		t.Fatalf("unexpected args %v", gotArgs)
	}
}

func TestNamesSorted(t *testing.T) {
	reg := New()
	noop := GeneratorFunc(func(context.Context, *content.Content, ...any) error { return nil })
	reg.AddGenerator("text", noop)
	reg.AddGenerator("plasma", noop)
	if got := reg.Names(KindGenerator); !reflect.DeepEqual(got, []string{"plasma", "text"}) {
		t.Fatalf("unexpected names %v", got)
	}
}
