package job

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"kiln/internal/serializer"
)

// Step is one stage of a pipeline. Its arguments are fixed at construction;
// only the applied flag changes afterwards.
type Step struct {
	kind    Kind
	args    []any
	applied bool
}

func newStep(kind Kind, args []any) *Step {
	normalized := make([]any, len(args))
	for i, arg := range args {
		normalized[i] = serializer.Normalize(arg)
	}
	return &Step{kind: kind, args: normalized}
}

func (s *Step) clone() *Step {
	c := *s
	c.args = copyArgs(s.args)
	return &c
}

func copyArgs(args []any) []any {
	if args == nil {
		return nil
	}
	out := make([]any, len(args))
	for i, arg := range args {
		out[i] = serializer.DeepCopy(arg)
	}
	return out
}

// Kind returns the step variant.
func (s *Step) Kind() Kind { return s.kind }

// Applied reports whether the step's effect has been committed.
func (s *Step) Applied() bool { return s.applied }

// Args returns a copy of the positional arguments.
func (s *Step) Args() []any { return copyArgs(s.args) }

// ToArray returns the wire form: abbreviation followed by args.
func (s *Step) ToArray() []any {
	return append([]any{s.kind.Abbreviation()}, copyArgs(s.args)...)
}

func (s *Step) String() string {
	return fmt.Sprintf("%s%v", s.kind, s.args)
}

func (s *Step) firstString() string {
	if len(s.args) == 0 {
		return ""
	}
	if str, ok := s.args[0].(string); ok {
		return str
	}
	return fmt.Sprint(s.args[0])
}

// UID returns the datastore identifier of a fetch step.
func (s *Step) UID() string {
	if s.kind != KindFetch {
		return ""
	}
	return s.firstString()
}

// Name returns the callable name of a generate or process step.
func (s *Step) Name() string {
	if s.kind != KindGenerate && s.kind != KindProcess {
		return ""
	}
	return s.firstString()
}

// Arguments returns the arguments passed to a generate or process callable.
func (s *Step) Arguments() []any {
	if (s.kind != KindGenerate && s.kind != KindProcess) || len(s.args) == 0 {
		return nil
	}
	return copyArgs(s.args[1:])
}

// Path returns the absolute path of a fetch_file step.
func (s *Step) Path() string {
	if s.kind != KindFetchFile {
		return ""
	}
	raw := s.firstString()
	if raw == "" {
		return ""
	}
	abs, err := filepath.Abs(raw)
	if err != nil {
		return raw
	}
	return abs
}

// Filename returns the base name of a fetch_file path or the last segment
// of a fetch_url path. It is empty when no name can be derived.
func (s *Step) Filename() string {
	switch s.kind {
	case KindFetchFile:
		if p := s.Path(); p != "" {
			return filepath.Base(p)
		}
	case KindFetchURL:
		return urlFilename(s.URL())
	}
	return ""
}

var schemePattern = regexp.MustCompile(`^\w+:[^\d]`)

// URL returns the fetch_url target with the scheme defaulted to http.
func (s *Step) URL() string {
	if s.kind != KindFetchURL {
		return ""
	}
	raw := s.firstString()
	if raw == "" || schemePattern.MatchString(raw) {
		return raw
	}
	return "http://" + raw
}

func urlFilename(raw string) string {
	if strings.HasPrefix(raw, "data:") {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	p := parsed.Path
	if p == "" || strings.HasSuffix(p, "/") {
		return ""
	}
	return p[strings.LastIndex(p, "/")+1:]
}
