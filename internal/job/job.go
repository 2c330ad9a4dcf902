package job

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/zeebo/blake3"

	"kiln/internal/content"
	"kiln/internal/logging"
	"kiln/internal/registry"
	"kiln/internal/serializer"
	"kiln/internal/signer"
	"kiln/internal/urlattrs"
)

// Job is an ordered pipeline of steps plus the content they produce.
// A single Job must not be used from multiple goroutines at once; copies
// returned by the chaining methods are fully independent.
type Job struct {
	engine   *Engine
	steps    []*Step
	content  *content.Content
	urlAttrs urlattrs.Attrs
}

func newJob(e *Engine, c *content.Content) *Job {
	return &Job{engine: e, content: c, urlAttrs: urlattrs.New()}
}

// Engine returns the engine the job was created by.
func (j *Job) Engine() *Engine { return j.engine }

// Clone returns a deep copy including applied flags, content and url attrs.
func (j *Job) Clone() *Job {
	steps := make([]*Step, len(j.steps))
	for i, s := range j.steps {
		steps[i] = s.clone()
	}
	return &Job{
		engine:   j.engine,
		steps:    steps,
		content:  j.content.Clone(),
		urlAttrs: j.urlAttrs.Clone(),
	}
}

func (j *Job) addStep(kind Kind, args []any) *Job {
	s := newStep(kind, args)
	j.steps = append(j.steps, s)
	j.onAdd(s)
	return j
}

// onAdd runs construction-time effects. They are observable before apply.
func (j *Job) onAdd(s *Step) {
	switch s.kind {
	case KindFetchFile, KindFetchURL:
		if name := s.Filename(); name != "" {
			j.urlAttrs.Set(urlattrs.Name, name)
		}
	case KindGenerate, KindProcess:
		j.runURLHook(s)
	}
}

func (j *Job) runURLHook(s *Step) {
	var callable any
	var err error
	if s.kind == KindGenerate {
		callable, err = j.engine.registry.Generator(s.Name())
	} else {
		callable, err = j.engine.registry.Processor(s.Name())
	}
	if err != nil {
		// Unknown names surface when the step is applied.
		return
	}
	if updater, ok := callable.(registry.URLUpdater); ok {
		updater.UpdateURL(j.urlAttrs, s.Arguments()...)
	}
}

// AddFetch appends a fetch step and returns j.
func (j *Job) AddFetch(uid string) *Job { return j.addStep(KindFetch, []any{uid}) }

// AddFetchFile appends a fetch_file step and returns j.
func (j *Job) AddFetchFile(path string) *Job { return j.addStep(KindFetchFile, []any{path}) }

// AddFetchURL appends a fetch_url step and returns j.
func (j *Job) AddFetchURL(rawURL string) *Job { return j.addStep(KindFetchURL, []any{rawURL}) }

// AddGenerate appends a generate step and returns j.
func (j *Job) AddGenerate(name string, args ...any) *Job {
	return j.addStep(KindGenerate, append([]any{name}, args...))
}

// AddProcess appends a process step and returns j.
func (j *Job) AddProcess(name string, args ...any) *Job {
	return j.addStep(KindProcess, append([]any{name}, args...))
}

// Fetch returns a copy of j with a fetch step appended.
func (j *Job) Fetch(uid string) *Job { return j.Clone().AddFetch(uid) }

// FetchFile returns a copy of j with a fetch_file step appended.
func (j *Job) FetchFile(path string) *Job { return j.Clone().AddFetchFile(path) }

// FetchURL returns a copy of j with a fetch_url step appended.
func (j *Job) FetchURL(rawURL string) *Job { return j.Clone().AddFetchURL(rawURL) }

// Generate returns a copy of j with a generate step appended.
func (j *Job) Generate(name string, args ...any) *Job { return j.Clone().AddGenerate(name, args...) }

// Process returns a copy of j with a process step appended.
func (j *Job) Process(name string, args ...any) *Job { return j.Clone().AddProcess(name, args...) }

// Apply runs every pending step in order and returns j. A step is marked
// applied only once its output has replaced the job's content; on failure
// the failing step stays pending and earlier results are kept.
func (j *Job) Apply(ctx context.Context) (*Job, error) {
	logger := logging.WithContext(ctx, j.engine.logger)
	for i, s := range j.steps {
		if s.applied {
			continue
		}
		work := j.content.Clone()
		if err := j.applyStep(ctx, s, work); err != nil {
			logging.WarnWithContext(logger, "step failed", "job_step_failed",
				logging.String(logging.FieldStep, s.kind.String()),
				logging.Int("index", i),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, stepHint(err)),
				logging.String(logging.FieldImpact, "job left partially applied"),
			)
			return j, fmt.Errorf("%s step %d: %w", s.kind, i, err)
		}
		j.content = work
		s.applied = true
		logger.Debug("step applied",
			logging.String(logging.FieldStep, s.kind.String()),
			logging.Int("index", i),
			logging.Int("size", work.Size()),
		)
	}
	return j, nil
}

func stepHint(err error) string {
	var resp *ErrorResponse
	switch {
	case errors.As(err, &resp):
		return "check that the source URL is reachable"
	case errors.Is(err, registry.ErrNotFound):
		return "register the named processor or generator"
	case errors.Is(err, ErrNoDatastore):
		return "configure a datastore backend"
	}
	return "check the step arguments"
}

// Applied reports whether every step has been applied. An empty job is
// applied.
func (j *Job) Applied() bool {
	return len(j.PendingSteps()) == 0
}

// Steps returns the step list. The slice is a copy; the steps are shared.
func (j *Job) Steps() []*Step { return slices.Clone(j.steps) }

// AppliedSteps returns the applied prefix of the step list.
func (j *Job) AppliedSteps() []*Step {
	return slices.Clone(j.steps[:j.appliedCount()])
}

// PendingSteps returns the steps not yet applied.
func (j *Job) PendingSteps() []*Step {
	return slices.Clone(j.steps[j.appliedCount():])
}

func (j *Job) appliedCount() int {
	for i, s := range j.steps {
		if !s.applied {
			return i
		}
	}
	return len(j.steps)
}

func (j *Job) firstStep(kind Kind) *Step {
	for _, s := range j.steps {
		if s.kind == kind {
			return s
		}
	}
	return nil
}

// FetchStep returns the first fetch step, or nil.
func (j *Job) FetchStep() *Step { return j.firstStep(KindFetch) }

// FetchFileStep returns the first fetch_file step, or nil.
func (j *Job) FetchFileStep() *Step { return j.firstStep(KindFetchFile) }

// FetchURLStep returns the first fetch_url step, or nil.
func (j *Job) FetchURLStep() *Step { return j.firstStep(KindFetchURL) }

// GenerateStep returns the first generate step, or nil.
func (j *Job) GenerateStep() *Step { return j.firstStep(KindGenerate) }

// ProcessSteps returns every process step in order.
func (j *Job) ProcessSteps() []*Step {
	var out []*Step
	for _, s := range j.steps {
		if s.kind == KindProcess {
			out = append(out, s)
		}
	}
	return out
}

// StepTypes returns the kind of each step in order.
func (j *Job) StepTypes() []Kind {
	out := make([]Kind, len(j.steps))
	for i, s := range j.steps {
		out[i] = s.kind
	}
	return out
}

// UID returns the uid of the fetch step, or "" when there is none.
func (j *Job) UID() string {
	if s := j.FetchStep(); s != nil {
		return s.UID()
	}
	return ""
}

// Content returns the current content without applying pending steps.
func (j *Job) Content() *content.Content { return j.content }

// Result applies the job and returns its content.
func (j *Job) Result(ctx context.Context) (*content.Content, error) {
	if _, err := j.Apply(ctx); err != nil {
		return nil, err
	}
	return j.content, nil
}

// Data applies the job and returns the resulting bytes.
func (j *Job) Data(ctx context.Context) ([]byte, error) {
	c, err := j.Result(ctx)
	if err != nil {
		return nil, err
	}
	return c.Data(), nil
}

// Meta applies the job and returns the resulting metadata.
func (j *Job) Meta(ctx context.Context) (map[string]any, error) {
	c, err := j.Result(ctx)
	if err != nil {
		return nil, err
	}
	return c.Meta(), nil
}

// SetMeta applies the job and replaces the resulting metadata.
func (j *Job) SetMeta(ctx context.Context, meta map[string]any) error {
	c, err := j.Result(ctx)
	if err != nil {
		return err
	}
	c.SetMeta(meta)
	return nil
}

// Size applies the job and returns the resulting byte count.
func (j *Job) Size(ctx context.Context) (int, error) {
	c, err := j.Result(ctx)
	if err != nil {
		return 0, err
	}
	return c.Size(), nil
}

// Name applies the job and returns the resulting file name.
func (j *Job) Name(ctx context.Context) (string, error) {
	return j.resultString(ctx, (*content.Content).Name)
}

// Basename applies the job and returns the name without extension.
func (j *Job) Basename(ctx context.Context) (string, error) {
	return j.resultString(ctx, (*content.Content).Basename)
}

// Ext applies the job and returns the name's extension.
func (j *Job) Ext(ctx context.Context) (string, error) {
	return j.resultString(ctx, (*content.Content).Ext)
}

// MimeType applies the job and returns the media type derived from its name.
func (j *Job) MimeType(ctx context.Context) (string, error) {
	return j.resultString(ctx, (*content.Content).MimeType)
}

// B64Data applies the job and returns the result as a data URI.
func (j *Job) B64Data(ctx context.Context) (string, error) {
	return j.resultString(ctx, (*content.Content).B64Data)
}

func (j *Job) resultString(ctx context.Context, fn func(*content.Content) string) (string, error) {
	c, err := j.Result(ctx)
	if err != nil {
		return "", err
	}
	return fn(c), nil
}

// Analyse applies the job and runs the named analyser over the result.
func (j *Job) Analyse(ctx context.Context, name string, args ...any) (any, error) {
	analyser, err := j.engine.registry.Analyser(name)
	if err != nil {
		return nil, err
	}
	c, err := j.Result(ctx)
	if err != nil {
		return nil, err
	}
	normalized := make([]any, len(args))
	for i, arg := range args {
		normalized[i] = serializer.Normalize(arg)
	}
	return analyser.Analyse(ctx, c, normalized...)
}

// Store applies the job and persists the result, returning its uid.
func (j *Job) Store(ctx context.Context, opts StoreOptions) (string, error) {
	if j.engine.datastore == nil {
		return "", ErrNoDatastore
	}
	c, err := j.Result(ctx)
	if err != nil {
		return "", err
	}
	uid, err := j.engine.datastore.Store(ctx, c, opts)
	if err != nil {
		return "", fmt.Errorf("store: %w", err)
	}
	j.engine.logger.Info("content stored",
		logging.String("uid", uid),
		logging.Int("size", c.Size()),
	)
	return uid, nil
}

// ToArray returns the array-of-arrays form of the step list.
func (j *Job) ToArray() [][]any {
	out := make([][]any, len(j.steps))
	for i, s := range j.steps {
		out[i] = s.ToArray()
	}
	return out
}

// Serialize encodes the step list as a URL-safe token.
func (j *Job) Serialize() (string, error) {
	return serializer.Encode(j.ToArray())
}

// UniqueString renders the step list deterministically for signing.
func (j *Job) UniqueString() string {
	parts := make([]any, len(j.steps))
	for i, s := range j.steps {
		parts[i] = s.ToArray()
	}
	return serializer.UniqueString(parts)
}

// SHA returns the verification code for the step list.
func (j *Job) SHA() string {
	return j.engine.signer.Sign(j.UniqueString())
}

// ValidateSHA checks code against the job's own SHA and returns j on success.
func (j *Job) ValidateSHA(code string) (*Job, error) {
	err := j.engine.signer.Verify(j.UniqueString(), code)
	switch {
	case err == nil:
		return j, nil
	case errors.Is(err, signer.ErrNoCode):
		return nil, ErrNoSHAGiven
	case errors.Is(err, signer.ErrIncorrectCode):
		return nil, fmt.Errorf("%w: %q", ErrIncorrectSHA, code)
	}
	return nil, err
}

// CacheKey returns the hex BLAKE3 digest of the unique string.
func (j *Job) CacheKey() string {
	sum := blake3.Sum256([]byte(j.UniqueString()))
	return hex.EncodeToString(sum[:])
}

// URLAttrs returns the job's url attributes. Callers may modify them.
func (j *Job) URLAttrs() urlattrs.Attrs { return j.urlAttrs }

// UpdateURLAttrs merges attrs over the url attributes and returns j.
func (j *Job) UpdateURLAttrs(attrs map[string]any) *Job {
	j.urlAttrs.Merge(attrs)
	return j
}

// URL returns the job's public URL, or "" when it has no steps or no
// URL builder is configured.
func (j *Job) URL(opts map[string]any) string {
	if len(j.steps) == 0 || j.engine.urlBuilder == nil {
		return ""
	}
	return j.engine.urlBuilder.URLFor(j, maps.Clone(opts))
}

// ToFetchedJob returns a detached job whose only step is an applied fetch of
// uid, carrying independent copies of j's content and url attributes.
func (j *Job) ToFetchedJob(uid string) *Job {
	fetched := newJob(j.engine, j.content.Clone())
	fetched.urlAttrs = j.urlAttrs.Clone()
	s := newStep(KindFetch, []any{uid})
	s.applied = true
	fetched.steps = []*Step{s}
	return fetched
}
