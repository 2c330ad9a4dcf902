package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"kiln/internal/config"
	"kiln/internal/content"
	"kiln/internal/logging"
	"kiln/internal/registry"
	"kiln/internal/serializer"
	"kiln/internal/signer"
)

const (
	defaultFetchTimeout = 30 * time.Second
	defaultMaxRedirects = 10
	defaultUserAgent    = "kiln"
)

// StoreOptions controls how a datastore persists content.
type StoreOptions struct {
	// UID requests a specific identifier. Backends generate one when empty.
	UID string
	// Meta is merged over the content's metadata before writing.
	Meta map[string]any
}

// Datastore persists and retrieves source bytes.
type Datastore interface {
	// Retrieve loads uid into c, merging stored metadata into c's meta.
	Retrieve(ctx context.Context, c *content.Content, uid string) error
	// Store persists c and returns its uid.
	Store(ctx context.Context, c *content.Content, opts StoreOptions) (string, error)
}

// URLBuilder formats the public URL of a job.
type URLBuilder interface {
	URLFor(j *Job, opts map[string]any) string
}

// Options configure NewEngine. Zero values select defaults.
type Options struct {
	Datastore  Datastore
	Registry   *registry.Registry
	Secret     string
	URLBuilder URLBuilder
	Logger     *slog.Logger

	// DisableLegacyURLs rejects Marshal-encoded tokens. Legacy tokens are
	// accepted by default.
	DisableLegacyURLs bool

	// HTTPClient performs fetch_url requests. When nil a client is built
	// from FetchTimeout and MaxRedirects.
	HTTPClient   *http.Client
	FetchTimeout time.Duration
	MaxRedirects int
	UserAgent    string
}

// Engine holds the collaborators shared by every job it creates. It is
// immutable after construction and safe for concurrent use.
type Engine struct {
	datastore   Datastore
	registry    *registry.Registry
	signer      *signer.Signer
	urlBuilder  URLBuilder
	logger      *slog.Logger
	httpClient  *http.Client
	userAgent   string
	allowLegacy bool
}

// NewEngine builds an Engine from opts.
func NewEngine(opts Options) *Engine {
	reg := opts.Registry
	if reg == nil {
		reg = registry.New()
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	client := opts.HTTPClient
	if client == nil {
		client = newHTTPClient(opts.FetchTimeout, opts.MaxRedirects)
	}
	return &Engine{
		datastore:   opts.Datastore,
		registry:    reg,
		signer:      signer.New(opts.Secret),
		urlBuilder:  opts.URLBuilder,
		logger:      logging.NewComponentLogger(opts.Logger, "job"),
		httpClient:  client,
		userAgent:   userAgent,
		allowLegacy: !opts.DisableLegacyURLs,
	}
}

func newHTTPClient(timeout time.Duration, maxRedirects int) *http.Client {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	if maxRedirects <= 0 {
		maxRedirects = defaultMaxRedirects
	}
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// Registry returns the callable registry.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Datastore returns the configured datastore, or nil.
func (e *Engine) Datastore() Datastore { return e.datastore }

// AllowLegacyURLs reports whether Marshal-encoded tokens are accepted.
func (e *Engine) AllowLegacyURLs() bool { return e.allowLegacy }

// Logger returns the engine's component logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// NewJob returns an empty job, optionally seeded with data.
func (e *Engine) NewJob(data []byte) *Job {
	return newJob(e, content.New(data))
}

// Fetch returns a new job that fetches uid from the datastore.
func (e *Engine) Fetch(uid string) *Job {
	return e.NewJob(nil).AddFetch(uid)
}

// FetchFile returns a new job that reads path from disk.
func (e *Engine) FetchFile(path string) *Job {
	return e.NewJob(nil).AddFetchFile(path)
}

// FetchURL returns a new job that downloads rawURL.
func (e *Engine) FetchURL(rawURL string) *Job {
	return e.NewJob(nil).AddFetchURL(rawURL)
}

// Generate returns a new job whose content comes from the named generator.
func (e *Engine) Generate(name string, args ...any) *Job {
	return e.NewJob(nil).AddGenerate(name, args...)
}

// Deserialize decodes a token into a job with no applied steps.
func (e *Engine) Deserialize(token string) (*Job, error) {
	arr, err := serializer.Decode(token, serializer.Options{AllowLegacy: e.allowLegacy})
	if err != nil {
		return nil, err
	}
	return e.FromArray(arr)
}

// FromArray builds a job from its array form. Every step must start with a
// known abbreviation. Generate and process hooks run as if the steps had
// been added by hand.
func (e *Engine) FromArray(arr [][]any) (*Job, error) {
	j := e.NewJob(nil)
	for _, item := range arr {
		if len(item) == 0 {
			return nil, invalidStep(arr, item)
		}
		abbrev, ok := item[0].(string)
		if !ok {
			return nil, invalidStep(arr, item)
		}
		kind, ok := KindByAbbreviation(abbrev)
		if !ok {
			return nil, invalidStep(arr, item)
		}
		j.addStep(kind, item[1:])
	}
	return j, nil
}

func invalidStep(arr [][]any, item []any) error {
	return fmt.Errorf("%w: cannot interpret %v in %v", serializer.ErrInvalidArray, item, arr)
}

// IsMalformed reports whether err came from decoding an invalid token.
func IsMalformed(err error) bool {
	return errors.Is(err, serializer.ErrInvalidArray) ||
		errors.Is(err, serializer.ErrBadString) ||
		errors.Is(err, serializer.ErrMaliciousString) ||
		errors.Is(err, serializer.ErrUndecodable)
}

// ConfigOptions maps the signing and fetch settings of cfg onto Options.
// Callers still supply the datastore, registry, URL builder and logger.
func ConfigOptions(cfg *config.Config) Options {
	return Options{
		Secret:            cfg.Secret,
		DisableLegacyURLs: !cfg.AllowLegacyURLs,
		FetchTimeout:      time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
		MaxRedirects:      cfg.Fetch.MaxRedirects,
		UserAgent:         cfg.Fetch.UserAgent,
	}
}
