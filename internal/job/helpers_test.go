package job_test

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"kiln/internal/content"
	"kiln/internal/job"
	"kiln/internal/registry"
	"kiln/internal/urlattrs"
)

var errMissing = errors.New("missing uid")

type storedItem struct {
	data []byte
	meta map[string]any
}

type fakeStore struct {
	mu        sync.Mutex
	items     map[string]storedItem
	retrieved []string
	stored    []job.StoreOptions
	next      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{items: map[string]storedItem{}}
}

func (s *fakeStore) put(uid string, data string, meta map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[uid] = storedItem{data: []byte(data), meta: meta}
}

func (s *fakeStore) Retrieve(_ context.Context, c *content.Content, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retrieved = append(s.retrieved, uid)
	item, ok := s.items[uid]
	if !ok {
		return fmt.Errorf("%w: %s", errMissing, uid)
	}
	c.Update(append([]byte(nil), item.data...), maps.Clone(item.meta))
	return nil
}

func (s *fakeStore) Store(_ context.Context, c *content.Content, opts job.StoreOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored = append(s.stored, opts)
	uid := opts.UID
	if uid == "" {
		s.next++
		uid = fmt.Sprintf("uid-%d", s.next)
	}
	s.items[uid] = storedItem{data: append([]byte(nil), c.Data()...), meta: maps.Clone(c.Meta())}
	return uid, nil
}

type testEnv struct {
	engine *job.Engine
	store  *fakeStore
	reg    *registry.Registry
}

func newTestEnv(t *testing.T, mutate ...func(*job.Options)) *testEnv {
	t.Helper()
	env := &testEnv{store: newFakeStore(), reg: registry.New()}
	opts := job.Options{
		Datastore: env.store,
		Registry:  env.reg,
		Secret:    "test-secret",
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	env.engine = job.NewEngine(opts)
	return env
}

// rewriteTransport sends every request to target regardless of host so
// tests can use realistic hostnames.
type rewriteTransport struct {
	target *url.URL
	base   http.RoundTripper
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("X-Original-Host", req.URL.Host)
	clone.Header.Set("X-Original-Scheme", req.URL.Scheme)
	clone.URL.Scheme = rt.target.Scheme
	clone.URL.Host = rt.target.Host
	clone.Host = req.URL.Host
	return rt.base.RoundTrip(clone)
}

func withServer(t *testing.T, handler http.Handler) func(*job.Options) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	target, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	return func(o *job.Options) {
		o.HTTPClient = &http.Client{Transport: rewriteTransport{target: target, base: http.DefaultTransport}}
	}
}

type hookRecorder struct {
	calls [][]any
	attrs []urlattrs.Attrs
}

func (h *hookRecorder) hook(attrs urlattrs.Attrs, args ...any) {
	h.calls = append(h.calls, args)
	h.attrs = append(h.attrs, attrs)
}

func kinds(steps []*job.Step) []job.Kind {
	out := make([]job.Kind, len(steps))
	for i, s := range steps {
		out[i] = s.Kind()
	}
	return out
}

func mustApply(t *testing.T, j *job.Job) {
	t.Helper()
	if _, err := j.Apply(context.Background()); err != nil {
		t.Fatalf("Apply: %v", err)
	}
}

func mustData(t *testing.T, j *job.Job) string {
	t.Helper()
	data, err := j.Data(context.Background())
	if err != nil {
		t.Fatalf("Data: %v", err)
	}
	return string(data)
}
