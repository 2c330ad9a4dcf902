package testsupport

import (
	"testing"

	"kiln/internal/config"
	"kiln/internal/datastore"
	"kiln/internal/job"
	"kiln/internal/logging"
	"kiln/internal/processors"
	"kiln/internal/registry"
)

// MustOpenStore opens the configured datastore for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) datastore.Store {
	t.Helper()

	store, err := datastore.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("datastore.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// NewEngine builds a job engine over the configured datastore with the
// builtin processors registered. mutate may adjust the options before the
// engine is built.
func NewEngine(t testing.TB, cfg *config.Config, mutate ...func(*job.Options)) (*job.Engine, datastore.Store) {
	t.Helper()

	store := MustOpenStore(t, cfg)
	reg := registry.New()
	processors.RegisterBuiltins(reg)

	opts := job.ConfigOptions(cfg)
	opts.Datastore = store
	opts.Registry = reg
	opts.Logger = logging.NewNop()
	for _, fn := range mutate {
		fn(&opts)
	}
	return job.NewEngine(opts), store
}
