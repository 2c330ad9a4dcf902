package testsupport

import (
	"path/filepath"
	"testing"

	"kiln/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Secret = "test-secret"
	cfgVal.Datastore.Backend = config.BackendMemory
	cfgVal.Datastore.RootDir = filepath.Join(base, "store")
	cfgVal.Datastore.DBPath = filepath.Join(base, "store.db")
	cfgVal.Cache.Enabled = false
	cfgVal.Cache.Dir = filepath.Join(base, "cache")
	cfgVal.Server.Bind = "127.0.0.1:0"
	cfgVal.Server.URLHost = "http://kiln.test"
	cfgVal.Logging.File = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithBackend selects the datastore backend on the test config.
func WithBackend(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Datastore.Backend = backend
	}
}

// WithSecret overrides the signing secret on the test config.
func WithSecret(secret string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Secret = secret
	}
}

// WithCache enables the result cache with the given size limit.
func WithCache(maxMiB int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Cache.Enabled = true
		b.cfg.Cache.MaxMiB = maxMiB
	}
}

// WithoutLegacyURLs disables Marshal-encoded tokens on the test config.
func WithoutLegacyURLs() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.AllowLegacyURLs = false
	}
}

// WithoutURLVerification lets the HTTP handler serve jobs without a sha.
func WithoutURLVerification() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.VerifyURLs = false
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Datastore.RootDir)
}
