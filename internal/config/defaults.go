package config

const (
	defaultConfigPath     = "~/.config/kiln/config.toml"
	defaultDatastoreDir   = "~/.local/share/kiln/store"
	defaultDatastoreDB    = "~/.local/share/kiln/store.db"
	defaultCacheDir       = "~/.cache/kiln/results"
	defaultCacheMaxMiB    = 512
	defaultCompression    = "zstd"
	defaultBind           = "127.0.0.1:7488"
	defaultURLPrefix      = "/media"
	defaultFetchTimeout   = 30
	defaultFetchUserAgent = "kiln/dev"
	defaultMaxRedirects   = 10
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
)

// Backend names accepted by datastore.backend.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		AllowLegacyURLs: true,
		Datastore: Datastore{
			Backend: BackendFile,
			RootDir: defaultDatastoreDir,
			DBPath:  defaultDatastoreDB,
		},
		Server: Server{
			Bind:       defaultBind,
			URLPrefix:  defaultURLPrefix,
			VerifyURLs: true,
		},
		Fetch: Fetch{
			TimeoutSeconds: defaultFetchTimeout,
			UserAgent:      defaultFetchUserAgent,
			MaxRedirects:   defaultMaxRedirects,
		},
		Cache: Cache{
			Dir:         defaultCacheDir,
			MaxMiB:      defaultCacheMaxMiB,
			Compression: defaultCompression,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
