package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Datastore selects and locates the backend that holds source blobs.
type Datastore struct {
	Backend string `toml:"backend"`
	RootDir string `toml:"root_dir"`
	DBPath  string `toml:"db_path"`
}

// Server contains configuration for the job HTTP endpoint and URL building.
type Server struct {
	Bind       string `toml:"bind"`
	URLPrefix  string `toml:"url_prefix"`
	URLHost    string `toml:"url_host"`
	VerifyURLs bool   `toml:"verify_urls"`
}

// Fetch contains configuration for the fetch_url step's HTTP client.
type Fetch struct {
	TimeoutSeconds int    `toml:"timeout_seconds"`
	UserAgent      string `toml:"user_agent"`
	MaxRedirects   int    `toml:"max_redirects"`
}

// Cache contains configuration for the applied-result cache.
type Cache struct {
	Enabled     bool   `toml:"enabled"`
	Dir         string `toml:"dir"`
	MaxMiB      int    `toml:"max_mib"`
	Compression string `toml:"compression"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	File   string `toml:"file"`
}

// Config encapsulates all configuration values for kiln.
//
// Configuration sections by subsystem:
//   - Secret / AllowLegacyURLs: job signing and legacy token acceptance
//   - Datastore: where fetched source blobs live
//   - Server: URL formatting and the HTTP endpoint
//   - Fetch: HTTP client settings for fetch_url steps
//   - Cache: content-addressed cache of applied jobs
//   - Logging: log format, level, and optional file
type Config struct {
	Secret          string    `toml:"secret"`
	AllowLegacyURLs bool      `toml:"allow_legacy_urls"`
	Datastore       Datastore `toml:"datastore"`
	Server          Server    `toml:"server"`
	Fetch           Fetch     `toml:"fetch"`
	Cache           Cache     `toml:"cache"`
	Logging         Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("kiln.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the configured backends write to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{}
	switch c.Datastore.Backend {
	case BackendFile:
		dirs = append(dirs, c.Datastore.RootDir)
	case BackendSQLite:
		dirs = append(dirs, filepath.Dir(c.Datastore.DBPath))
	}
	if c.Cache.Enabled {
		dirs = append(dirs, c.Cache.Dir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
