package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSecret(); err != nil {
		return err
	}
	if err := c.validateDatastore(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateSecret() error {
	if c.Server.VerifyURLs && c.Secret == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("secret is required when server.verify_urls is enabled. Set KILN_SECRET or edit %s (create with 'kiln config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateDatastore() error {
	switch c.Datastore.Backend {
	case BackendFile:
		if c.Datastore.RootDir == "" {
			return errors.New("datastore.root_dir must be set for the file backend")
		}
	case BackendSQLite:
		if c.Datastore.DBPath == "" {
			return errors.New("datastore.db_path must be set for the sqlite backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("datastore.backend: unsupported value %q", c.Datastore.Backend)
	}
	return nil
}

func (c *Config) validateCache() error {
	switch c.Cache.Compression {
	case "zstd", "lz4", "none":
		return nil
	default:
		return fmt.Errorf("cache.compression: unsupported value %q", c.Cache.Compression)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
