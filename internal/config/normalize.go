package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeSecret()
	if err := c.normalizeDatastore(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeFetch()
	if err := c.normalizeCache(); err != nil {
		return err
	}
	return c.normalizeLogging()
}

func (c *Config) normalizeSecret() {
	c.Secret = strings.TrimSpace(c.Secret)
	if c.Secret == "" {
		if value, ok := os.LookupEnv("KILN_SECRET"); ok {
			c.Secret = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeDatastore() error {
	var err error
	c.Datastore.Backend = strings.ToLower(strings.TrimSpace(c.Datastore.Backend))
	if c.Datastore.Backend == "" {
		c.Datastore.Backend = BackendFile
	}
	if strings.TrimSpace(c.Datastore.RootDir) == "" {
		c.Datastore.RootDir = defaultDatastoreDir
	}
	if c.Datastore.RootDir, err = expandPath(c.Datastore.RootDir); err != nil {
		return fmt.Errorf("datastore.root_dir: %w", err)
	}
	if strings.TrimSpace(c.Datastore.DBPath) == "" {
		c.Datastore.DBPath = defaultDatastoreDB
	}
	if c.Datastore.DBPath, err = expandPath(c.Datastore.DBPath); err != nil {
		return fmt.Errorf("datastore.db_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultBind
	}
	prefix := strings.Trim(strings.TrimSpace(c.Server.URLPrefix), "/")
	if prefix == "" {
		c.Server.URLPrefix = ""
	} else {
		c.Server.URLPrefix = "/" + prefix
	}
	c.Server.URLHost = strings.TrimRight(strings.TrimSpace(c.Server.URLHost), "/")
}

func (c *Config) normalizeFetch() {
	if c.Fetch.TimeoutSeconds <= 0 {
		c.Fetch.TimeoutSeconds = defaultFetchTimeout
	}
	c.Fetch.UserAgent = strings.TrimSpace(c.Fetch.UserAgent)
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = defaultFetchUserAgent
	}
	if c.Fetch.MaxRedirects < 0 {
		c.Fetch.MaxRedirects = 0
	}
}

func (c *Config) normalizeCache() error {
	var err error
	if strings.TrimSpace(c.Cache.Dir) == "" {
		c.Cache.Dir = defaultCacheDir
	}
	if c.Cache.Dir, err = expandPath(c.Cache.Dir); err != nil {
		return fmt.Errorf("cache.dir: %w", err)
	}
	if c.Cache.MaxMiB <= 0 {
		c.Cache.MaxMiB = defaultCacheMaxMiB
	}
	c.Cache.Compression = strings.ToLower(strings.TrimSpace(c.Cache.Compression))
	if c.Cache.Compression == "" {
		c.Cache.Compression = defaultCompression
	}
	return nil
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if strings.TrimSpace(c.Logging.File) != "" {
		path, err := expandPath(c.Logging.File)
		if err != nil {
			return fmt.Errorf("logging.file: %w", err)
		}
		c.Logging.File = path
	}
	return nil
}
