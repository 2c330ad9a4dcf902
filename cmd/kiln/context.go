package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"kiln/internal/config"
	"kiln/internal/datastore"
	"kiln/internal/job"
	"kiln/internal/logging"
	"kiln/internal/processors"
	"kiln/internal/registry"
	"kiln/internal/resultcache"
	"kiln/internal/server"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Logging.Level = strings.ToLower(strings.TrimSpace(*c.logLevelFlag))
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) loggerValue() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		c.logger = logger
	})
	return c.logger
}

// engineSession bundles the collaborators one command needs to build and
// apply jobs.
type engineSession struct {
	cfg    *config.Config
	engine *job.Engine
	store  datastore.Store
	cache  *resultcache.Manager
	logger *slog.Logger
}

func (s *engineSession) Close() error {
	if s == nil || s.store == nil {
		return nil
	}
	return s.store.Close()
}

func (c *commandContext) openSession() (*engineSession, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger := c.loggerValue()
	store, err := datastore.Open(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open datastore: %w", err)
	}
	reg := registry.New()
	processors.RegisterBuiltins(reg)

	opts := job.ConfigOptions(cfg)
	opts.Datastore = store
	opts.Registry = reg
	opts.URLBuilder = server.NewURLBuilder(cfg)
	opts.Logger = logger

	return &engineSession{
		cfg:    cfg,
		engine: job.NewEngine(opts),
		store:  store,
		cache:  resultcache.NewManager(cfg, logger),
		logger: logger,
	}, nil
}

func (c *commandContext) withSession(fn func(*engineSession) error) error {
	session, err := c.openSession()
	if err != nil {
		return err
	}
	defer session.Close()
	return fn(session)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
