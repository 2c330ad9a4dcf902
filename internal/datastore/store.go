package datastore

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"kiln/internal/config"
	"kiln/internal/content"
	"kiln/internal/job"
	"kiln/internal/serializer"
)

// Store is a datastore backend.
type Store interface {
	job.Datastore
	// Destroy removes the blob for uid.
	Destroy(ctx context.Context, uid string) error
	// Close releases backend resources.
	Close() error
}

// Open builds the backend selected by cfg.Datastore.Backend.
func Open(cfg *config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.Datastore.Backend {
	case config.BackendFile:
		return NewFileStore(cfg.Datastore.RootDir, logger)
	case config.BackendSQLite:
		return OpenSQLite(cfg.Datastore.DBPath, logger)
	case config.BackendMemory:
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown datastore backend %q", cfg.Datastore.Backend)
}

// validateUID rejects uids that are empty, absolute or climb out of the store.
func validateUID(uid string) error {
	if strings.TrimSpace(uid) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidUID)
	}
	if strings.HasPrefix(uid, "/") || strings.Contains(uid, "\\") {
		return fmt.Errorf("%w: %q", ErrInvalidUID, uid)
	}
	for _, part := range strings.Split(uid, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidUID, uid)
		}
	}
	return nil
}

// mergedMeta returns c's metadata with opts.Meta layered over it.
func mergedMeta(c *content.Content, opts job.StoreOptions) map[string]any {
	meta := make(map[string]any, len(c.Meta())+len(opts.Meta))
	for k, v := range c.Meta() {
		meta[k] = serializer.Normalize(v)
	}
	for k, v := range opts.Meta {
		meta[k] = serializer.Normalize(v)
	}
	return meta
}

// extFor returns the file extension (with dot) implied by a name.
func extFor(meta map[string]any) string {
	name, _ := meta[content.MetaName].(string)
	ext := path.Ext(name)
	if ext == "." || strings.ContainsAny(ext, "/\\") {
		return ""
	}
	return strings.ToLower(ext)
}
