package resultcache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"kiln/internal/codec"
	"kiln/internal/config"
	"kiln/internal/content"
	"kiln/internal/fileutil"
	"kiln/internal/logging"
	"kiln/internal/serializer"
)

const entryExt = ".kc"

var keyPattern = regexp.MustCompile(`^[0-9a-f]{16,128}$`)

// ErrInvalidKey is returned for keys that are not lowercase hex digests.
var ErrInvalidKey = errors.New("resultcache: invalid key")

// Manager stores and prunes cached job results.
type Manager struct {
	root        string
	maxBytes    int64
	compression codec.Compression
	logger      *slog.Logger
	now         func() time.Time
	mu          sync.Mutex
}

// Stats describes current cache usage.
type Stats struct {
	Entries    int    `json:"entries"`
	TotalBytes int64  `json:"total_bytes"`
	MaxBytes   int64  `json:"max_bytes"`
	Dir        string `json:"dir"`
}

// NewManager builds a cache manager when enabled; returns nil when caching is
// disabled or misconfigured.
func NewManager(cfg *config.Config, logger *slog.Logger) *Manager {
	if cfg == nil || !cfg.Cache.Enabled {
		return nil
	}
	root := strings.TrimSpace(cfg.Cache.Dir)
	if root == "" || cfg.Cache.MaxMiB <= 0 {
		return nil
	}
	comp, err := codec.ParseCompression(cfg.Cache.Compression)
	if err != nil {
		comp = codec.CompressionZstd
	}
	m := &Manager{
		root:        root,
		maxBytes:    int64(cfg.Cache.MaxMiB) * 1024 * 1024,
		compression: comp,
		now:         time.Now,
	}
	m.SetLogger(logger)
	return m
}

// SetLogger refreshes the manager's logging destination.
func (m *Manager) SetLogger(logger *slog.Logger) {
	if m == nil {
		return
	}
	m.logger = logging.NewComponentLogger(logger, "resultcache")
}

func (m *Manager) entryPath(key string) (string, error) {
	if !keyPattern.MatchString(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(m.root, key[:2], key+entryExt), nil
}

// Get returns the cached content for key. Corrupt entries are removed and
// reported as a miss.
func (m *Manager) Get(ctx context.Context, key string) (*content.Content, bool, error) {
	if m == nil {
		return nil, false, nil
	}
	path, err := m.entryPath(key)
	if err != nil {
		return nil, false, err
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("resultcache: read entry: %w", err)
	}
	header, data, err := decodeEntry(raw)
	if err == nil && header.Key != key {
		err = fmt.Errorf("%w: key mismatch", errCorruptEntry)
	}
	if err != nil {
		logging.WarnWithContext(m.logger, "dropping corrupt cache entry", "resultcache_corrupt_entry",
			logging.String("key", key),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "entry will be regenerated on next request"),
			logging.String(logging.FieldImpact, "cache miss"),
		)
		_ = os.Remove(path)
		return nil, false, nil
	}
	now := m.now()
	_ = os.Chtimes(path, now, now)

	c := content.New(data)
	meta, _ := serializer.Normalize(header.Meta).(map[string]any)
	c.SetMeta(meta)
	m.logger.DebugContext(ctx, "cache hit", logging.String("key", key), logging.Int("size", len(data)))
	return c, true, nil
}

// Put stores c under key and prunes the cache back under its limit.
func (m *Manager) Put(ctx context.Context, key string, c *content.Content) error {
	if m == nil || c == nil {
		return nil
	}
	path, err := m.entryPath(key)
	if err != nil {
		return err
	}
	raw, err := encodeEntry(key, c, m.compression, m.now())
	if err != nil {
		return fmt.Errorf("resultcache: encode entry: %w", err)
	}
	if int64(len(raw)) > m.maxBytes {
		m.logger.DebugContext(ctx, "result larger than cache, skipping", logging.String("key", key), logging.Int("bytes", len(raw)))
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := fileutil.WriteFileAtomic(path, raw, 0o644); err != nil {
		return fmt.Errorf("resultcache: write entry: %w", err)
	}
	m.logger.DebugContext(ctx, "cache stored",
		logging.String("key", key),
		logging.Int("size", c.Size()),
		logging.Int("bytes", len(raw)),
		logging.String("compression", string(m.compression)),
	)
	return m.pruneLocked(ctx, path)
}

// Prune removes least recently used entries until the cache fits its limit.
func (m *Manager) Prune(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pruneLocked(ctx, "")
}

type cacheEntry struct {
	path    string
	size    int64
	modTime time.Time
}

func (m *Manager) scan() ([]cacheEntry, int64, error) {
	var entries []cacheEntry
	var total int64
	err := filepath.WalkDir(m.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), entryExt) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		entries = append(entries, cacheEntry{path: path, size: info.Size(), modTime: info.ModTime()})
		total += info.Size()
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("resultcache: scan: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].modTime.Before(entries[j].modTime)
	})
	return entries, total, nil
}

func (m *Manager) pruneLocked(ctx context.Context, keepPath string) error {
	entries, total, err := m.scan()
	if err != nil {
		return err
	}
	removed := 0
	for _, entry := range entries {
		if total <= m.maxBytes {
			break
		}
		if entry.path == keepPath {
			continue
		}
		if err := os.Remove(entry.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("resultcache: remove %s: %w", entry.path, err)
		}
		fileutil.RemoveEmptyParents(filepath.Dir(entry.path), m.root)
		total -= entry.size
		removed++
	}
	if removed > 0 {
		m.logger.InfoContext(ctx, "pruned result cache",
			logging.Int("removed", removed),
			logging.Int64("total_bytes", total),
			logging.Int64("max_bytes", m.maxBytes),
		)
	}
	return nil
}

// Stats returns current cache usage.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	if m == nil {
		return s, nil
	}
	entries, total, err := m.scan()
	if err != nil {
		return s, err
	}
	if len(entries) == 0 {
		m.logger.DebugContext(ctx, "result cache empty")
	}
	return Stats{Entries: len(entries), TotalBytes: total, MaxBytes: m.maxBytes, Dir: m.root}, nil
}
