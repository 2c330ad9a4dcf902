package datastore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"kiln/internal/codec"
	"kiln/internal/content"
	"kiln/internal/fileutil"
	"kiln/internal/job"
	"kiln/internal/logging"
	"kiln/internal/serializer"
)

const (
	metaSuffix    = ".meta.cbor"
	lockFileName  = ".kiln.lock"
	lockRetryWait = 25 * time.Millisecond
)

// FileStore stores blobs as plain files under root. Writers serialize on an
// advisory lock so concurrent processes never interleave a blob with its
// metadata sidecar.
type FileStore struct {
	root   string
	mu     sync.Mutex
	lock   *flock.Flock
	logger *slog.Logger
	now    func() time.Time
}

// NewFileStore creates root when missing and returns a store rooted there.
func NewFileStore(root string, logger *slog.Logger) (*FileStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("datastore: file backend requires root_dir")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("datastore: create root: %w", err)
	}
	return &FileStore{
		root:   root,
		lock:   flock.New(filepath.Join(root, lockFileName)),
		logger: logging.NewComponentLogger(logger, "datastore"),
		now:    time.Now,
	}, nil
}

// Root returns the directory blobs are stored under.
func (s *FileStore) Root() string { return s.root }

func (s *FileStore) paths(uid string) (string, string) {
	data := filepath.Join(s.root, filepath.FromSlash(uid))
	return data, data + metaSuffix
}

func (s *FileStore) newUID(meta map[string]any) string {
	now := s.now().UTC()
	return fmt.Sprintf("%04d/%02d/%02d/%s%s", now.Year(), int(now.Month()), now.Day(), uuid.NewString(), extFor(meta))
}

func (s *FileStore) withLock(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	locked, err := s.lock.TryLockContext(ctx, lockRetryWait)
	if err != nil {
		return fmt.Errorf("datastore: acquire lock: %w", err)
	}
	if !locked {
		return errors.New("datastore: lock not acquired")
	}
	defer func() {
		_ = s.lock.Unlock()
	}()
	return fn()
}

// validateFileUID also rejects the names the store uses for sidecars and
// its lock file.
func validateFileUID(uid string) error {
	if err := validateUID(uid); err != nil {
		return err
	}
	if strings.HasSuffix(uid, metaSuffix) || filepath.Base(uid) == lockFileName {
		return fmt.Errorf("%w: reserved name %q", ErrInvalidUID, uid)
	}
	return nil
}

// Store writes c under opts.UID or a generated date-partitioned uid.
func (s *FileStore) Store(ctx context.Context, c *content.Content, opts job.StoreOptions) (string, error) {
	meta := mergedMeta(c, opts)
	uid := opts.UID
	if uid == "" {
		uid = s.newUID(meta)
	}
	if err := validateFileUID(uid); err != nil {
		return "", err
	}
	encodedMeta, err := codec.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("datastore: encode meta: %w", err)
	}
	dataPath, metaPath := s.paths(uid)

	err = s.withLock(ctx, func() error {
		if err := fileutil.WriteFileAtomic(dataPath, c.Data(), 0o644); err != nil {
			return fmt.Errorf("datastore: write data: %w", err)
		}
		if err := fileutil.WriteFileAtomic(metaPath, encodedMeta, 0o644); err != nil {
			return fmt.Errorf("datastore: write meta: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	s.logger.DebugContext(ctx, "blob stored",
		logging.String("uid", uid),
		logging.Int("size", c.Size()),
	)
	return uid, nil
}

// Retrieve loads uid and its metadata into c.
func (s *FileStore) Retrieve(_ context.Context, c *content.Content, uid string) error {
	if err := validateFileUID(uid); err != nil {
		return fmt.Errorf("%w: %w", ErrDataNotFound, err)
	}
	dataPath, metaPath := s.paths(uid)
	data, err := os.ReadFile(dataPath)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrDataNotFound, uid)
	}
	if err != nil {
		return fmt.Errorf("datastore: read data: %w", err)
	}

	meta := map[string]any{}
	raw, err := os.ReadFile(metaPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("datastore: read meta: %w", err)
	default:
		if err := codec.Unmarshal(raw, &meta); err != nil {
			return fmt.Errorf("datastore: decode meta for %s: %w", uid, err)
		}
	}
	normalized, _ := serializer.Normalize(meta).(map[string]any)
	c.Update(data, normalized)
	return nil
}

// Destroy removes uid, its sidecar and any directories left empty.
func (s *FileStore) Destroy(ctx context.Context, uid string) error {
	if err := validateFileUID(uid); err != nil {
		return err
	}
	dataPath, metaPath := s.paths(uid)
	return s.withLock(ctx, func() error {
		if err := os.Remove(dataPath); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%w: %s", ErrDataNotFound, uid)
			}
			return fmt.Errorf("datastore: remove data: %w", err)
		}
		if err := os.Remove(metaPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.WarnWithContext(s.logger, "meta sidecar not removed", "datastore_sidecar_remove_failed",
				logging.String("uid", uid),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove the .meta.cbor file manually"),
			)
		}
		fileutil.RemoveEmptyParents(filepath.Dir(dataPath), s.root)
		return nil
	})
}

// Close is a no-op; the lock is only held during writes.
func (s *FileStore) Close() error { return nil }
