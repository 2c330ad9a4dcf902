package datastore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"kiln/internal/content"
	"kiln/internal/job"
	"kiln/internal/logging"
	"kiln/internal/serializer"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLiteStore keeps blobs in a single SQLite table.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// OpenSQLite opens or creates the database at dbPath and applies migrations.
func OpenSQLite(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, errors.New("datastore: sqlite backend requires db_path")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("datastore: create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLiteStore{db: db, path: dbPath, logger: logging.NewComponentLogger(logger, "datastore")}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Store inserts or replaces the blob for opts.UID (generated when empty).
func (s *SQLiteStore) Store(ctx context.Context, c *content.Content, opts job.StoreOptions) (string, error) {
	uid := opts.UID
	if uid == "" {
		uid = uuid.NewString()
	}
	if err := validateUID(uid); err != nil {
		return "", err
	}
	metaJSON, err := json.Marshal(mergedMeta(c, opts))
	if err != nil {
		return "", fmt.Errorf("marshal meta: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO blobs (uid, data, meta_json, size, created_at) VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(uid) DO UPDATE SET data = excluded.data, meta_json = excluded.meta_json,
             size = excluded.size, created_at = excluded.created_at`,
		uid,
		c.Data(),
		string(metaJSON),
		c.Size(),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert blob: %w", err)
	}
	s.logger.DebugContext(ctx, "blob stored",
		logging.String("uid", uid),
		logging.Int("size", c.Size()),
	)
	return uid, nil
}

// Retrieve loads uid into c.
func (s *SQLiteStore) Retrieve(ctx context.Context, c *content.Content, uid string) error {
	var (
		data     []byte
		metaJSON string
	)
	row := s.db.QueryRowContext(ctx, "SELECT data, meta_json FROM blobs WHERE uid = ?", uid)
	if err := row.Scan(&data, &metaJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrDataNotFound, uid)
		}
		return fmt.Errorf("select blob: %w", err)
	}
	decoded, err := serializer.JSONDecode([]byte(metaJSON))
	if err != nil {
		return fmt.Errorf("decode meta for %s: %w", uid, err)
	}
	meta, _ := decoded.(map[string]any)
	c.Update(data, meta)
	return nil
}

// Destroy deletes uid.
func (s *SQLiteStore) Destroy(ctx context.Context, uid string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM blobs WHERE uid = ?", uid)
	if err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrDataNotFound, uid)
	}
	return nil
}

// Count returns the number of stored blobs.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM blobs").Scan(&n); err != nil {
		return 0, fmt.Errorf("count blobs: %w", err)
	}
	return n, nil
}

type migration struct {
	version string
	sql     string
}

func loadMigrations() ([]migration, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	versions := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		versions = append(versions, entry.Name())
	}
	sort.Strings(versions)

	migrations := make([]migration, 0, len(versions))
	for _, name := range versions {
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		migrations = append(migrations, migration{version: strings.TrimSuffix(name, ".sql"), sql: string(data)})
	}
	return migrations, nil
}

func (s *SQLiteStore) applyMigrations(ctx context.Context) error {
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	for _, m := range migrations {
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", m.version).Scan(&count); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		if count > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("record migration %s: %w", m.version, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}
