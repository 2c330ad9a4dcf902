package datastore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"kiln/internal/content"
	"kiln/internal/job"
)

type memoryEntry struct {
	data []byte
	meta map[string]any
}

// MemoryStore keeps blobs in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]memoryEntry{}}
}

// Store saves a copy of c.
func (s *MemoryStore) Store(_ context.Context, c *content.Content, opts job.StoreOptions) (string, error) {
	uid := opts.UID
	if uid == "" {
		uid = uuid.NewString()
	}
	if err := validateUID(uid); err != nil {
		return "", err
	}
	snapshot := content.New(c.Data())
	snapshot.SetMeta(mergedMeta(c, opts))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[uid] = memoryEntry{data: snapshot.Data(), meta: snapshot.Meta()}
	return uid, nil
}

// Retrieve loads uid into c.
func (s *MemoryStore) Retrieve(_ context.Context, c *content.Content, uid string) error {
	s.mu.RLock()
	entry, ok := s.entries[uid]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrDataNotFound, uid)
	}
	snapshot := content.New(entry.data)
	snapshot.SetMeta(entry.meta)
	c.Update(snapshot.Data(), snapshot.Meta())
	return nil
}

// Destroy removes uid.
func (s *MemoryStore) Destroy(_ context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[uid]; !ok {
		return fmt.Errorf("%w: %s", ErrDataNotFound, uid)
	}
	delete(s.entries, uid)
	return nil
}

// Len reports the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
