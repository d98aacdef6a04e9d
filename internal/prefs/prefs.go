// Package prefs implements the preference store sessions use to remember
// per-project state such as previously opened files.
package prefs

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/opencode-ai/workbench/internal/digest"
	"github.com/opencode-ai/workbench/internal/storage"
)

// Store is a string-set preference store keyed by arbitrary strings
// (sessions use the project root path).
type Store interface {
	// GetStringSet returns the set stored under key, or an empty set.
	GetStringSet(ctx context.Context, key string) ([]string, error)
	// PutStringSet replaces the set stored under key.
	PutStringSet(ctx context.Context, key string, values []string) error
}

// FileStore persists sets as JSON documents in a storage.Storage.
type FileStore struct {
	storage *storage.Storage
}

type stringSet struct {
	Key    string   `json:"key"`
	Values []string `json:"values"`
}

// NewFileStore creates a preference store on top of s.
func NewFileStore(s *storage.Storage) *FileStore {
	return &FileStore{storage: s}
}

// keyPath maps a key to a fixed-length file name so arbitrary paths are safe
// to use as keys.
func keyPath(key string) []string {
	return []string{"sets", digest.SHA256Hex([]byte(key))[:32]}
}

func (s *FileStore) GetStringSet(ctx context.Context, key string) ([]string, error) {
	var doc stringSet
	if err := s.storage.Get(ctx, keyPath(key), &doc); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return []string{}, nil
		}
		return nil, err
	}
	if doc.Values == nil {
		return []string{}, nil
	}
	return doc.Values, nil
}

func (s *FileStore) PutStringSet(ctx context.Context, key string, values []string) error {
	return s.storage.Put(ctx, keyPath(key), stringSet{Key: key, Values: normalize(values)})
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	sets map[string][]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sets: make(map[string][]string)}
}

func (s *MemoryStore) GetStringSet(ctx context.Context, key string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.sets[key]...), nil
}

func (s *MemoryStore) PutStringSet(ctx context.Context, key string, values []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[key] = normalize(values)
	return nil
}

// normalize removes duplicates and sorts, since the values form a set.
func normalize(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
