package editor

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrDuplicate is returned when inserting a session for a path that is
// already open.
var ErrDuplicate = errors.New("editor already open for path")

// Registry is the ordered set of open editors, at most one per path.
// Reads are lock free snapshots; writers are serialised.
type Registry struct {
	mu   sync.Mutex
	list atomic.Pointer[[]*Session]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.list.Store(&[]*Session{})
	return r
}

func (r *Registry) snapshot() []*Session {
	return *r.list.Load()
}

// Find returns the session open for path.
func (r *Registry) Find(path string) (*Session, bool) {
	path = NormalizePath(path)
	for _, s := range r.snapshot() {
		if s.Path == path {
			return s, true
		}
	}
	return nil, false
}

// Insert appends s. Callers check Find first under their own lock; Insert
// still refuses a duplicate path.
func (r *Registry) Insert(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.snapshot()
	for _, e := range old {
		if e.Path == s.Path {
			return fmt.Errorf("%w: %s", ErrDuplicate, s.Path)
		}
	}
	next := make([]*Session, len(old), len(old)+1)
	copy(next, old)
	next = append(next, s)
	r.list.Store(&next)
	return nil
}

// List returns the open sessions in open order. The slice must not be
// modified.
func (r *Registry) List() []*Session {
	return r.snapshot()
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	return len(r.snapshot())
}

// At returns the session at index i.
func (r *Registry) At(i int) (*Session, bool) {
	list := r.snapshot()
	if i < 0 || i >= len(list) {
		return nil, false
	}
	return list[i], true
}
