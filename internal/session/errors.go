package session

import (
	"errors"
	"fmt"

	"github.com/opencode-ai/workbench/internal/bootstrap"
)

var (
	// ErrConfiguration marks a missing or unusable project path.
	ErrConfiguration = bootstrap.ErrConfiguration
	// ErrResourceUnavailable marks a file that no longer exists when opened.
	ErrResourceUnavailable = errors.New("resource unavailable")
	// ErrIO marks a read failure while loading file content.
	ErrIO = errors.New("i/o fault")
	// ErrInvariant marks a caller bug such as an out of range tab index.
	ErrInvariant = errors.New("invariant violation")
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session closed")
)

// InvariantError reports an index outside the open editors.
type InvariantError struct {
	Op    string
	Index int
	Len   int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: index %d out of range [0, %d)", e.Op, e.Index, e.Len)
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariant
}
