// Package editor holds open editor sessions and the registry that indexes
// them by file path.
package editor

import (
	"crypto/rand"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/opencode-ai/workbench/internal/analysis"
)

// Session is the editing state of one open file.
type Session struct {
	ID       string            `json:"id"`
	Path     string            `json:"path"`
	Content  *Content          `json:"-"`
	FileType analysis.FileType `json:"fileType"`
	Loading  bool              `json:"loading"`
	OpenedAt time.Time         `json:"openedAt"`
}

// NewSession creates a fully loaded session for path.
func NewSession(path, text string, fileType analysis.FileType) *Session {
	now := time.Now()
	return &Session{
		ID:       newID(now),
		Path:     NormalizePath(path),
		Content:  NewContent(text),
		FileType: fileType,
		OpenedAt: now,
	}
}

// NormalizePath returns the registry key for path.
func NormalizePath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

func newID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}
