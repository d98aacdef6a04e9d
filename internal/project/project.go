// Package project resolves and identifies project roots.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/opencode-ai/workbench/internal/digest"
)

var (
	// ErrNoProject is returned when no project path was configured.
	ErrNoProject = errors.New("project path is not set")
	// ErrNotDirectory is returned when the project path is not a directory.
	ErrNotDirectory = errors.New("project path is not a directory")
)

// Info contains project metadata.
type Info struct {
	ID     string  `json:"id"`
	Root   string  `json:"root"`
	Name   string  `json:"name"`
	VCSDir *string `json:"vcsDir,omitempty"`
	VCS    *string `json:"vcs,omitempty"`
}

// Resolver resolves project paths on a filesystem and caches the results.
type Resolver struct {
	fs afero.Fs

	mu    sync.RWMutex
	cache map[string]*Info
}

// NewResolver creates a resolver over fs.
func NewResolver(fs afero.Fs) *Resolver {
	return &Resolver{fs: fs, cache: make(map[string]*Info)}
}

// Resolve checks that path is an existing directory and describes it.
func (r *Resolver) Resolve(path string) (*Info, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrNoProject
	}
	root, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	if info, ok := r.cache[root]; ok {
		r.mu.RUnlock()
		return info, nil
	}
	r.mu.RUnlock()

	st, err := r.fs.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrNotDirectory, root)
		}
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	info := &Info{
		ID:   HashDirectory(root),
		Root: root,
		Name: filepath.Base(root),
	}
	if gitDir := findGitDir(r.fs, root); gitDir != "" {
		vcs := "git"
		info.VCSDir = &gitDir
		info.VCS = &vcs
	}

	r.mu.Lock()
	r.cache[root] = info
	r.mu.Unlock()
	return info, nil
}

// Forget drops a cached entry so the next Resolve re-checks the filesystem.
func (r *Resolver) Forget(path string) {
	root, err := filepath.Abs(path)
	if err != nil {
		return
	}
	r.mu.Lock()
	delete(r.cache, root)
	r.mu.Unlock()
}

// HashDirectory creates a stable short project ID from a directory path.
func HashDirectory(directory string) string {
	return digest.SHA256Hex([]byte(directory))[:16]
}

// findGitDir walks up from start looking for a .git directory or gitdir file.
func findGitDir(fs afero.Fs, start string) string {
	current := start
	for {
		gitPath := filepath.Join(current, ".git")
		if info, err := fs.Stat(gitPath); err == nil {
			if info.IsDir() {
				return gitPath
			}
			// worktrees and submodules use a "gitdir: <path>" file
			if content, err := afero.ReadFile(fs, gitPath); err == nil {
				line := strings.TrimSpace(string(content))
				if strings.HasPrefix(line, "gitdir: ") {
					gitdir := strings.TrimPrefix(line, "gitdir: ")
					if !filepath.IsAbs(gitdir) {
						gitdir = filepath.Join(current, gitdir)
					}
					return gitdir
				}
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			return ""
		}
		current = parent
	}
}
