// Package tree builds the file hierarchy shown for a project root.
package tree

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

// DefaultIgnorePatterns are build output, VCS and tool directories that are
// never shown.
var DefaultIgnorePatterns = []string{
	".git/",
	".gradle/",
	".idea/",
	".vscode/",
	".cache/",
	".workbench/",
	"build/",
	"out/",
	"target/",
	"bin/",
	"obj/",
	"node_modules/",
	"__pycache__/",
	"*.iml",
	".DS_Store",
	"local.properties",
}

// Node is one file or directory in the tree.
type Node struct {
	Name     string  `json:"name"`
	Path     string  `json:"path"`
	Dir      bool    `json:"dir"`
	Children []*Node `json:"children,omitempty"`
}

// Options controls tree construction.
type Options struct {
	// Ignore patterns are doublestar globs matched against the base name and
	// the slash separated path relative to the root. A trailing "/" restricts
	// the pattern to directories.
	Ignore []string
	// MaxDepth limits descent below the root. Zero means unlimited.
	MaxDepth int
	// NoDefaultIgnores drops DefaultIgnorePatterns.
	NoDefaultIgnores bool
}

// Patterns returns the effective ignore patterns.
func (o Options) Patterns() []string {
	var patterns []string
	if !o.NoDefaultIgnores {
		patterns = append(patterns, DefaultIgnorePatterns...)
	}
	return append(patterns, o.Ignore...)
}

// Build reads root from fs and returns its tree. Directories come before
// files and each group is sorted by name.
func Build(fs afero.Fs, root string, opts Options) (*Node, error) {
	root = filepath.Clean(root)
	info, err := fs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat tree root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("tree root %s is not a directory", root)
	}

	b := &builder{fs: fs, matcher: NewMatcher(root, opts.Patterns()), maxDepth: opts.MaxDepth}
	node := &Node{Name: filepath.Base(root), Path: root, Dir: true}
	if err := b.fill(node, 1); err != nil {
		return nil, err
	}
	return node, nil
}

type builder struct {
	fs       afero.Fs
	matcher  *Matcher
	maxDepth int
}

func (b *builder) fill(node *Node, depth int) error {
	if b.maxDepth > 0 && depth > b.maxDepth {
		return nil
	}

	entries, err := afero.ReadDir(b.fs, node.Path)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", node.Path, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		path := filepath.Join(node.Path, entry.Name())
		if b.ignored(path, entry) {
			continue
		}
		child := &Node{Name: entry.Name(), Path: path, Dir: entry.IsDir()}
		if child.Dir {
			if err := b.fill(child, depth+1); err != nil {
				return err
			}
		}
		node.Children = append(node.Children, child)
	}
	return nil
}

func (b *builder) ignored(path string, entry os.FileInfo) bool {
	return b.matcher.Match(path, entry.IsDir())
}

// Matcher decides whether a path below a root is ignored.
type Matcher struct {
	root     string
	patterns []string
}

// NewMatcher returns a matcher for paths below root. Patterns use the same
// syntax as Options.Ignore.
func NewMatcher(root string, patterns []string) *Matcher {
	return &Matcher{root: filepath.Clean(root), patterns: patterns}
}

// Match reports whether path is ignored.
func (m *Matcher) Match(path string, dir bool) bool {
	rel, err := filepath.Rel(m.root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	name := filepath.Base(path)

	for _, pattern := range m.patterns {
		if strings.HasSuffix(pattern, "/") {
			if !dir {
				continue
			}
			pattern = strings.TrimSuffix(pattern, "/")
		}
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// Walk calls fn for every node in depth-first order.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Find returns the node for path, if present.
func (n *Node) Find(path string) *Node {
	path = filepath.Clean(path)
	var found *Node
	n.Walk(func(c *Node) {
		if found == nil && c.Path == path {
			found = c
		}
	})
	return found
}

// Render writes the tree as an indented listing, directories marked with "/".
func (n *Node) Render() string {
	var sb strings.Builder
	n.render(&sb, 0)
	return sb.String()
}

func (n *Node) render(sb *strings.Builder, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(n.Name)
	if n.Dir {
		sb.WriteString("/")
	}
	sb.WriteString("\n")
	for _, c := range n.Children {
		c.render(sb, depth+1)
	}
}
