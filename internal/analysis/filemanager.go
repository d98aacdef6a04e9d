package analysis

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// EntryKind distinguishes classpath entries.
type EntryKind string

const (
	SourceRootEntry EntryKind = "source"
	ArchiveEntry    EntryKind = "archive"
)

// ClasspathEntry is one location on the analysis classpath.
type ClasspathEntry struct {
	Path string    `json:"path"`
	Kind EntryKind `json:"kind"`
}

// ClassInfo describes a class found on the classpath.
type ClassInfo struct {
	QualifiedName string `json:"qualifiedName"`
	Name          string `json:"name"`
	Package       string `json:"package"`
	// Origin is the source file, or "<archive>!/<entry>" for archive classes.
	Origin string `json:"origin"`
}

// PackageInfo describes a package found on the classpath.
type PackageInfo struct {
	QualifiedName string   `json:"qualifiedName"`
	Classes       []string `json:"classes"`
	Subpackages   []string `json:"subpackages"`
}

var sourceExtensions = map[string]bool{".java": true, ".kt": true}

// FileManager indexes classpath entries and answers class and package
// lookups in classpath order.
type FileManager struct {
	fs afero.Fs

	mu       sync.RWMutex
	entries  []ClasspathEntry
	byEntry  map[string][]*ClassInfo
	classes  map[string][]*ClassInfo
	packages map[string]map[string]bool // package -> child simple names of classes
	children map[string]map[string]bool // package -> direct subpackage names
}

// NewFileManager creates an empty file manager reading from fs.
func NewFileManager(fs afero.Fs) *FileManager {
	return &FileManager{
		fs:       fs,
		byEntry:  make(map[string][]*ClassInfo),
		classes:  make(map[string][]*ClassInfo),
		packages: map[string]map[string]bool{"": {}},
		children: make(map[string]map[string]bool),
	}
}

// Entries returns the classpath in the order entries were added.
func (m *FileManager) Entries() []ClasspathEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ClasspathEntry(nil), m.entries...)
}

func (m *FileManager) has(p string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.Path == p {
			return true
		}
	}
	return false
}

// AddSourceRoot indexes every source file below dir. The directory layout
// relative to dir gives the package. Adding the same root twice is a no-op.
func (m *FileManager) AddSourceRoot(ctx context.Context, dir string) error {
	dir = filepath.Clean(dir)
	if m.has(dir) {
		return nil
	}

	var found []*ClassInfo
	err := afero.Walk(m.fs, dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() {
			if p != dir && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !sourceExtensions[filepath.Ext(p)] {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		pkg := strings.ReplaceAll(filepath.ToSlash(filepath.Dir(rel)), "/", ".")
		if pkg == "." {
			pkg = ""
		}
		found = append(found, newClassInfo(pkg, strings.TrimSuffix(filepath.Base(p), filepath.Ext(p)), p))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to index source root %s: %w", dir, err)
	}

	m.add(ClasspathEntry{Path: dir, Kind: SourceRootEntry}, found)
	return nil
}

// AddArchive indexes the top-level classes of a jar or zip archive.
func (m *FileManager) AddArchive(ctx context.Context, archive string) error {
	archive = filepath.Clean(archive)
	if m.has(archive) {
		return nil
	}

	f, err := m.fs.Open(archive)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", archive, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat archive %s: %w", archive, err)
	}
	zr, err := zip.NewReader(f, st.Size())
	if err != nil {
		return fmt.Errorf("failed to read archive %s: %w", archive, err)
	}

	var found []*ClassInfo
	for _, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := zf.Name
		if !strings.HasSuffix(name, ".class") || strings.Contains(name, "$") {
			continue
		}
		base := strings.TrimSuffix(path.Base(name), ".class")
		if base == "module-info" || base == "package-info" {
			continue
		}
		pkg := strings.ReplaceAll(path.Dir(name), "/", ".")
		if pkg == "." {
			pkg = ""
		}
		found = append(found, newClassInfo(pkg, base, archive+"!/"+name))
	}

	m.add(ClasspathEntry{Path: archive, Kind: ArchiveEntry}, found)
	return nil
}

func newClassInfo(pkg, name, origin string) *ClassInfo {
	qn := name
	if pkg != "" {
		qn = pkg + "." + name
	}
	return &ClassInfo{QualifiedName: qn, Name: name, Package: pkg, Origin: origin}
}

func (m *FileManager) add(entry ClasspathEntry, found []*ClassInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		if e.Path == entry.Path {
			return
		}
	}
	m.entries = append(m.entries, entry)
	m.byEntry[entry.Path] = found
	for _, c := range found {
		m.classes[c.QualifiedName] = append(m.classes[c.QualifiedName], c)
		m.addPackage(c.Package)
		m.packages[c.Package][c.Name] = true
	}
}

// merge appends the entries of other in order, skipping entries already
// present.
func (m *FileManager) merge(other *FileManager) {
	other.mu.RLock()
	entries := append([]ClasspathEntry(nil), other.entries...)
	byEntry := make(map[string][]*ClassInfo, len(entries))
	for _, e := range entries {
		byEntry[e.Path] = other.byEntry[e.Path]
	}
	other.mu.RUnlock()

	for _, e := range entries {
		m.add(e, byEntry[e.Path])
	}
}

// addPackage registers pkg and all of its parents. Caller holds m.mu.
func (m *FileManager) addPackage(pkg string) {
	for {
		if _, ok := m.packages[pkg]; !ok {
			m.packages[pkg] = make(map[string]bool)
		}
		if pkg == "" {
			return
		}
		parent, child := "", pkg
		if i := strings.LastIndexByte(pkg, '.'); i >= 0 {
			parent, child = pkg[:i], pkg[i+1:]
		}
		if m.children[parent] == nil {
			m.children[parent] = make(map[string]bool)
		}
		m.children[parent][child] = true
		pkg = parent
	}
}

// FindClass returns the first class with the qualified name in classpath order.
func (m *FileManager) FindClass(qualifiedName string) (*ClassInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if cs := m.classes[qualifiedName]; len(cs) > 0 {
		return cs[0], true
	}
	return nil, false
}

// FindClasses returns every class with the qualified name.
func (m *FileManager) FindClasses(qualifiedName string) []*ClassInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*ClassInfo(nil), m.classes[qualifiedName]...)
}

// FindPackage returns the package if any indexed class lives in it or below it.
func (m *FileManager) FindPackage(qualifiedName string) (*PackageInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names, ok := m.packages[qualifiedName]
	if !ok {
		return nil, false
	}
	return &PackageInfo{
		QualifiedName: qualifiedName,
		Classes:       sortedKeys(names),
		Subpackages:   sortedKeys(m.children[qualifiedName]),
	}, true
}

// ClassCount returns the number of distinct qualified names indexed.
func (m *FileManager) ClassCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.classes)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
