package analysis

import (
	"path/filepath"
	"strings"
	"sync"
)

// FileType classifies a file for editors and the analysis engine.
type FileType struct {
	Name       string   `json:"name"`
	LanguageID string   `json:"languageId,omitempty"`
	Binary     bool     `json:"binary,omitempty"`
	Extensions []string `json:"-"`
}

// IsUnknown reports whether the type is the fallback type.
func (f FileType) IsUnknown() bool {
	return f.Name == Unknown.Name
}

var (
	Java       = FileType{Name: "JAVA", LanguageID: "java", Extensions: []string{".java"}}
	Kotlin     = FileType{Name: "Kotlin", LanguageID: "kotlin", Extensions: []string{".kt", ".kts"}}
	XML        = FileType{Name: "XML", LanguageID: "xml", Extensions: []string{".xml"}}
	Gradle     = FileType{Name: "Gradle", LanguageID: "groovy", Extensions: []string{".gradle"}}
	JSON       = FileType{Name: "JSON", LanguageID: "json", Extensions: []string{".json"}}
	Properties = FileType{Name: "Properties", LanguageID: "properties", Extensions: []string{".properties"}}
	Markdown   = FileType{Name: "Markdown", LanguageID: "markdown", Extensions: []string{".md", ".markdown"}}
	PlainText  = FileType{Name: "PLAIN_TEXT", LanguageID: "plaintext", Extensions: []string{".txt", ".pro", ".cfg"}}
	Archive    = FileType{Name: "ARCHIVE", Binary: true, Extensions: []string{".jar", ".zip", ".aar", ".apk"}}
	Class      = FileType{Name: "CLASS", Binary: true, Extensions: []string{".class", ".dex"}}
	Unknown    = FileType{Name: "UNKNOWN"}
)

// FileTypeRegistry maps file names to file types.
type FileTypeRegistry struct {
	mu     sync.RWMutex
	byExt  map[string]FileType
	byName map[string]FileType
}

// NewFileTypeRegistry returns a registry with the built-in types.
func NewFileTypeRegistry() *FileTypeRegistry {
	r := &FileTypeRegistry{
		byExt:  make(map[string]FileType),
		byName: make(map[string]FileType),
	}
	for _, ft := range []FileType{Java, Kotlin, XML, Gradle, JSON, Properties, Markdown, PlainText, Archive, Class} {
		r.Register(ft)
	}
	r.RegisterName("gradlew", PlainText)
	r.RegisterName("README", PlainText)
	return r
}

// Register associates every extension of ft with it. Later registrations win.
func (r *FileTypeRegistry) Register(ft FileType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range ft.Extensions {
		r.byExt[strings.ToLower(ext)] = ft
	}
}

// RegisterName associates an exact base name with ft.
func (r *FileTypeRegistry) RegisterName(name string, ft FileType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[name] = ft
}

// ByPath classifies path by base name, then extension.
func (r *FileTypeRegistry) ByPath(path string) FileType {
	base := filepath.Base(path)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if ft, ok := r.byName[base]; ok {
		return ft
	}
	if ft, ok := r.byExt[strings.ToLower(filepath.Ext(base))]; ok {
		return ft
	}
	return Unknown
}
