package analysis

import (
	"fmt"
	"strings"
	"unicode"
)

// ServiceKey identifies a project service.
type ServiceKey string

const (
	BlockSupportKey     ServiceKey = "block-support"
	NameHelperKey       ServiceKey = "name-helper"
	CodeStyleManagerKey ServiceKey = "code-style-manager"
	FileManagerKey      ServiceKey = "file-manager"
)

// BlockSupport applies an edit to a range of text so the engine can reparse
// only the affected block.
type BlockSupport interface {
	Reparse(text string, start, end int, replacement string) (string, error)
}

// NameHelper validates and splits JVM names.
type NameHelper interface {
	IsIdentifier(name string) bool
	IsQualifiedName(name string) bool
	ShortName(qualified string) string
}

// CodeStyleManager reformats code.
type CodeStyleManager interface {
	Reformat(text string) string
}

type textBlockSupport struct{}

// NewBlockSupport returns the default BlockSupport.
func NewBlockSupport() BlockSupport { return textBlockSupport{} }

func (textBlockSupport) Reparse(text string, start, end int, replacement string) (string, error) {
	if start < 0 || end < start || end > len(text) {
		return "", fmt.Errorf("invalid range [%d, %d) for text of length %d", start, end, len(text))
	}
	return text[:start] + replacement + text[end:], nil
}

var javaKeywords = func() map[string]bool {
	m := make(map[string]bool)
	for _, kw := range strings.Fields(`abstract assert boolean break byte case catch char class const
		continue default do double else enum extends final finally float for goto if implements
		import instanceof int interface long native new package private protected public return
		short static strictfp super switch synchronized this throw throws transient try void
		volatile while true false null`) {
		m[kw] = true
	}
	return m
}()

type javaNameHelper struct{}

// NewNameHelper returns a NameHelper following Java identifier rules.
func NewNameHelper() NameHelper { return javaNameHelper{} }

func (javaNameHelper) IsIdentifier(name string) bool {
	if name == "" || javaKeywords[name] {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || r == '$' || unicode.IsLetter(r):
		case i > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}

func (h javaNameHelper) IsQualifiedName(name string) bool {
	if name == "" {
		return false
	}
	for _, part := range strings.Split(name, ".") {
		if !h.IsIdentifier(part) {
			return false
		}
	}
	return true
}

func (javaNameHelper) ShortName(qualified string) string {
	if i := strings.LastIndexByte(qualified, '.'); i >= 0 {
		return qualified[i+1:]
	}
	return qualified
}

// noopCodeStyleManager leaves code untouched; formatting is not provided.
type noopCodeStyleManager struct{}

// NewCodeStyleManager returns a CodeStyleManager that does not change code.
func NewCodeStyleManager() CodeStyleManager { return noopCodeStyleManager{} }

func (noopCodeStyleManager) Reformat(text string) string { return text }
