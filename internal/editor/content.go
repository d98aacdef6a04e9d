package editor

import (
	"fmt"
	"sync"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Content is the mutable text buffer of an editor.
type Content struct {
	mu       sync.RWMutex
	original string
	text     string
	version  int
}

// NewContent creates a buffer holding text.
func NewContent(text string) *Content {
	return &Content{original: text, text: text}
}

// Text returns the current text.
func (c *Content) Text() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.text
}

// Version counts edits applied since the buffer was created.
func (c *Content) Version() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Replace swaps the whole text.
func (c *Content) Replace(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = text
	c.version++
}

// Insert inserts s at byte offset.
func (c *Content) Insert(offset int, s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if offset < 0 || offset > len(c.text) {
		return fmt.Errorf("offset %d out of range [0, %d]", offset, len(c.text))
	}
	c.text = c.text[:offset] + s + c.text[offset:]
	c.version++
	return nil
}

// Modified reports whether the text differs from what was loaded.
func (c *Content) Modified() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.text != c.original
}

// Diff returns the changes since load as patch text. It is empty when the
// buffer is unmodified.
func (c *Content) Diff() string {
	c.mu.RLock()
	original, text := c.original, c.text
	c.mu.RUnlock()

	if original == text {
		return ""
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(original, text, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return dmp.PatchToText(dmp.PatchMake(original, diffs))
}
