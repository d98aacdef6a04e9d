package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"

	"github.com/opencode-ai/workbench/internal/event"
)

// RandomString generates a random string of n characters
func RandomString(n int) string {
	bytes := make([]byte, n/2+1)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)[:n]
}

// TempDir creates a temporary directory
type TempDir struct {
	Path string
}

// NewTempDir creates a temp directory
func NewTempDir() (*TempDir, error) {
	path, err := os.MkdirTemp("", "workbench-test-*")
	if err != nil {
		return nil, err
	}
	// Resolve symlinks so paths match what the session reports.
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	return &TempDir{Path: path}, nil
}

// CreateFile creates a file in the temp directory
func (d *TempDir) CreateFile(name, content string) (string, error) {
	path := filepath.Join(d.Path, name)

	// Create parent directories if needed
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", err
	}
	return path, nil
}

// CreateSubDir creates a subdirectory
func (d *TempDir) CreateSubDir(name string) (string, error) {
	path := filepath.Join(d.Path, name)
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", err
	}
	return path, nil
}

// Cleanup removes the temp directory and all contents
func (d *TempDir) Cleanup() {
	os.RemoveAll(d.Path)
}

// ---- Project Fixtures ----

// ProjectFiles is the layout written by NewProject, relative to its root.
var ProjectFiles = map[string]string{
	"settings.gradle":                                   "include ':app'\n",
	"build.gradle":                                      "buildscript {}\n",
	"app/build.gradle":                                  "plugins { id 'com.android.application' }\n",
	"app/src/main/AndroidManifest.xml":                  "<manifest package=\"com.example\"/>\n",
	"app/src/main/java/com/example/MainActivity.java":   "package com.example;\n\npublic class MainActivity {}\n",
	"app/src/main/java/com/example/util/Strings.java":   "package com.example.util;\n\npublic final class Strings {}\n",
	"app/src/main/java/com/example/data/Repository.kt":  "package com.example.data\n\nclass Repository\n",
	"app/build/intermediates/classes/MainActivity.class": "",
}

// NewProject creates a temp directory holding a small Android style project.
func NewProject() (*TempDir, error) {
	dir, err := NewTempDir()
	if err != nil {
		return nil, err
	}
	for name, content := range ProjectFiles {
		if _, err := dir.CreateFile(name, content); err != nil {
			dir.Cleanup()
			return nil, err
		}
	}
	return dir, nil
}

// ---- Event Recording ----

// EventRecorder collects every event published on a bus.
type EventRecorder struct {
	mu     sync.Mutex
	events []event.Event
	unsub  func()
}

// NewEventRecorder starts recording events from bus.
func NewEventRecorder(bus *event.Bus) *EventRecorder {
	r := &EventRecorder{}
	r.unsub = bus.SubscribeAll(func(e event.Event) {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
	})
	return r
}

// Stop stops recording.
func (r *EventRecorder) Stop() {
	r.unsub()
}

// HasType checks if any event has the given type
func (r *EventRecorder) HasType(eventType event.EventType) bool {
	return r.CountType(eventType) > 0
}

// CountType counts events of given type
func (r *EventRecorder) CountType(eventType event.EventType) int {
	return len(r.FilterType(eventType))
}

// FilterType returns events of given type
func (r *EventRecorder) FilterType(eventType event.EventType) []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var filtered []event.Event
	for _, e := range r.events {
		if e.Type == eventType {
			filtered = append(filtered, e)
		}
	}
	return filtered
}
