// Package state persists the slideshow cursor sidecar described in
// SPEC_FULL.md's "Persisted slideshow cursor" section: a small JSON file recording, per
// output, which image a slideshow was showing and when it last rotated, so
// a restart resumes instead of restarting from the first image.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Cursor is one output's persisted slideshow position.
type Cursor struct {
	Output       string    `json:"output"`
	Directory    string    `json:"directory"`
	CurrentPath  string    `json:"current_path"`
	LastRotation time.Time `json:"last_rotation"`
}

type document struct {
	Cursors []Cursor `json:"cursors"`
}

// Store is a debounced, mutex-guarded writer for the slideshow state
// sidecar. Reads happen once at construction (testable property 5: a
// restarted slideshow resumes from its persisted position, not image 0).
type Store struct {
	path string

	mu      sync.Mutex
	cursors map[string]Cursor
	dirty   bool
}

// Load reads the sidecar at path if present, tolerating a missing or
// corrupt file by starting from an empty state rather than failing daemon
// startup.
func Load(path string) *Store {
	s := &Store{path: path, cursors: make(map[string]Cursor)}

	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Warn().Str("path", path).Err(err).Msg("[state] ignoring corrupt slideshow state file")
		return s
	}
	for _, c := range doc.Cursors {
		s.cursors[c.Output] = c
	}
	return s
}

// Get returns the persisted cursor for output, if one exists and its
// directory still matches (a changed source directory invalidates the
// saved position).
func (s *Store) Get(output, directory string) (Cursor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cursors[output]
	if !ok || c.Directory != directory {
		return Cursor{}, false
	}
	return c, true
}

// Update records output's current slideshow position and marks the store
// dirty for the next Flush.
func (s *Store) Update(output, directory, currentPath string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[output] = Cursor{Output: output, Directory: directory, CurrentPath: currentPath, LastRotation: at}
	s.dirty = true
}

// Remove drops a persisted cursor, used when an output is detached.
func (s *Store) Remove(output string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cursors[output]; ok {
		delete(s.cursors, output)
		s.dirty = true
	}
}

// Flush writes the sidecar to disk if it has unwritten changes, via a
// write-to-temp-then-rename so a crash mid-write never corrupts the
// previous good state.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}

	doc := document{Cursors: make([]Cursor, 0, len(s.cursors))}
	for _, c := range s.cursors {
		doc.Cursors = append(doc.Cursors, c)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}

	s.dirty = false
	return nil
}
