// Package state provides durable state for drover. Small collaborator-owned
// objects (circuit breaker state, chain state, composition state) live in one
// JSON document each behind the DocStore port; the append-mostly run archive
// lives in SQLite (see db.go).
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("state: document not found")

// DocStore persists one named JSON document per object. Implementations must
// be safe for concurrent use.
type DocStore interface {
	// Load unmarshals the named document into v. Returns ErrNotFound if the
	// document has never been saved.
	Load(name string, v any) error
	// Save marshals v and durably replaces the named document.
	Save(name string, v any) error
	// Delete removes the named document. Deleting a missing document is not
	// an error.
	Delete(name string) error
	// List returns the names of all stored documents.
	List() ([]string, error)
}

// FileDocStore stores each document as <dir>/<name>.json, written atomically
// via a temp file and rename.
type FileDocStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileDocStore creates a FileDocStore rooted at dir, creating it if needed.
func NewFileDocStore(dir string) (*FileDocStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &FileDocStore{dir: dir}, nil
}

// DefaultStateDir returns the drover state directory for a project root.
func DefaultStateDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".drover", "state")
}

func (s *FileDocStore) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Load implements DocStore.
func (s *FileDocStore) Load(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(name))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read document %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal document %s: %w", name, err)
	}
	return nil
}

// Save implements DocStore.
func (s *FileDocStore) Save(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document %s: %w", name, err)
	}

	tmp := s.path(name) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write document %s: %w", name, err)
	}
	if err := os.Rename(tmp, s.path(name)); err != nil {
		return fmt.Errorf("replace document %s: %w", name, err)
	}
	return nil
}

// Delete implements DocStore.
func (s *FileDocStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove document %s: %w", name, err)
	}
	return nil
}

// List implements DocStore.
func (s *FileDocStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read state directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := filepath.Ext(e.Name()); ext == ".json" {
			names = append(names, e.Name()[:len(e.Name())-len(ext)])
		}
	}
	return names, nil
}

// MemDocStore is an in-memory DocStore for tests.
type MemDocStore struct {
	docs map[string][]byte
	mu   sync.Mutex
}

// NewMemDocStore creates an empty MemDocStore.
func NewMemDocStore() *MemDocStore {
	return &MemDocStore{docs: make(map[string][]byte)}
}

// Load implements DocStore.
func (s *MemDocStore) Load(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.docs[name]
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(data, v)
}

// Save implements DocStore.
func (s *MemDocStore) Save(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.docs[name] = data
	return nil
}

// Delete implements DocStore.
func (s *MemDocStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, name)
	return nil
}

// List implements DocStore.
func (s *MemDocStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.docs))
	for name := range s.docs {
		names = append(names, name)
	}
	return names, nil
}
