// Package filestore persists activation state in a local YAML file. It is the
// single-node counterpart of the browser local-storage the hosted application
// falls back to when no settings table is configured.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/zero-day-ai/modulekit/activation"
)

const fileVersion = 1

// document is the on-disk layout.
type document struct {
	Version int             `yaml:"version"`
	Modules map[string]bool `yaml:"modules"`
}

// Store reads and writes one YAML file. Writes go to a temporary file in the
// same directory that is renamed over the target, so readers never observe a
// half-written file.
type Store struct {
	path string
	mu   sync.Mutex
}

var _ activation.Store = (*Store)(nil)

// New returns a store backed by path. The file does not need to exist yet.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("filestore: path is required")
	}
	return &Store{path: path}, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Close is a no-op; the file is only open during Load and Save.
func (s *Store) Close() error { return nil }

// Load returns the persisted state, or nil when the file does not exist.
func (s *Store) Load(ctx context.Context) (activation.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("filestore: read %s: %w", s.path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("filestore: parse %s: %w", s.path, err)
	}
	if doc.Version > fileVersion {
		return nil, fmt.Errorf("filestore: %s has unsupported version %d", s.path, doc.Version)
	}
	if doc.Modules == nil {
		return nil, nil
	}
	return activation.State(doc.Modules), nil
}

// Save atomically replaces the file with state.
func (s *Store) Save(ctx context.Context, state activation.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := yaml.Marshal(document{Version: fileVersion, Modules: state.Clone()})
	if err != nil {
		return fmt.Errorf("filestore: encode state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("filestore: ensure dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("filestore: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("filestore: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filestore: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filestore: replace %s: %w", s.path, err)
	}
	return nil
}
