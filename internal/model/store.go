package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// ErrModelNotFound is returned when no model has been trained yet.
var ErrModelNotFound = errors.New("model not found")

// Store persists the single current model. Save replaces whatever was stored.
type Store interface {
	Save(ctx context.Context, m *Model) error
	Load(ctx context.Context) (*Model, error)
}

// FileStore keeps the model as a JSON document on disk.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the artifact location.
func (s *FileStore) Path() string {
	return s.path
}

// Save writes the model to a temporary file and renames it into place.
func (s *FileStore) Save(_ context.Context, m *Model) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".model-*.json")
	if err != nil {
		return fmt.Errorf("create temp model file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close model: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace model: %w", err)
	}
	return nil
}

// Load reads and validates the stored model.
func (s *FileStore) Load(_ context.Context) (*Model, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, s.path)
		}
		return nil, fmt.Errorf("read model: %w", err)
	}
	return decode(data)
}

// InMemoryStore keeps the model in memory.
// This is intended for testing. Production should use FileStore or PostgresStore.
type InMemoryStore struct {
	mu sync.RWMutex
	m  *Model
}

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Save stores a copy of m.
func (s *InMemoryStore) Save(_ context.Context, m *Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cpy := *m
	s.m = &cpy
	return nil
}

// Load returns a copy of the stored model.
func (s *InMemoryStore) Load(_ context.Context) (*Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.m == nil {
		return nil, ErrModelNotFound
	}
	cpy := *s.m
	return &cpy, nil
}

func decode(data []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
