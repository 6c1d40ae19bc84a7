// Package memblob is the in-memory attachment store used by tests and -dev
// runs. Upload failures can be injected to exercise the no-partial-message
// guarantee.
package memblob

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/digitalequity/seasure-sp2/internal/blob"
)

type Store struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// FailUploads makes every Upload return an error without storing bytes.
	FailUploads bool
}

func New() *Store {
	return &Store{objects: make(map[string][]byte)}
}

func (s *Store) Upload(ctx context.Context, path string, r io.Reader, size int64, onProgress blob.ProgressFunc) (string, error) {
	if s.FailUploads {
		return "", fmt.Errorf("memblob: injected upload failure")
	}
	data, err := io.ReadAll(blob.NewProgressReader(r, size, onProgress))
	if err != nil {
		return "", fmt.Errorf("memblob: read source: %w", err)
	}
	s.mu.Lock()
	s.objects[path] = data
	s.mu.Unlock()
	return "mem://" + path, nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[path]; !ok {
		return fmt.Errorf("memblob: object %q not found", path)
	}
	delete(s.objects, path)
	return nil
}

// Get returns the stored bytes, for assertions in tests.
func (s *Store) Get(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[path]
	return data, ok
}

// Len reports how many objects are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
