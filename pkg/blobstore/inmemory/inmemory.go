// Package inmemory stores blobs in memory.
package inmemory

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/pomerium/sketchkit/pkg/blobstore"
)

func init() {
	blobstore.RegisterBuilder("memory", func(_ context.Context, _ *url.URL) (blobstore.Storage, error) {
		return New(), nil
	})
}

// Storage is an in-memory blob storage. It is safe for concurrent use.
type Storage struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// New creates an empty storage.
func New() *Storage {
	return &Storage{blobs: make(map[string][]byte)}
}

// Save implements blobstore.Storage.
func (s *Storage) Save(_ context.Context, path string, data []byte) (string, error) {
	s.mu.Lock()
	s.blobs[path] = slices.Clone(data)
	s.mu.Unlock()
	return path, nil
}

// Load implements blobstore.Storage.
func (s *Storage) Load(_ context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	data, ok := s.blobs[path]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", blobstore.ErrNotFound, path)
	}
	return slices.Clone(data), nil
}

// Paths returns the stored paths in sorted order.
func (s *Storage) Paths() []string {
	s.mu.RLock()
	paths := make([]string, 0, len(s.blobs))
	for p := range s.blobs {
		paths = append(paths, p)
	}
	s.mu.RUnlock()
	slices.Sort(paths)
	return paths
}

// List implements blobstore.Lister.
func (s *Storage) List(_ context.Context, prefix string) ([]string, error) {
	return slices.DeleteFunc(s.Paths(), func(p string) bool {
		return !strings.HasPrefix(p, prefix)
	}), nil
}

// Close implements blobstore.Storage.
func (s *Storage) Close() error {
	return nil
}

var (
	_ blobstore.Storage = (*Storage)(nil)
	_ blobstore.Lister  = (*Storage)(nil)
)
