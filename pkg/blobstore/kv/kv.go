// Package kv stores blobs in a pebble key-value database.
package kv

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"

	"github.com/cockroachdb/pebble/v2"

	"github.com/pomerium/sketchkit/pkg/blobstore"
	"github.com/pomerium/sketchkit/pkg/pebbleutil"
)

func init() {
	blobstore.RegisterBuilder("pebble", newFromURI)
}

func newFromURI(_ context.Context, uri *url.URL) (blobstore.Storage, error) {
	if uri.Opaque == "memory" {
		return NewMemory()
	}
	if uri.Host != "" {
		return nil, fmt.Errorf(`invalid pebble uri %q (did you mean "pebble:///%s%s"?)`, uri.String(), uri.Host, uri.Path)
	}
	if uri.Path == "" {
		return nil, fmt.Errorf("invalid pebble uri %q: missing path", uri.String())
	}
	return New(uri.Path)
}

// Storage is a blob storage backed by pebble.
type Storage struct {
	db *pebble.DB
}

// New opens (or creates) a pebble database in dir.
func New(dir string) (*Storage, error) {
	db, err := pebbleutil.Open(dir, nil)
	if err != nil {
		return nil, err
	}
	return &Storage{db: db}, nil
}

// NewMemory opens an in-memory pebble database.
func NewMemory() (*Storage, error) {
	db, err := pebbleutil.OpenMemory(nil)
	if err != nil {
		return nil, err
	}
	return &Storage{db: db}, nil
}

// Save implements blobstore.Storage.
func (s *Storage) Save(_ context.Context, path string, data []byte) (string, error) {
	if err := s.db.Set([]byte(path), data, pebble.Sync); err != nil {
		return "", fmt.Errorf("kv: save %q: %w", path, err)
	}
	return path, nil
}

// Load implements blobstore.Storage.
func (s *Storage) Load(_ context.Context, path string) ([]byte, error) {
	value, closer, err := s.db.Get([]byte(path))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%w: %q", blobstore.ErrNotFound, path)
	} else if err != nil {
		return nil, fmt.Errorf("kv: load %q: %w", path, err)
	}
	data := slices.Clone(value)
	if err := closer.Close(); err != nil {
		return nil, fmt.Errorf("kv: load %q: %w", path, err)
	}
	return data, nil
}

// List implements blobstore.Lister. Paths are returned in key order.
func (s *Storage) List(_ context.Context, prefix string) ([]string, error) {
	opts := &pebble.IterOptions{}
	if prefix != "" {
		opts.LowerBound = []byte(prefix)
		opts.UpperBound = pebbleutil.PrefixToUpperBound([]byte(prefix))
	}
	var paths []string
	for key, err := range pebbleutil.IterateKeys(s.db, opts) {
		if err != nil {
			return nil, fmt.Errorf("kv: list %q: %w", prefix, err)
		}
		paths = append(paths, string(key))
	}
	return paths, nil
}

// Close implements blobstore.Storage.
func (s *Storage) Close() error {
	return s.db.Close()
}

var (
	_ blobstore.Storage = (*Storage)(nil)
	_ blobstore.Lister  = (*Storage)(nil)
)
