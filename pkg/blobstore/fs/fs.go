// Package fs stores blobs as files below a base directory.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pomerium/sketchkit/internal/fileutil"
	"github.com/pomerium/sketchkit/internal/log"
	"github.com/pomerium/sketchkit/pkg/blobstore"
)

func init() {
	blobstore.RegisterBuilder("file", newFromURI)
}

func newFromURI(ctx context.Context, uri *url.URL) (blobstore.Storage, error) {
	if uri.Host != "" {
		// prevent the common mistake of "file://path/to/dir"
		return nil, fmt.Errorf(`invalid file uri %q (did you mean "file:///%s%s"?)`, uri.String(), uri.Host, uri.Path)
	}
	return New(ctx, uri.Path)
}

// Storage stores blobs below a directory.
type Storage struct {
	dir string
}

// New creates the directory if needed and returns a storage rooted at it.
func New(ctx context.Context, dir string) (*Storage, error) {
	if dir == "" {
		return nil, fmt.Errorf("fs: empty directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("fs: create %q: %w", dir, err)
	}
	log.Debug(ctx).Str("dir", dir).Msg("blobstore/fs: opened")
	return &Storage{dir: dir}, nil
}

func (s *Storage) resolve(path string) (string, error) {
	clean := filepath.Clean("/" + path)
	if clean == "/" || strings.Contains(path, "\x00") {
		return "", fmt.Errorf("fs: invalid path %q", path)
	}
	return filepath.Join(s.dir, clean), nil
}

// Save implements blobstore.Storage.
func (s *Storage) Save(_ context.Context, path string, data []byte) (string, error) {
	fp, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fp), 0o700); err != nil {
		return "", fmt.Errorf("fs: create directory for %q: %w", path, err)
	}
	if err := fileutil.WriteFileAtomically(fp, data, 0o600); err != nil {
		return "", fmt.Errorf("fs: save %q: %w", path, err)
	}
	return path, nil
}

// Load implements blobstore.Storage.
func (s *Storage) Load(_ context.Context, path string) ([]byte, error) {
	fp, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fp)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q", blobstore.ErrNotFound, path)
	} else if err != nil {
		return nil, fmt.Errorf("fs: load %q: %w", path, err)
	}
	return data, nil
}

// List implements blobstore.Lister.
func (s *Storage) List(ctx context.Context, prefix string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(s.dir, func(fp string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.dir, fp)
		if err != nil {
			return err
		}
		if p := filepath.ToSlash(rel); strings.HasPrefix(p, prefix) {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fs: list %q: %w", prefix, err)
	}
	slices.Sort(paths)
	return paths, nil
}

// Close implements blobstore.Storage.
func (s *Storage) Close() error {
	return nil
}

var (
	_ blobstore.Storage = (*Storage)(nil)
	_ blobstore.Lister  = (*Storage)(nil)
)
