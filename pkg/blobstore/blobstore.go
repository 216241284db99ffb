// Package blobstore defines the storage used to persist sketch tree nodes and
// leaves, along with a registry of backends keyed by URI scheme.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"

	"github.com/pomerium/sketchkit/pkg/capability"
)

// ErrNotFound is returned when a path does not exist in a storage.
var ErrNotFound = errors.New("blob not found")

// Storage saves and loads blobs by path.
type Storage interface {
	// Save stores data at path and returns the path it can be loaded from.
	Save(ctx context.Context, path string, data []byte) (string, error)
	// Load returns the data stored at path.
	Load(ctx context.Context, path string) ([]byte, error)
	// Close releases the storage's resources.
	Close() error
}

// A Lister is a storage that can enumerate its paths.
type Lister interface {
	// List returns every stored path starting with prefix, in sorted order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// A Builder creates a storage from a URI.
type Builder func(ctx context.Context, uri *url.URL) (Storage, error)

var (
	buildersMu sync.RWMutex
	builders   = map[string]Builder{}
)

// RegisterBuilder registers a storage builder for a URI scheme.
func RegisterBuilder(scheme string, fn Builder) {
	buildersMu.Lock()
	builders[scheme] = fn
	buildersMu.Unlock()
}

// Open creates a storage for the given URI.
func Open(ctx context.Context, rawURI string) (Storage, error) {
	uri, err := url.Parse(rawURI)
	if err != nil {
		return nil, fmt.Errorf("malformed uri: %w", err)
	}
	buildersMu.RLock()
	fn, ok := builders[uri.Scheme]
	buildersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown scheme: %q", uri.Scheme)
	}
	return fn(ctx, uri)
}

// Put writes v into a buffer and saves it at path once the write succeeded.
// A failed write leaves the storage untouched.
func Put(ctx context.Context, st Storage, path string, v capability.ToWriter) (string, error) {
	var buf bytes.Buffer
	if err := v.ToWriter(&buf); err != nil {
		return "", err
	}
	return st.Save(ctx, path, buf.Bytes())
}

// Get loads path and passes its contents to decode.
func Get[T any](ctx context.Context, st Storage, path string, decode func(io.Reader) (T, error)) (T, error) {
	var zero T
	data, err := st.Load(ctx, path)
	if err != nil {
		return zero, err
	}
	v, err := decode(bytes.NewReader(data))
	if err != nil {
		return zero, fmt.Errorf("blobstore: decode %q: %w", path, err)
	}
	return v, nil
}

// Writer is a sink that buffers writes and saves them to a storage on Close.
type Writer struct {
	ctx  context.Context
	st   Storage
	path string
	buf  bytes.Buffer

	saved string
	done  bool
}

// NewWriter returns a Writer saving to path in st.
func NewWriter(ctx context.Context, st Storage, path string) *Writer {
	return &Writer{ctx: ctx, st: st, path: path}
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	if w.done {
		return 0, io.ErrClosedPipe
	}
	return w.buf.Write(p)
}

// Close saves the buffered data.
func (w *Writer) Close() error {
	if w.done {
		return io.ErrClosedPipe
	}
	w.done = true
	saved, err := w.st.Save(w.ctx, w.path, w.buf.Bytes())
	if err != nil {
		return err
	}
	w.saved = saved
	return nil
}

// Path returns the path the data was saved under, once Close succeeded.
func (w *Writer) Path() string {
	return w.saved
}

var _ io.WriteCloser = (*Writer)(nil)
