// Package fileutil provides atomic file output and well-known directories.
package fileutil

import (
	"bytes"
	"errors"
	"os"

	"github.com/natefinch/atomic"
)

// ErrClosed is returned when writing to a closed AtomicWriter.
var ErrClosed = errors.New("fileutil: writer already closed")

// WriteFileAtomically writes to a file path atomically. The data is written
// to a temporary file in the same directory which then replaces filePath.
func WriteFileAtomically(filePath string, data []byte, mode os.FileMode) error {
	if err := atomic.WriteFile(filePath, bytes.NewReader(data)); err != nil {
		return err
	}
	return os.Chmod(filePath, mode)
}

// An AtomicWriter buffers everything written to it and replaces the file
// at its path on Close. Nothing is written to disk if Abort is called or if
// Close is never reached.
type AtomicWriter struct {
	path   string
	mode   os.FileMode
	buf    bytes.Buffer
	closed bool
}

// NewAtomicWriter creates a writer for filePath.
func NewAtomicWriter(filePath string, mode os.FileMode) *AtomicWriter {
	return &AtomicWriter{path: filePath, mode: mode}
}

// Write implements io.Writer.
func (w *AtomicWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	return w.buf.Write(p)
}

// Close commits the buffered data to disk.
func (w *AtomicWriter) Close() error {
	if w.closed {
		return ErrClosed
	}
	w.closed = true
	return WriteFileAtomically(w.path, w.buf.Bytes(), w.mode)
}

// Abort discards the buffered data.
func (w *AtomicWriter) Abort() {
	w.closed = true
	w.buf.Reset()
}
