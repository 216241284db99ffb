package log

import (
	"errors"
	"io"
	"slices"
	"sync"
)

// A MultiWriter dispatches writes to every registered writer. It is safe to
// add and remove writers while logging.
type MultiWriter struct {
	mu sync.Mutex
	ws []io.Writer
}

// NewMultiWriter creates a new MultiWriter
func NewMultiWriter() *MultiWriter {
	return &MultiWriter{}
}

// Add adds a writer to the multi writer.
func (m *MultiWriter) Add(w io.Writer) {
	m.mu.Lock()
	m.ws = append(m.ws, w)
	m.mu.Unlock()
}

// Remove removes a writer from the multi writer.
func (m *MultiWriter) Remove(w io.Writer) {
	m.mu.Lock()
	m.ws = slices.DeleteFunc(m.ws, func(mw io.Writer) bool {
		return mw == w
	})
	m.mu.Unlock()
}

// Write writes data to all the writers. A failing writer does not stop the
// others; every failure is returned.
func (m *MultiWriter) Write(data []byte) (int, error) {
	var errs []error

	m.mu.Lock()
	for _, w := range m.ws {
		if _, err := w.Write(data); err != nil {
			errs = append(errs, err)
		}
	}
	m.mu.Unlock()

	if err := errors.Join(errs...); err != nil {
		return 0, err
	}
	return len(data), nil
}
