// Package capability defines the two behavioral contracts shared by every
// sketch, graph, signature and configuration type in sketchkit:
//
//   - Updater, a value that folds its own state into a target value of a
//     (possibly different) type.
//   - ToWriter, a value that renders its canonical representation onto an
//     arbitrary io.Writer.
//
// The package holds no merge policy and no wire format. Implementers document
// both, along with whether a failed update leaves the target untouched.
package capability

import (
	"bytes"
	"io"
)

// Updater applies the receiver's state onto target.
//
// T is normally a pointer so the update happens in place. The receiver is
// read-only for the duration of the call and neither the receiver nor the
// target may be retained once Update returns. Failures are reported with a
// KindUpdate *Error. Unless an implementation says otherwise, target may be
// partially modified when Update fails.
type Updater[T any] interface {
	Update(target T) error
}

// UpdaterFunc adapts a function to the Updater interface. It lets one source
// type expose several update relationships, one per target type.
type UpdaterFunc[T any] func(target T) error

// Update calls f(target).
func (f UpdaterFunc[T]) Update(target T) error {
	return f(target)
}

// Nop returns an Updater that leaves every target unchanged.
func Nop[T any]() Updater[T] {
	return UpdaterFunc[T](func(T) error { return nil })
}

// Chain returns an Updater that applies each updater to the target in order.
// It stops at the first failure.
func Chain[T any](updaters ...Updater[T]) Updater[T] {
	return UpdaterFunc[T](func(target T) error {
		for _, u := range updaters {
			if err := u.Update(target); err != nil {
				return err
			}
		}
		return nil
	})
}

// ToWriter renders a value onto w.
//
// On success w has received a complete representation of the value. Write
// failures from w are returned as KindSink errors; a value that cannot be
// represented fails with KindRepresentation. The state of w after a failure
// is unspecified, callers needing atomic output buffer and commit themselves.
type ToWriter interface {
	ToWriter(w io.Writer) error
}

// ToWriterFunc adapts a function to the ToWriter interface.
type ToWriterFunc func(w io.Writer) error

// ToWriter calls f(w).
func (f ToWriterFunc) ToWriter(w io.Writer) error {
	return f(w)
}

// Marshal writes v into a fresh memory buffer and returns its contents.
func Marshal(v ToWriter) ([]byte, error) {
	var buf bytes.Buffer
	if err := v.ToWriter(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
