// Package capabilitytest contains test doubles for capability implementations.
package capabilitytest

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pomerium/sketchkit/pkg/capability"
)

// ErrWriteFailed is returned by FailingWriter when no Err is configured.
var ErrWriteFailed = errors.New("capabilitytest: write failed")

// FailingWriter accepts writes until the FailOn-th call, which and every call
// after it fail. A FailOn of 0 or 1 fails every write.
type FailingWriter struct {
	FailOn int
	Err    error

	buf   bytes.Buffer
	calls int
}

// Write implements io.Writer.
func (w *FailingWriter) Write(p []byte) (int, error) {
	w.calls++
	if w.calls >= w.FailOn {
		if w.Err != nil {
			return 0, w.Err
		}
		return 0, ErrWriteFailed
	}
	return w.buf.Write(p)
}

// Bytes returns the data accepted before the failure.
func (w *FailingWriter) Bytes() []byte {
	return w.buf.Bytes()
}

// String returns the data accepted before the failure as a string.
func (w *FailingWriter) String() string {
	return w.buf.String()
}

// Calls returns the number of Write calls seen so far.
func (w *FailingWriter) Calls() int {
	return w.calls
}

// RequireDeterministic writes v into two fresh buffers, requires the output
// to be identical and returns it.
func RequireDeterministic(t testing.TB, v capability.ToWriter) []byte {
	t.Helper()

	var b1, b2 bytes.Buffer
	require.NoError(t, v.ToWriter(&b1))
	require.NoError(t, v.ToWriter(&b2))
	require.Equal(t, b1.Bytes(), b2.Bytes(), "output should be deterministic")
	require.NotEmpty(t, b1.Bytes())
	return b1.Bytes()
}

// RequireSinkFailure requires v to surface a KindSink error when its sink
// rejects every write.
func RequireSinkFailure(t testing.TB, v capability.ToWriter) {
	t.Helper()

	w := &FailingWriter{FailOn: 1}
	err := v.ToWriter(w)
	require.Error(t, err)
	require.ErrorIs(t, err, capability.ErrSink)
	require.ErrorIs(t, err, ErrWriteFailed)
	require.Equal(t, capability.KindSink, capability.KindOf(err))
}
