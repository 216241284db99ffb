package capability_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pomerium/sketchkit/pkg/capability"
	"github.com/pomerium/sketchkit/pkg/capability/capabilitytest"
)

type record struct {
	Field int `json:"field"`
}

type recordUpdate struct {
	Field *int
}

func (u recordUpdate) Update(target *record) error {
	if u.Field == nil {
		return nil
	}
	if *u.Field < 0 {
		return capability.Updatef("recordUpdate", "field must be positive, got %d", *u.Field)
	}
	target.Field = *u.Field
	return nil
}

func (r *record) ToWriter(w io.Writer) error {
	if r.Field < 0 {
		return capability.Representationf("record", "negative field %d", r.Field)
	}
	s := capability.NewSink(w, "record")
	if _, err := io.WriteString(s, `{"field":`); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s, "%d}", r.Field); err != nil {
		return err
	}
	return nil
}

var (
	_ capability.Updater[*record] = recordUpdate{}
	_ capability.ToWriter         = (*record)(nil)
)

func intPtr(v int) *int { return &v }

func TestNop(t *testing.T) {
	t.Parallel()

	r := &record{Field: 7}
	require.NoError(t, capability.Nop[*record]().Update(r))
	assert.Equal(t, &record{Field: 7}, r)
}

func TestChain(t *testing.T) {
	t.Parallel()

	t.Run("applies in order", func(t *testing.T) {
		r := &record{Field: 1}
		u := capability.Chain[*record](recordUpdate{Field: intPtr(2)}, recordUpdate{}, recordUpdate{Field: intPtr(3)})
		require.NoError(t, u.Update(r))
		assert.Equal(t, 3, r.Field)
	})
	t.Run("stops at first failure", func(t *testing.T) {
		r := &record{Field: 1}
		var called bool
		u := capability.Chain[*record](
			recordUpdate{Field: intPtr(-1)},
			capability.UpdaterFunc[*record](func(*record) error { called = true; return nil }),
		)
		err := u.Update(r)
		assert.ErrorIs(t, err, capability.ErrUpdate)
		assert.False(t, called)
		assert.Equal(t, 1, r.Field)
	})
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	a := &record{Field: 1}
	require.NoError(t, recordUpdate{Field: intPtr(2)}.Update(a))

	data, err := capability.Marshal(a)
	require.NoError(t, err)

	var got record
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, record{Field: 2}, got)
}

func TestDeterministic(t *testing.T) {
	t.Parallel()

	out := capabilitytest.RequireDeterministic(t, &record{Field: 42})
	assert.Equal(t, `{"field":42}`, string(out))
}

func TestFailurePropagation(t *testing.T) {
	t.Parallel()

	capabilitytest.RequireSinkFailure(t, &record{Field: 1})
}

func TestErrorKinds(t *testing.T) {
	t.Parallel()

	t.Run("nth write", func(t *testing.T) {
		w := &capabilitytest.FailingWriter{FailOn: 2}
		err := (&record{Field: 3}).ToWriter(w)
		require.Error(t, err)
		assert.Equal(t, capability.KindSink, capability.KindOf(err))
		assert.ErrorIs(t, err, capability.ErrSink)
		assert.NotErrorIs(t, err, capability.ErrRepresentation)
		assert.Equal(t, `{"field":`, w.String())
		assert.Equal(t, 2, w.Calls())
	})
	t.Run("malformed value", func(t *testing.T) {
		var buf bytes.Buffer
		err := (&record{Field: -1}).ToWriter(&buf)
		require.Error(t, err)
		assert.Equal(t, capability.KindRepresentation, capability.KindOf(err))
		assert.ErrorIs(t, err, capability.ErrRepresentation)
		assert.NotErrorIs(t, err, capability.ErrSink)
		assert.Empty(t, buf.Bytes())
	})
	t.Run("cause", func(t *testing.T) {
		w := &capabilitytest.FailingWriter{FailOn: 1, Err: io.ErrClosedPipe}
		err := (&record{Field: 3}).ToWriter(w)
		assert.ErrorIs(t, err, io.ErrClosedPipe)
		assert.EqualError(t, err, "record: sink write failed: io: read/write on closed pipe")
	})
	t.Run("unknown", func(t *testing.T) {
		assert.Equal(t, capability.KindUnknown, capability.KindOf(errors.New("x")))
		assert.Equal(t, capability.KindUnknown, capability.KindOf(nil))
	})
}

type shortWriter struct{}

func (shortWriter) Write(p []byte) (int, error) { return len(p) / 2, nil }

func TestSink(t *testing.T) {
	t.Parallel()

	t.Run("short write", func(t *testing.T) {
		s := capability.NewSink(shortWriter{}, "test")
		n, err := s.Write([]byte("abcd"))
		assert.Equal(t, 2, n)
		assert.ErrorIs(t, err, io.ErrShortWrite)
		assert.ErrorIs(t, err, capability.ErrSink)
		assert.Equal(t, int64(2), s.Count())

		_, err = s.WriteString("more")
		assert.Same(t, s.Err(), err)
	})
	t.Run("nested", func(t *testing.T) {
		inner := capability.NewSink(&capabilitytest.FailingWriter{FailOn: 1}, "inner")
		outer := capability.NewSink(inner, "outer")
		_, err := outer.Write([]byte("x"))
		assert.EqualError(t, err, "inner: sink write failed: capabilitytest: write failed")
	})
}

func TestConcurrentUpdates(t *testing.T) {
	t.Parallel()

	targets := []*record{{Field: 1}, {Field: 1}}
	sources := []recordUpdate{{Field: intPtr(10)}, {Field: intPtr(20)}}

	var wg sync.WaitGroup
	errs := make([]error, len(targets))
	for i := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = sources[i].Update(targets[i])
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 10, targets[0].Field)
	assert.Equal(t, 20, targets[1].Field)
}

func TestToWriterFunc(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	f := capability.ToWriterFunc(func(w io.Writer) error {
		_, err := io.WriteString(w, "hello")
		return capability.SinkError("hello", err)
	})
	require.NoError(t, f.ToWriter(&buf))
	assert.Equal(t, "hello", buf.String())
}
