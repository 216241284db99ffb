package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomically(t *testing.T) {
	t.Parallel()

	fp := filepath.Join(t.TempDir(), "out.sig")
	require.NoError(t, WriteFileAtomically(fp, []byte("first"), 0o600))
	require.NoError(t, WriteFileAtomically(fp, []byte("second"), 0o644))

	data, err := os.ReadFile(fp)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	fi, err := os.Stat(fp)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), fi.Mode().Perm())
}

func TestAtomicWriter(t *testing.T) {
	t.Parallel()

	t.Run("commit", func(t *testing.T) {
		fp := filepath.Join(t.TempDir(), "out.sig")
		w := NewAtomicWriter(fp, 0o600)
		_, err := w.Write([]byte("hello "))
		require.NoError(t, err)
		_, err = w.Write([]byte("world"))
		require.NoError(t, err)

		_, err = os.Stat(fp)
		assert.True(t, os.IsNotExist(err), "nothing should be written before Close")

		require.NoError(t, w.Close())
		data, err := os.ReadFile(fp)
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(data))

		_, err = w.Write([]byte("x"))
		assert.ErrorIs(t, err, ErrClosed)
		assert.ErrorIs(t, w.Close(), ErrClosed)
	})
	t.Run("abort", func(t *testing.T) {
		fp := filepath.Join(t.TempDir(), "out.sig")
		w := NewAtomicWriter(fp, 0o600)
		_, err := w.Write([]byte("partial"))
		require.NoError(t, err)
		w.Abort()

		_, err = os.Stat(fp)
		assert.True(t, os.IsNotExist(err))
	})
}

func TestDataDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/var/lib/data")
	assert.Equal(t, "/var/lib/data/sketchkit", DataDir())
}
