package nodegraph_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pomerium/sketchkit/pkg/capability"
	"github.com/pomerium/sketchkit/pkg/capability/capabilitytest"
	"github.com/pomerium/sketchkit/pkg/minhash"
	"github.com/pomerium/sketchkit/pkg/nodegraph"
)

func newSketch(t *testing.T, ksize uint32, seq string) *minhash.MinHash {
	t.Helper()
	mh, err := minhash.New(ksize, 1000, 0, minhash.DefaultSeed, false)
	require.NoError(t, err)
	require.NoError(t, mh.AddSequence(seq, false))
	return mh
}

func TestNew(t *testing.T) {
	t.Parallel()

	g, err := nodegraph.New(21, 100, 4)
	require.NoError(t, err)
	assert.Equal(t, []uint64{97, 89, 83, 79}, g.TableSizes())
	assert.Zero(t, g.NOccupied())

	_, err = nodegraph.New(21, 100, 0)
	assert.Error(t, err)
	_, err = nodegraph.New(21, 5, 4)
	assert.Error(t, err)
}

func TestCountGet(t *testing.T) {
	t.Parallel()

	g, err := nodegraph.New(21, 1000, 4)
	require.NoError(t, err)
	assert.False(t, g.Get(12345))
	g.Count(12345)
	assert.True(t, g.Get(12345))
	assert.Equal(t, uint64(1), g.NOccupied())
}

func TestMinHashUpdater(t *testing.T) {
	t.Parallel()

	mh := newSketch(t, 5, "ACGTTTAGGCCATGACGATCGATCGGATCGTTAGC")
	g, err := nodegraph.New(5, 100000, 4)
	require.NoError(t, err)

	require.NoError(t, nodegraph.MinHashUpdater(mh).Update(g))
	assert.Equal(t, mh.Len(), g.Matches(mh))

	other, err := nodegraph.New(7, 100000, 4)
	require.NoError(t, err)
	err = nodegraph.MinHashUpdater(mh).Update(other)
	assert.ErrorIs(t, err, capability.ErrUpdate)
	assert.ErrorIs(t, err, nodegraph.ErrIncompatible)
	assert.Zero(t, other.NOccupied())
}

func TestUpdate(t *testing.T) {
	t.Parallel()

	a := newSketch(t, 5, "ACGTTTAGGCCATGACGATCG")
	b := newSketch(t, 5, "TTTTGGGGCCCCAAAATGCATGCA")

	ga, err := nodegraph.New(5, 100000, 4)
	require.NoError(t, err)
	gb, err := nodegraph.New(5, 100000, 4)
	require.NoError(t, err)
	require.NoError(t, nodegraph.MinHashUpdater(a).Update(ga))
	require.NoError(t, nodegraph.MinHashUpdater(b).Update(gb))

	snapshot, err := capability.Marshal(gb)
	require.NoError(t, err)

	require.NoError(t, gb.Update(ga))
	assert.Equal(t, a.Len(), ga.Matches(a))
	assert.Equal(t, b.Len(), ga.Matches(b))

	after, err := capability.Marshal(gb)
	require.NoError(t, err)
	assert.Equal(t, snapshot, after, "source should not be modified")

	small, err := nodegraph.New(5, 1000, 4)
	require.NoError(t, err)
	err = small.Update(ga)
	assert.ErrorIs(t, err, nodegraph.ErrIncompatible)
}

func TestEncoding(t *testing.T) {
	t.Parallel()

	g, err := nodegraph.New(5, 10000, 3)
	require.NoError(t, err)
	require.NoError(t, nodegraph.MinHashUpdater(newSketch(t, 5, "ACGTTTAGGCCATGACGATCG")).Update(g))

	data := capabilitytest.RequireDeterministic(t, g)
	assert.Equal(t, []byte("SKNG"), data[:4])

	g2, err := nodegraph.Read(bytes.NewReader(data))
	require.NoError(t, err)
	assert.True(t, g.Equal(g2))
	assert.Equal(t, g.Ksize(), g2.Ksize())

	t.Run("sink failure", func(t *testing.T) {
		capabilitytest.RequireSinkFailure(t, g)

		w := &capabilitytest.FailingWriter{FailOn: 3}
		err := g.ToWriter(w)
		assert.ErrorIs(t, err, capability.ErrSink)
		assert.NotErrorIs(t, err, capability.ErrRepresentation)
	})
	t.Run("empty graph", func(t *testing.T) {
		var empty nodegraph.Nodegraph
		err := empty.ToWriter(&bytes.Buffer{})
		assert.ErrorIs(t, err, capability.ErrRepresentation)
	})
	t.Run("bad magic", func(t *testing.T) {
		bad := bytes.Clone(data)
		bad[0] = 'X'
		_, err := nodegraph.Read(bytes.NewReader(bad))
		assert.ErrorIs(t, err, nodegraph.ErrInvalidFormat)
	})
	t.Run("truncated", func(t *testing.T) {
		_, err := nodegraph.Read(bytes.NewReader(data[:len(data)-3]))
		assert.ErrorIs(t, err, nodegraph.ErrInvalidFormat)
	})
	t.Run("oversized table", func(t *testing.T) {
		// header is 10 bytes, then the first table's size and byte count
		bad := bytes.Clone(data[:26])
		binary.LittleEndian.PutUint64(bad[18:], 1<<34)
		_, err := nodegraph.Read(bytes.NewReader(bad))
		assert.ErrorIs(t, err, nodegraph.ErrInvalidFormat)
		assert.ErrorContains(t, err, "expected")

		binary.LittleEndian.PutUint64(bad[10:], 1<<40)
		_, err = nodegraph.Read(bytes.NewReader(bad))
		assert.ErrorIs(t, err, nodegraph.ErrInvalidFormat)
		assert.ErrorContains(t, err, "invalid size")
	})
}
