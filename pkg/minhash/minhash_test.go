package minhash_test

import (
	"bytes"
	"encoding/json"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pomerium/sketchkit/pkg/capability"
	"github.com/pomerium/sketchkit/pkg/capability/capabilitytest"
	"github.com/pomerium/sketchkit/pkg/minhash"
)

const (
	seqA = "TGGAATTCCACCCGTACGTAGCTAGCTAGGCTAGCTAGCTAGGCATCGATCGATCGATCAGGGGCTTTACGA"
	seqB = "TGGAATTCCACCCGTACGTAGCTAGCTAGGCTAGCTAGCTAGGCATCGATCGATCGATCAGTTTTCCCAAAG"
)

func mustNew(t *testing.T, ksize, num uint32, scaled uint64, abund bool) *minhash.MinHash {
	t.Helper()
	mh, err := minhash.New(ksize, num, scaled, minhash.DefaultSeed, abund)
	require.NoError(t, err)
	return mh
}

func TestNew(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name   string
		ksize  uint32
		num    uint32
		scaled uint64
		err    string
	}{
		{"num", 21, 500, 0, ""},
		{"scaled", 31, 0, 1000, ""},
		{"no ksize", 0, 500, 0, "invalid sketch parameters: ksize must be greater than zero"},
		{"neither", 21, 0, 0, "invalid sketch parameters: one of num or scaled must be set"},
		{"both", 21, 10, 100, "invalid sketch parameters: num and scaled are mutually exclusive"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			mh, err := minhash.New(tc.ksize, tc.num, tc.scaled, minhash.DefaultSeed, false)
			if tc.err != "" {
				assert.EqualError(t, err, tc.err)
				assert.ErrorIs(t, err, minhash.ErrInvalidParameters)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.scaled, mh.Scaled())
		})
	}
}

func TestScaledToMaxHash(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint64(0), minhash.ScaledToMaxHash(0))
	assert.Equal(t, uint64(0), minhash.ScaledToMaxHash(1))
	assert.Equal(t, uint64(math.MaxUint64/2), minhash.ScaledToMaxHash(2))
}

func TestHashKmers(t *testing.T) {
	t.Parallel()

	t.Run("canonical", func(t *testing.T) {
		var fwd, rev []uint64
		require.NoError(t, minhash.HashKmers("ACGTTGCA", 4, 42, false, func(h uint64) { fwd = append(fwd, h) }))
		require.NoError(t, minhash.HashKmers("TGCAACGT", 4, 42, false, func(h uint64) { rev = append(rev, h) }))
		require.Len(t, fwd, 5)
		assert.ElementsMatch(t, fwd, rev)
	})
	t.Run("lowercase", func(t *testing.T) {
		var upper, lower []uint64
		require.NoError(t, minhash.HashKmers("ACGTACGT", 3, 42, false, func(h uint64) { upper = append(upper, h) }))
		require.NoError(t, minhash.HashKmers("acgtacgt", 3, 42, false, func(h uint64) { lower = append(lower, h) }))
		assert.Equal(t, upper, lower)
	})
	t.Run("invalid", func(t *testing.T) {
		err := minhash.HashKmers("ACGNACGT", 3, 42, false, func(uint64) {})
		assert.ErrorIs(t, err, minhash.ErrInvalidSequence)
	})
	t.Run("force", func(t *testing.T) {
		n := 0
		require.NoError(t, minhash.HashKmers("ACGNACGT", 3, 42, true, func(uint64) { n++ }))
		assert.Equal(t, 3, n)
	})
	t.Run("short", func(t *testing.T) {
		n := 0
		require.NoError(t, minhash.HashKmers("AC", 3, 42, false, func(uint64) { n++ }))
		assert.Zero(t, n)
	})
}

func TestAddSequence(t *testing.T) {
	t.Parallel()

	t.Run("num bound", func(t *testing.T) {
		mh := mustNew(t, 5, 10, 0, false)
		require.NoError(t, mh.AddSequence(seqA, false))
		assert.Equal(t, 10, mh.Len())
		hashes := mh.Hashes()
		assert.IsIncreasing(t, hashes)
	})
	t.Run("scaled bound", func(t *testing.T) {
		mh := mustNew(t, 5, 0, 4, false)
		require.NoError(t, mh.AddSequence(seqA, false))
		for _, h := range mh.Hashes() {
			assert.LessOrEqual(t, h, mh.MaxHash())
		}
	})
	t.Run("unchanged on error", func(t *testing.T) {
		mh := mustNew(t, 5, 10, 0, false)
		err := mh.AddSequence("ACGTACGTNN", false)
		assert.ErrorIs(t, err, minhash.ErrInvalidSequence)
		assert.Zero(t, mh.Len())
	})
	t.Run("abundance", func(t *testing.T) {
		mh := mustNew(t, 4, 100, 0, true)
		require.NoError(t, mh.AddSequence("ACGTACGT", false))
		var total uint64
		for _, a := range mh.Abundances() {
			total += a
		}
		assert.Equal(t, uint64(5), total)
	})
}

func TestUpdate(t *testing.T) {
	t.Parallel()

	t.Run("union", func(t *testing.T) {
		a := mustNew(t, 5, 10000, 0, false)
		require.NoError(t, a.AddSequence(seqA, false))
		b := mustNew(t, 5, 10000, 0, false)
		require.NoError(t, b.AddSequence(seqB, false))
		all := mustNew(t, 5, 10000, 0, false)
		require.NoError(t, all.AddSequence(seqA, false))
		require.NoError(t, all.AddSequence(seqB, false))

		before := b.Hashes()
		require.NoError(t, b.Update(a))
		assert.Equal(t, all.Hashes(), a.Hashes())
		assert.Equal(t, before, b.Hashes(), "source should not be modified")
	})
	t.Run("num truncation", func(t *testing.T) {
		a := mustNew(t, 5, 10, 0, false)
		require.NoError(t, a.AddSequence(seqA, false))
		b := mustNew(t, 5, 10, 0, false)
		require.NoError(t, b.AddSequence(seqB, false))
		require.NoError(t, b.Update(a))
		assert.Equal(t, 10, a.Len())
	})
	t.Run("abundances summed", func(t *testing.T) {
		a := mustNew(t, 4, 100, 0, true)
		require.NoError(t, a.AddSequence("ACGTACGT", false))
		b := a.Copy()
		require.NoError(t, b.Update(a))
		for i, v := range a.Abundances() {
			assert.Equal(t, 2*b.Abundances()[i], v)
		}
	})
	t.Run("incompatible", func(t *testing.T) {
		a := mustNew(t, 5, 10, 0, false)
		require.NoError(t, a.AddSequence(seqA, false))
		b := mustNew(t, 7, 10, 0, false)
		require.NoError(t, b.AddSequence(seqB, false))

		before := a.Hashes()
		err := b.Update(a)
		assert.ErrorIs(t, err, capability.ErrUpdate)
		assert.ErrorIs(t, err, minhash.ErrIncompatible)
		assert.Equal(t, before, a.Hashes())
	})
	t.Run("nil target", func(t *testing.T) {
		a := mustNew(t, 5, 10, 0, false)
		assert.ErrorIs(t, a.Update(nil), capability.ErrUpdate)
	})
	t.Run("nop", func(t *testing.T) {
		a := mustNew(t, 5, 10, 0, false)
		require.NoError(t, a.AddSequence(seqA, false))
		before := a.Hashes()
		require.NoError(t, capability.Nop[*minhash.MinHash]().Update(a))
		assert.Equal(t, before, a.Hashes())
	})
	t.Run("parallel targets", func(t *testing.T) {
		targets := []*minhash.MinHash{mustNew(t, 5, 10000, 0, false), mustNew(t, 5, 10000, 0, false)}
		sources := []*minhash.MinHash{mustNew(t, 5, 10000, 0, false), mustNew(t, 5, 10000, 0, false)}
		require.NoError(t, sources[0].AddSequence(seqA, false))
		require.NoError(t, sources[1].AddSequence(seqB, false))

		var wg sync.WaitGroup
		for i := range targets {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, sources[i].Update(targets[i]))
			}()
		}
		wg.Wait()
		assert.Equal(t, sources[0].Hashes(), targets[0].Hashes())
		assert.Equal(t, sources[1].Hashes(), targets[1].Hashes())
	})
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	a := mustNew(t, 5, 10000, 0, false)
	require.NoError(t, a.AddSequence(seqA, false))
	b := mustNew(t, 5, 10000, 0, false)
	require.NoError(t, b.AddSequence(seqB, false))

	self, err := a.Similarity(a)
	require.NoError(t, err)
	assert.Equal(t, 1.0, self)

	ab, err := a.Similarity(b)
	require.NoError(t, err)
	ba, err := b.Similarity(a)
	require.NoError(t, err)
	assert.Equal(t, ab, ba)
	assert.Greater(t, ab, 0.0)
	assert.Less(t, ab, 1.0)

	c, err := a.Containment(a)
	require.NoError(t, err)
	assert.Equal(t, 1.0, c)

	_, err = a.Similarity(mustNew(t, 6, 10000, 0, false))
	assert.ErrorIs(t, err, minhash.ErrIncompatible)

	empty := mustNew(t, 5, 10000, 0, false)
	s, err := empty.Similarity(mustNew(t, 5, 10000, 0, false))
	require.NoError(t, err)
	assert.Zero(t, s)
}

func TestJSON(t *testing.T) {
	t.Parallel()

	a := mustNew(t, 5, 20, 0, true)
	require.NoError(t, a.AddSequence(seqA, false))

	data := capabilitytest.RequireDeterministic(t, a)

	var b minhash.MinHash
	require.NoError(t, json.Unmarshal(data, &b))
	assert.Equal(t, a.Hashes(), b.Hashes())
	assert.Equal(t, a.Abundances(), b.Abundances())
	assert.Equal(t, a.MD5Sum(), b.MD5Sum())
	assert.Equal(t, a.Ksize(), b.Ksize())
	assert.Equal(t, a.Num(), b.Num())

	viaMarshal, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(viaMarshal))
}

func TestJSONEmptySketch(t *testing.T) {
	t.Parallel()

	for _, track := range []bool{true, false} {
		mh := mustNew(t, 21, 10, 0, track)
		data, err := capability.Marshal(mh)
		require.NoError(t, err)

		var fields map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(data, &fields))
		_, hasAbundances := fields["abundances"]
		assert.Equal(t, track, hasAbundances)

		var back minhash.MinHash
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, track, back.TrackAbundance())
		assert.Empty(t, back.Hashes())
	}
}

func TestUnmarshalNormalizes(t *testing.T) {
	t.Parallel()

	var mh minhash.MinHash
	require.NoError(t, json.Unmarshal([]byte(`{"num":2,"ksize":5,"seed":42,"max_hash":0,"mins":[9,3,7,3],"molecule":"DNA"}`), &mh))
	assert.Equal(t, []uint64{3, 7}, mh.Hashes())

	err := json.Unmarshal([]byte(`{"num":2,"ksize":5,"mins":[],"molecule":"protein"}`), &mh)
	assert.ErrorIs(t, err, minhash.ErrInvalidParameters)
}

func TestToWriterErrors(t *testing.T) {
	t.Parallel()

	a := mustNew(t, 5, 20, 0, false)
	require.NoError(t, a.AddSequence(seqA, false))
	capabilitytest.RequireSinkFailure(t, a)

	var bad minhash.MinHash
	var buf bytes.Buffer
	err := bad.ToWriter(&buf)
	assert.ErrorIs(t, err, capability.ErrRepresentation)
	assert.Empty(t, buf.Bytes())
}
