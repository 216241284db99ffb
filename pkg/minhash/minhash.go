// Package minhash implements bottom-k and scaled MinHash sketches of DNA
// sequences.
//
// A sketch keeps the smallest hashes of the canonical k-mers it has seen.
// Num sketches keep at most Num hashes; scaled sketches keep every hash below
// MaxHash. Sketches merge into each other with Update and render themselves
// as JSON with ToWriter.
package minhash

import (
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/pomerium/sketchkit/pkg/capability"
)

// DefaultSeed is the hash seed used when none is configured.
const DefaultSeed = 42

// Molecule is the only molecule type supported by the sketches.
const Molecule = "DNA"

var (
	// ErrInvalidSequence indicates a k-mer contained a non-ACGT base.
	ErrInvalidSequence = errors.New("invalid sequence")
	// ErrIncompatible indicates two sketches were built with different parameters.
	ErrIncompatible = errors.New("incompatible sketches")
	// ErrInvalidParameters indicates a sketch cannot be built with the given parameters.
	ErrInvalidParameters = errors.New("invalid sketch parameters")
)

// A MinHash is a sketch of the k-mers of one or more sequences.
type MinHash struct {
	ksize          uint32
	num            uint32
	maxHash        uint64
	seed           uint64
	trackAbundance bool

	mins   []uint64
	abunds []uint64
}

// New creates an empty sketch. Exactly one of num or scaled must be set.
func New(ksize, num uint32, scaled, seed uint64, trackAbundance bool) (*MinHash, error) {
	if ksize == 0 {
		return nil, fmt.Errorf("%w: ksize must be greater than zero", ErrInvalidParameters)
	}
	if num == 0 && scaled <= 1 {
		return nil, fmt.Errorf("%w: one of num or scaled must be set", ErrInvalidParameters)
	}
	if num != 0 && scaled > 1 {
		return nil, fmt.Errorf("%w: num and scaled are mutually exclusive", ErrInvalidParameters)
	}
	return &MinHash{
		ksize:          ksize,
		num:            num,
		maxHash:        ScaledToMaxHash(scaled),
		seed:           seed,
		trackAbundance: trackAbundance,
	}, nil
}

// ScaledToMaxHash converts a scaled factor to the largest hash kept by a
// scaled sketch. Zero means unbounded.
func ScaledToMaxHash(scaled uint64) uint64 {
	if scaled <= 1 {
		return 0
	}
	return math.MaxUint64 / scaled
}

// Ksize returns the k-mer size.
func (mh *MinHash) Ksize() uint32 { return mh.ksize }

// Num returns the maximum number of hashes kept, or 0 for scaled sketches.
func (mh *MinHash) Num() uint32 { return mh.num }

// MaxHash returns the largest hash kept, or 0 for num sketches.
func (mh *MinHash) MaxHash() uint64 { return mh.maxHash }

// Seed returns the hash seed.
func (mh *MinHash) Seed() uint64 { return mh.seed }

// TrackAbundance reports whether the sketch counts hash multiplicity.
func (mh *MinHash) TrackAbundance() bool { return mh.trackAbundance }

// Scaled returns the scaled factor, or 0 for num sketches.
func (mh *MinHash) Scaled() uint64 {
	if mh.maxHash == 0 {
		return 0
	}
	return math.MaxUint64 / mh.maxHash
}

// Len returns the number of hashes in the sketch.
func (mh *MinHash) Len() int { return len(mh.mins) }

// Hashes returns a copy of the sketch hashes in ascending order.
func (mh *MinHash) Hashes() []uint64 { return slices.Clone(mh.mins) }

// Abundances returns a copy of the hash abundances, or nil if the sketch does
// not track abundance.
func (mh *MinHash) Abundances() []uint64 {
	if !mh.trackAbundance {
		return nil
	}
	return slices.Clone(mh.abunds)
}

// Copy returns a deep copy of the sketch.
func (mh *MinHash) Copy() *MinHash {
	c := *mh
	c.mins = slices.Clone(mh.mins)
	c.abunds = slices.Clone(mh.abunds)
	return &c
}

// Compatible returns an error if other was built with different parameters.
func (mh *MinHash) Compatible(other *MinHash) error {
	switch {
	case other == nil:
		return fmt.Errorf("%w: nil sketch", ErrIncompatible)
	case mh.ksize != other.ksize:
		return fmt.Errorf("%w: ksize %d != %d", ErrIncompatible, mh.ksize, other.ksize)
	case mh.num != other.num:
		return fmt.Errorf("%w: num %d != %d", ErrIncompatible, mh.num, other.num)
	case mh.maxHash != other.maxHash:
		return fmt.Errorf("%w: max_hash %d != %d", ErrIncompatible, mh.maxHash, other.maxHash)
	case mh.seed != other.seed:
		return fmt.Errorf("%w: seed %d != %d", ErrIncompatible, mh.seed, other.seed)
	}
	return nil
}

// AddSequence adds every k-mer of seq to the sketch. Unless force is set an
// invalid base fails the whole call and the sketch is left unchanged.
func (mh *MinHash) AddSequence(seq string, force bool) error {
	var hashes []uint64
	err := HashKmers(seq, mh.ksize, mh.seed, force, func(h uint64) {
		hashes = append(hashes, h)
	})
	if err != nil {
		return err
	}
	for _, h := range hashes {
		mh.AddHash(h)
	}
	return nil
}

// AddHash adds a single hash to the sketch.
func (mh *MinHash) AddHash(h uint64) {
	mh.addHashWithAbundance(h, 1)
}

func (mh *MinHash) addHashWithAbundance(h, abund uint64) {
	if mh.maxHash != 0 && h > mh.maxHash {
		return
	}
	i, found := slices.BinarySearch(mh.mins, h)
	if found {
		if mh.trackAbundance {
			mh.abunds[i] += abund
		}
		return
	}
	if mh.num != 0 && len(mh.mins) >= int(mh.num) && i >= len(mh.mins) {
		return
	}
	mh.mins = slices.Insert(mh.mins, i, h)
	if mh.trackAbundance {
		mh.abunds = slices.Insert(mh.abunds, i, abund)
	}
	if mh.num != 0 && len(mh.mins) > int(mh.num) {
		mh.mins = mh.mins[:mh.num]
		if mh.trackAbundance {
			mh.abunds = mh.abunds[:mh.num]
		}
	}
}

// Update merges the sketch into target. The result holds the union of both
// hash sets, bounded by Num, with abundances summed when target tracks them.
// Parameters are checked before target is modified, so a failed Update leaves
// target unchanged.
func (mh *MinHash) Update(target *MinHash) error {
	if target == nil {
		return capability.Updatef("minhash.Update", "nil target")
	}
	if err := target.Compatible(mh); err != nil {
		return capability.UpdateError("minhash.Update", err)
	}

	mins := make([]uint64, 0, len(target.mins)+len(mh.mins))
	var abunds []uint64
	if target.trackAbundance {
		abunds = make([]uint64, 0, cap(mins))
	}
	abundAt := func(s *MinHash, i int) uint64 {
		if s.trackAbundance {
			return s.abunds[i]
		}
		return 1
	}

	i, j := 0, 0
	for i < len(target.mins) || j < len(mh.mins) {
		if target.num != 0 && len(mins) == int(target.num) {
			break
		}
		var h, a uint64
		switch {
		case j >= len(mh.mins) || (i < len(target.mins) && target.mins[i] < mh.mins[j]):
			h, a = target.mins[i], abundAt(target, i)
			i++
		case i >= len(target.mins) || mh.mins[j] < target.mins[i]:
			h, a = mh.mins[j], abundAt(mh, j)
			j++
		default:
			h, a = target.mins[i], abundAt(target, i)+abundAt(mh, j)
			i++
			j++
		}
		mins = append(mins, h)
		if target.trackAbundance {
			abunds = append(abunds, a)
		}
	}

	target.mins = mins
	target.abunds = abunds
	return nil
}

// Similarity returns the Jaccard similarity estimate of the two sketches.
func (mh *MinHash) Similarity(other *MinHash) (float64, error) {
	if err := mh.Compatible(other); err != nil {
		return 0, err
	}
	common, total := 0, 0
	i, j := 0, 0
	for i < len(mh.mins) || j < len(other.mins) {
		if mh.num != 0 && total == int(mh.num) {
			break
		}
		switch {
		case j >= len(other.mins) || (i < len(mh.mins) && mh.mins[i] < other.mins[j]):
			i++
		case i >= len(mh.mins) || other.mins[j] < mh.mins[i]:
			j++
		default:
			common++
			i++
			j++
		}
		total++
	}
	if total == 0 {
		return 0, nil
	}
	return float64(common) / float64(total), nil
}

// Containment returns the fraction of this sketch's hashes found in other.
func (mh *MinHash) Containment(other *MinHash) (float64, error) {
	if err := mh.Compatible(other); err != nil {
		return 0, err
	}
	if len(mh.mins) == 0 {
		return 0, nil
	}
	return float64(mh.CountCommon(other)) / float64(len(mh.mins)), nil
}

// CountCommon returns the number of hashes present in both sketches.
func (mh *MinHash) CountCommon(other *MinHash) int {
	n := 0
	i, j := 0, 0
	for i < len(mh.mins) && j < len(other.mins) {
		switch {
		case mh.mins[i] < other.mins[j]:
			i++
		case other.mins[j] < mh.mins[i]:
			j++
		default:
			n++
			i++
			j++
		}
	}
	return n
}

// MD5Sum returns a checksum of the ksize and hashes, used to name sketches
// in storage.
func (mh *MinHash) MD5Sum() string {
	h := md5.New() //nolint:gosec
	h.Write([]byte(strconv.FormatUint(uint64(mh.ksize), 10)))
	for _, v := range mh.mins {
		h.Write([]byte(strconv.FormatUint(v, 10)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HashKmers calls fn with the hash of every canonical k-mer of seq. A k-mer
// is canonical when it sorts before its reverse complement.
func HashKmers(seq string, ksize uint32, seed uint64, force bool, fn func(uint64)) error {
	if ksize == 0 {
		return fmt.Errorf("%w: ksize must be greater than zero", ErrInvalidParameters)
	}
	seq = strings.ToUpper(seq)
	k := int(ksize)
	for i := 0; i+k <= len(seq); i++ {
		kmer := seq[i : i+k]
		if !validDNA(kmer) {
			if force {
				continue
			}
			return fmt.Errorf("%w: invalid base in k-mer %q at position %d", ErrInvalidSequence, kmer, i)
		}
		rc := reverseComplement(kmer)
		if rc < kmer {
			kmer = rc
		}
		fn(xxh3.HashStringSeed(kmer, seed))
	}
	return nil
}

func validDNA(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case 'A', 'C', 'G', 'T':
		default:
			return false
		}
	}
	return true
}

func reverseComplement(s string) string {
	b := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		var c byte
		switch s[i] {
		case 'A':
			c = 'T'
		case 'C':
			c = 'G'
		case 'G':
			c = 'C'
		case 'T':
			c = 'A'
		}
		b[len(s)-1-i] = c
	}
	return string(b)
}
