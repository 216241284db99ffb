// Package nodegraph implements the multi-table Bloom filter stored in the
// internal nodes of a sequence bloom tree.
package nodegraph

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/bits-and-blooms/bitset"

	"github.com/pomerium/sketchkit/pkg/capability"
	"github.com/pomerium/sketchkit/pkg/minhash"
)

const maxTables = math.MaxUint8

var (
	// ErrIncompatible indicates two graphs have different ksizes or table sizes.
	ErrIncompatible = errors.New("incompatible nodegraphs")
	// ErrInvalidFormat indicates the binary encoding of a graph is malformed.
	ErrInvalidFormat = errors.New("invalid nodegraph format")
)

// A Nodegraph is a Bloom filter made of several bit tables of distinct
// prime sizes.
type Nodegraph struct {
	ksize  uint32
	tables []*bitset.BitSet
}

// New creates an empty graph with ntables tables whose sizes are the largest
// primes not above tablesize.
func New(ksize uint32, tablesize uint64, ntables int) (*Nodegraph, error) {
	if ntables < 1 || ntables > maxTables {
		return nil, fmt.Errorf("nodegraph: table count must be between 1 and %d, got %d", maxTables, ntables)
	}
	sizes, err := primesBelow(tablesize, ntables)
	if err != nil {
		return nil, err
	}
	g := &Nodegraph{ksize: ksize, tables: make([]*bitset.BitSet, len(sizes))}
	for i, size := range sizes {
		g.tables[i] = bitset.New(uint(size))
	}
	return g, nil
}

// Ksize returns the k-mer size of the hashes stored in the graph.
func (g *Nodegraph) Ksize() uint32 { return g.ksize }

// TableSizes returns the size of every table.
func (g *Nodegraph) TableSizes() []uint64 {
	sizes := make([]uint64, len(g.tables))
	for i, t := range g.tables {
		sizes[i] = uint64(t.Len())
	}
	return sizes
}

// Count inserts a hash into the graph.
func (g *Nodegraph) Count(h uint64) {
	for _, t := range g.tables {
		t.Set(uint(h % uint64(t.Len())))
	}
}

// Get reports whether a hash may have been inserted.
func (g *Nodegraph) Get(h uint64) bool {
	for _, t := range g.tables {
		if !t.Test(uint(h % uint64(t.Len()))) {
			return false
		}
	}
	return len(g.tables) > 0
}

// Matches returns how many hashes of mh the graph may contain.
func (g *Nodegraph) Matches(mh *minhash.MinHash) int {
	n := 0
	for _, h := range mh.Hashes() {
		if g.Get(h) {
			n++
		}
	}
	return n
}

// NOccupied returns the number of bits set in the first table.
func (g *Nodegraph) NOccupied() uint64 {
	if len(g.tables) == 0 {
		return 0
	}
	return uint64(g.tables[0].Count())
}

// Equal reports whether both graphs hold identical tables.
func (g *Nodegraph) Equal(other *Nodegraph) bool {
	if other == nil || g.ksize != other.ksize || len(g.tables) != len(other.tables) {
		return false
	}
	for i := range g.tables {
		if !g.tables[i].Equal(other.tables[i]) {
			return false
		}
	}
	return true
}

func (g *Nodegraph) compatible(other *Nodegraph) error {
	if g.ksize != other.ksize {
		return fmt.Errorf("%w: ksize %d != %d", ErrIncompatible, g.ksize, other.ksize)
	}
	if !slices.Equal(g.TableSizes(), other.TableSizes()) {
		return fmt.Errorf("%w: table sizes %v != %v", ErrIncompatible, g.TableSizes(), other.TableSizes())
	}
	return nil
}

// Update ORs the graph's tables into target. Compatibility is checked first,
// so a failed Update leaves target unchanged.
func (g *Nodegraph) Update(target *Nodegraph) error {
	const op = "nodegraph.Update"
	if target == nil {
		return capability.Updatef(op, "nil target")
	}
	if err := target.compatible(g); err != nil {
		return capability.UpdateError(op, err)
	}
	for i, t := range g.tables {
		target.tables[i].InPlaceUnion(t)
	}
	return nil
}

// MinHashUpdater returns an updater that inserts every hash of mh into its
// target graph.
func MinHashUpdater(mh *minhash.MinHash) capability.Updater[*Nodegraph] {
	return capability.UpdaterFunc[*Nodegraph](func(target *Nodegraph) error {
		const op = "nodegraph.MinHashUpdater"
		if target == nil {
			return capability.Updatef(op, "nil target")
		}
		if mh.Ksize() != target.ksize {
			return capability.UpdateError(op,
				fmt.Errorf("%w: ksize %d != %d", ErrIncompatible, mh.Ksize(), target.ksize))
		}
		for _, h := range mh.Hashes() {
			target.Count(h)
		}
		return nil
	})
}

func primesBelow(n uint64, count int) ([]uint64, error) {
	var primes []uint64
	if n%2 == 0 {
		n--
	}
	for ; n >= 3 && len(primes) < count; n -= 2 {
		if isPrime(n) {
			primes = append(primes, n)
		}
	}
	if len(primes) < count {
		return nil, fmt.Errorf("nodegraph: not enough primes below table size for %d tables", count)
	}
	return primes, nil
}

func isPrime(n uint64) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	for d := uint64(3); d*d <= n; d += 2 {
		if n%d == 0 {
			return false
		}
	}
	return true
}

var _ capability.Updater[*Nodegraph] = (*Nodegraph)(nil)
