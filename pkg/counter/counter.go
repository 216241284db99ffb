// Package counter implements a linear counting cardinality estimator, used
// to report the number of distinct k-mers seen while sketching.
package counter

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/bits-and-blooms/bitset"
	"github.com/zeebo/xxh3"

	"github.com/pomerium/sketchkit/pkg/capability"
)

const (
	// DefaultCap max capacity for the counter
	DefaultCap = 1 << 19
	loadFactor = 4
)

// ErrSizeMismatch indicates two counters have bitsets of different lengths.
var ErrSizeMismatch = errors.New("counter size mismatch")

// Counter estimates the number of distinct elements marked in it.
//
// See https://www.waitingforcode.com/big-data-algorithms/cardinality-estimation-linear-probabilistic-counting/read
type Counter struct {
	Bits *bitset.BitSet `json:"bits"`
}

// New creates a counter for the maximum amount unique elements provided
func New(capacity uint) *Counter {
	return &Counter{
		Bits: bitset.New(max(capacity/loadFactor, 1)),
	}
}

// FromBinary unmarshals counter state
func FromBinary(data []byte) (*Counter, error) {
	pc := &Counter{
		Bits: &bitset.BitSet{},
	}
	if err := pc.Bits.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	if pc.Bits.Len() == 0 {
		return nil, fmt.Errorf("counter: empty bitset")
	}
	return pc, nil
}

// ToBinary marshals counter state
func (c *Counter) ToBinary() ([]byte, error) {
	return c.Bits.MarshalBinary()
}

// Reset the counter
func (c *Counter) Reset() {
	c.Bits.ClearAll()
}

// Mark marks key as present in the set
func (c *Counter) Mark(key string) {
	c.MarkHash(xxh3.HashString(key))
}

// MarkHash marks an already hashed element as present in the set.
func (c *Counter) MarkHash(h uint64) {
	c.Bits.Set(uint(h % uint64(c.Bits.Len())))
}

// Count returns an estimate of distinct elements in the set
func (c *Counter) Count() uint {
	size := float64(c.Bits.Len())
	zeros := size - float64(c.Bits.Count())
	if zeros == 0 {
		// saturated
		zeros = 1
	}
	return uint(math.Round(-1 * size * math.Log(zeros/size)))
}

// Update ORs the counter's bits into target, which then estimates the size
// of the union of both sets. Both counters must have the same capacity.
func (c *Counter) Update(target *Counter) error {
	const op = "counter.Update"
	if target == nil || target.Bits == nil {
		return capability.Updatef(op, "nil target")
	}
	if target.Bits.Len() != c.Bits.Len() {
		return capability.UpdateError(op,
			fmt.Errorf("%w: %d != %d", ErrSizeMismatch, target.Bits.Len(), c.Bits.Len()))
	}
	target.Bits.InPlaceUnion(c.Bits)
	return nil
}

// ToWriter writes the binary counter state.
func (c *Counter) ToWriter(w io.Writer) error {
	const op = "counter.ToWriter"
	if c.Bits == nil || c.Bits.Len() == 0 {
		return capability.Representationf(op, "counter has no bits")
	}
	data, err := c.ToBinary()
	if err != nil {
		return capability.RepresentationError(op, err)
	}
	_, err = capability.NewSink(w, op).Write(data)
	return err
}

var (
	_ capability.Updater[*Counter] = (*Counter)(nil)
	_ capability.ToWriter          = (*Counter)(nil)
)
