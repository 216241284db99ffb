package minhash

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pomerium/sketchkit/pkg/capability"
)

type sketchJSON struct {
	Num        uint32    `json:"num"`
	Ksize      uint32    `json:"ksize"`
	Seed       uint64    `json:"seed"`
	MaxHash    uint64    `json:"max_hash"`
	Mins       []uint64  `json:"mins"`
	Abundances *[]uint64 `json:"abundances,omitempty"`
	MD5Sum     string    `json:"md5sum"`
	Molecule   string    `json:"molecule"`
}

// Validate checks the sketch's internal invariants.
func (mh *MinHash) Validate() error {
	if mh.ksize == 0 {
		return fmt.Errorf("%w: ksize is zero", ErrInvalidParameters)
	}
	if mh.num != 0 && len(mh.mins) > int(mh.num) {
		return fmt.Errorf("%w: %d hashes exceed num %d", ErrInvalidParameters, len(mh.mins), mh.num)
	}
	if mh.trackAbundance && len(mh.abunds) != len(mh.mins) {
		return fmt.Errorf("%w: %d abundances for %d hashes", ErrInvalidParameters, len(mh.abunds), len(mh.mins))
	}
	for i, h := range mh.mins {
		if i > 0 && mh.mins[i-1] >= h {
			return fmt.Errorf("%w: hashes are not strictly ascending at %d", ErrInvalidParameters, i)
		}
		if mh.maxHash != 0 && h > mh.maxHash {
			return fmt.Errorf("%w: hash %d exceeds max_hash %d", ErrInvalidParameters, h, mh.maxHash)
		}
	}
	return nil
}

func (mh *MinHash) toJSON() sketchJSON {
	mins := mh.mins
	if mins == nil {
		mins = []uint64{}
	}
	v := sketchJSON{
		Num:      mh.num,
		Ksize:    mh.ksize,
		Seed:     mh.seed,
		MaxHash:  mh.maxHash,
		Mins:     mins,
		MD5Sum:   mh.MD5Sum(),
		Molecule: Molecule,
	}
	if mh.trackAbundance {
		// an empty tracking sketch still writes "abundances": []
		abunds := mh.abunds
		if abunds == nil {
			abunds = []uint64{}
		}
		v.Abundances = &abunds
	}
	return v
}

// MarshalJSON implements json.Marshaler.
func (mh *MinHash) MarshalJSON() ([]byte, error) {
	if err := mh.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(mh.toJSON())
}

// UnmarshalJSON implements json.Unmarshaler. Hashes are re-inserted, so
// unsorted or oversized input is normalized.
func (mh *MinHash) UnmarshalJSON(data []byte) error {
	var v sketchJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Molecule != "" && v.Molecule != Molecule {
		return fmt.Errorf("%w: unsupported molecule %q", ErrInvalidParameters, v.Molecule)
	}
	var abunds []uint64
	if v.Abundances != nil {
		abunds = *v.Abundances
		if len(abunds) != len(v.Mins) {
			return fmt.Errorf("%w: %d abundances for %d hashes", ErrInvalidParameters, len(abunds), len(v.Mins))
		}
	}
	if v.Ksize == 0 {
		return fmt.Errorf("%w: ksize is zero", ErrInvalidParameters)
	}
	if v.Num == 0 && v.MaxHash == 0 {
		return fmt.Errorf("%w: one of num or max_hash must be set", ErrInvalidParameters)
	}

	n := MinHash{
		ksize:          v.Ksize,
		num:            v.Num,
		maxHash:        v.MaxHash,
		seed:           v.Seed,
		trackAbundance: v.Abundances != nil,
	}
	for i, h := range v.Mins {
		a := uint64(1)
		if v.Abundances != nil {
			a = abunds[i]
		}
		n.addHashWithAbundance(h, a)
	}
	*mh = n
	return nil
}

// ToWriter writes the sketch as a JSON object.
func (mh *MinHash) ToWriter(w io.Writer) error {
	const op = "minhash.ToWriter"
	if err := mh.Validate(); err != nil {
		return capability.RepresentationError(op, err)
	}
	data, err := json.Marshal(mh.toJSON())
	if err != nil {
		return capability.RepresentationError(op, err)
	}
	_, err = capability.NewSink(w, op).Write(data)
	return err
}

var (
	_ capability.Updater[*MinHash] = (*MinHash)(nil)
	_ capability.ToWriter          = (*MinHash)(nil)
)
