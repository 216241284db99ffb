// Package signature reads and writes signature files: named collections of
// MinHash sketches computed from the same input.
package signature

import (
	"errors"
	"fmt"
	"slices"

	"github.com/pomerium/sketchkit/pkg/capability"
	"github.com/pomerium/sketchkit/pkg/minhash"
)

// Signature file constants.
const (
	Class        = "sketchkit_signature"
	HashFunction = "0.xxh3"
	License      = "CC0"
	Version      = 0.4
)

var (
	// ErrNoSketch indicates a signature has no sketch with the requested ksize.
	ErrNoSketch = errors.New("no sketch with requested ksize")
	// ErrNotOne indicates a file expected to hold a single signature did not.
	ErrNotOne = errors.New("expected exactly one signature")
)

// A Signature is a named set of sketches.
type Signature struct {
	Class        string             `json:"class"`
	Email        string             `json:"email"`
	HashFunction string             `json:"hash_function"`
	Filename     string             `json:"filename"`
	Name         string             `json:"name,omitempty"`
	License      string             `json:"license"`
	MinHashes    []*minhash.MinHash `json:"signatures"`
	Version      float64            `json:"version"`
}

// New creates a signature holding the given sketches.
func New(name, filename string, sketches ...*minhash.MinHash) *Signature {
	return &Signature{
		Class:        Class,
		HashFunction: HashFunction,
		Filename:     filename,
		Name:         name,
		License:      License,
		MinHashes:    sketches,
		Version:      Version,
	}
}

// DisplayName returns the name, falling back to the filename and then to the
// checksum of the first sketch.
func (s *Signature) DisplayName() string {
	switch {
	case s.Name != "":
		return s.Name
	case s.Filename != "":
		return s.Filename
	case len(s.MinHashes) > 0:
		return s.MinHashes[0].MD5Sum()[:8]
	}
	return ""
}

// MD5Sum returns the checksum of the first sketch.
func (s *Signature) MD5Sum() string {
	if len(s.MinHashes) == 0 {
		return ""
	}
	return s.MinHashes[0].MD5Sum()
}

// Select returns the sketch with the given ksize.
func (s *Signature) Select(ksize uint32) (*minhash.MinHash, error) {
	for _, mh := range s.MinHashes {
		if mh.Ksize() == ksize {
			return mh, nil
		}
	}
	return nil, fmt.Errorf("%w: %d in %q", ErrNoSketch, ksize, s.DisplayName())
}

// Ksizes returns the ksize of every sketch.
func (s *Signature) Ksizes() []uint32 {
	ks := make([]uint32, len(s.MinHashes))
	for i, mh := range s.MinHashes {
		ks[i] = mh.Ksize()
	}
	return ks
}

// Update merges every sketch of s into the target sketch with the same ksize.
// Sketches without a counterpart are copied into target. The target's name
// and filename are kept when set. All sketches are checked before target is
// modified.
func (s *Signature) Update(target *Signature) error {
	const op = "signature.Update"
	if target == nil {
		return capability.Updatef(op, "nil target")
	}

	if slices.Contains(s.MinHashes, nil) || slices.Contains(target.MinHashes, nil) {
		return capability.Updatef(op, "nil sketch")
	}

	idx := make([]int, len(s.MinHashes))
	for i, mh := range s.MinHashes {
		idx[i] = slices.IndexFunc(target.MinHashes, func(t *minhash.MinHash) bool {
			return t.Ksize() == mh.Ksize()
		})
		if idx[i] >= 0 {
			if err := target.MinHashes[idx[i]].Compatible(mh); err != nil {
				return capability.UpdateError(op, err)
			}
		}
	}

	for i, mh := range s.MinHashes {
		if idx[i] < 0 {
			target.MinHashes = append(target.MinHashes, mh.Copy())
			continue
		}
		if err := mh.Update(target.MinHashes[idx[i]]); err != nil {
			return err
		}
	}
	if target.Name == "" {
		target.Name = s.Name
	}
	if target.Filename == "" {
		target.Filename = s.Filename
	}
	return nil
}

var _ capability.Updater[*Signature] = (*Signature)(nil)
