// Package hashutil provides NON-CRYPTOGRAPHIC utility functions for hashing.
package hashutil

import (
	"github.com/mitchellh/hashstructure/v2"
	"github.com/zeebo/xxh3"
)

// MustHash returns the xxh3 hash of an arbitrary value or struct. Returns 0
// on error.
// NOT SUITABLE FOR CRYPTOGRAPHIC HASHING.
func MustHash(v any) uint64 {
	hash, err := Hash(v)
	if err != nil {
		hash = 0
	}
	return hash
}

// Hash returns the xxh3 hash of an arbitrary value or struct. Fields tagged
// `hash:"ignore"` are skipped.
// NOT SUITABLE FOR CRYPTOGRAPHIC HASHING.
func Hash(v any) (uint64, error) {
	opts := &hashstructure.HashOptions{
		Hasher: xxh3.New(),
	}
	return hashstructure.Hash(v, hashstructure.FormatV2, opts)
}
