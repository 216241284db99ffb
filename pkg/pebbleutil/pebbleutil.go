// Package pebbleutil contains helpers for the pebble key-value store.
package pebbleutil

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/cockroachdb/pebble/v2"
	"github.com/cockroachdb/pebble/v2/vfs"

	"github.com/pomerium/sketchkit/internal/log"
)

// Iterate iterates over a pebble reader.
func Iterate[T any](src pebble.Reader, iterOptions *pebble.IterOptions, f func(it *pebble.Iterator) (T, error)) iter.Seq2[T, error] {
	var zero T
	return func(yield func(T, error) bool) {
		it, err := src.NewIter(iterOptions)
		if err != nil {
			yield(zero, err)
			return
		}
		defer it.Close()

		for it.First(); it.Valid(); it.Next() {
			value, err := f(it)
			if err != nil {
				yield(zero, err)
				return
			}
			if !yield(value, nil) {
				return
			}
		}

		if err := it.Error(); err != nil {
			yield(zero, err)
		}
	}
}

// IterateKeys yields the keys in a pebble reader.
func IterateKeys(src pebble.Reader, iterOptions *pebble.IterOptions) iter.Seq2[[]byte, error] {
	return Iterate(src, iterOptions, func(it *pebble.Iterator) ([]byte, error) {
		return slices.Clone(it.Key()), nil
	})
}

// OpenMemory opens an in-memory pebble database.
func OpenMemory(options *pebble.Options) (*pebble.DB, error) {
	if options == nil {
		options = new(pebble.Options)
	}
	options.FS = vfs.NewMem()
	return Open("", options)
}

// Open opens a pebble database with a logger routed to the sketchkit log.
func Open(dirname string, options *pebble.Options) (*pebble.DB, error) {
	if options == nil {
		options = new(pebble.Options)
	}
	options.LoggerAndTracer = pebbleLogger{}
	db, err := pebble.Open(dirname, options)
	if err != nil {
		return nil, fmt.Errorf("pebbleutil: open %q: %w", dirname, err)
	}
	return db, nil
}

// PrefixToUpperBound returns an upper bound for the given prefix.
func PrefixToUpperBound(prefix []byte) []byte {
	upperBound := slices.Clone(prefix)
	for i := len(upperBound) - 1; i >= 0; i-- {
		upperBound[i]++
		if upperBound[i] != 0 {
			return upperBound[:i+1]
		}
	}
	return nil // no upper-bound
}

type pebbleLogger struct{}

func (pebbleLogger) Infof(format string, args ...any) {
	log.Debug(context.Background()).Msgf("pebble: "+format, args...)
}

func (pebbleLogger) Errorf(format string, args ...any) {
	log.Error().Msgf("pebble: "+format, args...)
}

func (pebbleLogger) Fatalf(format string, args ...any) {
	log.Fatal().Msgf("pebble: "+format, args...)
}

func (pebbleLogger) Eventf(_ context.Context, _ string, _ ...any) {}
func (pebbleLogger) IsTracingEnabled(_ context.Context) bool      { return false }
