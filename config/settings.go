package config

import (
	"github.com/pomerium/sketchkit/pkg/capability"
)

// Settings is a partial set of options. Nil fields are left untouched when
// applied.
type Settings struct {
	LogLevel        *string
	Ksize           *uint32
	Num             *uint32
	Scaled          *uint64
	Seed            *uint64
	TrackAbundance  *bool
	Force           *bool
	BloomFilterSize *uint64
	NTables         *int
	NChildren       *int
	Storage         *string
	CacheSize       *int
	Compression     *int
	Threshold       *float64
	Concurrency     *int
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// Update replaces every option of target that s sets. The result is
// validated before it is committed, so target is unchanged on failure.
func (s *Settings) Update(target *Options) error {
	const op = "config.Settings.Update"
	if target == nil {
		return capability.Updatef(op, "nil options")
	}

	o := *target
	set(&o.LogLevel, s.LogLevel)
	set(&o.Ksize, s.Ksize)
	set(&o.Num, s.Num)
	set(&o.Scaled, s.Scaled)
	set(&o.Seed, s.Seed)
	set(&o.TrackAbundance, s.TrackAbundance)
	set(&o.Force, s.Force)
	set(&o.BloomFilterSize, s.BloomFilterSize)
	set(&o.NTables, s.NTables)
	set(&o.NChildren, s.NChildren)
	set(&o.Storage, s.Storage)
	set(&o.CacheSize, s.CacheSize)
	set(&o.Compression, s.Compression)
	set(&o.Threshold, s.Threshold)
	set(&o.Concurrency, s.Concurrency)

	// a num given without scaled switches a scaled config back to num
	if s.Num != nil && *s.Num > 0 && s.Scaled == nil {
		o.Scaled = 0
	}
	if s.Scaled != nil && *s.Scaled > 1 && s.Num == nil {
		o.Num = 0
	}

	if err := o.Validate(); err != nil {
		return capability.UpdateError(op, err)
	}
	*target = o
	return nil
}

var _ capability.Updater[*Options] = (*Settings)(nil)
