// Package config holds the options shared by the sketching and indexing
// commands.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"reflect"
	"runtime"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/pomerium/sketchkit/internal/hashutil"
	"github.com/pomerium/sketchkit/internal/log"
	"github.com/pomerium/sketchkit/pkg/blobstore"
	"github.com/pomerium/sketchkit/pkg/capability"
	"github.com/pomerium/sketchkit/pkg/minhash"
	"github.com/pomerium/sketchkit/pkg/sbt"
)

// EnvPrefix is prepended to every environment variable bound to an option.
const EnvPrefix = "SKETCHKIT_"

// ErrUnknownKeys is returned when a configuration file holds keys that are
// not options.
var ErrUnknownKeys = errors.New("config: unknown configuration keys")

// Options are the sketching, indexing and search parameters.
type Options struct {
	// LogLevel is the minimum level logged.
	LogLevel string `mapstructure:"log_level" yaml:"log_level" hash:"ignore"`

	// Ksize is the k-mer size of new sketches.
	Ksize uint32 `mapstructure:"ksize" yaml:"ksize"`
	// Num bounds the number of hashes kept per sketch. Exclusive with Scaled.
	Num uint32 `mapstructure:"num" yaml:"num"`
	// Scaled keeps hashes below 2^64/Scaled. Exclusive with Num.
	Scaled uint64 `mapstructure:"scaled" yaml:"scaled"`
	// Seed is the k-mer hash seed.
	Seed uint64 `mapstructure:"seed" yaml:"seed"`
	// TrackAbundance counts how often each hash is seen.
	TrackAbundance bool `mapstructure:"track_abundance" yaml:"track_abundance"`
	// Force skips k-mers with invalid bases instead of failing.
	Force bool `mapstructure:"force" yaml:"force"`

	// BloomFilterSize is the approximate size of each internal node table.
	BloomFilterSize uint64 `mapstructure:"bloom_filter_size" yaml:"bloom_filter_size"`
	// NTables is the number of hash tables per internal node.
	NTables int `mapstructure:"n_tables" yaml:"n_tables"`
	// NChildren is the branching factor of new trees.
	NChildren int `mapstructure:"n_children" yaml:"n_children"`

	// Storage is the blob storage URI trees are saved to.
	Storage string `mapstructure:"storage" yaml:"storage" hash:"ignore"`
	// CacheSize is the number of leaf signatures kept in memory.
	CacheSize int `mapstructure:"cache_size" yaml:"cache_size" hash:"ignore"`
	// Compression is the gzip level of saved signatures, 0 to disable.
	Compression int `mapstructure:"compression" yaml:"compression" hash:"ignore"`

	// Threshold is the minimum similarity reported by searches.
	Threshold float64 `mapstructure:"threshold" yaml:"threshold" hash:"ignore"`
	// Concurrency bounds the number of files processed at once.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency" hash:"ignore"`

	viper *viper.Viper
}

var defaultOptions = Options{
	LogLevel:        "info",
	Ksize:           31,
	Num:             500,
	Seed:            minhash.DefaultSeed,
	BloomFilterSize: 100000,
	NTables:         4,
	NChildren:       2,
	CacheSize:       sbt.DefaultCacheSize,
	Threshold:       0.08,
}

// NewDefaultOptions returns a copy of the default options.
func NewDefaultOptions() *Options {
	o := defaultOptions
	o.Concurrency = runtime.GOMAXPROCS(0)
	o.viper = viper.New()
	return &o
}

// OptionsFromViper reads options from environment variables and, when set,
// configFile, on top of the defaults.
func OptionsFromViper(configFile string) (*Options, error) {
	o := NewDefaultOptions()
	v := o.viper
	if err := bindEnvs(v); err != nil {
		return nil, fmt.Errorf("failed to bind options to env vars: %w", err)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var metadata mapstructure.Metadata
	if err := v.Unmarshal(o, func(c *mapstructure.DecoderConfig) { c.Metadata = &metadata }); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if len(metadata.Unused) > 0 {
		for _, key := range metadata.Unused {
			log.Error().Str("config-file", configFile).Str("key", key).Msg("unknown configuration key")
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownKeys, strings.Join(metadata.Unused, ", "))
	}

	// v.Unmarshal overwrites the unexported field
	o.viper = v

	// num and scaled are exclusive, so setting one drops the other's default
	if v.IsSet("scaled") && !v.IsSet("num") && o.Scaled > 1 {
		o.Num = 0
	}
	if v.IsSet("num") && !v.IsSet("scaled") && o.Num > 0 {
		o.Scaled = 0
	}

	if err := o.Validate(); err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	log.Debug(context.Background()).Str("config-file", configFile).Uint64("checksum", o.Checksum()).Msg("config: loaded options")
	return o, nil
}

// bindEnvs binds every option to SKETCHKIT_<KEY>.
func bindEnvs(v *viper.Viper) error {
	t := reflect.TypeOf(Options{})
	for i := range t.NumField() {
		field := t.Field(i)
		tag, ok := field.Tag.Lookup("mapstructure")
		if !ok || tag == "-" {
			continue
		}
		key, _, _ := strings.Cut(tag, ",")
		envName := EnvPrefix + strings.ToUpper(key)
		if err := v.BindEnv(key, envName); err != nil {
			return fmt.Errorf("failed to bind field '%s' to env var '%s': %w", field.Name, envName, err)
		}
	}
	return nil
}

// Validate checks the options for consistency.
func (o *Options) Validate() error {
	if _, err := zerolog.ParseLevel(o.LogLevel); err != nil {
		return fmt.Errorf("config: invalid log_level %q: %w", o.LogLevel, err)
	}
	if _, err := o.NewMinHash(); err != nil {
		return fmt.Errorf("config: invalid sketch parameters: %w", err)
	}
	if o.NChildren < 2 {
		return fmt.Errorf("config: n_children must be at least 2, got %d", o.NChildren)
	}
	if o.NTables < 1 {
		return fmt.Errorf("config: n_tables must be at least 1, got %d", o.NTables)
	}
	if o.BloomFilterSize < 2 {
		return fmt.Errorf("config: bloom_filter_size must be at least 2, got %d", o.BloomFilterSize)
	}
	if o.Storage != "" {
		u, err := url.Parse(o.Storage)
		if err != nil {
			return fmt.Errorf("config: bad storage %s : %w", o.Storage, err)
		}
		if u.Scheme == "" {
			return fmt.Errorf("config: storage %s has no scheme", o.Storage)
		}
	}
	if o.CacheSize < 0 {
		return fmt.Errorf("config: cache_size must not be negative, got %d", o.CacheSize)
	}
	if o.Compression < 0 || o.Compression > 9 {
		return fmt.Errorf("config: compression must be between 0 and 9, got %d", o.Compression)
	}
	if o.Threshold < 0 || o.Threshold > 1 {
		return fmt.Errorf("config: threshold must be between 0 and 1, got %v", o.Threshold)
	}
	if o.Concurrency < 1 {
		return fmt.Errorf("config: concurrency must be at least 1, got %d", o.Concurrency)
	}
	return nil
}

// NewMinHash creates an empty sketch with the configured parameters.
func (o *Options) NewMinHash() (*minhash.MinHash, error) {
	return minhash.New(o.Ksize, o.Num, o.Scaled, o.Seed, o.TrackAbundance)
}

// Factory returns the tree factory for the configured parameters.
func (o *Options) Factory() sbt.Factory {
	return sbt.Factory{Ksize: o.Ksize, TableSize: o.BloomFilterSize, NTables: o.NTables}
}

// TreeOptions returns the tree options for a storage.
func (o *Options) TreeOptions(st blobstore.Storage) sbt.Options {
	return sbt.Options{Storage: st, CacheSize: o.CacheSize, Compression: o.Compression}
}

// Checksum returns a fingerprint of the options affecting sketch
// compatibility.
func (o *Options) Checksum() uint64 {
	return hashutil.MustHash(o)
}

// ToWriter writes the options as YAML.
func (o *Options) ToWriter(w io.Writer) error {
	const op = "config.Options.ToWriter"
	data, err := yaml.Marshal(o)
	if err != nil {
		return capability.RepresentationError(op, err)
	}
	_, err = capability.NewSink(w, op).Write(data)
	return err
}
