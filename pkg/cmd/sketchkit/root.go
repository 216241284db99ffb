// Package sketchkit contains the sketchkit command line.
package sketchkit

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pomerium/sketchkit/config"
	"github.com/pomerium/sketchkit/internal/fileutil"
	"github.com/pomerium/sketchkit/internal/log"
	"github.com/pomerium/sketchkit/internal/version"
	"github.com/pomerium/sketchkit/pkg/blobstore"
	"github.com/pomerium/sketchkit/pkg/capability"
)

type optionsKey struct{}

func optionsFrom(ctx context.Context) *config.Options {
	if o, ok := ctx.Value(optionsKey{}).(*config.Options); ok {
		return o
	}
	return config.NewDefaultOptions()
}

// BuildRootCmd builds the sketchkit root command and its subcommands.
func BuildRootCmd() *cobra.Command {
	var configFile string
	var console bool
	flags := config.NewDefaultOptions()

	cmd := &cobra.Command{
		Use:           "sketchkit",
		Short:         "Compute, index and search MinHash sketches of DNA sequences",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			o, err := config.OptionsFromViper(configFile)
			if err != nil {
				return err
			}
			s, err := settingsFromFlags(cmd.Flags(), flags)
			if err != nil {
				return err
			}
			if err := s.Update(o); err != nil {
				return err
			}
			if err := log.SetLevelString(o.LogLevel); err != nil {
				return err
			}
			if console {
				log.EnableConsole()
			}
			cmd.SetContext(context.WithValue(cmd.Context(), optionsKey{}, o))
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "config file")
	pf.BoolVar(&console, "console", false, "human-readable logs")
	pf.StringVar(&flags.LogLevel, "log-level", flags.LogLevel, "minimum log level")
	pf.Uint32VarP(&flags.Ksize, "ksize", "k", flags.Ksize, "k-mer size")
	pf.Uint32VarP(&flags.Num, "num", "n", flags.Num, "number of hashes per sketch")
	pf.Uint64Var(&flags.Scaled, "scaled", flags.Scaled, "keep hashes below 2^64/scaled instead of a fixed number")
	pf.Uint64Var(&flags.Seed, "seed", flags.Seed, "k-mer hash seed")
	pf.BoolVar(&flags.TrackAbundance, "track-abundance", flags.TrackAbundance, "count hash abundances")
	pf.BoolVarP(&flags.Force, "force", "f", flags.Force, "skip k-mers with invalid bases")
	pf.Uint64Var(&flags.BloomFilterSize, "bloom-filter-size", flags.BloomFilterSize, "approximate size of internal node tables")
	pf.IntVar(&flags.NTables, "n-tables", flags.NTables, "hash tables per internal node")
	pf.IntVarP(&flags.NChildren, "n-children", "d", flags.NChildren, "tree branching factor")
	pf.StringVar(&flags.Storage, "storage", flags.Storage, "storage uri (default: file://"+fileutil.DataDir()+")")
	pf.IntVar(&flags.CacheSize, "cache-size", flags.CacheSize, "leaf signatures kept in memory")
	pf.IntVar(&flags.Compression, "compression", flags.Compression, "gzip level of saved signatures")
	pf.Float64VarP(&flags.Threshold, "threshold", "t", flags.Threshold, "minimum similarity reported")
	pf.IntVarP(&flags.Concurrency, "concurrency", "j", flags.Concurrency, "files processed at once")

	cmd.AddCommand(
		newSketchCmd(),
		newMergeCmd(),
		newIndexCmd(),
		newSearchCmd(),
		newListCmd(),
		newConfigCmd(),
	)
	return cmd
}

func changed[T any](fs *pflag.FlagSet, name string, v T) *T {
	if !fs.Changed(name) {
		return nil
	}
	return &v
}

// settingsFromFlags returns the options explicitly set on the command line.
func settingsFromFlags(fs *pflag.FlagSet, v *config.Options) (*config.Settings, error) {
	s := &config.Settings{
		LogLevel:        changed(fs, "log-level", v.LogLevel),
		Ksize:           changed(fs, "ksize", v.Ksize),
		Num:             changed(fs, "num", v.Num),
		Scaled:          changed(fs, "scaled", v.Scaled),
		Seed:            changed(fs, "seed", v.Seed),
		TrackAbundance:  changed(fs, "track-abundance", v.TrackAbundance),
		Force:           changed(fs, "force", v.Force),
		BloomFilterSize: changed(fs, "bloom-filter-size", v.BloomFilterSize),
		NTables:         changed(fs, "n-tables", v.NTables),
		NChildren:       changed(fs, "n-children", v.NChildren),
		Storage:         changed(fs, "storage", v.Storage),
		CacheSize:       changed(fs, "cache-size", v.CacheSize),
		Compression:     changed(fs, "compression", v.Compression),
		Threshold:       changed(fs, "threshold", v.Threshold),
		Concurrency:     changed(fs, "concurrency", v.Concurrency),
	}
	if s.Storage != nil && *s.Storage == "" {
		return nil, fmt.Errorf("--storage must not be empty")
	}
	return s, nil
}

func openStorage(ctx context.Context, o *config.Options) (blobstore.Storage, error) {
	uri := o.Storage
	if uri == "" {
		uri = "file://" + fileutil.DataDir()
	}
	st, err := blobstore.Open(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("open storage %s: %w", uri, err)
	}
	return st, nil
}

// writeOutput writes v to path, or to out when path is empty or "-". Files
// are only replaced once v was written completely.
func writeOutput(out io.Writer, path string, v capability.ToWriter) error {
	if path == "" || path == "-" {
		return v.ToWriter(out)
	}
	w := fileutil.NewAtomicWriter(path, 0o644)
	if err := v.ToWriter(w); err != nil {
		w.Abort()
		return err
	}
	return w.Close()
}

func readFile[T any](path string, decode func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, err
	}
	defer f.Close()
	v, err := decode(f)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}
