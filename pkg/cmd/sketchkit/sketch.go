package sketchkit

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/pomerium/sketchkit/config"
	"github.com/pomerium/sketchkit/internal/errgrouputil"
	"github.com/pomerium/sketchkit/internal/log"
	"github.com/pomerium/sketchkit/pkg/capability"
	"github.com/pomerium/sketchkit/pkg/counter"
	"github.com/pomerium/sketchkit/pkg/fasta"
	"github.com/pomerium/sketchkit/pkg/minhash"
	"github.com/pomerium/sketchkit/pkg/signature"
)

func newSketchCmd() *cobra.Command {
	var output, name string
	var singleton bool

	cmd := &cobra.Command{
		Use:   "sketch FASTA...",
		Short: "Compute signatures of FASTA files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			o := optionsFrom(ctx)

			perFile, err := errgrouputil.Map(ctx, o.Concurrency, args,
				func(ctx context.Context, path string) ([]*signature.Signature, error) {
					return sketchFile(ctx, o, path, singleton)
				})
			if err != nil {
				return err
			}

			sigs := slices.Concat(perFile...)
			if name != "" {
				if len(sigs) != 1 {
					return fmt.Errorf("--name needs exactly one signature, got %d", len(sigs))
				}
				sigs[0].Name = name
			}
			return writeOutput(cmd.OutOrStdout(), output, signatureList(sigs, o.Compression))
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().StringVar(&name, "name", "", "signature name")
	cmd.Flags().BoolVar(&singleton, "singleton", false, "one signature per record instead of per file")
	return cmd
}

func sketchFile(ctx context.Context, o *config.Options, path string, singleton bool) ([]*signature.Signature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r, err := fasta.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer r.Close()

	var sigs []*signature.Signature
	var mh *minhash.MinHash
	distinct := counter.New(counter.DefaultCap)
	records := 0
	for rec, err := range r.Records() {
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records++
		if mh == nil || singleton {
			if mh, err = o.NewMinHash(); err != nil {
				return nil, err
			}
			sigs = append(sigs, signature.New(rec.Name, path, mh))
		}
		err := minhash.HashKmers(rec.Sequence, o.Ksize, o.Seed, o.Force, func(h uint64) {
			mh.AddHash(h)
			distinct.MarkHash(h)
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", path, rec.Name, err)
		}
	}
	if records == 0 {
		return nil, fmt.Errorf("%s: no sequences", path)
	}

	log.Info(ctx).
		Str("file", path).
		Int("records", records).
		Uint("distinct_kmers", distinct.Count()).
		Msg("sketched")
	return sigs, nil
}

func signatureList(sigs []*signature.Signature, compression int) capability.ToWriter {
	return capability.ToWriterFunc(func(w io.Writer) error {
		return signature.SaveSignatures(w, sigs, compression)
	})
}
