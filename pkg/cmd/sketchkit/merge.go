package sketchkit

import (
	"context"
	"slices"

	"github.com/spf13/cobra"

	"github.com/pomerium/sketchkit/internal/errgrouputil"
	"github.com/pomerium/sketchkit/pkg/capability"
	"github.com/pomerium/sketchkit/pkg/signature"
)

func newMergeCmd() *cobra.Command {
	var output, name string

	cmd := &cobra.Command{
		Use:   "merge SIGNATURE...",
		Short: "Merge signatures into one",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			o := optionsFrom(ctx)

			sigs, err := loadSignatureFiles(cmd, args, o.Concurrency)
			if err != nil {
				return err
			}

			updaters := make([]capability.Updater[*signature.Signature], len(sigs))
			for i, sig := range sigs {
				updaters[i] = sig
			}
			merged := signature.New(name, "")
			if err := capability.Chain(updaters...).Update(merged); err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, signatureList([]*signature.Signature{merged}, o.Compression))
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().StringVar(&name, "name", "", "name of the merged signature")
	return cmd
}

// loadSignatureFiles reads every signature of paths, in order.
func loadSignatureFiles(cmd *cobra.Command, paths []string, concurrency int) ([]*signature.Signature, error) {
	perFile, err := errgrouputil.Map(cmd.Context(), concurrency, paths,
		func(_ context.Context, path string) ([]*signature.Signature, error) {
			return readFile(path, signature.LoadSignatures)
		})
	if err != nil {
		return nil, err
	}
	return slices.Concat(perFile...), nil
}
