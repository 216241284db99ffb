package sketchkit

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pomerium/sketchkit/internal/log"
	"github.com/pomerium/sketchkit/pkg/sbt"
	"github.com/pomerium/sketchkit/pkg/signature"
)

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index NAME SIGNATURE...",
		Short: "Build a Sequence Bloom Tree from signatures",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			o := optionsFrom(ctx)

			sigs, err := loadSignatureFiles(cmd, args[1:], o.Concurrency)
			if err != nil {
				return err
			}

			st, err := openStorage(ctx, o)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, st.Close()) }()

			tree, err := sbt.New(o.Factory(), o.NChildren, o.TreeOptions(st))
			if err != nil {
				return err
			}
			for _, sig := range sigs {
				if _, err := sig.Select(o.Ksize); errors.Is(err, signature.ErrNoSketch) {
					log.Warn(ctx).Str("signature", sig.DisplayName()).Uint32("ksize", o.Ksize).Msg("no sketch with ksize, skipped")
					continue
				}
				if err := tree.Add(ctx, sbt.NewLeaf(sig)); err != nil {
					return err
				}
			}
			if tree.Len() == 0 {
				return fmt.Errorf("no signatures with ksize %d", o.Ksize)
			}

			p, err := tree.Save(ctx, args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "indexed %d signatures into %s\n", tree.Len(), p)
			return err
		},
	}
}
