package sketchkit

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pomerium/sketchkit/pkg/sbt"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the trees saved in the storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx := cmd.Context()
			o := optionsFrom(ctx)

			st, err := openStorage(ctx, o)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, st.Close()) }()

			names, err := sbt.List(ctx, st)
			if err != nil {
				return err
			}
			for _, name := range names {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
