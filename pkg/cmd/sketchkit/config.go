package sketchkit

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o := optionsFrom(cmd.Context())
			out := cmd.OutOrStdout()
			if err := o.ToWriter(out); err != nil {
				return err
			}
			_, err := fmt.Fprintf(out, "# checksum: %016x\n", o.Checksum())
			return err
		},
	}
}
