package sketchkit

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pomerium/sketchkit/pkg/sbt"
	"github.com/pomerium/sketchkit/pkg/signature"
)

func newSearchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search NAME QUERY",
		Short: "Search a tree for signatures similar to a query",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			o := optionsFrom(ctx)

			query, err := readFile(args[1], signature.LoadOne)
			if err != nil {
				return err
			}

			st, err := openStorage(ctx, o)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, st.Close()) }()

			tree, err := sbt.Load(ctx, st, args[0], o.TreeOptions(st))
			if err != nil {
				return err
			}
			mh, err := query.Select(tree.Factory().Ksize)
			if err != nil {
				return fmt.Errorf("query %s: %w", query.DisplayName(), err)
			}

			results, err := sbt.Search(ctx, tree, mh, o.Threshold)
			if err != nil {
				return err
			}
			if limit > 0 && len(results) > limit {
				results = results[:limit]
			}

			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(out, "%d matches:\n", len(results)); err != nil {
				return err
			}
			for _, r := range results {
				if _, err := fmt.Fprintf(out, "%6.1f%%\t%s\t%s\n", r.Similarity*100, r.Signature.DisplayName(), r.Signature.Filename); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of results, 0 for all")
	return cmd
}
