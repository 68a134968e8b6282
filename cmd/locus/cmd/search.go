package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/locus-dev/locus/internal/engine"
	"github.com/locus-dev/locus/internal/search"
)

// newSearchCmd builds the search command.
func newSearchCmd(opts *cliOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed repository",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			eng, err := engine.Open(cmd.Context(), opts.root, opts.cfg)
			if err != nil {
				return err
			}
			defer eng.Close()

			resp, err := eng.Search(cmd.Context(), query, search.Options{Limit: limit})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(resp.Results) == 0 {
				fmt.Fprintln(out, "no results")
				return nil
			}
			if resp.Partial {
				fmt.Fprintln(out, "(partial results: query deadline exceeded)")
			}

			for _, r := range resp.Results {
				fmt.Fprintf(out, "%2d. %s:%d-%d  %s  (score %.3f)\n",
					r.Rank, r.Chunk.FilePath, r.Chunk.StartLine, r.Chunk.EndLine,
					r.Chunk.SymbolPath, r.Score)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results")
	return cmd
}
