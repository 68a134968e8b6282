package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/locus-dev/locus/internal/engine"
)

// newStatusCmd builds the status command.
func newStatusCmd(opts *cliOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report index health and contents",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := engine.Open(cmd.Context(), opts.root, opts.cfg)
			if err != nil {
				return err
			}
			defer eng.Close()

			st, err := eng.Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}

			fmt.Fprintf(out, "root:        %s\n", st.Root)
			fmt.Fprintf(out, "files:       %d (%d failed)\n", st.Files, st.FailedFiles)
			fmt.Fprintf(out, "chunks:      %d (%d degraded embeddings)\n", st.Chunks, st.DegradedChunks)
			fmt.Fprintf(out, "symbols:     %d\n", st.Symbols)
			fmt.Fprintf(out, "edges:       %d\n", st.Edges)
			fmt.Fprintf(out, "communities: %d\n", st.Communities)
			fmt.Fprintf(out, "embedding coverage: %.1f%%\n", st.EmbeddingCoveragePercent)
			if st.EmbedderDegraded {
				fmt.Fprintln(out, "embedder:    degraded (hashing fallback)")
			}
			if st.GraphDegraded {
				fmt.Fprintln(out, "graph:       degraded (hydration failed)")
			}
			if st.Fatal != "" {
				fmt.Fprintf(out, "FATAL: %s\n", st.Fatal)
			}
			if st.LastFullScan != "" {
				fmt.Fprintf(out, "last full scan: %s\n", st.LastFullScan)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}
