package cmd

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/locus-dev/locus/internal/engine"
)

// newIndexCmd builds the index command. --force rebuilds every file even
// when its content hash is unchanged; --watch keeps reindexing on
// filesystem events after the scan.
func newIndexCmd(opts *cliOptions) *cobra.Command {
	var force bool
	var watch bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build or update the repository index",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := engine.Open(cmd.Context(), opts.root, opts.cfg)
			if err != nil {
				return err
			}
			defer eng.Close()

			var bar *progressbar.ProgressBar
			progress := func(done, total int) {
				if bar == nil && isatty.IsTerminal(os.Stderr.Fd()) {
					bar = progressbar.NewOptions(total,
						progressbar.OptionSetDescription("indexing"),
						progressbar.OptionSetWriter(os.Stderr),
						progressbar.OptionShowCount(),
					)
				}
				if bar != nil {
					_ = bar.Set(done)
				}
			}

			if err := eng.Index(cmd.Context(), force, progress); err != nil {
				return err
			}
			if bar != nil {
				_ = bar.Finish()
				fmt.Fprintln(os.Stderr)
			}

			st, err := eng.Status(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d files, %d chunks, %d symbols, %d edges\n",
				st.Files, st.Chunks, st.Symbols, st.Edges)

			if watch {
				fmt.Fprintln(cmd.ErrOrStderr(), "watching for changes (ctrl-c to stop)")
				return eng.Watch(cmd.Context())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "reindex all files, ignoring content hashes")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep watching for changes after indexing")
	return cmd
}
