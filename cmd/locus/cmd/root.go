// Package cmd implements the locus CLI commands: index, search, status,
// config.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/locus-dev/locus/internal/config"
	"github.com/locus-dev/locus/internal/logging"
	"github.com/locus-dev/locus/pkg/version"
)

// cliOptions carries the state shared between the root command and its
// subcommands for one invocation.
type cliOptions struct {
	root     string
	logLevel string

	// cfg is resolved in the persistent pre-run.
	cfg        *config.Config
	cleanupLog func()
}

// NewRootCmd builds a fresh command tree. Tests construct their own tree
// so flag and config state never leaks between runs.
func NewRootCmd() *cobra.Command {
	opts := &cliOptions{}

	rootCmd := &cobra.Command{
		Use:           "locus",
		Short:         "Local-first code context engine",
		Long:          "Locus indexes a repository and answers code-aware queries for AI coding agents.",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.root == "" {
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				opts.root = wd
			}

			cfg, err := config.Load(opts.root)
			if err != nil {
				return err
			}
			// Flags override everything else.
			if opts.logLevel != "" {
				cfg.Logging.Level = opts.logLevel
			}
			opts.cfg = cfg

			logCfg := logging.DefaultConfig()
			logCfg.Level = cfg.Logging.Level
			logCfg.WriteToStderr = false
			logger, cleanup, err := logging.Setup(logCfg)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			opts.cleanupLog = cleanup
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.cleanupLog != nil {
				opts.cleanupLog()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.root, "root", "", "repository root (default: working directory)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newIndexCmd(opts))
	rootCmd.AddCommand(newSearchCmd(opts))
	rootCmd.AddCommand(newStatusCmd(opts))
	rootCmd.AddCommand(newConfigCmd(opts))

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}
