package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/locus-dev/locus/internal/config"
)

// newConfigCmd builds the config command group: get, set, list.
func newConfigCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and modify configuration",
		Long: "Reads and writes configuration keys. Reads resolve the full " +
			"precedence chain (flags, environment, repo-local file, user-global " +
			"file, defaults); writes go to the repo-local " + config.RepoConfigName + ".",
	}

	cmd.AddCommand(newConfigGetCmd(opts))
	cmd.AddCommand(newConfigSetCmd(opts))
	cmd.AddCommand(newConfigListCmd(opts))
	return cmd
}

// newConfigGetCmd prints one resolved key.
func newConfigGetCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the resolved value of one configuration key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, ok := opts.cfg.Lookup(args[0])
			if !ok {
				return fmt.Errorf("unknown configuration key %q", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
}

// newConfigSetCmd writes one key into the repo-local config file.
func newConfigSetCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write one configuration key to the repo-local config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if err := config.SetRepoValue(opts.root, key, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, value)
			return nil
		},
	}
}

// newConfigListCmd prints every recognized key with its resolved value.
func newConfigListCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration keys with their resolved values",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, key := range config.KnownKeys() {
				value, _ := opts.cfg.Lookup(key)
				fmt.Fprintf(out, "%s = %s\n", key, value)
			}
			return nil
		},
	}
}
