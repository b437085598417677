// Package cli implements the dietinsights command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X".
var version = "dev"

type rootOptions struct {
	configPath string
	envFile    string
	verbose    bool
}

// NewRootCommand builds the command tree. Each call returns fresh flag state.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "dietinsights",
		Short: "Diet nutrition insights pipeline and API",
		Long: `dietinsights normalizes a recipe nutrition dataset, caches per-diet
aggregates in blob storage and serves them as JSON, PNG charts and search.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML or TOML config file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before environment overrides")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(opts),
		newRunCmd(opts),
		newWatchCmd(opts),
		newInsightsCmd(opts),
		newSearchCmd(opts),
		newHighlightsCmd(opts),
		newStatusCmd(opts),
		newCacheCmd(opts),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "dietinsights version %s\n", version)
		},
	}
}
