package commands

import (
	"github.com/spf13/cobra"

	"github.com/pushbricks/pushbricks/config"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	ConfigPath string
	LogLevel   string
	Pretty     bool
}

// NewRootCommand assembles the nhctl command tree.
func NewRootCommand(version string) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "nhctl",
		Short: "Manage notification hub installations",
		Long: `nhctl talks to a notification hub through the pushbricks HTTP client chain:
request IDs, retries with backoff, call logging and gzip of large bodies.

Configuration is read from config.yaml, then PUSHBRICKS_* environment variables.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", config.DefaultFile, "Path to the YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "Override log.level")
	cmd.PersistentFlags().BoolVar(&opts.Pretty, "pretty", false, "Human-readable console logs")

	cmd.AddCommand(
		NewInstallationCommand(opts),
		NewCallCommand(opts),
		NewVersionCommand(version),
	)

	return cmd
}
