// Package cli is the tablesched command line: the HTTP server, the event
// consumer, schema migrations and a few one-shot booking commands.
package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/iliyamo/table-reservation/internal/config"
	"github.com/iliyamo/table-reservation/internal/logging"
)

// Set with -ldflags at build time.
var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

// NewRootCmd assembles the command tree.
func NewRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "tablesched",
		Short:         "Restaurant table reservation scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "file with KEY=VALUE pairs loaded before reading the environment")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newConsumeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newTablesCmd())
	root.AddCommand(newBookCmd())
	root.AddCommand(newCancelCmd())
	root.AddCommand(newDemoCmd())

	return root
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and builds the process logger.  Logs go
// to stderr so command output on stdout stays clean.
func loadConfig() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	return cfg, logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat), nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tablesched %s (commit=%s, built=%s)\n", Version, CommitSHA, BuildDate)
		},
	}
}
