// Package cmd implements crdbctl's cobra command tree: a thin client over
// internal/transport for exercising a running coordinator's §6 requests
// from a terminal, grounded on the teacher's cmd/cli root command
// structure (global persistent flags, PersistentPreRunE logger setup,
// dynamic Example text keyed off the binary's own name).
package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/replistore/crdb/internal/transport"
	"github.com/replistore/crdb/pkg/rlog"
)

var (
	// Global flags
	verbose        bool
	coordinatorURL string

	logger rlog.Logger
	client *transport.Client
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "crdbctl",
	Short: "A client for the CRDT document coordinator",
	Long: `crdbctl talks to a running coordinatord over its request/response
and room-broadcast transport: publishing new repositories, cloning existing
ones by name, and syncing a replica's operation log.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := rlog.LevelInfo
		if verbose {
			level = rlog.LevelDebug
		}
		logger = rlog.New(level, os.Stdout)
		client = transport.NewClient(coordinatorURL)
		return nil
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&coordinatorURL, "coordinator", "http://localhost:8980", "Coordinator base URL")

	binName := BinName()
	rootCmd.Example = `  # Publish a new repository
  ` + binName + ` publish-repo my-doc

  # Clone an existing repository by name
  ` + binName + ` clone-repo my-doc

  # Sync a repo's operation log against a known version vector
  ` + binName + ` sync-repo <repo-id>`
}

// GetLogger returns the configured logger.
func GetLogger() rlog.Logger {
	return logger
}

// GetClient returns the configured transport client.
func GetClient() *transport.Client {
	return client
}

// BinName returns the base name of the current executable.
func BinName() string {
	return filepath.Base(os.Args[0])
}
