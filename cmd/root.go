// Package cmd implements the command-line interface for the curation engine.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	cmdagents "github.com/jonesrussell/curation-engine/cmd/agents"
	cmdbatches "github.com/jonesrussell/curation-engine/cmd/batches"
	cmdscheduler "github.com/jonesrussell/curation-engine/cmd/scheduler"
	cmdserve "github.com/jonesrussell/curation-engine/cmd/serve"
	cmdwebsites "github.com/jonesrussell/curation-engine/cmd/websites"
)

var (
	// Debug enables debug mode for all commands.
	Debug bool

	rootCmd = &cobra.Command{
		Use:   "curation-engine",
		Short: "Backend engine for curated listing pipelines",
		Long: `The curation engine runs website discovery and crawling, sequences
agent pipeline steps, and gates extracted content behind human review
before it reaches the canonical listing pool.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	// Load .env early so environment variables are available to config
	_ = godotenv.Load()

	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&Debug, "debug", false, "enable debug mode")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(os.Stdout, "curation-engine version %s\n", "1.0.0")
		},
	})

	rootCmd.AddCommand(cmdserve.Command(&Debug))
	rootCmd.AddCommand(cmdscheduler.Command(&Debug))
	rootCmd.AddCommand(cmdagents.Command(&Debug))
	rootCmd.AddCommand(cmdwebsites.Command(&Debug))
	rootCmd.AddCommand(cmdbatches.Command(&Debug))
}
