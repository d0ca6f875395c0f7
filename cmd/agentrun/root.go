package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	agentrcPath string
	baseDir     string
)

var rootCmd = &cobra.Command{
	Use:   "agent",
	Short: "agentrun drives and inspects the agent runtime from the command line",
	Long:  "agentrun is the CLI surface of the agent runtime: it runs tasks, and inspects and rolls back the file-history snapshots workers leave behind.",
}

func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	rootCmd.PersistentFlags().StringVar(&agentrcPath, "agentrc", "agentrc.toml", "path to the declarative agentrc.toml config")
	rootCmd.PersistentFlags().StringVar(&baseDir, "base-dir", ".agentrt", "base directory for session snapshots and file history")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(diffCmd())
	rootCmd.AddCommand(rollbackCmd())
}

// Execute runs the root cobra command, exiting 1 on any returned error so
// shell scripts and CI can branch on agentrun's exit code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
