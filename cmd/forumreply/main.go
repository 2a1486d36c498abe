// Package main provides the forumreply command, which visits configured
// forums, logs in and answers unsolved posts with generated replies.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	// Global flags
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "forumreply",
	Short: "Answer unsolved forum posts with generated replies",
	Long: `forumreply visits each configured forum in turn, signs in (including
mailed second-factor codes), finds posts that are neither solved nor already
answered, and submits a short generated reply to at most
max_replies_per_session of them.

Every reply is recorded in a SQLite ledger so a post is never answered twice.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Visit every configured site once",
	Example: `  forumreply run --config forumreply.yaml
  forumreply run --site ea --dry-run`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), runFlags)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded replies, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return history(cmd.Context(), cmd.OutOrStdout(), historyFlags)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "forumreply v%s\n", version)
	},
}

var (
	runFlags     runOptions
	historyFlags historyOptions
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "forumreply.yaml", "Path to configuration file (YAML)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before the configuration is expanded")

	runCmd.Flags().StringSliceVar(&runFlags.sites, "site", nil, "Only visit the named site (repeatable)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "Generate replies without submitting or recording them")

	historyCmd.Flags().StringVar(&historyFlags.platform, "site", "", "Only list replies recorded for this site")
	historyCmd.Flags().IntVarP(&historyFlags.limit, "limit", "n", 20, "Maximum number of records (0 for all)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	// Create context with signal handling
	ctx, cancel := context.WithCancel(context.Background())

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nShutting down gracefully...")
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
	cancel()
}
