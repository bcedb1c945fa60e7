package commands

import (
	"github.com/spf13/cobra"
)

// outputFormat controls output format (text, json).
var outputFormat string

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "threadsync",
	Short: "Mailbox sync and conversation threading engine",
	Long: `threadsync pulls new inbox mail for connected accounts over IMAP,
groups it into conversations and sends threaded replies over SMTP.

Settings come from THREADSYNC_* environment variables (and .env in development).`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&outputFormat, "format", "text",
		"Output format: text, json",
	)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(resyncCmd)
	rootCmd.AddCommand(replyCmd)
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(recomputeCmd)
	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(accountsCmd)
	rootCmd.AddCommand(migrateCmd)
}
