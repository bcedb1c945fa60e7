package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/vdavid/threadsync/internal/mailsync"
	"github.com/vdavid/threadsync/internal/models"
)

var (
	syncMax   int
	syncSince string
)

var syncCmd = &cobra.Command{
	Use:   "sync <account-id>",
	Short: "Sync one account now",
	Long: `Fetch the account's new inbox messages once. The first sync of an
account only looks at mail received since --since or the account's creation,
whichever is later.`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

var resyncCmd = &cobra.Command{
	Use:   "resync <account-id>",
	Short: "Forget an account's sync cursor",
	Long:  `Reset the cursor so the next sync selects messages by date again. Stored messages are kept.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runResync,
}

func init() {
	syncCmd.Flags().IntVarP(&syncMax, "max", "n", 0,
		"Maximum number of messages to fetch (default: THREADSYNC_SYNC_BATCH_SIZE)")
	syncCmd.Flags().StringVar(&syncSince, "since", "",
		"Earliest receipt date for a first sync, as YYYY-MM-DD")
}

// syncResultView is a SyncResult with its error as text.
type syncResultView struct {
	models.SyncResult
	Error string `json:"error,omitempty"`
}

func newSyncResultView(result models.SyncResult) syncResultView {
	view := syncResultView{SyncResult: result}
	if result.Err != nil {
		view.Error = result.Err.Error()
	}
	return view
}

// parseSyncOptions turns the sync flags into orchestrator options. since is
// a UTC calendar date; an empty string means no lower bound.
func parseSyncOptions(maxMessages int, since string) (mailsync.Options, error) {
	if maxMessages < 0 {
		return mailsync.Options{}, fmt.Errorf("invalid --max: must not be negative, got %d", maxMessages)
	}
	opts := mailsync.Options{MaxMessages: maxMessages}
	if since != "" {
		t, err := time.Parse(time.DateOnly, since)
		if err != nil {
			return mailsync.Options{}, fmt.Errorf("invalid --since: %w", err)
		}
		opts.Since = t
	}
	return opts, nil
}

func runSync(cmd *cobra.Command, args []string) error {
	opts, err := parseSyncOptions(syncMax, syncSince)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	result := a.orchestrator.SyncAccount(cmd.Context(), args[0], opts)

	if outputFormat == "json" {
		if err := outputJSON(newSyncResultView(result)); err != nil {
			return err
		}
	} else {
		fmt.Printf("Account %s: %s, %d new messages\n", result.AccountID, result.Outcome, result.NewMessageCount)
	}

	if result.Err != nil {
		return result.Err
	}
	return nil
}

func runResync(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.orchestrator.Resync(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Sync cursor reset for account %s\n", args[0])
	return nil
}
