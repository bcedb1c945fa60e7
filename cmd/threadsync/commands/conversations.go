package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	conversationsLimit  int
	conversationsOffset int
)

var conversationsCmd = &cobra.Command{
	Use:   "conversations <account-id>",
	Short: "List an account's conversations",
	Long:  `Display an account's conversations, most recent activity first.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runConversations,
}

var recomputeCmd = &cobra.Command{
	Use:   "recompute <conversation-id>",
	Short: "Rebuild a conversation from its messages",
	Long: `Recount messages, unread messages, participants and thread ids of a
conversation from the messages linked to it. A conversation with no messages
left is deleted.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecompute,
}

func init() {
	conversationsCmd.Flags().IntVarP(&conversationsLimit, "limit", "n", 20,
		"Maximum number of conversations to display (0: all)")
	conversationsCmd.Flags().IntVar(&conversationsOffset, "offset", 0,
		"Number of conversations to skip")

	conversationsCmd.AddCommand(newConversationStatusCmd("close", "Close a conversation",
		func(ctx context.Context, a *app, id string) error { return a.aggregator.CloseConversation(ctx, id) }))
	conversationsCmd.AddCommand(newConversationStatusCmd("reopen", "Reopen a conversation",
		func(ctx context.Context, a *app, id string) error { return a.aggregator.ReopenConversation(ctx, id) }))
	conversationsCmd.AddCommand(newConversationStatusCmd("archive", "Archive a conversation",
		func(ctx context.Context, a *app, id string) error { return a.aggregator.ArchiveConversation(ctx, id) }))
}

func newConversationStatusCmd(use, short string, apply func(ctx context.Context, a *app, id string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <conversation-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := apply(cmd.Context(), a, args[0]); err != nil {
				return err
			}
			fmt.Printf("Conversation %s: %s done\n", args[0], use)
			return nil
		},
	}
}

func runConversations(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	conversations, err := a.store.ListConversations(cmd.Context(), args[0], conversationsLimit, conversationsOffset)
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return outputJSON(conversations)
	}

	if len(conversations) == 0 {
		fmt.Printf("No conversations for account %s.\n", args[0])
		return nil
	}

	for _, conv := range conversations {
		fmt.Printf("%s  [%s]  %s\n", conv.ID, conv.Status, conv.Subject)
		fmt.Printf("    %d messages, %d unread, last from %s at %s\n",
			conv.MessageCount, conv.UnreadCount, conv.LastSender.String(),
			conv.LastMessageAt.Local().Format(time.DateTime))
		if conv.Snippet != "" {
			fmt.Printf("    %s\n", conv.Snippet)
		}
	}
	return nil
}

func runRecompute(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	conv, err := a.aggregator.Recompute(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if conv == nil {
		fmt.Printf("Conversation %s had no messages left and was deleted\n", args[0])
		return nil
	}

	if outputFormat == "json" {
		return outputJSON(conv)
	}
	fmt.Printf("Conversation %s: %d messages, %d unread\n", conv.ID, conv.MessageCount, conv.UnreadCount)
	return nil
}
