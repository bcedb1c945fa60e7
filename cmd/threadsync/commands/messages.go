package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Change the state of stored messages",
}

func init() {
	messagesCmd.AddCommand(newMessageCmd("read", "Mark a message read",
		func(ctx context.Context, a *app, id string) error { return a.aggregator.MarkRead(ctx, id, true) }))
	messagesCmd.AddCommand(newMessageCmd("unread", "Mark a message unread",
		func(ctx context.Context, a *app, id string) error { return a.aggregator.MarkRead(ctx, id, false) }))
	messagesCmd.AddCommand(newMessageCmd("archive", "Archive a message",
		func(ctx context.Context, a *app, id string) error { return a.aggregator.ArchiveMessage(ctx, id) }))
	messagesCmd.AddCommand(newMessageCmd("delete", "Delete a message and update its conversation",
		func(ctx context.Context, a *app, id string) error { return a.aggregator.DeleteMessage(ctx, id) }))
}

func newMessageCmd(use, short string, apply func(ctx context.Context, a *app, id string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <message-id>",
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
			fmt.Printf("Message %s: %s done\n", args[0], use)
			return nil
		},
	}
}
