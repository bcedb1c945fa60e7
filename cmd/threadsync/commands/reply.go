package commands

import (
	"errors"
	"fmt"

	"github.com/emersion/go-message/mail"
	"github.com/spf13/cobra"
	"github.com/vdavid/threadsync/internal/models"
	"github.com/vdavid/threadsync/internal/reply"
)

var (
	replyTo      string
	replyCc      string
	replyBcc     string
	replySubject string
	replyBody    string
	replyHTML    string
)

var replyCmd = &cobra.Command{
	Use:   "reply <message-id>",
	Short: "Send a threaded reply to a stored message",
	Long: `Reply to a stored message by its id. Without --to, --cc or --bcc the
reply goes to the original sender.`,
	Args: cobra.ExactArgs(1),
	RunE: runReply,
}

func init() {
	replyCmd.Flags().StringVar(&replyTo, "to", "", "Comma-separated recipients")
	replyCmd.Flags().StringVar(&replyCc, "cc", "", "Comma-separated Cc recipients")
	replyCmd.Flags().StringVar(&replyBcc, "bcc", "", "Comma-separated Bcc recipients")
	replyCmd.Flags().StringVarP(&replySubject, "subject", "s", "", "Subject (default: the original subject)")
	replyCmd.Flags().StringVarP(&replyBody, "body", "b", "", "Plain text body")
	replyCmd.Flags().StringVar(&replyHTML, "html", "", "HTML body")
}

func runReply(cmd *cobra.Command, args []string) error {
	if replyBody == "" && replyHTML == "" {
		return errors.New("--body or --html is required")
	}

	content := reply.Content{
		Subject:  replySubject,
		BodyText: replyBody,
		BodyHTML: replyHTML,
	}
	var err error
	if content.To, err = parseAddresses(replyTo); err != nil {
		return fmt.Errorf("invalid --to: %w", err)
	}
	if content.Cc, err = parseAddresses(replyCc); err != nil {
		return fmt.Errorf("invalid --cc: %w", err)
	}
	if content.Bcc, err = parseAddresses(replyBcc); err != nil {
		return fmt.Errorf("invalid --bcc: %w", err)
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	result := a.composer.SendReply(cmd.Context(), args[0], content)
	if result.SentMessageID != "" {
		if outputFormat == "json" {
			if err := outputJSON(result); err != nil {
				return err
			}
		} else {
			fmt.Printf("Sent %s\n", result.SentMessageID)
		}
	}
	return result.Err
}

// parseAddresses parses an RFC 5322 address list such as
// "Alice <alice@example.com>, bob@example.com".
func parseAddresses(list string) ([]models.Address, error) {
	if list == "" {
		return nil, nil
	}
	parsed, err := mail.ParseAddressList(list)
	if err != nil {
		return nil, err
	}
	addresses := make([]models.Address, 0, len(parsed))
	for _, addr := range parsed {
		addresses = append(addresses, models.Address{Name: addr.Name, Email: addr.Address})
	}
	return addresses, nil
}
