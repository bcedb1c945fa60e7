package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/vdavid/threadsync/internal/models"
	"github.com/vdavid/threadsync/internal/store"
)

// DeleteMessage removes a message and reconciles its conversation. Deleting
// the last message of a conversation deletes the conversation too.
func (a *Aggregator) DeleteMessage(ctx context.Context, messageID string) error {
	return a.store.RunInTx(ctx, func(ctx context.Context, tx store.Store) error {
		msg, err := tx.GetMessage(ctx, messageID)
		if err != nil {
			return fmt.Errorf("failed to get message %s: %w", messageID, err)
		}
		if err := tx.DeleteMessage(ctx, messageID); err != nil {
			return fmt.Errorf("failed to delete message %s: %w", messageID, err)
		}
		if msg.ConversationID == "" {
			return nil
		}
		_, err = a.WithStore(tx).Recompute(ctx, msg.ConversationID)
		return err
	})
}

// MarkRead sets or clears the read flag of a message. A message marked unread
// goes back to status new unless it was replied to or archived.
func (a *Aggregator) MarkRead(ctx context.Context, messageID string, read bool) error {
	return a.updateMessage(ctx, messageID, func(msg *models.Message) {
		msg.IsRead = read
		switch msg.Status {
		case models.MessageStatusNew:
			if read {
				msg.Status = models.MessageStatusRead
			}
		case models.MessageStatusRead:
			if !read {
				msg.Status = models.MessageStatusNew
			}
		case models.MessageStatusReplied, models.MessageStatusArchived:
		}
	})
}

// ArchiveMessage moves a message to status archived and marks it read.
func (a *Aggregator) ArchiveMessage(ctx context.Context, messageID string) error {
	return a.updateMessage(ctx, messageID, func(msg *models.Message) {
		msg.Status = models.MessageStatusArchived
		msg.IsRead = true
	})
}

// MarkReplied moves a message to status replied and marks it read.
func (a *Aggregator) MarkReplied(ctx context.Context, messageID string) error {
	return a.updateMessage(ctx, messageID, func(msg *models.Message) {
		msg.Status = models.MessageStatusReplied
		msg.IsRead = true
	})
}

func (a *Aggregator) updateMessage(ctx context.Context, messageID string, mutate func(*models.Message)) error {
	return a.store.RunInTx(ctx, func(ctx context.Context, tx store.Store) error {
		msg, err := tx.GetMessage(ctx, messageID)
		if err != nil {
			return fmt.Errorf("failed to get message %s: %w", messageID, err)
		}
		mutate(msg)
		if err := tx.SaveMessage(ctx, msg); err != nil {
			return fmt.Errorf("failed to save message %s: %w", messageID, err)
		}
		if msg.ConversationID == "" {
			return nil
		}
		_, err = a.WithStore(tx).Recompute(ctx, msg.ConversationID)
		return err
	})
}

// CloseConversation marks a conversation closed. The next message that
// arrives for it reopens it.
func (a *Aggregator) CloseConversation(ctx context.Context, conversationID string) error {
	now := a.now()
	return a.setStatus(ctx, conversationID, models.ConversationStatusClosed, &now)
}

// ReopenConversation marks a conversation open and clears closedAt.
func (a *Aggregator) ReopenConversation(ctx context.Context, conversationID string) error {
	return a.setStatus(ctx, conversationID, models.ConversationStatusOpen, nil)
}

// ArchiveConversation marks a conversation archived. Unlike a closed one it
// stays archived when new messages arrive.
func (a *Aggregator) ArchiveConversation(ctx context.Context, conversationID string) error {
	return a.setStatus(ctx, conversationID, models.ConversationStatusArchived, nil)
}

func (a *Aggregator) setStatus(ctx context.Context, conversationID string, status models.ConversationStatus, closedAt *time.Time) error {
	err := a.store.UpdateConversation(ctx, conversationID, models.ConversationPatch{
		Status:   &status,
		ClosedAt: closedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to set conversation %s to %s: %w", conversationID, status, err)
	}
	return nil
}
