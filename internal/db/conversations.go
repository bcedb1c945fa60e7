package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/vdavid/threadsync/internal/models"
	"github.com/vdavid/threadsync/internal/store"
)

const conversationColumns = `
	id,
	account_id,
	COALESCE(thread_ids, '{}'),
	subject,
	snippet,
	COALESCE(participants, '[]'::jsonb),
	COALESCE(last_sender, '{}'::jsonb),
	status,
	message_count,
	unread_count,
	last_message_at,
	created_at,
	closed_at`

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	var (
		conv   models.Conversation
		status string
	)
	err := row.Scan(
		&conv.ID,
		&conv.AccountID,
		&conv.ThreadIDs,
		&conv.Subject,
		&conv.Snippet,
		&conv.Participants,
		&conv.LastSender,
		&status,
		&conv.MessageCount,
		&conv.UnreadCount,
		&conv.LastMessageAt,
		&conv.CreatedAt,
		&conv.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	conv.Status = models.ConversationStatus(status)
	return &conv, nil
}

// GetConversation returns a conversation by id.
func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	conv, err := scanConversation(s.q.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

// GetConversationByThreadID returns the account's conversation whose thread ids
// contain threadID.
func (s *PostgresStore) GetConversationByThreadID(ctx context.Context, accountID, threadID string) (*models.Conversation, error) {
	conv, err := scanConversation(s.q.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE account_id = $1 AND thread_ids @> ARRAY[$2::text]
		ORDER BY created_at, id
		LIMIT 1
	`, accountID, threadID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation by thread id: %w", err)
	}
	return conv, nil
}

// SaveConversation inserts or updates a conversation.
func (s *PostgresStore) SaveConversation(ctx context.Context, conv *models.Conversation) error {
	createdAt := conv.CreatedAt
	if createdAt.IsZero() {
		createdAt = conv.LastMessageAt
	}

	err := s.q.QueryRow(ctx, `
		INSERT INTO conversations (
			id, account_id, thread_ids, subject, snippet, participants, last_sender,
			status, message_count, unread_count, last_message_at, created_at, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			thread_ids = EXCLUDED.thread_ids,
			subject = EXCLUDED.subject,
			snippet = EXCLUDED.snippet,
			participants = EXCLUDED.participants,
			last_sender = EXCLUDED.last_sender,
			status = EXCLUDED.status,
			message_count = EXCLUDED.message_count,
			unread_count = EXCLUDED.unread_count,
			last_message_at = EXCLUDED.last_message_at,
			closed_at = EXCLUDED.closed_at
		RETURNING created_at
	`,
		conv.ID,
		conv.AccountID,
		emptyIfNil(conv.ThreadIDs),
		conv.Subject,
		conv.Snippet,
		emptyIfNil(conv.Participants),
		conv.LastSender,
		string(conv.Status),
		conv.MessageCount,
		conv.UnreadCount,
		conv.LastMessageAt,
		createdAt,
		conv.ClosedAt,
	).Scan(&conv.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

// UpdateConversation applies the non-nil fields of patch.
func (s *PostgresStore) UpdateConversation(ctx context.Context, id string, patch models.ConversationPatch) error {
	var (
		sets []string
		args []any
	)
	if patch.Status != nil {
		args = append(args, string(*patch.Status))
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
		args = append(args, patch.ClosedAt)
		sets = append(sets, fmt.Sprintf("closed_at = $%d", len(args)))
	}
	if patch.Subject != nil {
		args = append(args, *patch.Subject)
		sets = append(sets, fmt.Sprintf("subject = $%d", len(args)))
	}
	if len(sets) == 0 {
		// Still report a missing conversation.
		_, err := s.GetConversation(ctx, id)
		return err
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE conversations SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))

	tag, err := s.q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrConversationNotFound
	}
	return nil
}

// DeleteConversation deletes a conversation. Its messages are detached, not deleted.
func (s *PostgresStore) DeleteConversation(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrConversationNotFound
	}
	return nil
}

// ListConversations returns a page of the account's conversations, most recent
// activity first. A limit of zero or less means no limit.
func (s *PostgresStore) ListConversations(ctx context.Context, accountID string, limit, offset int) ([]*models.Conversation, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.q.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE account_id = $1
		ORDER BY last_message_at DESC, id
		LIMIT $2 OFFSET $3
	`, accountID, limitArg, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]*models.Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}

	return conversations, nil
}
