package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/vdavid/threadsync/internal/models"
	"github.com/vdavid/threadsync/internal/store"
)

const messageColumns = `
	id,
	account_id,
	COALESCE(conversation_id, ''),
	provider_message_id,
	provider_uid,
	thread_id,
	in_reply_to,
	COALESCE(refs, '{}'),
	COALESCE(from_address, '{}'::jsonb),
	COALESCE(to_addresses, '[]'::jsonb),
	COALESCE(cc_addresses, '[]'::jsonb),
	COALESCE(bcc_addresses, '[]'::jsonb),
	subject,
	body_text,
	body_html,
	COALESCE(attachments, '[]'::jsonb),
	sent_at,
	is_read,
	is_outgoing,
	status,
	created_at`

func scanMessage(row pgx.Row) (*models.Message, error) {
	var (
		msg         models.Message
		providerUID int64
		status      string
	)
	err := row.Scan(
		&msg.ID,
		&msg.AccountID,
		&msg.ConversationID,
		&msg.ProviderMessageID,
		&providerUID,
		&msg.ThreadID,
		&msg.InReplyTo,
		&msg.References,
		&msg.From,
		&msg.To,
		&msg.Cc,
		&msg.Bcc,
		&msg.Subject,
		&msg.BodyText,
		&msg.BodyHTML,
		&msg.Attachments,
		&msg.SentAt,
		&msg.IsRead,
		&msg.IsOutgoing,
		&status,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	msg.ProviderUID = uint32(providerUID)
	msg.Status = models.MessageStatus(status)
	return &msg, nil
}

func messageArgs(msg *models.Message) []any {
	var conversationID any
	if msg.ConversationID != "" {
		conversationID = msg.ConversationID
	}
	return []any{
		msg.ID,
		msg.AccountID,
		conversationID,
		msg.ProviderMessageID,
		int64(msg.ProviderUID),
		msg.ThreadID,
		msg.InReplyTo,
		emptyIfNil(msg.References),
		msg.From,
		emptyIfNil(msg.To),
		emptyIfNil(msg.Cc),
		emptyIfNil(msg.Bcc),
		msg.Subject,
		msg.BodyText,
		msg.BodyHTML,
		emptyIfNil(msg.Attachments),
		msg.SentAt,
		msg.IsRead,
		msg.IsOutgoing,
		string(msg.Status),
	}
}

const insertMessage = `
	INSERT INTO messages (
		id, account_id, conversation_id, provider_message_id, provider_uid, thread_id,
		in_reply_to, refs, from_address, to_addresses, cc_addresses, bcc_addresses,
		subject, body_text, body_html, attachments, sent_at, is_read, is_outgoing, status
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

// GetMessage returns a message by its internal id.
func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	msg, err := scanMessage(s.q.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// GetMessageByProviderID returns a message by its Message-ID header.
func (s *PostgresStore) GetMessageByProviderID(ctx context.Context, accountID, providerMessageID string) (*models.Message, error) {
	msg, err := scanMessage(s.q.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE account_id = $1 AND provider_message_id = $2
	`, accountID, providerMessageID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// SaveMessage inserts or updates a message.
func (s *PostgresStore) SaveMessage(ctx context.Context, msg *models.Message) error {
	err := s.q.QueryRow(ctx, insertMessage+`
		ON CONFLICT (id) DO UPDATE SET
			conversation_id = EXCLUDED.conversation_id,
			provider_message_id = EXCLUDED.provider_message_id,
			provider_uid = EXCLUDED.provider_uid,
			thread_id = EXCLUDED.thread_id,
			in_reply_to = EXCLUDED.in_reply_to,
			refs = EXCLUDED.refs,
			from_address = EXCLUDED.from_address,
			to_addresses = EXCLUDED.to_addresses,
			cc_addresses = EXCLUDED.cc_addresses,
			bcc_addresses = EXCLUDED.bcc_addresses,
			subject = EXCLUDED.subject,
			body_text = EXCLUDED.body_text,
			body_html = EXCLUDED.body_html,
			attachments = EXCLUDED.attachments,
			sent_at = EXCLUDED.sent_at,
			is_read = EXCLUDED.is_read,
			is_outgoing = EXCLUDED.is_outgoing,
			status = EXCLUDED.status
		RETURNING created_at
	`, messageArgs(msg)...).Scan(&msg.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", store.ErrDuplicateMessage, msg.ProviderMessageID)
	}
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// SaveMessages inserts a batch of new messages in one round trip.
func (s *PostgresStore) SaveMessages(ctx context.Context, msgs []*models.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, msg := range msgs {
		batch.Queue(insertMessage+` RETURNING created_at`, messageArgs(msg)...)
	}

	results := s.q.SendBatch(ctx, batch)

	for _, msg := range msgs {
		if err := results.QueryRow().Scan(&msg.CreatedAt); err != nil {
			_ = results.Close()
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", store.ErrDuplicateMessage, msg.ProviderMessageID)
			}
			return fmt.Errorf("failed to insert message %s: %w", msg.ProviderMessageID, err)
		}
	}

	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to save messages: %w", err)
	}
	return nil
}

// DeleteMessage deletes a message.
func (s *PostgresStore) DeleteMessage(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrMessageNotFound
	}
	return nil
}

// ListConversationMessages returns a conversation's messages, oldest first.
func (s *PostgresStore) ListConversationMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		ORDER BY sent_at, provider_uid, id
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}
