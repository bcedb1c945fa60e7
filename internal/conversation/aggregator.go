// Package conversation routes messages into conversations and keeps the
// conversation aggregates (counts, participants, snippet, status) correct.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vdavid/threadsync/internal/metrics"
	"github.com/vdavid/threadsync/internal/models"
	"github.com/vdavid/threadsync/internal/store"
	"go.uber.org/zap"
)

// Aggregator matches messages to conversations and maintains their aggregates.
//
// Attach updates a conversation incrementally and assumes the message is the
// newest one in it. When that does not hold, the conversation is rebuilt with
// Recompute instead.
type Aggregator struct {
	store   store.Store
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	newID   func() string
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Aggregator) { a.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// WithClock sets the clock used for createdAt and closedAt.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithIDGenerator sets the function used to assign conversation ids.
func WithIDGenerator(newID func() string) Option {
	return func(a *Aggregator) { a.newID = newID }
}

// NewAggregator creates an Aggregator backed by st.
func NewAggregator(st store.Store, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:  st,
		logger: zap.NewNop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	return a
}

// WithStore returns a copy of the Aggregator that reads and writes through st,
// typically a transaction handed out by store.RunInTx.
func (a *Aggregator) WithStore(st store.Store) *Aggregator {
	c := *a
	c.store = st
	return &c
}

// Match finds the conversation msg belongs to, or returns nil if none does.
// Lookups are scoped to the message's account and tried in this order:
// In-Reply-To, each References entry in order, then the message's own id.
func (a *Aggregator) Match(ctx context.Context, msg *models.Message) (*models.Conversation, error) {
	candidates := make([]string, 0, len(msg.References)+2)
	if msg.InReplyTo != "" {
		candidates = append(candidates, msg.InReplyTo)
	}
	candidates = append(candidates, msg.References...)
	candidates = append(candidates, msg.ProviderMessageID)

	for _, threadID := range candidates {
		if threadID == "" {
			continue
		}
		conv, err := a.store.GetConversationByThreadID(ctx, msg.AccountID, threadID)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, store.ErrConversationNotFound) {
			return nil, fmt.Errorf("failed to look up conversation for %s: %w", threadID, err)
		}
	}

	return nil, nil
}

// Attach routes msg into its conversation, creating one if nothing matches,
// sets msg.ConversationID and persists both the message and the conversation.
func (a *Aggregator) Attach(ctx context.Context, msg *models.Message) (*models.Conversation, error) {
	if msg.ProviderMessageID == "" {
		return nil, fmt.Errorf("message %s has no Message-ID", msg.ID)
	}
	if msg.ConversationID != "" {
		return nil, fmt.Errorf("message %s is already in conversation %s", msg.ID, msg.ConversationID)
	}

	conv, err := a.Match(ctx, msg)
	if err != nil {
		return nil, err
	}

	if conv == nil {
		conv = a.newConversation(msg)
		msg.ConversationID = conv.ID
		if err := a.store.SaveConversation(ctx, conv); err != nil {
			return nil, fmt.Errorf("failed to save conversation: %w", err)
		}
		if err := a.store.SaveMessage(ctx, msg); err != nil {
			return nil, fmt.Errorf("failed to save message: %w", err)
		}
		a.metrics.ConversationCreated()
		return conv, nil
	}

	inOrder := !msg.SentAt.Before(conv.LastMessageAt)
	applyMessage(conv, msg, inOrder)
	msg.ConversationID = conv.ID

	if err := a.store.SaveConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to save conversation: %w", err)
	}
	if err := a.store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	if !inOrder {
		a.logger.Debug("Message older than conversation head, recomputing",
			zap.String("conversation_id", conv.ID),
			zap.String("message_id", msg.ID))
		return a.Recompute(ctx, conv.ID)
	}

	return conv, nil
}

// newConversation seeds a conversation from its first message.
func (a *Aggregator) newConversation(msg *models.Message) *models.Conversation {
	conv := &models.Conversation{
		ID:            a.newID(),
		AccountID:     msg.AccountID,
		ThreadIDs:     []string{msg.ProviderMessageID},
		Subject:       NormalizeSubject(msg.Subject),
		Snippet:       Snippet(msg.BodyText, msg.BodyHTML),
		Participants:  MergeParticipants(nil, messageParticipants(msg)...),
		LastSender:    msg.From,
		Status:        models.ConversationStatusOpen,
		MessageCount:  1,
		LastMessageAt: msg.SentAt,
		CreatedAt:     a.now(),
	}
	if !msg.IsRead {
		conv.UnreadCount = 1
	}
	return conv
}

// applyMessage folds one new message into conv. The "last message" fields
// are only taken from msg when it is not older than the current head.
func applyMessage(conv *models.Conversation, msg *models.Message, inOrder bool) {
	switch conv.Status {
	case models.ConversationStatusClosed:
		conv.Status = models.ConversationStatusOpen
		conv.ClosedAt = nil
	case models.ConversationStatusOpen, models.ConversationStatusArchived:
	}

	if !conv.HasThreadID(msg.ProviderMessageID) {
		conv.ThreadIDs = append(conv.ThreadIDs, msg.ProviderMessageID)
	}

	conv.MessageCount++
	if !msg.IsRead {
		conv.UnreadCount++
	}

	conv.Participants = MergeParticipants(conv.Participants, messageParticipants(msg)...)

	if inOrder {
		conv.Snippet = Snippet(msg.BodyText, msg.BodyHTML)
		conv.LastSender = msg.From
		conv.LastMessageAt = msg.SentAt
	}
}

// Recompute rebuilds a conversation entirely from the messages still linked
// to it. If none are left the conversation is deleted and nil is returned.
func (a *Aggregator) Recompute(ctx context.Context, conversationID string) (*models.Conversation, error) {
	conv, err := a.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation %s: %w", conversationID, err)
	}

	msgs, err := a.store.ListConversationMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages of conversation %s: %w", conversationID, err)
	}

	a.metrics.ConversationRecomputed()

	if len(msgs) == 0 {
		if err := a.store.DeleteConversation(ctx, conversationID); err != nil {
			return nil, fmt.Errorf("failed to delete empty conversation %s: %w", conversationID, err)
		}
		a.logger.Debug("Deleted empty conversation", zap.String("conversation_id", conversationID))
		return nil, nil
	}

	rebuild(conv, msgs)

	if err := a.store.SaveConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to save conversation: %w", err)
	}
	return conv, nil
}

// rebuild resets every derived field of conv from msgs, which must be sorted
// oldest first.
func rebuild(conv *models.Conversation, msgs []*models.Message) {
	conv.ThreadIDs = make([]string, 0, len(msgs))
	conv.Participants = nil
	conv.MessageCount = len(msgs)
	conv.UnreadCount = 0

	seen := make(map[string]struct{}, len(msgs))
	for _, msg := range msgs {
		if _, ok := seen[msg.ProviderMessageID]; !ok {
			seen[msg.ProviderMessageID] = struct{}{}
			conv.ThreadIDs = append(conv.ThreadIDs, msg.ProviderMessageID)
		}
		if !msg.IsRead {
			conv.UnreadCount++
		}
		conv.Participants = MergeParticipants(conv.Participants, messageParticipants(msg)...)
	}

	last := msgs[len(msgs)-1]
	conv.Snippet = Snippet(last.BodyText, last.BodyHTML)
	conv.LastSender = last.From
	conv.LastMessageAt = last.SentAt

	if conv.Subject == "" {
		conv.Subject = NormalizeSubject(msgs[0].Subject)
	}
}
