// Package reply sends replies that stay threaded with the message they answer.
package reply

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vdavid/threadsync/internal/conversation"
	"github.com/vdavid/threadsync/internal/mailbox"
	"github.com/vdavid/threadsync/internal/metrics"
	"github.com/vdavid/threadsync/internal/models"
	"github.com/vdavid/threadsync/internal/normalize"
	"github.com/vdavid/threadsync/internal/store"
	"go.uber.org/zap"
)

// ErrTargetNotFound is returned when the message being replied to does not exist.
var ErrTargetNotFound = errors.New("reply target not found")

// Content is what the caller writes. Subject defaults to the target's subject,
// and with no recipients at all the reply goes back to the target's sender.
type Content struct {
	To       []models.Address
	Cc       []models.Address
	Bcc      []models.Address
	Subject  string
	BodyText string
	BodyHTML string
}

// Composer builds, sends and records replies.
type Composer struct {
	store      store.Store
	transport  mailbox.Transport
	aggregator *conversation.Aggregator
	logger     *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	newID      func() string
}

// Option configures a Composer.
type Option func(*Composer)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Composer) { c.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Composer) { c.metrics = m }
}

// WithClock sets the clock used when the transport reports no send time.
func WithClock(now func() time.Time) Option {
	return func(c *Composer) { c.now = now }
}

// WithIDGenerator sets the function used to assign message ids.
func WithIDGenerator(newID func() string) Option {
	return func(c *Composer) { c.newID = newID }
}

// NewComposer creates a Composer.
func NewComposer(st store.Store, transport mailbox.Transport, aggregator *conversation.Aggregator, opts ...Option) *Composer {
	c := &Composer{
		store:      st,
		transport:  transport,
		aggregator: aggregator,
		logger:     zap.NewNop(),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// SendReply replies to the stored message targetMessageID.
//
// Nothing is sent when the target cannot be loaded. Transport errors are
// returned as they are, without retry. Once sent, the reply is stored in the
// target's conversation and the target becomes replied and read. If storing
// fails after the send, the result is unsuccessful but still carries
// SentMessageID, so the caller knows the mail went out.
func (c *Composer) SendReply(ctx context.Context, targetMessageID string, content Content) models.ReplyResult {
	var result models.ReplyResult

	target, err := c.store.GetMessage(ctx, targetMessageID)
	if err != nil {
		if errors.Is(err, store.ErrMessageNotFound) {
			err = fmt.Errorf("%w: %s", ErrTargetNotFound, targetMessageID)
		}
		c.metrics.ReplySent(false)
		return models.ReplyResult{Err: err}
	}

	err = c.store.WithAccountLock(ctx, target.AccountID, func(ctx context.Context) error {
		result = c.sendLocked(ctx, target, content)
		return nil
	})
	if err != nil {
		result = models.ReplyResult{Err: err}
	}

	c.metrics.ReplySent(result.Success)
	return result
}

func (c *Composer) sendLocked(ctx context.Context, target *models.Message, content Content) models.ReplyResult {
	log := c.logger.With(zap.String("account_id", target.AccountID), zap.String("target_id", target.ID))

	account, err := c.store.GetAccount(ctx, target.AccountID)
	if err != nil {
		return models.ReplyResult{Err: err}
	}

	out := buildReply(account, target, content)

	receipt, err := c.transport.Send(ctx, account, out)
	if err != nil {
		log.Warn("Failed to send reply", zap.Error(err))
		return models.ReplyResult{Err: err}
	}

	sentAt := receipt.SentAt
	if sentAt.IsZero() {
		sentAt = c.now()
	}

	msg := &models.Message{
		ID:                c.newID(),
		AccountID:         account.ID,
		ProviderMessageID: receipt.MessageID,
		ThreadID:          normalize.ResolveThreadID(out.References, out.InReplyTo, receipt.MessageID),
		InReplyTo:         out.InReplyTo,
		References:        out.References,
		From:              out.From,
		To:                out.To,
		Cc:                out.Cc,
		Bcc:               out.Bcc,
		Subject:           out.Subject,
		BodyText:          out.BodyText,
		BodyHTML:          out.BodyHTML,
		SentAt:            sentAt,
		IsRead:            true,
		IsOutgoing:        true,
		Status:            models.MessageStatusReplied,
	}

	err = c.store.RunInTx(ctx, func(ctx context.Context, tx store.Store) error {
		if err := tx.SaveMessages(ctx, []*models.Message{msg}); err != nil {
			return err
		}
		agg := c.aggregator.WithStore(tx)
		if _, err := agg.Attach(ctx, msg); err != nil {
			return err
		}
		return agg.MarkReplied(ctx, target.ID)
	})
	if err != nil {
		log.Error("Reply sent but not recorded", zap.String("message_id", receipt.MessageID), zap.Error(err))
		return models.ReplyResult{
			SentMessageID: receipt.MessageID,
			Err:           fmt.Errorf("reply sent as %s but not recorded: %w", receipt.MessageID, err),
		}
	}

	log.Info("Sent reply", zap.String("message_id", receipt.MessageID), zap.String("conversation_id", msg.ConversationID))

	return models.ReplyResult{
		Success:       true,
		SentMessageID: receipt.MessageID,
		MessageID:     msg.ID,
	}
}

// buildReply fills in threading headers, subject and default recipients.
func buildReply(account *models.Account, target *models.Message, content Content) mailbox.OutgoingMail {
	references := make([]string, 0, len(target.References)+1)
	references = append(references, target.References...)
	references = append(references, target.ProviderMessageID)

	subject := content.Subject
	if subject == "" {
		subject = target.Subject
	}

	to, cc, bcc := content.To, content.Cc, content.Bcc
	if len(to) == 0 && len(cc) == 0 && len(bcc) == 0 {
		if target.IsOutgoing {
			to = append([]models.Address(nil), target.To...)
		} else {
			to = []models.Address{target.From}
		}
	}

	return mailbox.OutgoingMail{
		From:       account.Identity(),
		To:         to,
		Cc:         cc,
		Bcc:        bcc,
		Subject:    conversation.ReplySubject(subject),
		BodyText:   content.BodyText,
		BodyHTML:   content.BodyHTML,
		InReplyTo:  target.ProviderMessageID,
		References: references,
	}
}
