// Package normalize turns raw mailbox messages into models.Message records.
package normalize

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jhillyerd/enmime"
	"github.com/vdavid/threadsync/internal/mailbox"
	"github.com/vdavid/threadsync/internal/models"
)

// ErrMissingMessageID is returned for messages without a usable Message-ID header.
// Such messages can't be deduplicated or threaded, so callers drop them.
var ErrMissingMessageID = errors.New("message has no Message-ID")

// Normalizer converts raw messages. It has no side effects besides generating
// ids and reading the clock, both of which can be replaced.
type Normalizer struct {
	now   func() time.Time
	newID func() string
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock sets the receipt-time fallback clock.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// WithIDGenerator sets the function used to assign internal message ids.
func WithIDGenerator(newID func() string) Option {
	return func(n *Normalizer) { n.newID = newID }
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize parses raw and returns the canonical message for account.
func (n *Normalizer) Normalize(account *models.Account, raw mailbox.RawMessage) (*models.Message, error) {
	if account == nil {
		return nil, fmt.Errorf("account is nil")
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message UID %d: %w", raw.UID, err)
	}

	providerMessageID := CanonicalMessageID(env.GetHeader("Message-ID"))
	if providerMessageID == "" {
		return nil, ErrMissingMessageID
	}

	references := ParseMessageIDList(env.GetHeader("References"))
	var inReplyTo string
	if ids := ParseMessageIDList(env.GetHeader("In-Reply-To")); len(ids) > 0 {
		inReplyTo = ids[0]
	}

	msg := &models.Message{
		ID:                n.newID(),
		AccountID:         account.ID,
		ProviderMessageID: providerMessageID,
		ProviderUID:       raw.UID,
		ThreadID:          ResolveThreadID(references, inReplyTo, providerMessageID),
		InReplyTo:         inReplyTo,
		References:        references,
		To:                addressList(env, "To"),
		Cc:                addressList(env, "Cc"),
		Bcc:               addressList(env, "Bcc"),
		Subject:           strings.TrimSpace(env.GetHeader("Subject")),
		BodyText:          env.Text,
		BodyHTML:          env.HTML,
		SentAt:            n.sentAt(env, raw),
		IsRead:            raw.HasFlag(mailbox.SeenFlag),
	}

	if from := addressList(env, "From"); len(from) > 0 {
		msg.From = from[0]
	}

	// A copy of our own mail landing in the inbox is outgoing and already read.
	if msg.From.Email != "" && strings.EqualFold(msg.From.Email, account.Email) {
		msg.IsOutgoing = true
		msg.IsRead = true
	}

	if msg.IsRead {
		msg.Status = models.MessageStatusRead
	} else {
		msg.Status = models.MessageStatusNew
	}

	msg.Attachments = attachments(env)

	return msg, nil
}

// sentAt returns the Date header, falling back to the receipt time.
func (n *Normalizer) sentAt(env *enmime.Envelope, raw mailbox.RawMessage) time.Time {
	if t, err := env.Date(); err == nil {
		return t
	}
	if !raw.InternalDate.IsZero() {
		return raw.InternalDate
	}
	return n.now()
}

func addressList(env *enmime.Envelope, key string) []models.Address {
	list, err := env.AddressList(key)
	if err != nil || len(list) == 0 {
		return nil
	}
	result := make([]models.Address, 0, len(list))
	for _, a := range list {
		if a == nil || a.Address == "" {
			continue
		}
		result = append(result, models.Address{Name: a.Name, Email: a.Address})
	}
	return result
}

func attachments(env *enmime.Envelope) []models.Attachment {
	parts := make([]*enmime.Part, 0, len(env.Attachments)+len(env.Inlines))
	parts = append(parts, env.Attachments...)
	parts = append(parts, env.Inlines...)

	var result []models.Attachment
	for _, part := range parts {
		result = append(result, models.Attachment{
			Filename:  part.FileName,
			MimeType:  part.ContentType,
			SizeBytes: int64(len(part.Content)),
			IsInline:  part.ContentID != "",
			ContentID: part.ContentID,
		})
	}
	return result
}
