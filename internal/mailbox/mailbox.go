// Package mailbox defines the contract between the sync engine and whatever
// talks to the actual mail servers.
package mailbox

import (
	"context"
	"errors"
	"time"

	"github.com/vdavid/threadsync/internal/models"
)

var (
	// ErrAuthentication means the server rejected the account credentials.
	// It is not worth retrying until the credentials change.
	ErrAuthentication = errors.New("mailbox authentication failed")

	// ErrConnection means the server could not be reached or the session broke.
	// The caller may retry later.
	ErrConnection = errors.New("mailbox connection failed")
)

// Cursor selects which messages FetchSince returns.
// If AfterUID is non-zero only messages with a greater UID are returned,
// otherwise messages received on or after Since.
type Cursor struct {
	AfterUID uint32
	Since    time.Time
}

// IsIncremental reports whether the cursor resumes from a known UID.
func (c Cursor) IsIncremental() bool {
	return c.AfterUID > 0
}

// RawMessage is one message as delivered by the server, before normalization.
type RawMessage struct {
	UID          uint32
	Flags        []string
	InternalDate time.Time
	Body         []byte
}

// OutgoingMail is what the engine hands to the transport to send.
// InReplyTo and References carry angle-bracketed Message-IDs.
type OutgoingMail struct {
	From       models.Address
	To         []models.Address
	Cc         []models.Address
	Bcc        []models.Address
	Subject    string
	BodyText   string
	BodyHTML   string
	InReplyTo  string
	References []string
}

// SendReceipt confirms a delivery to the submission server.
type SendReceipt struct {
	MessageID string
	SentAt    time.Time
}

// Credentials are the plaintext login details for one server.
type Credentials struct {
	Server   string
	Username string
	Password string
}

// Transport fetches and sends raw mail for an account.
// Implementations bound their own connect and request time and wrap
// failures with ErrAuthentication or ErrConnection.
type Transport interface {
	// FetchSince returns at most maxCount inbox messages selected by cursor,
	// oldest first.
	FetchSince(ctx context.Context, account *models.Account, cursor Cursor, maxCount int) ([]RawMessage, error)

	// Send submits mail and returns the Message-ID it was sent with.
	Send(ctx context.Context, account *models.Account, mail OutgoingMail) (*SendReceipt, error)
}

// SeenFlag is the IMAP system flag marking a message as read.
const SeenFlag = `\Seen`

// HasFlag reports whether the raw message carries flag.
func (m *RawMessage) HasFlag(flag string) bool {
	for _, f := range m.Flags {
		if f == flag {
			return true
		}
	}
	return false
}
