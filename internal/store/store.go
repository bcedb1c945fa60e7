// Package store defines the persistence contract used by the sync engine.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/vdavid/threadsync/internal/models"
)

var (
	// ErrMessageNotFound is returned when a requested message cannot be found.
	ErrMessageNotFound = errors.New("message not found")
	// ErrConversationNotFound is returned when a requested conversation cannot be found.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrAccountNotFound is returned when a requested account cannot be found.
	ErrAccountNotFound = errors.New("account not found")
	// ErrDuplicateMessage is returned when a message with the same
	// (account, Message-ID) pair is already stored.
	ErrDuplicateMessage = errors.New("duplicate message")
)

// MessageStore persists normalized messages.
type MessageStore interface {
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	GetMessageByProviderID(ctx context.Context, accountID, providerMessageID string) (*models.Message, error)
	// SaveMessage inserts or fully updates a message, keyed by its id.
	SaveMessage(ctx context.Context, msg *models.Message) error
	// SaveMessages inserts new messages. It fails with ErrDuplicateMessage
	// if any of them is already stored.
	SaveMessages(ctx context.Context, msgs []*models.Message) error
	DeleteMessage(ctx context.Context, id string) error
	// ListConversationMessages returns the messages linked to a conversation,
	// oldest first.
	ListConversationMessages(ctx context.Context, conversationID string) ([]*models.Message, error)
}

// ConversationStore persists conversation aggregates.
type ConversationStore interface {
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	GetConversationByThreadID(ctx context.Context, accountID, threadID string) (*models.Conversation, error)
	// SaveConversation inserts or fully updates a conversation, keyed by its id.
	SaveConversation(ctx context.Context, conv *models.Conversation) error
	UpdateConversation(ctx context.Context, id string, patch models.ConversationPatch) error
	DeleteConversation(ctx context.Context, id string) error
	// ListConversations returns an account's conversations, most recent activity first.
	ListConversations(ctx context.Context, accountID string, limit, offset int) ([]*models.Conversation, error)
}

// SyncStateStore persists per-account cursors.
type SyncStateStore interface {
	// GetSyncState returns nil, nil if the account has never been synced.
	GetSyncState(ctx context.Context, accountID string) (*models.SyncState, error)
	SaveSyncState(ctx context.Context, state *models.SyncState) error
	DeleteSyncState(ctx context.Context, accountID string) error
}

// AccountStore exposes the account fields the engine reads and the error
// state it records. Account CRUD lives elsewhere.
type AccountStore interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	ListActiveAccounts(ctx context.Context) ([]*models.Account, error)
	SetAccountError(ctx context.Context, id string, kind models.AccountErrorKind, message string, at time.Time) error
	ClearAccountError(ctx context.Context, id string) error
}

// Store is the full persistence contract.
type Store interface {
	MessageStore
	ConversationStore
	SyncStateStore
	AccountStore

	// RunInTx runs fn against a transactional view of the store. Writes made
	// through tx are discarded if fn returns an error.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	// WithAccountLock runs fn while holding an exclusive lock for accountID,
	// serializing sync and reply work on the same account.
	WithAccountLock(ctx context.Context, accountID string, fn func(ctx context.Context) error) error
}
