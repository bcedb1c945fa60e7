package models

import "time"

// ConversationStatus is the workflow state of a conversation.
type ConversationStatus string

const (
	ConversationStatusOpen     ConversationStatus = "open"
	ConversationStatusClosed   ConversationStatus = "closed"
	ConversationStatusArchived ConversationStatus = "archived"
)

// Valid reports whether s is one of the known conversation statuses.
func (s ConversationStatus) Valid() bool {
	switch s {
	case ConversationStatusOpen, ConversationStatusClosed, ConversationStatusArchived:
		return true
	default:
		return false
	}
}

// Conversation aggregates all messages of an account that share a thread.
// ThreadIDs holds every Message-ID known to belong to it.
type Conversation struct {
	ID            string             `json:"id"`
	AccountID     string             `json:"account_id"`
	ThreadIDs     []string           `json:"thread_ids"`
	Subject       string             `json:"subject"`
	Snippet       string             `json:"snippet"`
	Participants  []Address          `json:"participants"`
	LastSender    Address            `json:"last_sender"`
	Status        ConversationStatus `json:"status"`
	MessageCount  int                `json:"message_count"`
	UnreadCount   int                `json:"unread_count"`
	LastMessageAt time.Time          `json:"last_message_at"`
	CreatedAt     time.Time          `json:"created_at"`
	ClosedAt      *time.Time         `json:"closed_at,omitempty"`
}

// HasThreadID reports whether id is already registered on the conversation.
func (c *Conversation) HasThreadID(id string) bool {
	for _, existing := range c.ThreadIDs {
		if existing == id {
			return true
		}
	}
	return false
}

// ConversationPatch is a partial update. Nil fields are left untouched.
// ClosedAt is written whenever Status is set, so a nil ClosedAt with a
// non-nil Status clears it.
type ConversationPatch struct {
	Status   *ConversationStatus
	ClosedAt *time.Time
	Subject  *string
}
