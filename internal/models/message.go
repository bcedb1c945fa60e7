package models

import "time"

// MessageStatus is the lifecycle state of a single message.
type MessageStatus string

const (
	MessageStatusNew      MessageStatus = "new"
	MessageStatusRead     MessageStatus = "read"
	MessageStatusReplied  MessageStatus = "replied"
	MessageStatusArchived MessageStatus = "archived"
)

// Valid reports whether s is one of the known message statuses.
func (s MessageStatus) Valid() bool {
	switch s {
	case MessageStatusNew, MessageStatusRead, MessageStatusReplied, MessageStatusArchived:
		return true
	default:
		return false
	}
}

// Address is a single mailbox with an optional display name.
type Address struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// String formats the address the way it would appear in a header.
func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	return a.Name + " <" + a.Email + ">"
}

// Message is one normalized email, incoming or outgoing.
type Message struct {
	ID                string        `json:"id"`
	AccountID         string        `json:"account_id"`
	ConversationID    string        `json:"conversation_id,omitempty"`
	ProviderMessageID string        `json:"provider_message_id"`
	ProviderUID       uint32        `json:"provider_uid,omitempty"`
	ThreadID          string        `json:"thread_id"`
	InReplyTo         string        `json:"in_reply_to,omitempty"`
	References        []string      `json:"references,omitempty"`
	From              Address       `json:"from"`
	To                []Address     `json:"to"`
	Cc                []Address     `json:"cc,omitempty"`
	Bcc               []Address     `json:"bcc,omitempty"`
	Subject           string        `json:"subject"`
	BodyText          string        `json:"body_text"`
	BodyHTML          string        `json:"body_html,omitempty"`
	Attachments       []Attachment  `json:"attachments,omitempty"`
	SentAt            time.Time     `json:"sent_at"`
	IsRead            bool          `json:"is_read"`
	IsOutgoing        bool          `json:"is_outgoing"`
	Status            MessageStatus `json:"status"`
	CreatedAt         time.Time     `json:"created_at"`
}

// Attachment holds attachment metadata only. The bytes are not kept.
type Attachment struct {
	Filename  string `json:"filename"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
	IsInline  bool   `json:"is_inline"`
	ContentID string `json:"content_id,omitempty"`
}
