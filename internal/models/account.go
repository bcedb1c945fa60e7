package models

import "time"

// ProviderType identifies the kind of mailbox behind an account.
type ProviderType string

const (
	ProviderIMAP    ProviderType = "imap"
	ProviderGmail   ProviderType = "gmail"
	ProviderOutlook ProviderType = "outlook"
)

// DefaultIMAPServer returns the IMAP host:port used when the account has none configured.
func (p ProviderType) DefaultIMAPServer() string {
	switch p {
	case ProviderGmail:
		return "imap.gmail.com:993"
	case ProviderOutlook:
		return "outlook.office365.com:993"
	case ProviderIMAP:
		return ""
	default:
		return ""
	}
}

// DefaultSMTPServer returns the submission host:port used when the account has none configured.
func (p ProviderType) DefaultSMTPServer() string {
	switch p {
	case ProviderGmail:
		return "smtp.gmail.com:465"
	case ProviderOutlook:
		return "smtp.office365.com:587"
	case ProviderIMAP:
		return ""
	default:
		return ""
	}
}

// AccountStatus tells whether the last sync of an account succeeded.
type AccountStatus string

const (
	AccountStatusActive AccountStatus = "active"
	AccountStatusError  AccountStatus = "error"
)

// AccountErrorKind classifies the error recorded against an account.
type AccountErrorKind string

const (
	AccountErrorAuthentication AccountErrorKind = "authentication"
	AccountErrorConnection     AccountErrorKind = "connection"
	AccountErrorInternal       AccountErrorKind = "internal"
)

// Account is one connected mailbox owned by a tenant.
type Account struct {
	ID                    string           `json:"id"`
	TenantID              string           `json:"tenant_id"`
	Email                 string           `json:"email"`
	DisplayName           string           `json:"display_name"`
	Provider              ProviderType     `json:"provider"`
	IMAPServer            string           `json:"imap_server"`
	IMAPUsername          string           `json:"imap_username"`
	EncryptedIMAPPassword []byte           `json:"-"`
	SMTPServer            string           `json:"smtp_server"`
	SMTPUsername          string           `json:"smtp_username"`
	EncryptedSMTPPassword []byte           `json:"-"`
	Status                AccountStatus    `json:"status"`
	LastErrorKind         AccountErrorKind `json:"last_error_kind,omitempty"`
	LastError             string           `json:"last_error,omitempty"`
	LastErrorAt           *time.Time       `json:"last_error_at,omitempty"`
	CreatedAt             time.Time        `json:"created_at"`
}

// Identity returns the address the account sends from.
func (a *Account) Identity() Address {
	return Address{Name: a.DisplayName, Email: a.Email}
}

// SyncState is the per-account incremental sync cursor.
type SyncState struct {
	AccountID  string    `json:"account_id"`
	LastUID    uint32    `json:"last_uid"`
	LastSyncAt time.Time `json:"last_sync_at"`
}
