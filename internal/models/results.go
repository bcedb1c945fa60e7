package models

// SyncOutcome distinguishes the kinds of result a sync call can have.
type SyncOutcome string

const (
	SyncOutcomeIngested    SyncOutcome = "ingested"
	SyncOutcomeNothingNew  SyncOutcome = "nothing_new"
	SyncOutcomeUnreachable SyncOutcome = "unreachable"
	SyncOutcomeAuthFailed  SyncOutcome = "auth_failed"
	SyncOutcomeFailed      SyncOutcome = "failed"
)

// SyncResult is what a caller gets back from syncing one account.
type SyncResult struct {
	AccountID       string      `json:"account_id"`
	Outcome         SyncOutcome `json:"outcome"`
	NewMessageCount int         `json:"new_message_count"`
	Err             error       `json:"-"`
}

// Success reports whether the sync ran to completion.
func (r SyncResult) Success() bool {
	switch r.Outcome {
	case SyncOutcomeIngested, SyncOutcomeNothingNew:
		return true
	case SyncOutcomeUnreachable, SyncOutcomeAuthFailed, SyncOutcomeFailed:
		return false
	default:
		return false
	}
}

// ReplyResult is what a caller gets back from sending a reply.
type ReplyResult struct {
	Success       bool   `json:"success"`
	SentMessageID string `json:"sent_message_id,omitempty"`
	MessageID     string `json:"message_id,omitempty"`
	Err           error  `json:"-"`
}
