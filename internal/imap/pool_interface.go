package imap

import (
	"context"

	"github.com/emersion/go-imap/client"
)

// ClientPool hands out authenticated connections per account.
// Fetcher depends on this rather than on *Pool.
type ClientPool interface {
	// GetClient returns a logged-in client for the account. Callers must
	// always call the returned release function when done with the client.
	GetClient(ctx context.Context, accountID, server, username, password string) (*client.Client, func(), error)

	// RemoveClient drops the account's connections, e.g. after one broke.
	RemoveClient(accountID string)
}

var _ ClientPool = (*Pool)(nil)
