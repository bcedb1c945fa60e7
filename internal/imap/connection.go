package imap

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/vdavid/threadsync/internal/mailbox"
)

// dialTimeout bounds connection setup so an unreachable server fails fast.
const dialTimeout = 5 * time.Second

// ConnectToIMAP connects to the IMAP server with a 5-second timeout.
// useTLS: true for production (TLS), false for tests (non-TLS).
// Failures wrap mailbox.ErrConnection.
func ConnectToIMAP(server string, useTLS bool) (*client.Client, error) {
	dialer := &net.Dialer{
		Timeout: dialTimeout,
	}

	if useTLS {
		c, err := client.DialWithDialerTLS(dialer, server, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to dial %s with TLS: %w", mailbox.ErrConnection, server, err)
		}
		return c, nil
	}

	c, err := client.DialWithDialer(dialer, server)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to dial %s: %w", mailbox.ErrConnection, server, err)
	}

	return c, nil
}

// Login authenticates with the IMAP server. A rejected login wraps
// mailbox.ErrAuthentication; a connection lost during login wraps
// mailbox.ErrConnection.
func Login(c *client.Client, username, password string) error {
	err := c.Login(username, password)
	if err == nil {
		return nil
	}

	var netErr net.Error
	if errors.As(err, &netErr) || c.State() == imap.LogoutState {
		return fmt.Errorf("%w: connection lost during login: %w", mailbox.ErrConnection, err)
	}
	return fmt.Errorf("%w: %w", mailbox.ErrAuthentication, err)
}
