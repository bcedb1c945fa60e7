package testutil

import (
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/backend/memory"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/server"
)

// TestIMAPServer is an in-memory IMAP server listening on a random local port.
// The memory backend has one user, "username" / "password", whose INBOX
// already holds one message with UID 6. Appended messages get UIDs from 7 up.
type TestIMAPServer struct {
	Server  *server.Server
	Address string
	Backend *memory.Backend
}

// NewTestIMAPServer starts a server that is shut down when the test ends.
func NewTestIMAPServer(t *testing.T) *TestIMAPServer {
	t.Helper()

	be := memory.New()
	s := server.New(be)
	s.AllowInsecureAuth = true

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	go func() {
		_ = s.Serve(listener)
	}()

	t.Cleanup(func() {
		_ = s.Close()
	})

	return &TestIMAPServer{
		Server:  s,
		Address: listener.Addr().String(),
		Backend: be,
	}
}

// Username returns the default test username.
func (s *TestIMAPServer) Username() string {
	return "username"
}

// Password returns the default test password.
func (s *TestIMAPServer) Password() string {
	return "password"
}

// Connect opens an authenticated client connection.
func (s *TestIMAPServer) Connect(t *testing.T) *imapclient.Client {
	t.Helper()

	c, err := imapclient.Dial(s.Address)
	if err != nil {
		t.Fatalf("Failed to connect to test server: %v", err)
	}
	if err := c.Login(s.Username(), s.Password()); err != nil {
		_ = c.Logout()
		t.Fatalf("Failed to login: %v", err)
	}
	t.Cleanup(func() { _ = c.Logout() })
	return c
}

// AppendRaw appends a raw RFC 5322 message to INBOX and returns its UID.
// Lines may end in "\n"; they are converted to CRLF.
func (s *TestIMAPServer) AppendRaw(t *testing.T, raw string, flags []string, receivedAt time.Time) uint32 {
	t.Helper()

	c := s.Connect(t)
	raw = strings.ReplaceAll(strings.ReplaceAll(raw, "\r\n", "\n"), "\n", "\r\n")
	if err := c.Append("INBOX", flags, receivedAt, strings.NewReader(raw)); err != nil {
		t.Fatalf("Failed to append message: %v", err)
	}

	if _, err := c.Select("INBOX", true); err != nil {
		t.Fatalf("Failed to select INBOX: %v", err)
	}
	uids, err := c.UidSearch(imap.NewSearchCriteria())
	if err != nil {
		t.Fatalf("Failed to search INBOX: %v", err)
	}

	var highest uint32
	for _, uid := range uids {
		if uid > highest {
			highest = uid
		}
	}
	return highest
}

// AddMessage appends a plain-text message to INBOX and returns its UID.
func (s *TestIMAPServer) AddMessage(t *testing.T, messageID, subject, from, to string, sentAt time.Time) uint32 {
	t.Helper()

	raw := fmt.Sprintf("Message-ID: %s\nDate: %s\nFrom: %s\nTo: %s\nSubject: %s\nContent-Type: text/plain; charset=utf-8\n\nTest message body.\n",
		messageID, sentAt.Format(time.RFC1123Z), from, to, subject)
	return s.AppendRaw(t, raw, []string{imap.SeenFlag}, sentAt)
}
