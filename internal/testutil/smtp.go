package testutil

import (
	"io"
	"net"
	"sync"
	"testing"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// ReceivedMail is one message accepted by the test SMTP server.
type ReceivedMail struct {
	From string
	To   []string
	Data []byte
}

// MemoryBackend is an in-memory SMTP backend that requires PLAIN auth with
// fixed credentials before accepting mail.
type MemoryBackend struct {
	mu       sync.Mutex
	messages []*ReceivedMail
	username string
	password string
}

// NewSession creates a new SMTP session.
func (b *MemoryBackend) NewSession(*smtp.Conn) (smtp.Session, error) {
	return &memorySession{backend: b}, nil
}

// Messages returns the messages received so far.
func (b *MemoryBackend) Messages() []*ReceivedMail {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*ReceivedMail(nil), b.messages...)
}

type memorySession struct {
	backend *MemoryBackend
	authed  bool
	from    string
	to      []string
}

func (s *memorySession) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *memorySession) Auth(string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(_, username, password string) error {
		if username != s.backend.username || password != s.backend.password {
			return smtp.ErrAuthFailed
		}
		s.authed = true
		return nil
	}), nil
}

func (s *memorySession) Mail(from string, _ *smtp.MailOptions) error {
	if !s.authed {
		return smtp.ErrAuthRequired
	}
	s.from = from
	return nil
}

func (s *memorySession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.to = append(s.to, to)
	return nil
}

func (s *memorySession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.messages = append(s.backend.messages, &ReceivedMail{
		From: s.from,
		To:   append([]string(nil), s.to...),
		Data: data,
	})
	return nil
}

func (s *memorySession) Reset() {
	s.from = ""
	s.to = nil
}

func (s *memorySession) Logout() error {
	return nil
}

// TestSMTPServer is an in-memory SMTP server on a random local port.
type TestSMTPServer struct {
	Server  *smtp.Server
	Address string
	Backend *MemoryBackend
}

// NewTestSMTPServer starts a server that is shut down when the test ends.
func NewTestSMTPServer(t *testing.T) *TestSMTPServer {
	t.Helper()

	be := &MemoryBackend{username: "test-user", password: "test-pass"}

	s := smtp.NewServer(be)
	s.AllowInsecureAuth = true
	s.Domain = "localhost"

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

	return &TestSMTPServer{
		Server:  s,
		Address: listener.Addr().String(),
		Backend: be,
	}
}

// Username returns the accepted username.
func (s *TestSMTPServer) Username() string {
	return s.Backend.username
}

// Password returns the accepted password.
func (s *TestSMTPServer) Password() string {
	return s.Backend.password
}

// Messages returns all messages received by the server.
func (s *TestSMTPServer) Messages() []*ReceivedMail {
	return s.Backend.Messages()
}
