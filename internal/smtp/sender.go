// Package smtp submits outgoing mail to an account's SMTP server.
package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/vdavid/threadsync/internal/mailbox"
	"go.uber.org/zap"
)

// implicitTLSPort is the submission port that expects TLS from the first byte.
const implicitTLSPort = "465"

// dialTimeout bounds the TCP connect when ctx has no earlier deadline.
const dialTimeout = 10 * time.Second

// Sender submits mail over SMTP with PLAIN authentication.
type Sender struct {
	useTLS bool
	now    func() time.Time
	logger *zap.Logger
}

// NewSender creates a Sender. With useTLS, port 465 uses implicit TLS and
// every other port STARTTLS; without it the connection stays in plain text,
// which only test servers should accept.
func NewSender(useTLS bool, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{useTLS: useTLS, now: time.Now, logger: logger}
}

// Send renders out and submits it. Rejected credentials wrap
// mailbox.ErrAuthentication, unreachable servers wrap mailbox.ErrConnection.
func (s *Sender) Send(ctx context.Context, creds mailbox.Credentials, out mailbox.OutgoingMail) (*mailbox.SendReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rcpts := envelopeRecipients(out)
	if len(rcpts) == 0 {
		return nil, errors.New("message has no recipients")
	}

	sentAt := s.now()
	data, messageID, err := buildMessage(out, sentAt)
	if err != nil {
		return nil, fmt.Errorf("failed to build message: %w", err)
	}

	c, stop, err := s.dial(ctx, creds.Server)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to %s: %w", mailbox.ErrConnection, creds.Server, contextOr(ctx, err))
	}
	defer stop()
	defer c.Close()

	if creds.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", creds.Username, creds.Password)); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%w: authentication interrupted: %w", mailbox.ErrConnection, ctxErr)
			}
			return nil, classifyAuthError(err)
		}
	}

	if err := c.SendMail(out.From.Email, rcpts, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to send message: %w", contextOr(ctx, err))
	}

	if err := c.Quit(); err != nil {
		s.logger.Debug("SMTP QUIT failed after successful send", zap.Error(err))
	}

	s.logger.Info("Sent message",
		zap.String("message_id", messageID),
		zap.Int("recipients", len(rcpts)))

	return &mailbox.SendReceipt{MessageID: messageID, SentAt: sentAt}, nil
}

// dial connects to server and returns a client whose timeouts follow ctx.
// The returned stop function must be called once the client is done; until
// then, ending ctx closes the connection so blocked reads return at once.
func (s *Sender) dial(ctx context.Context, server string) (*smtp.Client, func() bool, error) {
	host, port, err := net.SplitHostPort(server)
	if err != nil {
		return nil, nil, err
	}

	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", server)
	if err != nil {
		return nil, nil, err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	tlsConfig := &tls.Config{ServerName: host}
	var c *smtp.Client
	switch {
	case !s.useTLS:
		c = smtp.NewClient(conn)
	case port == implicitTLSPort:
		c = smtp.NewClient(tls.Client(conn, tlsConfig))
	default:
		c, err = smtp.NewClientStartTLS(conn, tlsConfig)
		if err != nil {
			stop()
			return nil, nil, err
		}
	}

	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		c.CommandTimeout = remaining
		c.SubmissionTimeout = remaining
	}
	return c, stop, nil
}

// contextOr prefers the context's error when ctx ended, since the I/O error
// is then only a symptom of the closed connection.
func contextOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// classifyAuthError maps 5xx AUTH replies to mailbox.ErrAuthentication.
func classifyAuthError(err error) error {
	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) && smtpErr.Code >= 500 {
		return fmt.Errorf("%w: %w", mailbox.ErrAuthentication, err)
	}
	return fmt.Errorf("%w: authentication did not complete: %w", mailbox.ErrConnection, err)
}
