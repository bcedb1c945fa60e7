package smtp

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/threadsync/internal/mailbox"
	"github.com/vdavid/threadsync/internal/models"
	"github.com/vdavid/threadsync/internal/testutil"
)

func testMail() mailbox.OutgoingMail {
	return mailbox.OutgoingMail{
		From:       models.Address{Name: "Me", Email: "me@example.com"},
		To:         []models.Address{{Name: "Alice", Email: "alice@example.com"}},
		Cc:         []models.Address{{Email: "carol@example.com"}},
		Bcc:        []models.Address{{Email: "hidden@example.com"}, {Email: "ALICE@example.com"}},
		Subject:    "Re: Project Update",
		BodyText:   "Thanks!",
		InReplyTo:  "<parent@example.com>",
		References: []string{"<root@example.com>", "<parent@example.com>"},
	}
}

func TestSender_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers a threaded reply", func(t *testing.T) {
		server := testutil.NewTestSMTPServer(t)
		sender := NewSender(false, nil)
		creds := mailbox.Credentials{Server: server.Address, Username: server.Username(), Password: server.Password()}

		receipt, err := sender.Send(ctx, creds, testMail())
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(receipt.MessageID, "<"))
		assert.True(t, strings.HasSuffix(receipt.MessageID, "@example.com>"))

		received := server.Messages()
		require.Len(t, received, 1)
		assert.Equal(t, "me@example.com", received[0].From)
		assert.Equal(t, []string{"alice@example.com", "carol@example.com", "hidden@example.com"}, received[0].To)

		mr, err := mail.CreateReader(bytes.NewReader(received[0].Data))
		require.NoError(t, err)

		inReplyTo, err := mr.Header.MsgIDList("In-Reply-To")
		require.NoError(t, err)
		assert.Equal(t, []string{"parent@example.com"}, inReplyTo)

		refs, err := mr.Header.MsgIDList("References")
		require.NoError(t, err)
		assert.Equal(t, []string{"root@example.com", "parent@example.com"}, refs)

		messageID, err := mr.Header.MessageID()
		require.NoError(t, err)
		assert.Equal(t, receipt.MessageID, "<"+messageID+">")

		subject, err := mr.Header.Subject()
		require.NoError(t, err)
		assert.Equal(t, "Re: Project Update", subject)

		assert.Empty(t, mr.Header.Get("Bcc"))

		part, err := mr.NextPart()
		require.NoError(t, err)
		body, err := io.ReadAll(part.Body)
		require.NoError(t, err)
		assert.Equal(t, "Thanks!", string(body))
	})

	t.Run("sends text and html as alternatives", func(t *testing.T) {
		server := testutil.NewTestSMTPServer(t)
		sender := NewSender(false, nil)
		creds := mailbox.Credentials{Server: server.Address, Username: server.Username(), Password: server.Password()}

		out := testMail()
		out.BodyHTML = "<p>Thanks!</p>"
		_, err := sender.Send(ctx, creds, out)
		require.NoError(t, err)

		received := server.Messages()
		require.Len(t, received, 1)
		data := string(received[0].Data)
		assert.Contains(t, data, "multipart/alternative")
		assert.Contains(t, data, "text/html")
		assert.Contains(t, data, "<p>Thanks!</p>")
	})

	t.Run("rejected credentials are an authentication error", func(t *testing.T) {
		server := testutil.NewTestSMTPServer(t)
		sender := NewSender(false, nil)
		creds := mailbox.Credentials{Server: server.Address, Username: server.Username(), Password: "wrong"}

		_, err := sender.Send(ctx, creds, testMail())
		assert.ErrorIs(t, err, mailbox.ErrAuthentication)
		assert.Empty(t, server.Messages())
	})

	t.Run("unreachable server is a connection error", func(t *testing.T) {
		sender := NewSender(false, nil)
		creds := mailbox.Credentials{Server: "127.0.0.1:1", Username: "u", Password: "p"}

		_, err := sender.Send(ctx, creds, testMail())
		assert.ErrorIs(t, err, mailbox.ErrConnection)
	})

	t.Run("server that never greets fails at the context deadline", func(t *testing.T) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer listener.Close()

		accepted := make(chan net.Conn, 1)
		go func() {
			conn, err := listener.Accept()
			if err == nil {
				accepted <- conn
			}
		}()
		defer func() {
			select {
			case conn := <-accepted:
				_ = conn.Close()
			default:
			}
		}()

		sendCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		defer cancel()

		creds := mailbox.Credentials{Server: listener.Addr().String(), Username: "u", Password: "p"}
		start := time.Now()
		_, err = NewSender(false, nil).Send(sendCtx, creds, testMail())

		assert.ErrorIs(t, err, mailbox.ErrConnection)
		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("requires a recipient", func(t *testing.T) {
		out := testMail()
		out.To, out.Cc, out.Bcc = nil, nil, nil
		_, err := NewSender(false, nil).Send(ctx, mailbox.Credentials{}, out)
		assert.Error(t, err)
	})
}

func TestBuildMessage(t *testing.T) {
	date := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	out := testMail()
	out.InReplyTo = ""
	out.References = nil

	data, messageID, err := buildMessage(out, date)
	require.NoError(t, err)

	mr, err := mail.CreateReader(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Empty(t, mr.Header.Get("In-Reply-To"))
	assert.Empty(t, mr.Header.Get("References"))

	gotDate, err := mr.Header.Date()
	require.NoError(t, err)
	assert.True(t, gotDate.Equal(date))

	from, err := mr.Header.AddressList("From")
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, "me@example.com", from[0].Address)

	assert.True(t, strings.HasSuffix(messageID, "@example.com>"))
}
