package normalize

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/threadsync/internal/mailbox"
	"github.com/vdavid/threadsync/internal/models"
)

var testAccount = &models.Account{ID: "acc-1", Email: "me@example.com", DisplayName: "Me"}

func rawMessage(headers string, body string) []byte {
	return []byte(strings.ReplaceAll(headers, "\n", "\r\n") + "\r\n" + body)
}

func newTestNormalizer(now time.Time) *Normalizer {
	return New(
		WithClock(func() time.Time { return now }),
		WithIDGenerator(func() string { return "generated-id" }),
	)
}

func TestNormalize(t *testing.T) {
	receivedAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	n := newTestNormalizer(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC))

	t.Run("normalizes a plain reply", func(t *testing.T) {
		body := rawMessage(`Message-ID: <reply@example.com>
In-Reply-To: <parent@example.com>
References: <root@example.com> <parent@example.com>
Date: Fri, 01 Mar 2024 09:30:00 +0000
From: Alice <alice@example.com>
To: Me <me@example.com>, bob@example.com
Cc: carol@example.com
Subject: Re: Project Update
Content-Type: text/plain; charset=utf-8
`, "Sounds good.\r\n")

		msg, err := n.Normalize(testAccount, mailbox.RawMessage{UID: 42, Body: body, InternalDate: receivedAt})
		require.NoError(t, err)

		assert.Equal(t, "generated-id", msg.ID)
		assert.Equal(t, "acc-1", msg.AccountID)
		assert.Equal(t, "<reply@example.com>", msg.ProviderMessageID)
		assert.Equal(t, uint32(42), msg.ProviderUID)
		assert.Equal(t, "<parent@example.com>", msg.InReplyTo)
		assert.Equal(t, []string{"<root@example.com>", "<parent@example.com>"}, msg.References)
		assert.Equal(t, "<root@example.com>", msg.ThreadID)
		assert.Equal(t, models.Address{Name: "Alice", Email: "alice@example.com"}, msg.From)
		assert.Len(t, msg.To, 2)
		assert.Equal(t, "bob@example.com", msg.To[1].Email)
		assert.Len(t, msg.Cc, 1)
		assert.Equal(t, "Re: Project Update", msg.Subject)
		assert.Contains(t, msg.BodyText, "Sounds good.")
		assert.True(t, msg.SentAt.Equal(time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)))
		assert.False(t, msg.IsRead)
		assert.False(t, msg.IsOutgoing)
		assert.Equal(t, models.MessageStatusNew, msg.Status)
	})

	t.Run("drops messages without Message-ID", func(t *testing.T) {
		body := rawMessage(`From: alice@example.com
Subject: No id
Content-Type: text/plain
`, "hello\r\n")

		msg, err := n.Normalize(testAccount, mailbox.RawMessage{UID: 1, Body: body})
		assert.Nil(t, msg)
		assert.True(t, errors.Is(err, ErrMissingMessageID))
	})

	t.Run("thread root uses its own id", func(t *testing.T) {
		body := rawMessage(`Message-ID: <root@example.com>
From: alice@example.com
Subject: Hello
Content-Type: text/plain
`, "hi\r\n")

		msg, err := n.Normalize(testAccount, mailbox.RawMessage{UID: 1, Body: body})
		require.NoError(t, err)
		assert.Equal(t, "<root@example.com>", msg.ThreadID)
		assert.Empty(t, msg.InReplyTo)
		assert.Empty(t, msg.References)
	})

	t.Run("missing date falls back to internal date", func(t *testing.T) {
		body := rawMessage(`Message-ID: <nodate@example.com>
From: alice@example.com
Content-Type: text/plain
`, "hi\r\n")

		msg, err := n.Normalize(testAccount, mailbox.RawMessage{UID: 1, Body: body, InternalDate: receivedAt})
		require.NoError(t, err)
		assert.True(t, msg.SentAt.Equal(receivedAt))
	})

	t.Run("unparsable date falls back to clock when no internal date", func(t *testing.T) {
		body := rawMessage(`Message-ID: <baddate@example.com>
Date: sometime last week
From: alice@example.com
Content-Type: text/plain
`, "hi\r\n")

		msg, err := n.Normalize(testAccount, mailbox.RawMessage{UID: 1, Body: body})
		require.NoError(t, err)
		assert.True(t, msg.SentAt.Equal(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("seen flag marks message read", func(t *testing.T) {
		body := rawMessage(`Message-ID: <seen@example.com>
From: alice@example.com
Content-Type: text/plain
`, "hi\r\n")

		msg, err := n.Normalize(testAccount, mailbox.RawMessage{UID: 1, Body: body, Flags: []string{mailbox.SeenFlag}})
		require.NoError(t, err)
		assert.True(t, msg.IsRead)
		assert.Equal(t, models.MessageStatusRead, msg.Status)
	})

	t.Run("mail from the account itself is outgoing", func(t *testing.T) {
		body := rawMessage(`Message-ID: <self@example.com>
From: Me <ME@example.com>
To: alice@example.com
Content-Type: text/plain
`, "hi\r\n")

		msg, err := n.Normalize(testAccount, mailbox.RawMessage{UID: 1, Body: body})
		require.NoError(t, err)
		assert.True(t, msg.IsOutgoing)
		assert.True(t, msg.IsRead)
	})

	t.Run("prefers html and keeps the text projection", func(t *testing.T) {
		body := rawMessage(`Message-ID: <multi@example.com>
From: alice@example.com
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="b1"
`, "--b1\r\nContent-Type: text/plain; charset=utf-8\r\n\r\nplain version\r\n"+
			"--b1\r\nContent-Type: text/html; charset=utf-8\r\n\r\n<p>html version</p>\r\n--b1--\r\n")

		msg, err := n.Normalize(testAccount, mailbox.RawMessage{UID: 1, Body: body})
		require.NoError(t, err)
		assert.Contains(t, msg.BodyHTML, "<p>html version</p>")
		assert.Contains(t, msg.BodyText, "plain version")
	})

	t.Run("records attachment metadata", func(t *testing.T) {
		body := rawMessage(`Message-ID: <att@example.com>
From: alice@example.com
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="b2"
`, "--b2\r\nContent-Type: text/plain\r\n\r\nsee attached\r\n"+
			"--b2\r\nContent-Type: application/pdf\r\nContent-Disposition: attachment; filename=\"report.pdf\"\r\n\r\n%PDF-1.4\r\n--b2--\r\n")

		msg, err := n.Normalize(testAccount, mailbox.RawMessage{UID: 1, Body: body})
		require.NoError(t, err)
		require.Len(t, msg.Attachments, 1)
		assert.Equal(t, "report.pdf", msg.Attachments[0].Filename)
		assert.Equal(t, "application/pdf", msg.Attachments[0].MimeType)
		assert.False(t, msg.Attachments[0].IsInline)
	})

	t.Run("nil account is rejected", func(t *testing.T) {
		_, err := n.Normalize(nil, mailbox.RawMessage{})
		assert.Error(t, err)
	})
}
