package imap

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/threadsync/internal/mailbox"
	"github.com/vdavid/threadsync/internal/testutil"
)

// defaultMessageUID is the UID of the message the memory backend seeds INBOX with.
const defaultMessageUID = 6

func newTestFetcher(t *testing.T) *Fetcher {
	t.Helper()
	pool := NewPool(WithTLS(false))
	t.Cleanup(pool.Close)
	return NewFetcher(pool, nil)
}

func testCredentials(server *testutil.TestIMAPServer) mailbox.Credentials {
	return mailbox.Credentials{
		Server:   server.Address,
		Username: server.Username(),
		Password: server.Password(),
	}
}

func TestFetcher_FetchSince(t *testing.T) {
	ctx := context.Background()
	server := testutil.NewTestIMAPServer(t)
	sentAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	uid1 := server.AddMessage(t, "<one@example.com>", "One", "alice@example.com", "me@example.com", sentAt)
	uid2 := server.AddMessage(t, "<two@example.com>", "Two", "alice@example.com", "me@example.com", sentAt.Add(time.Minute))
	uid3 := server.AppendRaw(t, "Message-ID: <three@example.com>\nFrom: bob@example.com\nSubject: Three\n\nUnread body\n", nil, sentAt.Add(2*time.Minute))

	fetcher := newTestFetcher(t)
	creds := testCredentials(server)

	t.Run("returns messages after the cursor in UID order", func(t *testing.T) {
		msgs, err := fetcher.FetchSince(ctx, "acc-1", creds, mailbox.Cursor{AfterUID: defaultMessageUID}, 10)
		require.NoError(t, err)
		require.Len(t, msgs, 3)

		assert.Equal(t, []uint32{uid1, uid2, uid3}, []uint32{msgs[0].UID, msgs[1].UID, msgs[2].UID})
		assert.Contains(t, string(msgs[0].Body), "Message-ID: <one@example.com>")
		assert.True(t, msgs[0].HasFlag(mailbox.SeenFlag))
		assert.False(t, msgs[2].HasFlag(mailbox.SeenFlag))
		assert.False(t, msgs[0].InternalDate.IsZero())
	})

	t.Run("returns the oldest messages when capped", func(t *testing.T) {
		msgs, err := fetcher.FetchSince(ctx, "acc-1", creds, mailbox.Cursor{AfterUID: defaultMessageUID}, 2)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, uid1, msgs[0].UID)
		assert.Equal(t, uid2, msgs[1].UID)
	})

	t.Run("returns nothing past the highest UID", func(t *testing.T) {
		msgs, err := fetcher.FetchSince(ctx, "acc-1", creds, mailbox.Cursor{AfterUID: uid3}, 10)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("without a UID returns the whole inbox", func(t *testing.T) {
		msgs, err := fetcher.FetchSince(ctx, "acc-1", creds, mailbox.Cursor{}, 10)
		require.NoError(t, err)
		require.Len(t, msgs, 4)
		assert.Equal(t, uint32(defaultMessageUID), msgs[0].UID)
	})

	t.Run("since cursor drops earlier messages from the same day", func(t *testing.T) {
		cursor := mailbox.Cursor{Since: sentAt.Add(30 * time.Second)}
		msgs, err := fetcher.FetchSince(ctx, "acc-1", creds, cursor, 10)
		require.NoError(t, err)

		uids := make([]uint32, 0, len(msgs))
		for _, msg := range msgs {
			uids = append(uids, msg.UID)
			assert.False(t, msg.InternalDate.Before(cursor.Since))
		}
		assert.Equal(t, []uint32{defaultMessageUID, uid2, uid3}, uids)
	})

	t.Run("since cursor caps after dropping earlier messages", func(t *testing.T) {
		cursor := mailbox.Cursor{Since: sentAt.Add(30 * time.Second)}
		msgs, err := fetcher.FetchSince(ctx, "acc-1", creds, cursor, 2)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, uint32(defaultMessageUID), msgs[0].UID)
		assert.Equal(t, uid2, msgs[1].UID)
	})

	t.Run("does not mark messages as seen", func(t *testing.T) {
		_, err := fetcher.FetchSince(ctx, "acc-1", creds, mailbox.Cursor{AfterUID: uid2}, 10)
		require.NoError(t, err)

		c := server.Connect(t)
		_, err = c.Select("INBOX", true)
		require.NoError(t, err)

		seqSet := new(imap.SeqSet)
		seqSet.AddNum(uid3)
		messages := make(chan *imap.Message, 1)
		require.NoError(t, c.UidFetch(seqSet, []imap.FetchItem{imap.FetchFlags}, messages))
		msg := <-messages
		require.NotNil(t, msg)
		assert.NotContains(t, msg.Flags, imap.SeenFlag)
	})

	t.Run("zero max count returns nothing", func(t *testing.T) {
		msgs, err := fetcher.FetchSince(ctx, "acc-1", creds, mailbox.Cursor{}, 0)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})
}

func TestFetcher_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("rejected login is an authentication error", func(t *testing.T) {
		server := testutil.NewTestIMAPServer(t)
		creds := testCredentials(server)
		creds.Password = "wrong"

		_, err := newTestFetcher(t).FetchSince(ctx, "acc-1", creds, mailbox.Cursor{}, 10)
		require.Error(t, err)
		assert.ErrorIs(t, err, mailbox.ErrAuthentication)
		assert.NotErrorIs(t, err, mailbox.ErrConnection)
	})

	t.Run("unreachable server is a connection error", func(t *testing.T) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := listener.Addr().String()
		require.NoError(t, listener.Close())

		creds := mailbox.Credentials{Server: addr, Username: "u", Password: "p"}
		_, err = newTestFetcher(t).FetchSince(ctx, "acc-1", creds, mailbox.Cursor{}, 10)
		require.Error(t, err)
		assert.ErrorIs(t, err, mailbox.ErrConnection)
	})
}

func TestSelectOldest(t *testing.T) {
	tests := []struct {
		name     string
		uids     []uint32
		afterUID uint32
		max      int
		want     []uint32
	}{
		{"sorts and truncates", []uint32{9, 7, 8}, 0, 2, []uint32{7, 8}},
		{"drops star match below cursor", []uint32{5}, 5, 10, []uint32{}},
		{"keeps strictly greater", []uint32{5, 6, 7}, 5, 10, []uint32{6, 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, selectOldest(tt.uids, tt.afterUID, tt.max))
		})
	}
}
