package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/threadsync/internal/models"
)

func TestParseSyncOptions(t *testing.T) {
	tests := []struct {
		name      string
		max       int
		since     string
		wantMax   int
		wantSince time.Time
		wantErr   bool
	}{
		{name: "no flags", max: 0, since: ""},
		{name: "max only", max: 25, since: "", wantMax: 25},
		{
			name:      "since is a UTC date",
			max:       5,
			since:     "2024-03-01",
			wantMax:   5,
			wantSince: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		{name: "since with time of day", since: "2024-03-01T10:00:00Z", wantErr: true},
		{name: "since in another format", since: "01/03/2024", wantErr: true},
		{name: "negative max", max: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := parseSyncOptions(tt.max, tt.since)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMax, opts.MaxMessages)
			assert.True(t, opts.Since.Equal(tt.wantSince), "since = %v", opts.Since)
		})
	}
}

func TestSyncResultView(t *testing.T) {
	t.Run("failed sync renders its error", func(t *testing.T) {
		result := models.SyncResult{
			AccountID: "acc-1",
			Outcome:   models.SyncOutcomeAuthFailed,
			Err:       errors.New("login rejected"),
		}

		var buf bytes.Buffer
		require.NoError(t, writeJSON(&buf, newSyncResultView(result)))

		var got map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, "acc-1", got["account_id"])
		assert.Equal(t, "auth_failed", got["outcome"])
		assert.Equal(t, 0.0, got["new_message_count"])
		assert.Equal(t, "login rejected", got["error"])
	})

	t.Run("successful sync has no error field", func(t *testing.T) {
		result := models.SyncResult{AccountID: "acc-1", Outcome: models.SyncOutcomeIngested, NewMessageCount: 3}

		var buf bytes.Buffer
		require.NoError(t, writeJSON(&buf, newSyncResultView(result)))

		var got map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, 3.0, got["new_message_count"])
		assert.NotContains(t, got, "error")
		assert.NotContains(t, got, "Err")
	})
}

func TestParseAddresses(t *testing.T) {
	t.Run("parses names and bare addresses", func(t *testing.T) {
		got, err := parseAddresses("Alice <alice@example.com>, bob@example.com")
		require.NoError(t, err)
		assert.Equal(t, []models.Address{
			{Name: "Alice", Email: "alice@example.com"},
			{Email: "bob@example.com"},
		}, got)
	})

	t.Run("empty list means no recipients", func(t *testing.T) {
		got, err := parseAddresses("")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("rejects malformed addresses", func(t *testing.T) {
		_, err := parseAddresses("not an address")
		assert.Error(t, err)
	})
}

func TestRootCommand(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"serve", "sync", "resync", "reply", "conversations", "recompute", "messages", "accounts", "migrate"} {
		assert.True(t, names[want], "missing command %q", want)
	}

	maxFlag := syncCmd.Flags().ShorthandLookup("n")
	require.NotNil(t, maxFlag)
	assert.Equal(t, "max", maxFlag.Name)
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("format"))
}
