package conversation

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/vdavid/threadsync/internal/models"
)

func TestSnippet(t *testing.T) {
	t.Run("collapses whitespace", func(t *testing.T) {
		assert.Equal(t, "Hello there, how are you?", Snippet("Hello   there,\n\n  how are\tyou?", ""))
	})

	t.Run("drops quoted lines and attribution", func(t *testing.T) {
		text := "Sounds good.\n\nOn Mon, 4 Mar 2024 at 10:00, Alice <alice@example.com> wrote:\n> Can we meet?\n>> Earlier"
		assert.Equal(t, "Sounds good.", Snippet(text, ""))
	})

	t.Run("falls back to html", func(t *testing.T) {
		got := Snippet("", "<html><body><p>Hello <i>world</i></p><p>Second</p></body></html>")
		assert.NotContains(t, got, "<")
		assert.Contains(t, got, "Hello")
		assert.Contains(t, got, "Second")
		assert.NotContains(t, got, "\n")
	})

	t.Run("prefers text over html", func(t *testing.T) {
		assert.Equal(t, "plain", Snippet("plain", "<p>rich</p>"))
	})

	t.Run("truncates long bodies by rune", func(t *testing.T) {
		got := Snippet(strings.Repeat("é", 500), "")
		assert.True(t, strings.HasSuffix(got, "..."))
		assert.Equal(t, SnippetLength, utf8.RuneCountInString(strings.TrimSuffix(got, "...")))
	})

	t.Run("empty body", func(t *testing.T) {
		assert.Equal(t, "", Snippet("", ""))
	})
}

func TestMergeParticipants(t *testing.T) {
	existing := []models.Address{{Email: "alice@example.com"}}

	got := MergeParticipants(existing,
		models.Address{Name: "Alice", Email: "ALICE@example.com"},
		models.Address{Name: "Bob", Email: "bob@example.com"},
		models.Address{Email: ""},
		models.Address{Email: "bob@example.com"},
	)

	assert.Equal(t, []models.Address{
		{Name: "Alice", Email: "alice@example.com"},
		{Name: "Bob", Email: "bob@example.com"},
	}, got)
	assert.Equal(t, "", existing[0].Name, "input must not be modified")
}
