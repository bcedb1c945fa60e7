package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalMessageID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"keeps bracketed id", "<abc@example.com>", "<abc@example.com>"},
		{"adds missing brackets", "abc@example.com", "<abc@example.com>"},
		{"trims whitespace", "  <abc@example.com>\r\n", "<abc@example.com>"},
		{"takes first of several", "<a@x> <b@x>", "<a@x>"},
		{"blank is empty", "   ", ""},
		{"empty brackets are empty", "<>", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalMessageID(tt.input))
		})
	}
}

func TestParseMessageIDList(t *testing.T) {
	t.Run("parses folded references in order", func(t *testing.T) {
		got := ParseMessageIDList("<root@x>\r\n <second@x> <third@x>")
		assert.Equal(t, []string{"<root@x>", "<second@x>", "<third@x>"}, got)
	})

	t.Run("drops duplicates", func(t *testing.T) {
		got := ParseMessageIDList("<a@x> <b@x> <a@x>")
		assert.Equal(t, []string{"<a@x>", "<b@x>"}, got)
	})

	t.Run("accepts ids without brackets", func(t *testing.T) {
		got := ParseMessageIDList("a@x b@x")
		assert.Equal(t, []string{"<a@x>", "<b@x>"}, got)
	})

	t.Run("returns nil for empty header", func(t *testing.T) {
		assert.Nil(t, ParseMessageIDList(""))
	})
}

func TestResolveThreadID(t *testing.T) {
	t.Run("uses first reference", func(t *testing.T) {
		got := ResolveThreadID([]string{"<root@x>", "<mid@x>"}, "<mid@x>", "<self@x>")
		assert.Equal(t, "<root@x>", got)
	})

	t.Run("falls back to in-reply-to", func(t *testing.T) {
		assert.Equal(t, "<parent@x>", ResolveThreadID(nil, "<parent@x>", "<self@x>"))
	})

	t.Run("falls back to own id", func(t *testing.T) {
		assert.Equal(t, "<self@x>", ResolveThreadID(nil, "", "<self@x>"))
	})
}
