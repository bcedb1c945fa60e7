package conversation

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jaytaylor/html2text"
)

// SnippetLength is the maximum snippet length in runes, not counting the ellipsis.
const SnippetLength = 160

// attribution matches the "On <date>, <someone> wrote:" line mail clients put above a quote.
var attribution = regexp.MustCompile(`(?i)^on\s.+\swrote:\s*$`)

// Snippet builds a short preview of a message body. Quoted lines and the
// attribution line above them are dropped and whitespace is collapsed.
// HTML is only used when there is no text body.
func Snippet(text, html string) string {
	if strings.TrimSpace(text) == "" && html != "" {
		if converted, err := html2text.FromString(html, html2text.Options{OmitLinks: true}); err == nil {
			text = converted
		}
	}

	var kept []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, ">") || attribution.MatchString(trimmed) {
			continue
		}
		kept = append(kept, trimmed)
	}

	collapsed := strings.Join(strings.Fields(strings.Join(kept, " ")), " ")
	if utf8.RuneCountInString(collapsed) <= SnippetLength {
		return collapsed
	}

	runes := []rune(collapsed)
	return strings.TrimSpace(string(runes[:SnippetLength])) + "..."
}
