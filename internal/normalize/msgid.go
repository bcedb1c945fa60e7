package normalize

import (
	"regexp"
	"strings"
)

var msgIDPattern = regexp.MustCompile(`<[^<>]+>`)

// CanonicalMessageID returns id in its angle-bracketed form, or "" if id is blank.
func CanonicalMessageID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	var inner string
	if m := msgIDPattern.FindString(id); m != "" {
		inner = strings.TrimSpace(m[1 : len(m)-1])
	} else {
		// Some mailers omit the brackets.
		inner = strings.Trim(strings.Fields(id)[0], "<>")
	}
	if inner == "" {
		return ""
	}
	return "<" + inner + ">"
}

// ParseMessageIDList parses a References or In-Reply-To header value into
// bracketed Message-IDs, preserving header order and dropping duplicates.
func ParseMessageIDList(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	matches := msgIDPattern.FindAllString(value, -1)
	if len(matches) == 0 {
		matches = strings.Fields(value)
	}

	seen := make(map[string]struct{}, len(matches))
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		id := CanonicalMessageID(m)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}
	return ids
}

// ResolveThreadID picks the thread identifier for a message: the first
// reference (the thread root), else the message it replies to, else itself.
func ResolveThreadID(references []string, inReplyTo, providerMessageID string) string {
	if len(references) > 0 {
		return references[0]
	}
	if inReplyTo != "" {
		return inReplyTo
	}
	return providerMessageID
}
