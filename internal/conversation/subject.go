package conversation

import (
	"regexp"
	"strings"
)

// replyPrefix matches one leading "Re:", "Fwd:" or "Fw:", optionally with a
// bracketed counter such as "Re[2]:".
var replyPrefix = regexp.MustCompile(`(?i)^\s*(re|fwd?)\s*(\[\d+\]|\(\d+\))?\s*:\s*`)

// NormalizeSubject strips every leading reply/forward prefix, so
// "Re: Re[2]: Hello" becomes "Hello".
func NormalizeSubject(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		loc := replyPrefix.FindStringIndex(s)
		if loc == nil {
			return s
		}
		s = strings.TrimSpace(s[loc[1]:])
	}
}

// HasReplyPrefix reports whether subject already starts with "Re:".
func HasReplyPrefix(subject string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(subject)), "re:")
}

// ReplySubject returns subject prefixed with "Re: " unless it already is.
func ReplySubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if HasReplyPrefix(subject) {
		return subject
	}
	return "Re: " + subject
}
