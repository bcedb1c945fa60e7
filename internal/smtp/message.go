package smtp

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"github.com/vdavid/threadsync/internal/mailbox"
	"github.com/vdavid/threadsync/internal/models"
)

// buildMessage renders out as an RFC 5322 message with a fresh Message-ID.
// It returns the rendered bytes and the angle-bracketed Message-ID.
func buildMessage(out mailbox.OutgoingMail, date time.Time) ([]byte, string, error) {
	var h mail.Header
	h.SetDate(date)
	h.SetAddressList("From", toMailAddresses([]models.Address{out.From}))
	h.SetAddressList("To", toMailAddresses(out.To))
	if len(out.Cc) > 0 {
		h.SetAddressList("Cc", toMailAddresses(out.Cc))
	}
	h.SetSubject(out.Subject)

	messageID := uuid.NewString() + "@" + domainOf(out.From.Email)
	h.SetMessageID(messageID)

	if out.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{stripBrackets(out.InReplyTo)})
	}
	if len(out.References) > 0 {
		refs := make([]string, 0, len(out.References))
		for _, ref := range out.References {
			refs = append(refs, stripBrackets(ref))
		}
		h.SetMsgIDList("References", refs)
	}

	var buf bytes.Buffer
	if err := writeBody(&buf, h, out.BodyText, out.BodyHTML); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "<" + messageID + ">", nil
}

// writeBody writes a single text part, or a multipart/alternative with text
// and HTML when there is HTML.
func writeBody(w io.Writer, h mail.Header, text, html string) error {
	if html == "" {
		h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
		body, err := mail.CreateSingleInlineWriter(w, h)
		if err != nil {
			return fmt.Errorf("failed to create message writer: %w", err)
		}
		if _, err := io.WriteString(body, text); err != nil {
			return fmt.Errorf("failed to write body: %w", err)
		}
		return body.Close()
	}

	inline, err := mail.CreateInlineWriter(w, h)
	if err != nil {
		return fmt.Errorf("failed to create message writer: %w", err)
	}
	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain", text},
		{"text/html", html},
	}
	for _, part := range parts {
		var ph mail.InlineHeader
		ph.SetContentType(part.contentType, map[string]string{"charset": "utf-8"})
		pw, err := inline.CreatePart(ph)
		if err != nil {
			return fmt.Errorf("failed to create %s part: %w", part.contentType, err)
		}
		if _, err := io.WriteString(pw, part.content); err != nil {
			return fmt.Errorf("failed to write %s part: %w", part.contentType, err)
		}
		if err := pw.Close(); err != nil {
			return err
		}
	}
	return inline.Close()
}

func toMailAddresses(addrs []models.Address) []*mail.Address {
	result := make([]*mail.Address, 0, len(addrs))
	for _, a := range addrs {
		result = append(result, &mail.Address{Name: a.Name, Address: a.Email})
	}
	return result
}

func stripBrackets(id string) string {
	return strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(id), "<"), ">")
}

func domainOf(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 && i < len(email)-1 {
		return email[i+1:]
	}
	return "localhost"
}

// envelopeRecipients lists every address the message is delivered to,
// including Bcc, without duplicates.
func envelopeRecipients(out mailbox.OutgoingMail) []string {
	seen := make(map[string]struct{})
	var rcpts []string
	for _, list := range [][]models.Address{out.To, out.Cc, out.Bcc} {
		for _, a := range list {
			key := strings.ToLower(a.Email)
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			rcpts = append(rcpts, a.Email)
		}
	}
	return rcpts
}
