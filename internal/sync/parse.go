package sync

import (
	"bytes"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/Prajwalprakash3722/imapCleanup/internal/model"
)

// fallback layouts for Date headers the RFC 5322 parser chokes on.
// Real mail contains every one of these.
var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 06 15:04:05 -0700",
	"2006-01-02 15:04:05 -0700",
}

// ParseMessage turns a raw header block into a message record. It never
// fails: any field that cannot be parsed is left empty (or nil for the
// date), and the raw header block is always retained for re-parsing.
func ParseMessage(uid uint32, header []byte, size int64) model.Message {
	m := model.Message{
		UID:        uid,
		SizeBytes:  size,
		HeadersRaw: string(header),
	}

	entity, err := message.Read(bytes.NewReader(header))
	if entity == nil {
		// Completely unreadable header block. Keep the raw bytes and
		// move on; the record is still insertable and queryable.
		return m
	}
	_ = err // unknown charsets degrade individual fields below

	h := mail.Header{Header: entity.Header}

	m.SenderRaw = headerText(h, "From")
	m.RecipientRaw = headerText(h, "To")
	m.DateRaw = h.Get("Date")

	if subject, err := h.Subject(); err == nil {
		m.Subject = subject
	} else {
		m.Subject = h.Get("Subject")
	}

	if id, err := h.MessageID(); err == nil && id != "" {
		m.MessageID = id
	} else {
		m.MessageID = strings.Trim(strings.TrimSpace(h.Get("Message-Id")), "<>")
	}

	if addrs, err := h.AddressList("From"); err == nil && len(addrs) > 0 {
		m.SenderEmail = strings.ToLower(strings.TrimSpace(addrs[0].Address))
		m.SenderName = strings.TrimSpace(addrs[0].Name)
	}

	if t, err := h.Date(); err == nil && !t.IsZero() {
		utc := t.UTC()
		m.DateParsed = &utc
	} else if t, ok := parseDateFallback(m.DateRaw); ok {
		m.DateParsed = &t
	}

	return m
}

// headerText returns the decoded text of a header field, falling back to
// the raw value when RFC 2047 decoding fails.
func headerText(h mail.Header, key string) string {
	if text, err := h.Text(key); err == nil {
		return text
	}
	return h.Get(key)
}

// parseDateFallback tries the layouts broken mailers actually emit.
// Trailing comments like "(UTC)" are stripped first.
func parseDateFallback(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	if i := strings.Index(s, "("); i > 0 {
		s = strings.TrimSpace(s[:i])
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
