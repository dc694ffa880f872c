// Package message assembles the per-recipient MIME messages a campaign sends.
package message

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ajayykmr/bulkmailer-go/internal/recipients"
)

const base64LineLength = 76

// ErrEmptyAttachment is returned when an attachment payload holds no bytes
// and therefore cannot be encoded into a message part.
var ErrEmptyAttachment = errors.New("message: attachment payload is empty")

// Attachment pairs an original file name with its raw payload. Attachments
// are owned by the campaign and shared read-only across every recipient
// build; they must not be mutated after the campaign starts.
type Attachment struct {
	FileName string
	Data     []byte
}

// Outbound is one fully assembled message for one recipient. Raw holds the
// complete wire form, ready to hand to the transport.
type Outbound struct {
	From      string
	To        recipients.Address
	Subject   string
	MessageID string
	Raw       []byte
}

// Option customises the builder at construction time.
type Option func(*Builder)

// WithClock overrides the clock used for Date headers, useful for
// deterministic unit tests.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// WithIDGenerator swaps the Message-Id generator.
func WithIDGenerator(newID func() string) Option {
	return func(b *Builder) {
		if newID != nil {
			b.newID = newID
		}
	}
}

// Builder produces one Outbound per recipient from the shared campaign
// inputs. Building is deterministic for fixed clock and ID generator.
type Builder struct {
	logger      zerolog.Logger
	from        string
	subject     string
	htmlBody    string
	attachments []Attachment
	now         func() time.Time
	newID       func() string
}

// NewBuilder constructs a Builder for one campaign.
func NewBuilder(from, subject, htmlBody string, attachments []Attachment, logger zerolog.Logger, opts ...Option) (*Builder, error) {
	if strings.TrimSpace(from) == "" {
		return nil, errors.New("message: sender address is required")
	}
	if strings.TrimSpace(subject) == "" {
		return nil, errors.New("message: subject is required")
	}

	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	b := &Builder{
		logger:      logger.With().Str("component", "message_builder").Logger(),
		from:        strings.TrimSpace(from),
		subject:     subject,
		htmlBody:    htmlBody,
		attachments: attachments,
		now:         time.Now,
		newID:       uuid.NewString,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	return b, nil
}

// Build assembles the multipart message for a single recipient: one HTML
// body part followed by one base64 part per attachment, each labelled with
// its original file name and an attachment disposition.
func (b *Builder) Build(recipient recipients.Address) (*Outbound, error) {
	if recipient == "" {
		return nil, errors.New("message: recipient is required")
	}

	messageID := fmt.Sprintf("<%s@%s>", b.newID(), domainOf(b.from))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	writeHeader(&buf, "From", b.from)
	writeHeader(&buf, "To", recipient.String())
	writeHeader(&buf, "Subject", b.subject)
	writeHeader(&buf, "Date", b.now().UTC().Format(time.RFC1123Z))
	writeHeader(&buf, "Message-Id", messageID)
	writeHeader(&buf, "MIME-Version", "1.0")
	writeHeader(&buf, "Content-Type", fmt.Sprintf("multipart/mixed; boundary=%q", mw.Boundary()))
	buf.WriteString("\r\n")

	htmlHeader := textproto.MIMEHeader{}
	htmlHeader.Set("Content-Type", "text/html; charset=UTF-8")
	htmlHeader.Set("Content-Transfer-Encoding", "8bit")
	part, err := mw.CreatePart(htmlHeader)
	if err != nil {
		return nil, fmt.Errorf("message: create html part: %w", err)
	}
	if _, err := part.Write([]byte(normalizeBody(b.htmlBody))); err != nil {
		return nil, fmt.Errorf("message: write html part: %w", err)
	}

	for _, att := range b.attachments {
		if err := writeAttachment(mw, att); err != nil {
			b.logger.Error().Str("file", att.FileName).Err(err).Msg("failed to encode attachment")
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("message: finalize multipart body: %w", err)
	}

	b.logger.Debug().
		Str("recipient", recipient.String()).
		Str("message_id", messageID).
		Int("attachments", len(b.attachments)).
		Msg("message built")

	return &Outbound{
		From:      b.from,
		To:        recipient,
		Subject:   b.subject,
		MessageID: messageID,
		Raw:       buf.Bytes(),
	}, nil
}

func writeAttachment(mw *multipart.Writer, att Attachment) error {
	if len(att.Data) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyAttachment, att.FileName)
	}

	name := sanitizeHeaderValue(att.FileName)
	header := textproto.MIMEHeader{}
	header.Set("Content-Type", contentTypeFor(name, att.Data))
	header.Set("Content-Transfer-Encoding", "base64")
	header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))

	part, err := mw.CreatePart(header)
	if err != nil {
		return fmt.Errorf("message: create attachment part: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(att.Data)
	for len(encoded) > 0 {
		n := base64LineLength
		if n > len(encoded) {
			n = len(encoded)
		}
		if _, err := part.Write([]byte(encoded[:n])); err != nil {
			return fmt.Errorf("message: write attachment part: %w", err)
		}
		if _, err := part.Write([]byte("\r\n")); err != nil {
			return fmt.Errorf("message: write attachment part: %w", err)
		}
		encoded = encoded[n:]
	}

	return nil
}

// contentTypeFor derives the part type from the file extension first and
// falls back to sniffing the payload, so a PDF is never mislabelled as an
// image just because campaigns usually attach images.
func contentTypeFor(fileName string, data []byte) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(fileName))); ct != "" {
		return ct
	}
	if ct := http.DetectContentType(data); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	buf.WriteString(key)
	buf.WriteString(": ")
	buf.WriteString(sanitizeHeaderValue(value))
	buf.WriteString("\r\n")
}

func sanitizeHeaderValue(value string) string {
	clean := strings.ReplaceAll(value, "\r", " ")
	clean = strings.ReplaceAll(clean, "\n", " ")
	return strings.TrimSpace(clean)
}

func normalizeBody(body string) string {
	if body == "" {
		return ""
	}
	normalized := strings.ReplaceAll(body, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	return strings.ReplaceAll(normalized, "\n", "\r\n")
}

func domainOf(address string) string {
	if at := strings.LastIndex(address, "@"); at >= 0 && at+1 < len(address) {
		return address[at+1:]
	}
	return "localhost"
}
