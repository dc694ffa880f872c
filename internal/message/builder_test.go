package message_test

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajayykmr/bulkmailer-go/internal/message"
)

func fixedClock() time.Time {
	return time.Date(2024, time.March, 1, 10, 30, 0, 0, time.UTC)
}

func fixedID() string { return "deadbeef-0000-0000-0000-000000000001" }

func newTestBuilder(t *testing.T, attachments []message.Attachment) *message.Builder {
	t.Helper()

	builder, err := message.NewBuilder(
		"sender@example.com",
		"Greetings",
		"<p>Hello</p>\n<p>Bye</p>",
		attachments,
		zerolog.New(io.Discard),
		message.WithClock(fixedClock),
		message.WithIDGenerator(fixedID),
	)
	if err != nil {
		t.Fatalf("unexpected error creating builder: %v", err)
	}
	return builder
}

func TestNewBuilderValidation(t *testing.T) {
	logger := zerolog.New(io.Discard)

	if _, err := message.NewBuilder("", "Subject", "body", nil, logger); err == nil {
		t.Fatal("expected error for missing sender")
	}
	if _, err := message.NewBuilder("sender@example.com", "  ", "body", nil, logger); err == nil {
		t.Fatal("expected error for missing subject")
	}
}

func TestBuildHeadersAndHTMLPart(t *testing.T) {
	builder := newTestBuilder(t, nil)

	out, err := builder.Build("a@x.com")
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	if out.From != "sender@example.com" || out.To != "a@x.com" {
		t.Fatalf("unexpected envelope: %+v", out)
	}

	parsed, err := mail.ReadMessage(bytes.NewReader(out.Raw))
	if err != nil {
		t.Fatalf("message does not parse: %v", err)
	}
	if got := parsed.Header.Get("To"); got != "a@x.com" {
		t.Fatalf("unexpected To header: %q", got)
	}
	if got := parsed.Header.Get("Subject"); got != "Greetings" {
		t.Fatalf("unexpected Subject header: %q", got)
	}
	if got := parsed.Header.Get("Message-Id"); got != "<deadbeef-0000-0000-0000-000000000001@example.com>" {
		t.Fatalf("unexpected Message-Id header: %q", got)
	}

	mediaType, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/mixed" {
		t.Fatalf("expected multipart/mixed, got %q (%v)", mediaType, err)
	}

	mr := multipart.NewReader(parsed.Body, params["boundary"])
	part, err := mr.NextPart()
	if err != nil {
		t.Fatalf("expected html part: %v", err)
	}
	if ct := part.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("expected html content type, got %q", ct)
	}
	body, _ := io.ReadAll(part)
	if got := string(body); got != "<p>Hello</p>\r\n<p>Bye</p>" {
		t.Fatalf("unexpected html body: %q", got)
	}
	if _, err := mr.NextPart(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected exactly one part, got %v", err)
	}
}

func TestBuildAttachmentParts(t *testing.T) {
	payload := []byte("%PDF-1.4 fake document body")
	builder := newTestBuilder(t, []message.Attachment{
		{FileName: "report.pdf", Data: payload},
		{FileName: "logo.png", Data: []byte{0x89, 'P', 'N', 'G', 0, 0, 0, 0}},
	})

	out, err := builder.Build("a@x.com")
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}

	parsed, err := mail.ReadMessage(bytes.NewReader(out.Raw))
	if err != nil {
		t.Fatalf("message does not parse: %v", err)
	}
	_, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	if err != nil {
		t.Fatalf("content type does not parse: %v", err)
	}

	mr := multipart.NewReader(parsed.Body, params["boundary"])
	if _, err := mr.NextPart(); err != nil {
		t.Fatalf("expected html part: %v", err)
	}

	pdf, err := mr.NextPart()
	if err != nil {
		t.Fatalf("expected pdf part: %v", err)
	}
	if ct := pdf.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("expected application/pdf derived from extension, got %q", ct)
	}
	disposition, dparams, err := mime.ParseMediaType(pdf.Header.Get("Content-Disposition"))
	if err != nil || disposition != "attachment" {
		t.Fatalf("expected attachment disposition, got %q (%v)", disposition, err)
	}
	if dparams["filename"] != "report.pdf" {
		t.Fatalf("expected original file name, got %q", dparams["filename"])
	}

	encoded, _ := io.ReadAll(pdf)
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(string(encoded), "\r\n", ""))
	if err != nil {
		t.Fatalf("attachment is not valid base64: %v", err)
	}
	if !bytes.Equal(decoded, payload) {
		t.Fatalf("attachment payload round trip failed")
	}

	png, err := mr.NextPart()
	if err != nil {
		t.Fatalf("expected png part: %v", err)
	}
	if ct := png.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("expected image/png, got %q", ct)
	}
}

func TestBuildEmptyAttachmentFails(t *testing.T) {
	builder := newTestBuilder(t, []message.Attachment{
		{FileName: "broken.png", Data: nil},
	})

	if _, err := builder.Build("a@x.com"); !errors.Is(err, message.ErrEmptyAttachment) {
		t.Fatalf("expected ErrEmptyAttachment, got %v", err)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	builder := newTestBuilder(t, []message.Attachment{
		{FileName: "report.pdf", Data: []byte("payload")},
	})

	first, err := builder.Build("a@x.com")
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	second, err := builder.Build("a@x.com")
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}

	firstBody := stripBoundary(t, first.Raw)
	secondBody := stripBoundary(t, second.Raw)
	if firstBody != secondBody {
		t.Fatal("expected repeated builds to produce identical content")
	}
}

// stripBoundary removes the randomly generated multipart boundary so two
// builds can be compared structurally.
func stripBoundary(t *testing.T, raw []byte) string {
	t.Helper()

	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("message does not parse: %v", err)
	}
	_, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	if err != nil {
		t.Fatalf("content type does not parse: %v", err)
	}
	body, _ := io.ReadAll(parsed.Body)
	return strings.ReplaceAll(string(body), params["boundary"], "")
}
