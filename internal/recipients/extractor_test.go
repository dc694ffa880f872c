package recipients_test

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ajayykmr/bulkmailer-go/internal/recipients"
)

func TestIsValidAddress(t *testing.T) {
	tests := []struct {
		value string
		valid bool
	}{
		{"a@x.com", true},
		{"user.name+tag@sub.example.co", true},
		{"USER_99%x@example.org", true},
		{"bad", false},
		{"no-at.example.com", false},
		{"user@domain", false},
		{"user@domain.c", false},
		{"user@domain.123", false},
		{"", false},
		{"two@@example.com", false},
	}

	for _, tc := range tests {
		if got := recipients.IsValidAddress(tc.value); got != tc.valid {
			t.Errorf("IsValidAddress(%q) = %v, want %v", tc.value, got, tc.valid)
		}
	}
}

func TestExtractPreservesOrderAndSkipsInvalid(t *testing.T) {
	input := strings.Join([]string{
		"Name,Email Address",
		"Alice,a@x.com",
		"Broken,bad",
		"Bob, b@y.com ",
		"Carol,c@z.com",
	}, "\n")

	extractor := recipients.NewExtractor(zerolog.New(io.Discard))
	got, err := extractor.Extract(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []recipients.Address{"a@x.com", "b@y.com", "c@z.com"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v at position %d, got %v", want[i], i, got[i])
		}
	}
}

func TestExtractColumnDetection(t *testing.T) {
	// First header containing "email" wins, case-insensitively.
	input := strings.Join([]string{
		"Name,Contact EMAIL,Backup Email",
		"Alice,first@x.com,second@y.com",
	}, "\n")

	extractor := recipients.NewExtractor(zerolog.New(io.Discard))
	got, err := extractor.Extract(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != "first@x.com" {
		t.Fatalf("expected first email column to win, got %v", got)
	}
}

func TestExtractNoEmailColumn(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no matching header", "Name,Phone\nAlice,123"},
		{"empty input", ""},
	}

	extractor := recipients.NewExtractor(zerolog.New(io.Discard))
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if _, err := extractor.Extract(strings.NewReader(tc.input)); !errors.Is(err, recipients.ErrNoEmailColumn) {
				t.Fatalf("expected ErrNoEmailColumn, got %v", err)
			}
		})
	}
}

func TestExtractEmptyResultIsNotAnError(t *testing.T) {
	input := "Email\nbad\nworse"

	extractor := recipients.NewExtractor(zerolog.New(io.Discard))
	got, err := extractor.Extract(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}

func TestExtractShortRows(t *testing.T) {
	input := strings.Join([]string{
		"Name,Email",
		"OnlyName",
		"Bob,b@y.com",
	}, "\n")

	extractor := recipients.NewExtractor(zerolog.New(io.Discard))
	got, err := extractor.Extract(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != "b@y.com" {
		t.Fatalf("expected short rows to be skipped, got %v", got)
	}
}
