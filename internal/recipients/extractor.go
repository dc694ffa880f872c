// Package recipients turns tabular CSV input into the ordered, validated
// recipient list a campaign works through.
package recipients

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"reflect"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// ErrNoEmailColumn is returned when the CSV header row has no column whose
	// name contains "email". The campaign cannot start without one.
	ErrNoEmailColumn = errors.New("recipients: no email column found")
	// ErrNoValidRecipients signals that extraction produced zero valid
	// addresses. Extraction itself tolerates an empty result; callers enforce
	// this at the campaign boundary.
	ErrNoValidRecipients = errors.New("recipients: no valid recipients found")
)

var addressPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// Address is a recipient email address that passed validation.
type Address string

// String implements fmt.Stringer.
func (a Address) String() string { return string(a) }

// IsValidAddress reports whether the supplied string matches the accepted
// address grammar: an ASCII local part, an @, and a dot-separated domain whose
// final label has at least two letters.
func IsValidAddress(value string) bool {
	return addressPattern.MatchString(value)
}

// Extractor reads CSV input and produces the ordered list of valid recipient
// addresses, skipping invalid rows with a logged warning.
type Extractor struct {
	logger zerolog.Logger
}

// NewExtractor constructs an Extractor.
func NewExtractor(logger zerolog.Logger) *Extractor {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &Extractor{
		logger: logger.With().Str("component", "recipient_extractor").Logger(),
	}
}

// Extract parses CSV text with a header row and returns the valid addresses
// from the first header column containing "email" (case-insensitive), in
// input row order. Rows holding an invalid address are skipped with a
// warning; the returned slice may be empty. A missing email column aborts
// extraction with ErrNoEmailColumn.
func (e *Extractor) Extract(r io.Reader) ([]Address, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoEmailColumn
		}
		return nil, fmt.Errorf("recipients: read header: %w", err)
	}

	emailIdx := -1
	for idx, column := range header {
		if strings.Contains(strings.ToLower(column), "email") {
			emailIdx = idx
			break
		}
	}
	if emailIdx < 0 {
		return nil, ErrNoEmailColumn
	}

	var out []Address
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("recipients: read row: %w", err)
		}
		if emailIdx >= len(row) {
			e.logger.Warn().Msg("row has no value in the email column; skipping")
			continue
		}

		value := strings.TrimSpace(row[emailIdx])
		if !IsValidAddress(value) {
			e.logger.Warn().Str("value", value).Msg("invalid email address; skipping row")
			continue
		}
		out = append(out, Address(value))
	}

	e.logger.Debug().Int("count", len(out)).Msg("extraction finished")
	return out, nil
}
