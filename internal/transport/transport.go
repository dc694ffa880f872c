// Package transport owns the campaign's single authenticated connection to
// the mail relay.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ajayykmr/bulkmailer-go/internal/config"
	"github.com/ajayykmr/bulkmailer-go/internal/message"
)

// ErrSetup marks failures while establishing the relay session (dial, TLS
// upgrade, authentication). Setup failures are fatal to the whole campaign;
// no messages are sent.
var ErrSetup = errors.New("transport: session setup failed")

// Session is one open, authenticated connection to a mail relay. A session
// serves all messages of a single campaign, one Send at a time, and is
// closed exactly once when the campaign ends.
type Session interface {
	// Send hands one fully built message to the relay. It does not retry.
	Send(ctx context.Context, msg *message.Outbound) error
	// Close releases the connection. Safe to call more than once.
	Close() error
}

// Open constructs the session selected by cfg.Mode: "smtp" dials the real
// relay while "mock" simulates delivery for dry runs.
func Open(cfg config.TransportConfig, logger zerolog.Logger) (Session, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "", "smtp":
		return DialSMTP(cfg, logger)
	case "mock":
		return NewMockSession(logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown transport mode %q", ErrSetup, cfg.Mode)
	}
}
