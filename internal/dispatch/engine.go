// Package dispatch drives a campaign's recipient list to completion,
// isolating each recipient's delivery failures from the others.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajayykmr/bulkmailer-go/internal/events"
	"github.com/ajayykmr/bulkmailer-go/internal/message"
	"github.com/ajayykmr/bulkmailer-go/internal/recipients"
	"github.com/ajayykmr/bulkmailer-go/internal/transport"
)

// Config contains the runtime settings the engine relies on to orchestrate
// per-recipient attempts.
type Config struct {
	// MaxAttempts is the total attempt budget per recipient, initial try
	// included.
	MaxAttempts int
	// RetryBackoff is the fixed pause between a failed attempt and the next
	// retry. No growth; the backoff is flat.
	RetryBackoff time.Duration
	// SendPacing is the fixed pause after a successful send before the next
	// recipient, a rate-limiting courtesy to the relay.
	SendPacing time.Duration
}

// Builder produces one outbound message per recipient from the shared
// campaign inputs.
type Builder interface {
	Build(recipient recipients.Address) (*message.Outbound, error)
}

// Dependencies collects the runtime collaborators required by the engine.
type Dependencies struct {
	Builder Builder
	Session transport.Session
	Sink    events.Sink
	Logger  zerolog.Logger
	// Sleep blocks for the supplied duration, returning false when the
	// context was cancelled first. Defaults to a timer-based wait; tests
	// inject a recorder.
	Sleep func(ctx context.Context, d time.Duration) bool
	Now   func() time.Time
}

// Outcome is the terminal result for one recipient, produced exactly once.
type Outcome struct {
	Recipient recipients.Address
	Sent      bool
	Attempts  int
}

// attemptResult classifies one build+send attempt. The retry loop is a plain
// state machine over these values; no error unwinding drives control flow.
type attemptResult int

const (
	attemptSent attemptResult = iota
	attemptRetryable
	attemptFatal
)

// Engine sends one campaign sequentially: one recipient at a time, one send
// in flight at most, with a bounded retry budget per recipient.
type Engine struct {
	cfg     Config
	builder Builder
	session transport.Session
	sink    events.Sink
	logger  zerolog.Logger
	sleep   func(ctx context.Context, d time.Duration) bool
	now     func() time.Time
}

// NewEngine constructs an Engine using the supplied configuration and
// collaborators.
func NewEngine(cfg Config, deps Dependencies) (*Engine, error) {
	if cfg.MaxAttempts < 1 {
		return nil, errors.New("dispatch: max attempts must be >= 1")
	}
	if cfg.RetryBackoff < 0 || cfg.SendPacing < 0 {
		return nil, errors.New("dispatch: pauses cannot be negative")
	}
	if deps.Builder == nil {
		return nil, errors.New("dispatch: builder dependency is required")
	}
	if deps.Session == nil {
		return nil, errors.New("dispatch: session dependency is required")
	}
	if deps.Sink == nil {
		return nil, errors.New("dispatch: sink dependency is required")
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	logger = logger.With().Str("component", "dispatch_engine").Logger()

	sleepFn := deps.Sleep
	if sleepFn == nil {
		sleepFn = wait
	}
	nowFn := deps.Now
	if nowFn == nil {
		nowFn = time.Now
	}

	return &Engine{
		cfg:     cfg,
		builder: deps.Builder,
		session: deps.Session,
		sink:    deps.Sink,
		logger:  logger,
		sleep:   sleepFn,
		now:     nowFn,
	}, nil
}

// Run processes the recipient list in order and returns one Outcome per
// resolved recipient. A recipient that exhausts its attempt budget is
// recorded as failed and never aborts the campaign; only context
// cancellation and other unexpected conditions do. The caller owns the
// session and closes it on every exit path.
func (e *Engine) Run(ctx context.Context, list []recipients.Address) ([]Outcome, error) {
	total := len(list)
	outcomes := make([]Outcome, 0, total)
	sent := 0

	for _, recipient := range list {
		outcome, err := e.dispatch(ctx, recipient, total, &sent)
		if outcome.Sent || err == nil {
			outcomes = append(outcomes, outcome)
		}
		if err != nil {
			return outcomes, err
		}
	}

	e.sink.Done()
	e.logger.Info().
		Int("recipients", total).
		Int("sent", sent).
		Msg("campaign completed")

	return outcomes, nil
}

func (e *Engine) dispatch(ctx context.Context, recipient recipients.Address, total int, sent *int) (Outcome, error) {
	attempt := 1
	for {
		start := e.now()
		result, err := e.attempt(ctx, recipient)
		duration := e.now().Sub(start)

		logEvent := e.logger.With().
			Str("recipient", recipient.String()).
			Int("attempt", attempt).
			Dur("duration", duration).
			Logger()

		switch result {
		case attemptSent:
			*sent++
			logEvent.Info().Msg("email sent successfully")
			e.sink.Info(fmt.Sprintf("Sent email to: %s", recipient))
			e.sink.Progress(float64(*sent) / float64(total))
			if !e.sleep(ctx, e.cfg.SendPacing) {
				return Outcome{Recipient: recipient, Sent: true, Attempts: attempt}, ctx.Err()
			}
			return Outcome{Recipient: recipient, Sent: true, Attempts: attempt}, nil

		case attemptFatal:
			logEvent.Error().Err(err).Msg("aborting campaign")
			return Outcome{Recipient: recipient, Attempts: attempt}, err

		default:
			logEvent.Warn().Err(err).Msg("failed to send email")
			if attempt >= e.cfg.MaxAttempts {
				logEvent.Error().Msg("max retries reached")
				e.sink.Info(fmt.Sprintf("Failed to send email to %s after maximum retries", recipient))
				return Outcome{Recipient: recipient, Attempts: attempt}, nil
			}

			remaining := e.cfg.MaxAttempts - attempt
			e.sink.Info(fmt.Sprintf("Retrying email to %s... (%d attempts remaining)", recipient, remaining))
			if !e.sleep(ctx, e.cfg.RetryBackoff) {
				return Outcome{Recipient: recipient, Attempts: attempt}, ctx.Err()
			}
			attempt++
		}
	}
}

// attempt performs one build+send cycle. Build failures and transport
// rejections are both retryable; they consume the same attempt budget.
// Context cancellation is the only fatal condition at this level.
func (e *Engine) attempt(ctx context.Context, recipient recipients.Address) (attemptResult, error) {
	if err := ctx.Err(); err != nil {
		return attemptFatal, err
	}

	msg, err := e.builder.Build(recipient)
	if err != nil {
		return attemptRetryable, fmt.Errorf("build message: %w", err)
	}

	if err := e.session.Send(ctx, msg); err != nil {
		if ctx.Err() != nil {
			return attemptFatal, ctx.Err()
		}
		return attemptRetryable, fmt.Errorf("send message: %w", err)
	}

	return attemptSent, nil
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
