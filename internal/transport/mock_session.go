package transport

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajayykmr/bulkmailer-go/internal/message"
)

// Scenario enumerates the supported mock behaviours. The default scenario is
// success unless overridden per recipient.
type Scenario string

const (
	ScenarioSuccess Scenario = "success"
	ScenarioReject  Scenario = "reject"
	ScenarioTimeout Scenario = "timeout"
)

// ErrSessionClosed is returned when Send is called after Close.
var ErrSessionClosed = errors.New("transport: session is closed")

// MockOption customizes the behaviour of the mock session at construction
// time.
type MockOption func(*MockSession)

// WithDefaultScenario configures the behaviour applied to recipients without
// an explicit scenario.
func WithDefaultScenario(s Scenario) MockOption {
	return func(m *MockSession) {
		m.defaultScenario = s
	}
}

// WithScenarioFor scripts the behaviour for one recipient address.
func WithScenarioFor(recipient string, s Scenario) MockOption {
	return func(m *MockSession) {
		m.scenarios[strings.ToLower(strings.TrimSpace(recipient))] = s
	}
}

// WithFailuresBeforeSuccess makes the first n sends to each recipient fail
// with a rejection before succeeding, which exercises retry handling.
func WithFailuresBeforeSuccess(n int) MockOption {
	return func(m *MockSession) {
		if n >= 0 {
			m.failuresBeforeSuccess = n
		}
	}
}

// WithLatency adds a fixed delay to every simulated send.
func WithLatency(d time.Duration) MockOption {
	return func(m *MockSession) {
		if d >= 0 {
			m.latency = d
		}
	}
}

// MockSession implements Session without touching the network. It records
// every delivered message so dry runs and tests can inspect the traffic.
type MockSession struct {
	logger                zerolog.Logger
	defaultScenario       Scenario
	scenarios             map[string]Scenario
	failuresBeforeSuccess int
	latency               time.Duration

	mu       sync.Mutex
	attempts map[string]int
	sent     []*message.Outbound
	closed   bool
}

// NewMockSession constructs a mock session that accepts every message by
// default.
func NewMockSession(logger zerolog.Logger, opts ...MockOption) *MockSession {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	m := &MockSession{
		logger:          logger.With().Str("component", "mock_session").Logger(),
		defaultScenario: ScenarioSuccess,
		scenarios:       make(map[string]Scenario),
		attempts:        make(map[string]int),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// Send simulates one delivery according to the scripted scenario.
func (m *MockSession) Send(ctx context.Context, msg *message.Outbound) error {
	if msg == nil {
		return errors.New("transport: message is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if m.latency > 0 {
		timer := time.NewTimer(m.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrSessionClosed
	}

	key := strings.ToLower(msg.To.String())
	m.attempts[key]++

	scenario := m.defaultScenario
	if s, ok := m.scenarios[key]; ok {
		scenario = s
	}
	if m.failuresBeforeSuccess > 0 && m.attempts[key] <= m.failuresBeforeSuccess {
		scenario = ScenarioReject
	}

	m.logger.Debug().
		Str("recipient", msg.To.String()).
		Str("scenario", string(scenario)).
		Int("attempt", m.attempts[key]).
		Msg("mock session invoked")

	switch scenario {
	case ScenarioReject:
		return fmt.Errorf("transport: relay rejected recipient %s: 451 try again later", msg.To)
	case ScenarioTimeout:
		return context.DeadlineExceeded
	default:
		m.sent = append(m.sent, msg)
		return nil
	}
}

// Close marks the session closed. Further sends fail with ErrSessionClosed.
func (m *MockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Sent returns the messages accepted so far, in delivery order.
func (m *MockSession) Sent() []*message.Outbound {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*message.Outbound, len(m.sent))
	copy(out, m.sent)
	return out
}

// Attempts reports how many sends were attempted for a recipient.
func (m *MockSession) Attempts(recipient string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[strings.ToLower(strings.TrimSpace(recipient))]
}
