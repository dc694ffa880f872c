package events

import (
	"reflect"

	"github.com/rs/zerolog"
)

// ConsoleSink renders progress events through a zerolog logger.
type ConsoleSink struct {
	logger zerolog.Logger
}

// NewConsoleSink constructs a ConsoleSink.
func NewConsoleSink(logger zerolog.Logger) *ConsoleSink {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &ConsoleSink{
		logger: logger.With().Str("component", "console_sink").Logger(),
	}
}

// Info implements Sink.
func (c *ConsoleSink) Info(text string) {
	c.logger.Info().Msg(text)
}

// Progress implements Sink.
func (c *ConsoleSink) Progress(fraction float64) {
	c.logger.Info().Float64("progress", fraction).Msg("campaign progress")
}

// Done implements Sink.
func (c *ConsoleSink) Done() {
	c.logger.Info().Msg("campaign finished")
}
