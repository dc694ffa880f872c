// Package events carries campaign progress out to external observers. The
// dispatch engine talks to a Sink; renderers (console, Kafka, a web UI)
// implement it.
package events

import "time"

// Event type constants.
const (
	EventInfo     = "info"
	EventProgress = "progress"
	EventFinished = "finished"
)

// Event is the wire model for one progress notification.
type Event struct {
	CampaignID string    `json:"campaign_id,omitempty"`
	Type       string    `json:"type"`
	Text       string    `json:"text,omitempty"`
	Fraction   float64   `json:"fraction,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Sink consumes progress events emitted by the dispatch engine. Sinks are
// passive observers: implementations must absorb their own failures and never
// block or fail the campaign.
type Sink interface {
	// Info reports a human readable status line.
	Info(text string)
	// Progress reports the fraction of recipients sent so far, in [0, 1].
	Progress(fraction float64)
	// Done reports that every recipient has been resolved.
	Done()
}

// Multi fans each event out to every supplied sink, in order.
func Multi(sinks ...Sink) Sink {
	out := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type multiSink []Sink

func (m multiSink) Info(text string) {
	for _, s := range m {
		s.Info(text)
	}
}

func (m multiSink) Progress(fraction float64) {
	for _, s := range m {
		s.Progress(fraction)
	}
}

func (m multiSink) Done() {
	for _, s := range m {
		s.Done()
	}
}
