package events

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/rs/zerolog"
)

// SyncProducer captures the subset of producer behaviour the Kafka sink
// requires.
type SyncProducer interface {
	PublishSync(topic string, key []byte, headers map[string][]byte, payload []byte) error
}

// KafkaSink mirrors progress events to a Kafka topic so external observers
// can follow a campaign without tailing logs. Publish failures are logged and
// swallowed; the sink never fails the campaign.
type KafkaSink struct {
	producer   SyncProducer
	topic      string
	campaignID string
	logger     zerolog.Logger
	now        func() time.Time
}

// NewKafkaSink constructs a KafkaSink. Events are keyed by campaign ID so one
// campaign's events land on one partition in order.
func NewKafkaSink(prod SyncProducer, topic, campaignID string, logger zerolog.Logger) *KafkaSink {
	if prod == nil {
		return nil
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &KafkaSink{
		producer:   prod,
		topic:      topic,
		campaignID: campaignID,
		logger:     logger.With().Str("component", "kafka_sink").Logger(),
		now:        time.Now,
	}
}

// Info implements Sink.
func (k *KafkaSink) Info(text string) {
	k.publish(Event{Type: EventInfo, Text: text})
}

// Progress implements Sink.
func (k *KafkaSink) Progress(fraction float64) {
	k.publish(Event{Type: EventProgress, Fraction: fraction})
}

// Done implements Sink.
func (k *KafkaSink) Done() {
	k.publish(Event{Type: EventFinished})
}

func (k *KafkaSink) publish(event Event) {
	event.CampaignID = k.campaignID
	event.Timestamp = k.now()

	payload, err := json.Marshal(event)
	if err != nil {
		k.logger.Error().Err(err).Str("event", event.Type).Msg("failed to marshal progress event")
		return
	}

	headers := map[string][]byte{
		"content-type": []byte("application/json"),
	}

	if err := k.producer.PublishSync(k.topic, []byte(k.campaignID), headers, payload); err != nil {
		k.logger.Error().
			Err(fmt.Errorf("publish progress event: %w", err)).
			Str("event", event.Type).
			Msg("failed to publish progress event")
	}
}
