// Package events publishes freshly computed quote batches for downstream
// consumers (analytics, pricing audits).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	skafka "github.com/segmentio/kafka-go"

	"shipquote/internal/logger"
	"shipquote/internal/quote"
)

// QuotesComputed is the event type written for every fresh batch.
const QuotesComputed = "quotes.computed"

// Writer defines the subset of segmentio kafka.Writer we need.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// Envelope is the JSON payload of a published message.
type Envelope struct {
	EventID    string        `json:"eventId"`
	Type       string        `json:"type"`
	OccurredAt time.Time     `json:"occurredAt"`
	Request    RequestInfo   `json:"request"`
	Quotes     []quote.Quote `json:"quotes"`
}

type RequestInfo struct {
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	Weight      float64   `json:"weight"`
	Fragile     bool      `json:"fragile"`
	PickupDate  time.Time `json:"pickupDate"`
}

// KafkaPublisher implements quote.Publisher on top of a kafka writer.
type KafkaPublisher struct {
	writer Writer
	now    func() time.Time
}

// NewKafkaPublisher writes to topic on the comma separated brokers. Writes are
// async so a slow broker never delays a quote response; delivery failures are
// reported to log once the writer gives up on a batch.
func NewKafkaPublisher(brokers, topic string, log *logger.Logger) (*KafkaPublisher, error) {
	addrs := splitBrokers(brokers)
	if len(addrs) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	w := &skafka.Writer{
		Addr:         skafka.TCP(addrs...),
		Topic:        topic,
		Balancer:     &skafka.Hash{},
		RequiredAcks: skafka.RequireOne,
		Async:        true,
		Completion:   logFailedWrites(log, topic),
	}
	return NewKafkaPublisherWithWriter(w), nil
}

func logFailedWrites(log *logger.Logger, topic string) func([]skafka.Message, error) {
	if log == nil {
		log = logger.Nop()
	}
	return func(msgs []skafka.Message, err error) {
		if err == nil {
			return
		}
		ctx := log.WithFields(context.Background(), map[string]any{"topic": topic, "messages": len(msgs)})
		log.Error(ctx, "events.publish_failed", err)
	}
}

// NewKafkaPublisherWithWriter allows injecting a test writer.
func NewKafkaPublisherWithWriter(w Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w, now: time.Now}
}

// PublishBatch writes one message per batch keyed by the request fingerprint,
// so batches for the same route land on the same partition.
func (p *KafkaPublisher) PublishBatch(ctx context.Context, req quote.Request, quotes []quote.Quote) error {
	env := Envelope{
		EventID:    uuid.NewString(),
		Type:       QuotesComputed,
		OccurredAt: p.now().UTC(),
		Request: RequestInfo{
			Origin:      req.Origin(),
			Destination: req.Destination(),
			Weight:      req.Weight(),
			Fragile:     req.Fragile(),
			PickupDate:  req.PickupDate(),
		},
		Quotes: quotes,
	}
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", QuotesComputed, err)
	}
	msg := skafka.Message{
		Key:     []byte(req.Fingerprint().Key()),
		Value:   b,
		Headers: []skafka.Header{{Key: "type", Value: []byte(QuotesComputed)}},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Noop drops every batch. Used when no broker is configured.
type Noop struct{}

func (Noop) PublishBatch(context.Context, quote.Request, []quote.Quote) error { return nil }
func (Noop) Close() error                                                   { return nil }

func splitBrokers(raw string) []string {
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
