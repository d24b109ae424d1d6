package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
)

const headerEventName = "event-name"

// keyed events are partitioned by their aggregate so per-order order holds.
type keyed interface {
	AggregateID() string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkaGo.Message) error
	Close() error
}

// Sink forwards lifecycle notifications from the in-process bus to a topic.
type Sink struct {
	w   messageWriter
	log observability.Logger
}

func NewWriter(brokers []string, topic string) *kafkaGo.Writer {
	return &kafkaGo.Writer{
		Addr:         kafkaGo.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkaGo.Hash{},
		RequiredAcks: kafkaGo.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
}

func NewSink(w messageWriter, logger observability.Logger) *Sink {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Sink{w: w, log: logger.With(observability.F("component", "kafka_sink"))}
}

// Subscribe registers the sink for every named event.
func (s *Sink) Subscribe(sub outbox.Subscriber, names ...string) {
	for _, name := range names {
		sub.Subscribe(name, s.Handle)
	}
}

func (s *Sink) Handle(ctx context.Context, e outbox.Event) error {
	msg, err := Message(e)
	if err != nil {
		return err
	}
	if err := s.w.WriteMessages(ctx, msg); err != nil {
		s.log.Warn("kafka_write_failed",
			observability.F("event", e.EventName()),
			observability.F("error", err),
		)
		return fmt.Errorf("kafka: write %s: %w", e.EventName(), err)
	}
	return nil
}

func (s *Sink) Close() error {
	return s.w.Close()
}

// Message encodes e as JSON, keyed by its aggregate id when it has one.
func Message(e outbox.Event) (kafkaGo.Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return kafkaGo.Message{}, fmt.Errorf("kafka: encode %s: %w", e.EventName(), err)
	}
	msg := kafkaGo.Message{
		Value:   payload,
		Headers: []kafkaGo.Header{{Key: headerEventName, Value: []byte(e.EventName())}},
		Time:    time.Now().UTC(),
	}
	if k, ok := e.(keyed); ok {
		msg.Key = []byte(k.AggregateID())
	}
	return msg, nil
}
