package activity

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/segmentio/kafka-go"
)

// Writer is the subset of kafka.Writer the sink needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes activity to a topic keyed by storage unit, so one
// unit's history stays ordered within a partition.
type KafkaSink struct {
	writer Writer
}

// NewKafkaSink constructs a sink writing to topic on brokers.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}}
}

// NewKafkaSinkWithWriter constructs a sink over an existing writer.
func NewKafkaSinkWithWriter(writer Writer) *KafkaSink {
	return &KafkaSink{writer: writer}
}

// Name identifies the sink.
func (s *KafkaSink) Name() string { return "kafka" }

// Append writes one message per event.
func (s *KafkaSink) Append(ctx context.Context, event Event) error {
	if s == nil || s.writer == nil {
		return errors.New("kafka sink: nil writer")
	}
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.UnitID),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.EventID)},
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "tenant_id", Value: []byte(event.TenantID)},
		},
	})
}

// Close flushes and closes the writer.
func (s *KafkaSink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
