// Package kafka publishes alert events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rewired-gh/pricewatch/internal/models"
	"github.com/segmentio/kafka-go"
)

// Event types carried in AlertMessage.EventType.
const (
	EventPriceAlert = "PRICE_ALERT"
	EventTestAlert  = "TEST_ALERT"
)

// AlertMessage is the JSON value of a published record.
type AlertMessage struct {
	EventType   string            `json:"event_type"`
	Alert       models.AlertEvent `json:"alert"`
	PublishedAt time.Time         `json:"published_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer handles publishing alerts to Kafka
type Producer struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
		now:    time.Now,
	}
}

// Notify publishes event keyed by market, so one market's alerts stay on one partition.
func (p *Producer) Notify(ctx context.Context, event models.AlertEvent) error {
	msg, err := p.buildMessage(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	return nil
}

func (p *Producer) buildMessage(event models.AlertEvent) (kafka.Message, error) {
	eventType := EventPriceAlert
	if event.Test {
		eventType = EventTestAlert
	}
	data, err := json.Marshal(AlertMessage{
		EventType:   eventType,
		Alert:       event,
		PublishedAt: p.now(),
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal alert: %w", err)
	}
	return kafka.Message{
		Key:   []byte(event.Market),
		Value: data,
	}, nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
