package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"paper-ledger/internal/models"
)

// Producer publishes ledger events to the orders topic.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer creates a Kafka producer for the given topic.
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
	}
}

// PublishOrderPlaced announces a committed order.
func (p *Producer) PublishOrderPlaced(ctx context.Context, order *models.Order) error {
	event := models.OrderEvent{
		EventType: models.EventOrderPlaced,
		Order:     order,
		Symbol:    order.Symbol,
		Timestamp: time.Now(),
	}
	return p.publish(ctx, order.Symbol, event)
}

// PublishStopLossTriggered announces a stop-loss exit fill.
func (p *Producer) PublishStopLossTriggered(ctx context.Context, order *models.Order) error {
	event := models.OrderEvent{
		EventType: models.EventStopLossTrigger,
		Order:     order,
		Symbol:    order.Symbol,
		Timestamp: time.Now(),
	}
	return p.publish(ctx, order.Symbol, event)
}

func (p *Producer) publish(ctx context.Context, key string, event models.OrderEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka producer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
