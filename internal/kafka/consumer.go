package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"paper-ledger/internal/database"
	"paper-ledger/internal/models"
)

// PriceStore is the slice of the ledger store the tick consumer writes to.
type PriceStore interface {
	UpdatePositionPrice(ctx context.Context, symbol string, price decimal.Decimal) error
}

// QuoteSink receives parsed ticks, typically the quote cache.
type QuoteSink interface {
	Put(ctx context.Context, q *models.Quote)
}

// Consumer consumes PRICE_TICK events and keeps position marks and the
// quote cache current. Ticks for symbols with no open position only warm
// the cache.
type Consumer struct {
	reader *kafka.Reader
	store  PriceStore
	sink   QuoteSink
	log    zerolog.Logger
}

// NewConsumer creates a Kafka consumer for the price tick topic. sink may
// be nil when no quote cache is configured.
func NewConsumer(brokers []string, topic, groupID string, store PriceStore, sink QuoteSink, log zerolog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second,
	})

	return &Consumer{
		reader: reader,
		store:  store,
		sink:   sink,
		log:    log.With().Str("component", "tick-consumer").Logger(),
	}
}

// Start consumes messages until the context is cancelled. A bad message is
// logged and skipped; the stream keeps flowing.
func (c *Consumer) Start(ctx context.Context) error {
	c.log.Info().Str("topic", c.reader.Config().Topic).Msg("tick consumer started")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("tick consumer shutting down")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.log.Error().Err(err).Msg("error reading message")
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				c.log.Error().
					Int("partition", msg.Partition).
					Int64("offset", msg.Offset).
					Err(err).
					Msg("error processing tick")
			}
		}
	}
}

// processMessage handles a single tick message.
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event models.PriceTickEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal tick event: %w", err)
	}

	if event.EventType != models.EventPriceTick {
		c.log.Debug().Str("event_type", event.EventType).Msg("ignoring event")
		return nil
	}

	price, err := decimal.NewFromString(event.Price)
	if err != nil {
		return fmt.Errorf("invalid price %q for %s: %w", event.Price, event.Symbol, err)
	}
	if !price.IsPositive() {
		return fmt.Errorf("nonpositive price %s for %s", event.Price, event.Symbol)
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	if c.sink != nil {
		c.sink.Put(ctx, &models.Quote{Symbol: event.Symbol, Price: price, Timestamp: ts})
	}

	err = c.store.UpdatePositionPrice(ctx, event.Symbol, price)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("failed to update mark for %s: %w", event.Symbol, err)
	}
	return nil
}

// Close closes the Kafka consumer.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
