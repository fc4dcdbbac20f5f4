package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-ledger/internal/database"
	"paper-ledger/internal/models"
)

type mockPriceStore struct {
	marks   map[string]decimal.Decimal
	unknown map[string]bool
}

func (m *mockPriceStore) UpdatePositionPrice(ctx context.Context, symbol string, price decimal.Decimal) error {
	if m.unknown[symbol] {
		return database.ErrNotFound
	}
	if m.marks == nil {
		m.marks = make(map[string]decimal.Decimal)
	}
	m.marks[symbol] = price
	return nil
}

type mockSink struct {
	quotes []*models.Quote
}

func (m *mockSink) Put(ctx context.Context, q *models.Quote) {
	m.quotes = append(m.quotes, q)
}

func tickMessage(t *testing.T, eventType, symbol, price string) kafka.Message {
	t.Helper()
	data, err := json.Marshal(models.PriceTickEvent{
		EventType: eventType,
		Symbol:    symbol,
		Price:     price,
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	return kafka.Message{Key: []byte(symbol), Value: data}
}

func TestProcessMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("price tick updates the mark and warms the cache", func(t *testing.T) {
		store := &mockPriceStore{}
		sink := &mockSink{}
		c := &Consumer{store: store, sink: sink, log: zerolog.Nop()}

		err := c.processMessage(ctx, tickMessage(t, models.EventPriceTick, "NVDA", "430.25"))
		require.NoError(t, err)

		assert.True(t, decimal.NewFromFloat(430.25).Equal(store.marks["NVDA"]))
		require.Len(t, sink.quotes, 1)
		assert.Equal(t, "NVDA", sink.quotes[0].Symbol)
	})

	t.Run("tick for a symbol without a position only warms the cache", func(t *testing.T) {
		store := &mockPriceStore{unknown: map[string]bool{"TSLA": true}}
		sink := &mockSink{}
		c := &Consumer{store: store, sink: sink, log: zerolog.Nop()}

		err := c.processMessage(ctx, tickMessage(t, models.EventPriceTick, "TSLA", "250"))
		require.NoError(t, err)
		assert.Len(t, sink.quotes, 1)
	})

	t.Run("other event types are ignored", func(t *testing.T) {
		store := &mockPriceStore{}
		c := &Consumer{store: store, log: zerolog.Nop()}

		err := c.processMessage(ctx, tickMessage(t, models.EventOrderPlaced, "NVDA", "430"))
		require.NoError(t, err)
		assert.Empty(t, store.marks)
	})

	t.Run("malformed prices are rejected", func(t *testing.T) {
		store := &mockPriceStore{}
		c := &Consumer{store: store, log: zerolog.Nop()}

		err := c.processMessage(ctx, tickMessage(t, models.EventPriceTick, "NVDA", "not-a-price"))
		require.Error(t, err)

		err = c.processMessage(ctx, tickMessage(t, models.EventPriceTick, "NVDA", "-1"))
		require.Error(t, err)
		assert.Empty(t, store.marks)
	})

	t.Run("garbage payload is an error, not a panic", func(t *testing.T) {
		c := &Consumer{store: &mockPriceStore{}, log: zerolog.Nop()}

		err := c.processMessage(ctx, kafka.Message{Value: []byte("{nope")})
		require.Error(t, err)
	})
}
