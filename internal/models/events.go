package models

import "time"

// Event type constants for the ledger event stream
const (
	EventOrderPlaced     = "ORDER_PLACED"
	EventStopLossTrigger = "STOP_LOSS_TRIGGERED"
	EventPriceTick       = "PRICE_TICK"
)

// OrderEvent is published to Kafka after an order is committed.
type OrderEvent struct {
	EventType string    `json:"event_type"`
	Order     *Order    `json:"order,omitempty"`
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
}

// PriceTickEvent carries one market price update on the ticks topic.
type PriceTickEvent struct {
	EventType string    `json:"event_type"`
	Symbol    string    `json:"symbol"`
	Price     string    `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}
