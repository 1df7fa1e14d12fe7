package ingest

import (
	"fmt"
	"strings"
	"time"

	"journal/internal/domain"
)

// TransactionEvent is the JSON structure for fill events received via NATS.
//
// An ENTRY without position_id opens a new position; its event_id becomes the
// position ID, so later fills can reference it. Every other event is appended
// to the position named by position_id and its event_id becomes the
// transaction ID. Redelivered events are therefore recognized as duplicates.
type TransactionEvent struct {
	EventID    string  `json:"event_id"`
	PositionID string  `json:"position_id,omitempty"`
	Kind       string  `json:"kind"`
	Shares     int64   `json:"shares"`
	Price      float64 `json:"price"`
	Timestamp  string  `json:"timestamp"`
	Notes      string  `json:"notes,omitempty"`

	// Opening events only
	Symbol string `json:"symbol,omitempty"`
	Type   string `json:"type,omitempty"`
	Side   string `json:"side,omitempty"`
	Broker string `json:"broker,omitempty"`
}

// Opens reports whether the event opens a new position.
func (e *TransactionEvent) Opens() bool {
	return e.PositionID == ""
}

// Subject returns the NATS subject the event is published on, for example
// journal.transactions.entry.
func (e *TransactionEvent) Subject() string {
	return SubjectPrefix + strings.ToLower(e.Kind)
}

// Validate checks that the event has all required fields and valid values.
func (e *TransactionEvent) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("missing required field: event_id")
	}
	if !domain.TransactionKind(e.Kind).Valid() {
		return fmt.Errorf("invalid kind: %q (must be ENTRY or EXIT)", e.Kind)
	}
	if e.Shares <= 0 {
		return fmt.Errorf("shares must be positive, got %d", e.Shares)
	}
	if e.Price <= 0 {
		return fmt.Errorf("price must be positive, got %f", e.Price)
	}
	if e.Timestamp == "" {
		return fmt.Errorf("missing required field: timestamp")
	}

	// Validate timestamp is parseable
	if _, err := time.Parse(time.RFC3339, e.Timestamp); err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}

	if !e.Opens() {
		return nil
	}
	if domain.TransactionKind(e.Kind) != domain.TransactionEntry {
		return fmt.Errorf("missing required field: position_id (only an ENTRY can open a position)")
	}
	if e.Symbol == "" {
		return fmt.Errorf("missing required field: symbol")
	}
	if !domain.TradeType(e.Type).Valid() {
		return fmt.Errorf("invalid type: %q", e.Type)
	}
	if !domain.Side(e.Side).Valid() {
		return fmt.Errorf("invalid side: %q (must be Long or Short)", e.Side)
	}
	if !domain.Broker(e.Broker).Valid() {
		return fmt.Errorf("invalid broker: %q", e.Broker)
	}
	return nil
}

// ToTransaction converts the event to a domain transaction.
func (e *TransactionEvent) ToTransaction() (domain.Transaction, error) {
	ts, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("parse timestamp: %w", err)
	}

	txn := domain.Transaction{
		ID:         e.EventID,
		PositionID: e.PositionID,
		Kind:       domain.TransactionKind(e.Kind),
		Timestamp:  ts.UTC(),
		Shares:     e.Shares,
		Price:      e.Price,
		Notes:      e.Notes,
	}
	if e.Opens() {
		txn.PositionID = e.EventID
	}
	return txn, nil
}

// ToMeta returns the identity of the position an opening event creates.
func (e *TransactionEvent) ToMeta() domain.PositionMeta {
	return domain.PositionMeta{
		ID:     e.EventID,
		Symbol: e.Symbol,
		Type:   domain.TradeType(e.Type),
		Side:   domain.Side(e.Side),
		Broker: domain.Broker(e.Broker),
	}
}
