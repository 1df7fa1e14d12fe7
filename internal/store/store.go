package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"journal/internal/domain"
	"journal/internal/position"
)

var (
	// ErrNotFound is returned when a trade or position does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when creating a record whose ID is taken.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidCursor is returned for a list cursor that cannot be decoded.
	ErrInvalidCursor = errors.New("invalid cursor")
)

// Store is the record store behind the journal. Implementations serialize
// writes to the same trade or position.
type Store interface {
	ListTrades(ctx context.Context, filter TradeFilter) ([]domain.Trade, error)
	GetTrade(ctx context.Context, id string) (*domain.Trade, error)
	CreateTrade(ctx context.Context, trade *domain.Trade) error
	UpdateTrade(ctx context.Context, id string, patch TradePatch) (*domain.Trade, error)
	DeleteTrade(ctx context.Context, id string) error

	CreatePosition(ctx context.Context, meta domain.PositionMeta, first domain.Transaction) (*domain.Position, error)
	GetPosition(ctx context.Context, id string) (*PositionRecord, error)
	ListPositions(ctx context.Context) ([]PositionRecord, error)
	AppendTransaction(ctx context.Context, positionID string, txn domain.Transaction) (*domain.Position, error)
	DeletePosition(ctx context.Context, id string) error

	Ping(ctx context.Context) error
	Close()
}

// TradeFilter defines filters for listing trades. Trades are listed newest
// entry date first, ties by descending ID. Cursor continues a listing after
// the trade it was made from (see TradeCursor); Limit 0 returns every match.
type TradeFilter struct {
	Status string
	Type   string
	Cursor string
	Limit  int
}

// Matches reports whether the trade passes the filter.
func (f TradeFilter) Matches(t *domain.Trade) bool {
	if f.Status != "" && string(t.Status) != f.Status {
		return false
	}
	if f.Type != "" && string(t.Type) != f.Type {
		return false
	}
	return true
}

// TradePatch holds the fields of a partial trade update. Nil fields are left
// unchanged.
type TradePatch struct {
	Symbol      *string             `json:"symbol,omitempty"`
	Type        *domain.TradeType   `json:"type,omitempty"`
	Status      *domain.TradeStatus `json:"status,omitempty"`
	Shares      *int64              `json:"shares,omitempty"`
	Side        *domain.Side        `json:"side,omitempty"`
	Broker      *domain.Broker      `json:"broker,omitempty"`
	EntryDate   *time.Time          `json:"entryDate,omitempty"`
	EntryPrice  *float64            `json:"entryPrice,omitempty"`
	EntryShares *int64              `json:"entryShares,omitempty"`
	ExitDate    *time.Time          `json:"exitDate,omitempty"`
	ExitPrice   *float64            `json:"exitPrice,omitempty"`
	ExitShares  *int64              `json:"exitShares,omitempty"`
}

// Apply copies the set fields of the patch onto t.
func (p *TradePatch) Apply(t *domain.Trade) {
	if p.Symbol != nil {
		t.Symbol = *p.Symbol
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Shares != nil {
		t.Shares = *p.Shares
	}
	if p.Side != nil {
		t.Side = *p.Side
	}
	if p.Broker != nil {
		t.Broker = *p.Broker
	}
	if p.EntryDate != nil {
		t.EntryDate = *p.EntryDate
	}
	if p.EntryPrice != nil {
		t.EntryPrice = *p.EntryPrice
	}
	if p.EntryShares != nil {
		t.EntryShares = p.EntryShares
	}
	if p.ExitDate != nil {
		t.ExitDate = p.ExitDate
	}
	if p.ExitPrice != nil {
		t.ExitPrice = p.ExitPrice
	}
	if p.ExitShares != nil {
		t.ExitShares = p.ExitShares
	}
}

// PositionRecord is a stored position: its identity and its transactions in
// processing order.
type PositionRecord struct {
	Meta         domain.PositionMeta
	Transactions []domain.Transaction
}

// prepareTrade assigns identity and timestamps and derives the P&L fields.
func prepareTrade(t *domain.Trade, now time.Time) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if err := position.ApplyPnL(t); err != nil {
		return fmt.Errorf("trade %s: %w", t.ID, err)
	}
	return nil
}

// preparePosition assigns identity to a new position and its opening
// transaction and computes the resulting aggregate.
func preparePosition(meta *domain.PositionMeta, first *domain.Transaction, now time.Time) (*domain.Position, error) {
	if first.Kind != domain.TransactionEntry {
		return nil, fmt.Errorf("%w: position must open with an entry", position.ErrInvalidTransactionSequence)
	}
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = now
	}
	if meta.UpdatedAt.IsZero() {
		meta.UpdatedAt = meta.CreatedAt
	}
	prepareTransaction(first, meta.ID, now)
	return position.Compute(*meta, []domain.Transaction{*first})
}

func prepareTransaction(txn *domain.Transaction, positionID string, now time.Time) {
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	txn.PositionID = positionID
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = now
	}
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*Repository)(nil)
)
