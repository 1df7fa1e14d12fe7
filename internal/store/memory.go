package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"journal/internal/domain"
	"journal/internal/position"
)

// MemoryStore keeps trades and positions in process memory. Contents are
// lost on restart.
type MemoryStore struct {
	mu        sync.RWMutex
	trades    []domain.Trade
	positions map[string]*PositionRecord
	order     []string
	now       func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		positions: make(map[string]*PositionRecord),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ListTrades returns matching trades, newest entry date first.
func (s *MemoryStore) ListTrades(ctx context.Context, filter TradeFilter) ([]domain.Trade, error) {
	var (
		afterTS  time.Time
		afterID  string
		hasAfter bool
	)
	if filter.Cursor != "" {
		ts, id, err := decodeCursor(filter.Cursor)
		if err != nil {
			return nil, err
		}
		afterTS, afterID, hasAfter = ts, id, true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	trades := []domain.Trade{}
	for i := range s.trades {
		t := &s.trades[i]
		if !filter.Matches(t) {
			continue
		}
		if hasAfter && !listedBefore(afterTS, afterID, t.EntryDate, t.ID) {
			continue
		}
		trades = append(trades, *t)
	}
	sort.Slice(trades, func(i, j int) bool {
		return listedBefore(trades[i].EntryDate, trades[i].ID, trades[j].EntryDate, trades[j].ID)
	})
	if filter.Limit > 0 && len(trades) > filter.Limit {
		trades = trades[:filter.Limit]
	}
	return trades, nil
}

// listedBefore reports whether the trade keyed (aTS, aID) comes before
// (bTS, bID) in listing order.
func listedBefore(aTS time.Time, aID string, bTS time.Time, bID string) bool {
	if !aTS.Equal(bTS) {
		return aTS.After(bTS)
	}
	return aID > bID
}

// GetTrade returns a trade by ID.
func (s *MemoryStore) GetTrade(ctx context.Context, id string) (*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.tradeIndex(id)
	if idx < 0 {
		return nil, ErrNotFound
	}
	t := s.trades[idx]
	return &t, nil
}

// CreateTrade stores a new trade with derived P&L.
func (s *MemoryStore) CreateTrade(ctx context.Context, trade *domain.Trade) error {
	if err := prepareTrade(trade, s.now()); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tradeIndex(trade.ID) >= 0 {
		return fmt.Errorf("trade %s: %w", trade.ID, ErrAlreadyExists)
	}
	s.trades = append(s.trades, *trade)
	return nil
}

// UpdateTrade applies a partial update and recomputes the trade's P&L.
func (s *MemoryStore) UpdateTrade(ctx context.Context, id string, patch TradePatch) (*domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.tradeIndex(id)
	if idx < 0 {
		return nil, ErrNotFound
	}

	updated := s.trades[idx]
	patch.Apply(&updated)
	if err := prepareTrade(&updated, s.now()); err != nil {
		return nil, err
	}
	s.trades[idx] = updated
	return &updated, nil
}

// DeleteTrade removes a trade.
func (s *MemoryStore) DeleteTrade(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.tradeIndex(id)
	if idx < 0 {
		return ErrNotFound
	}
	s.trades = append(s.trades[:idx], s.trades[idx+1:]...)
	return nil
}

func (s *MemoryStore) tradeIndex(id string) int {
	for i := range s.trades {
		if s.trades[i].ID == id {
			return i
		}
	}
	return -1
}

// CreatePosition opens a position with its first entry.
func (s *MemoryStore) CreatePosition(ctx context.Context, meta domain.PositionMeta, first domain.Transaction) (*domain.Position, error) {
	pos, err := preparePosition(&meta, &first, s.now())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[meta.ID]; ok {
		return nil, fmt.Errorf("position %s: %w", meta.ID, ErrAlreadyExists)
	}
	if s.hasTransaction(first.ID) {
		return nil, fmt.Errorf("transaction %s: %w", first.ID, ErrAlreadyExists)
	}
	s.positions[meta.ID] = &PositionRecord{
		Meta:         meta,
		Transactions: cloneTransactions(pos.Transactions),
	}
	s.order = append(s.order, meta.ID)
	return pos, nil
}

// GetPosition returns a stored position by ID.
func (s *MemoryStore) GetPosition(ctx context.Context, id string) (*PositionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.positions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &PositionRecord{Meta: rec.Meta, Transactions: cloneTransactions(rec.Transactions)}, nil
}

// ListPositions returns all positions, newest first.
func (s *MemoryStore) ListPositions(ctx context.Context) ([]PositionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]PositionRecord, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		rec := s.positions[s.order[i]]
		out = append(out, PositionRecord{Meta: rec.Meta, Transactions: cloneTransactions(rec.Transactions)})
	}
	return out, nil
}

// AppendTransaction adds a fill to a position. The append is rejected when
// the resulting sequence is invalid.
func (s *MemoryStore) AppendTransaction(ctx context.Context, positionID string, txn domain.Transaction) (*domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.positions[positionID]
	if !ok {
		return nil, ErrNotFound
	}

	now := s.now()
	prepareTransaction(&txn, positionID, now)
	if s.hasTransaction(txn.ID) {
		return nil, fmt.Errorf("transaction %s: %w", txn.ID, ErrAlreadyExists)
	}

	meta := rec.Meta
	meta.UpdatedAt = now
	txns := append(cloneTransactions(rec.Transactions), txn)
	pos, err := position.Compute(meta, txns)
	if err != nil {
		return nil, fmt.Errorf("append transaction: %w", err)
	}

	rec.Meta = meta
	rec.Transactions = cloneTransactions(pos.Transactions)
	return pos, nil
}

// hasTransaction reports whether any position holds a transaction with id.
// Transaction IDs are unique across positions. Callers hold s.mu.
func (s *MemoryStore) hasTransaction(id string) bool {
	for _, rec := range s.positions {
		for i := range rec.Transactions {
			if rec.Transactions[i].ID == id {
				return true
			}
		}
	}
	return false
}

// DeletePosition removes a position and its transactions.
func (s *MemoryStore) DeletePosition(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[id]; !ok {
		return ErrNotFound
	}
	delete(s.positions, id)
	for i, pid := range s.order {
		if pid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() {}

func cloneTransactions(txns []domain.Transaction) []domain.Transaction {
	out := make([]domain.Transaction, len(txns))
	copy(out, txns)
	return out
}
