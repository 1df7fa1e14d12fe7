package position

import (
	"journal/internal/domain"
)

// FromTrade converts a flat trade record into the position it describes:
// one entry transaction and, if the trade has an exit, one exit transaction.
func FromTrade(t *domain.Trade) (domain.PositionMeta, []domain.Transaction) {
	meta := domain.PositionMeta{
		ID:        t.ID,
		Symbol:    t.Symbol,
		Type:      t.Type,
		Side:      t.Side,
		Broker:    t.Broker,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}

	txns := []domain.Transaction{{
		ID:         t.ID + "-entry",
		PositionID: t.ID,
		Kind:       domain.TransactionEntry,
		Timestamp:  t.EntryDate,
		Shares:     t.OpeningShares(),
		Price:      t.EntryPrice,
	}}

	if t.HasExit() {
		txns = append(txns, domain.Transaction{
			ID:         t.ID + "-exit",
			PositionID: t.ID,
			Kind:       domain.TransactionExit,
			Timestamp:  *t.ExitDate,
			Shares:     t.ClosingShares(),
			Price:      *t.ExitPrice,
		})
	}

	return meta, txns
}

// ForTrade computes the position described by a flat trade record.
func ForTrade(t *domain.Trade, opts ...Option) (*domain.Position, error) {
	meta, txns := FromTrade(t)
	return Compute(meta, txns, opts...)
}

// ApplyPnL fills the derived P&L fields of a trade. Trades without an exit
// get no P&L. An empty status is derived from the computed position.
func ApplyPnL(t *domain.Trade) error {
	pos, err := ForTrade(t)
	if err != nil {
		return err
	}

	t.PnL = nil
	t.PnLPercent = nil
	for _, txn := range pos.Transactions {
		if txn.Kind == domain.TransactionExit {
			t.PnL = txn.PnL
			t.PnLPercent = txn.PnLPercent
		}
	}

	if t.Status == "" {
		t.Status = domain.TradeStatusOpen
		if pos.Status == domain.PositionStatusClosed {
			t.Status = domain.TradeStatusClosed
		}
	}
	return nil
}
