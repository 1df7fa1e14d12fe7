// Package position turns entry and exit fills into position aggregates using
// average-cost-basis accounting. Exits consume the running average entry
// price and never change it; there is no FIFO/LIFO lot tracking.
package position

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"journal/internal/domain"
)

var (
	// ErrInvalidTransactionSequence is returned when an exit closes more
	// shares than are open at that point of the sequence.
	ErrInvalidTransactionSequence = errors.New("invalid transaction sequence")
	// ErrEmptyTransactionList is returned when no entry transaction exists.
	ErrEmptyTransactionList = errors.New("empty transaction list")
	// ErrInvalidTransaction is returned for fills with non-positive shares,
	// a non-positive or non-finite price, or an unknown kind.
	ErrInvalidTransaction = errors.New("invalid transaction")
)

var hundred = decimal.NewFromInt(100)

type options struct {
	currentPrice *decimal.Decimal
}

// Option configures a single Compute call.
type Option func(*options)

// WithCurrentPrice marks the remaining shares to the given price. Without it
// the unrealized P&L of the position is 0. NaN and infinite prices are
// ignored.
func WithCurrentPrice(price float64) Option {
	return func(o *options) {
		if !finite(price) {
			return
		}
		p := decimal.NewFromFloat(price)
		o.currentPrice = &p
	}
}

// Compute aggregates the transactions of one position. Transactions are
// processed in timestamp order; transactions with equal timestamps keep
// their order in txns. The input slice is not modified.
func Compute(meta domain.PositionMeta, txns []domain.Transaction, opts ...Option) (*domain.Position, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	mult, err := meta.Side.Multiplier()
	if err != nil {
		return nil, fmt.Errorf("position %s: %w", meta.ID, err)
	}
	m := decimal.NewFromInt(mult)

	ordered := make([]domain.Transaction, len(txns))
	copy(ordered, txns)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	if !hasEntry(ordered) {
		return nil, ErrEmptyTransactionList
	}

	var (
		openShares  int64
		entryShares int64
		exitShares  int64
		avgEntry    = decimal.Zero
		realized    = decimal.Zero
		entryValue  = decimal.Zero
		exitValue   = decimal.Zero
		firstEntry  time.Time
		lastExit    *time.Time
		lastUpdate  time.Time
	)

	for i := range ordered {
		t := &ordered[i]
		if t.Shares <= 0 || t.Price <= 0 || !finite(t.Price) {
			return nil, fmt.Errorf("%w: %s has shares %d and price %v", ErrInvalidTransaction, t.ID, t.Shares, t.Price)
		}
		if t.PositionID == "" {
			t.PositionID = meta.ID
		}

		price := decimal.NewFromFloat(t.Price)
		shares := decimal.NewFromInt(t.Shares)
		value := price.Mul(shares)
		// A recorded value is kept as stored.
		if t.Value == 0 {
			t.Value = round(value)
		}

		switch t.Kind {
		case domain.TransactionEntry:
			total := openShares + t.Shares
			avgEntry = avgEntry.Mul(decimal.NewFromInt(openShares)).Add(value).Div(decimal.NewFromInt(total))
			openShares = total
			entryShares += t.Shares
			entryValue = entryValue.Add(value)
			if firstEntry.IsZero() {
				firstEntry = t.Timestamp
			}
			t.PnL = nil
			t.PnLPercent = nil

		case domain.TransactionExit:
			if t.Shares > openShares {
				return nil, fmt.Errorf("%w: exit %s closes %d shares but only %d are open",
					ErrInvalidTransactionSequence, t.ID, t.Shares, openShares)
			}
			diff := price.Sub(avgEntry).Mul(m)
			pnl := diff.Mul(shares)
			pct := diff.Div(avgEntry).Mul(hundred)
			realized = realized.Add(pnl)
			openShares -= t.Shares
			exitShares += t.Shares
			exitValue = exitValue.Add(value)
			ts := t.Timestamp
			lastExit = &ts
			t.PnL = ptr(round(pnl))
			t.PnLPercent = ptr(round(pct))

		default:
			return nil, fmt.Errorf("%w: %s has kind %q", ErrInvalidTransaction, t.ID, t.Kind)
		}

		t.PositionAvgPrice = round(avgEntry)
		t.PositionTotalShares = openShares
		if t.Timestamp.After(lastUpdate) {
			lastUpdate = t.Timestamp
		}
	}

	unrealized := decimal.Zero
	if o.currentPrice != nil && openShares > 0 {
		unrealized = o.currentPrice.Sub(avgEntry).Mul(decimal.NewFromInt(openShares)).Mul(m)
	}
	total := realized.Add(unrealized)

	pos := &domain.Position{
		PositionMeta:     meta,
		Status:           status(exitShares, openShares),
		TotalEntryShares: entryShares,
		TotalExitShares:  exitShares,
		RemainingShares:  openShares,
		AvgEntryPrice:    round(avgEntry),
		TotalEntryValue:  round(entryValue),
		RealizedPnL:      round(realized),
		UnrealizedPnL:    round(unrealized),
		TotalPnL:         round(total),
		TotalPnLPercent:  round(total.Div(entryValue).Mul(hundred)),
		Transactions:     ordered,
		FirstEntryDate:   firstEntry,
		LastExitDate:     lastExit,
	}
	if exitShares > 0 {
		pos.AvgExitPrice = ptr(round(exitValue.Div(decimal.NewFromInt(exitShares))))
		pos.TotalExitValue = ptr(round(exitValue))
	}
	if pos.CreatedAt.IsZero() {
		pos.CreatedAt = firstEntry
	}
	if pos.UpdatedAt.IsZero() {
		pos.UpdatedAt = lastUpdate
	}

	return pos, nil
}

func hasEntry(txns []domain.Transaction) bool {
	for _, t := range txns {
		if t.Kind == domain.TransactionEntry {
			return true
		}
	}
	return false
}

func status(exitShares, openShares int64) domain.PositionStatus {
	switch {
	case exitShares == 0:
		return domain.PositionStatusOpen
	case openShares == 0:
		return domain.PositionStatusClosed
	default:
		return domain.PositionStatusPartial
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func ptr(v float64) *float64 {
	return &v
}
