// Package stats rolls up realized results across journal trades.
package stats

import (
	"github.com/shopspring/decimal"

	"journal/internal/domain"
	"journal/internal/position"
)

// Calculate computes the statistics over trades whose P&L has already been
// derived. Only closed trades with a P&L count towards the P&L figures.
func Calculate(trades []domain.Trade) domain.TradeStats {
	s := domain.TradeStats{TotalTrades: len(trades)}

	var (
		total, winSum, lossSum  decimal.Decimal
		wins, losses            int
		largestWin, largestLoss float64
	)
	for i := range trades {
		t := &trades[i]
		switch t.Status {
		case domain.TradeStatusOpen:
			s.OpenTrades++
			continue
		case domain.TradeStatusClosed:
		default:
			continue
		}
		if t.PnL == nil {
			continue
		}

		s.ClosedTrades++
		pnl := *t.PnL
		total = total.Add(decimal.NewFromFloat(pnl))
		switch {
		case pnl > 0:
			wins++
			winSum = winSum.Add(decimal.NewFromFloat(pnl))
			if wins == 1 || pnl > largestWin {
				largestWin = pnl
			}
		case pnl < 0:
			losses++
			lossSum = lossSum.Add(decimal.NewFromFloat(pnl))
			if losses == 1 || pnl < largestLoss {
				largestLoss = pnl
			}
		}
	}

	s.TotalPnL = position.Round2(total.InexactFloat64())
	if s.ClosedTrades > 0 {
		s.WinRate = position.Round2(float64(wins) / float64(s.ClosedTrades) * 100)
	}
	if wins > 0 {
		s.AvgWin = position.Round2(winSum.Div(decimal.NewFromInt(int64(wins))).InexactFloat64())
	}
	if losses > 0 {
		s.AvgLoss = position.Round2(lossSum.Div(decimal.NewFromInt(int64(losses))).InexactFloat64())
	}
	s.LargestWin = position.Round2(largestWin)
	s.LargestLoss = position.Round2(largestLoss)
	return s
}
