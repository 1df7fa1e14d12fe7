package position

import (
	"context"
	"runtime"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"journal/internal/domain"
)

// Metrics summarizes the fill structure of a computed position.
func Metrics(p *domain.Position) domain.PositionMetrics {
	m := domain.PositionMetrics{
		AvgEntryPrice:   p.AvgEntryPrice,
		RemainingShares: p.RemainingShares,
	}
	if p.AvgExitPrice != nil {
		m.AvgExitPrice = *p.AvgExitPrice
	}
	for _, t := range p.Transactions {
		switch t.Kind {
		case domain.TransactionEntry:
			m.EntryCount++
		case domain.TransactionExit:
			m.ExitCount++
		}
	}
	if p.TotalEntryShares > 0 {
		entered := decimal.NewFromInt(p.TotalEntryShares)
		m.ClosedPercent = round(decimal.NewFromInt(p.TotalExitShares).Div(entered).Mul(hundred))
		m.OpenPercent = round(decimal.NewFromInt(p.RemainingShares).Div(entered).Mul(hundred))
	}
	return m
}

// Input is one position to aggregate in a batch.
type Input struct {
	Meta         domain.PositionMeta
	Transactions []domain.Transaction
	CurrentPrice *float64
}

// ComputeAll aggregates independent positions in parallel. Results are in
// input order. The first failure cancels the remaining work.
func ComputeAll(ctx context.Context, inputs []Input) ([]*domain.Position, error) {
	out := make([]*domain.Position, len(inputs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range inputs {
		i, in := i, inputs[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var opts []Option
			if in.CurrentPrice != nil {
				opts = append(opts, WithCurrentPrice(*in.CurrentPrice))
			}
			pos, err := Compute(in.Meta, in.Transactions, opts...)
			if err != nil {
				return err
			}
			out[i] = pos
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
