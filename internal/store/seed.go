package store

import (
	"context"
	"fmt"
	"time"

	"journal/internal/domain"
)

type seedFill struct {
	kind   domain.TransactionKind
	date   string
	shares int64
	price  float64
}

type seedPosition struct {
	meta  domain.PositionMeta
	fills []seedFill
}

var demoPositions = []seedPosition{
	{
		meta: domain.PositionMeta{Symbol: "AAPL", Type: domain.TradeTypeStock, Side: domain.SideLong, Broker: domain.BrokerTradeRepublic},
		fills: []seedFill{
			{domain.TransactionEntry, "2026-01-04T09:30:00Z", 100, 150.0},
			{domain.TransactionEntry, "2026-01-05T10:15:00Z", 50, 155.0},
			{domain.TransactionEntry, "2026-01-06T11:00:00Z", 30, 158.0},
			{domain.TransactionExit, "2026-01-08T14:30:00Z", 50, 165.0},
			{domain.TransactionExit, "2026-01-09T13:00:00Z", 30, 170.0},
		},
	},
	{
		meta: domain.PositionMeta{Symbol: "TSLA", Type: domain.TradeTypeStock, Side: domain.SideLong, Broker: domain.BrokerScalableCapital},
		fills: []seedFill{
			{domain.TransactionEntry, "2026-01-03T09:45:00Z", 50, 245.30},
			{domain.TransactionExit, "2026-01-07T15:00:00Z", 20, 262.50},
			{domain.TransactionExit, "2026-01-09T11:20:00Z", 15, 276.40},
		},
	},
	{
		meta: domain.PositionMeta{Symbol: "NVDA", Type: domain.TradeTypeStock, Side: domain.SideShort, Broker: domain.BrokerInteractiveBrokers},
		fills: []seedFill{
			{domain.TransactionEntry, "2026-01-02T09:00:00Z", 100, 485.0},
			{domain.TransactionExit, "2026-01-04T10:30:00Z", 60, 470.0},
			{domain.TransactionExit, "2026-01-06T14:00:00Z", 40, 458.75},
		},
	},
	{
		meta: domain.PositionMeta{Symbol: "MSFT", Type: domain.TradeTypeStock, Side: domain.SideLong, Broker: domain.BrokerDegiro},
		fills: []seedFill{
			{domain.TransactionEntry, "2026-01-05T10:00:00Z", 50, 375.0},
			{domain.TransactionEntry, "2026-01-08T10:30:00Z", 25, 390.0},
		},
	},
}

type seedTrade struct {
	symbol     string
	tradeType  domain.TradeType
	side       domain.Side
	broker     domain.Broker
	shares     int64
	entryDate  string
	entryPrice float64
	exitDate   string
	exitPrice  float64
}

var demoTrades = []seedTrade{
	{"SAP", domain.TradeTypeStock, domain.SideLong, domain.BrokerComdirect, 40, "2025-11-03T09:15:00Z", 228.40, "2025-11-21T16:00:00Z", 241.10},
	{"BTC", domain.TradeTypeCrypto, domain.SideLong, domain.BrokerKraken, 1, "2025-11-10T18:00:00Z", 91250.0, "2025-12-01T08:30:00Z", 86400.0},
	{"DAX Put", domain.TradeTypeWarrant, domain.SideLong, domain.BrokerFlatex, 500, "2025-12-02T10:05:00Z", 1.84, "2025-12-05T15:45:00Z", 2.31},
	{"TSLA", domain.TradeTypeStock, domain.SideShort, domain.BrokerInteractiveBrokers, 25, "2025-12-10T15:40:00Z", 452.10, "2025-12-18T20:55:00Z", 431.75},
	{"ETH", domain.TradeTypeCrypto, domain.SideLong, domain.BrokerCoinbase, 3, "2026-01-06T12:00:00Z", 3120.0, "", 0},
	{"Gold Zertifikat", domain.TradeTypeCertificate, domain.SideLong, domain.BrokerING, 120, "2026-01-07T09:05:00Z", 38.92, "", 0},
}

// Seed loads demo trades and positions into an empty store.
func Seed(ctx context.Context, s Store) error {
	for _, d := range demoTrades {
		entryDate, err := time.Parse(time.RFC3339, d.entryDate)
		if err != nil {
			return fmt.Errorf("seed trade %s: %w", d.symbol, err)
		}
		t := &domain.Trade{
			Symbol:     d.symbol,
			Type:       d.tradeType,
			Side:       d.side,
			Broker:     d.broker,
			Shares:     d.shares,
			EntryDate:  entryDate,
			EntryPrice: d.entryPrice,
			CreatedAt:  entryDate,
		}
		if d.exitDate != "" {
			exitDate, err := time.Parse(time.RFC3339, d.exitDate)
			if err != nil {
				return fmt.Errorf("seed trade %s: %w", d.symbol, err)
			}
			price := d.exitPrice
			t.ExitDate = &exitDate
			t.ExitPrice = &price
		}
		if err := s.CreateTrade(ctx, t); err != nil {
			return fmt.Errorf("seed trade %s: %w", d.symbol, err)
		}
	}

	for _, d := range demoPositions {
		txns := make([]domain.Transaction, len(d.fills))
		for i, f := range d.fills {
			ts, err := time.Parse(time.RFC3339, f.date)
			if err != nil {
				return fmt.Errorf("seed position %s: %w", d.meta.Symbol, err)
			}
			txns[i] = domain.Transaction{Kind: f.kind, Timestamp: ts, Shares: f.shares, Price: f.price, CreatedAt: ts}
		}

		meta := d.meta
		meta.CreatedAt = txns[0].Timestamp
		pos, err := s.CreatePosition(ctx, meta, txns[0])
		if err != nil {
			return fmt.Errorf("seed position %s: %w", d.meta.Symbol, err)
		}
		for _, txn := range txns[1:] {
			if _, err := s.AppendTransaction(ctx, pos.ID, txn); err != nil {
				return fmt.Errorf("seed position %s: %w", d.meta.Symbol, err)
			}
		}
	}
	return nil
}
