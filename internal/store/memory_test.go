package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"journal/internal/domain"
	"journal/internal/position"
)

var base = time.Date(2026, 1, 4, 9, 30, 0, 0, time.UTC)

func newTestStore() *MemoryStore {
	s := NewMemoryStore()
	s.now = func() time.Time { return base.Add(time.Hour) }
	return s
}

func TestMemoryStore_TradeCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	exitDate := base.AddDate(0, 0, 3)
	exitPrice := 165.0
	trade := &domain.Trade{
		Symbol: "AAPL", Type: domain.TradeTypeStock, Side: domain.SideLong,
		Shares: 60, EntryDate: base, EntryPrice: 152,
		ExitDate: &exitDate, ExitPrice: &exitPrice,
	}
	if err := s.CreateTrade(ctx, trade); err != nil {
		t.Fatalf("create trade: %v", err)
	}
	if trade.ID == "" {
		t.Fatal("expected id to be assigned")
	}
	if trade.PnL == nil || *trade.PnL != 780 {
		t.Fatalf("expected pnl 780, got %v", trade.PnL)
	}
	if trade.Status != domain.TradeStatusClosed {
		t.Errorf("expected derived status closed, got %s", trade.Status)
	}

	got, err := s.GetTrade(ctx, trade.ID)
	if err != nil {
		t.Fatalf("get trade: %v", err)
	}
	if got.Symbol != "AAPL" {
		t.Errorf("expected AAPL, got %s", got.Symbol)
	}

	newPrice := 160.0
	updated, err := s.UpdateTrade(ctx, trade.ID, TradePatch{ExitPrice: &newPrice})
	if err != nil {
		t.Fatalf("update trade: %v", err)
	}
	if updated.PnL == nil || *updated.PnL != 480 {
		t.Errorf("expected recomputed pnl 480, got %v", updated.PnL)
	}

	if err := s.DeleteTrade(ctx, trade.ID); err != nil {
		t.Fatalf("delete trade: %v", err)
	}
	if _, err := s.GetTrade(ctx, trade.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteTrade(ctx, trade.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestMemoryStore_UpdateTradeRejectsInvalidSequence(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	trade := &domain.Trade{Symbol: "SAP", Side: domain.SideLong, Shares: 50, EntryDate: base, EntryPrice: 10}
	if err := s.CreateTrade(ctx, trade); err != nil {
		t.Fatalf("create trade: %v", err)
	}

	exitDate := base.AddDate(0, 0, 1)
	exitPrice := 12.0
	exitShares := int64(60)
	_, err := s.UpdateTrade(ctx, trade.ID, TradePatch{ExitDate: &exitDate, ExitPrice: &exitPrice, ExitShares: &exitShares})
	if !errors.Is(err, position.ErrInvalidTransactionSequence) {
		t.Fatalf("expected ErrInvalidTransactionSequence, got %v", err)
	}

	got, _ := s.GetTrade(ctx, trade.ID)
	if got.ExitPrice != nil {
		t.Error("rejected update was stored")
	}
}

func TestMemoryStore_ListTradesFilterAndOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	for i, tt := range []domain.TradeType{domain.TradeTypeStock, domain.TradeTypeCrypto, domain.TradeTypeStock} {
		trade := &domain.Trade{Symbol: "X", Type: tt, Side: domain.SideLong, Shares: 1, EntryDate: base.AddDate(0, 0, i), EntryPrice: 1}
		if err := s.CreateTrade(ctx, trade); err != nil {
			t.Fatalf("create trade: %v", err)
		}
	}

	all, _ := s.ListTrades(ctx, TradeFilter{})
	if len(all) != 3 {
		t.Fatalf("expected 3 trades, got %d", len(all))
	}
	if !all[0].EntryDate.After(all[1].EntryDate) || !all[1].EntryDate.After(all[2].EntryDate) {
		t.Error("expected newest entry first")
	}

	stocks, _ := s.ListTrades(ctx, TradeFilter{Type: string(domain.TradeTypeStock)})
	if len(stocks) != 2 {
		t.Errorf("expected 2 stock trades, got %d", len(stocks))
	}
	closed, _ := s.ListTrades(ctx, TradeFilter{Status: string(domain.TradeStatusClosed)})
	if len(closed) != 0 {
		t.Errorf("expected 0 closed trades, got %d", len(closed))
	}
}

func TestMemoryStore_ListTradesPagination(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	// Two trades share an entry date; ties are listed by descending ID.
	for i, id := range []string{"t-a", "t-b", "t-c", "t-d", "t-e"} {
		day := i
		if id == "t-e" {
			day = 3
		}
		trade := &domain.Trade{ID: id, Symbol: "X", Side: domain.SideLong, Shares: 1, EntryDate: base.AddDate(0, 0, day), EntryPrice: 1}
		if err := s.CreateTrade(ctx, trade); err != nil {
			t.Fatalf("create trade: %v", err)
		}
	}

	var got []string
	filter := TradeFilter{Limit: 2}
	for page := 0; page < 5; page++ {
		trades, err := s.ListTrades(ctx, filter)
		if err != nil {
			t.Fatalf("page %d: %v", page, err)
		}
		for _, tr := range trades {
			got = append(got, tr.ID)
		}
		if len(trades) < filter.Limit {
			break
		}
		filter.Cursor = TradeCursor(&trades[len(trades)-1])
	}

	want := []string{"t-e", "t-d", "t-c", "t-b", "t-a"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	if _, err := s.ListTrades(ctx, TradeFilter{Cursor: "%%%"}); !errors.Is(err, ErrInvalidCursor) {
		t.Errorf("expected ErrInvalidCursor, got %v", err)
	}
}

func TestDecodeCursor(t *testing.T) {
	ts := time.Date(2026, 1, 4, 9, 30, 0, 123, time.UTC)
	gotTS, gotID, err := decodeCursor(encodeCursor(ts, "trade-1"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !gotTS.Equal(ts) || gotID != "trade-1" {
		t.Errorf("expected %v trade-1, got %v %s", ts, gotTS, gotID)
	}

	for _, bad := range []string{"not base64!", "bm8tc2VwYXJhdG9y", "eHx5"} {
		if _, _, err := decodeCursor(bad); !errors.Is(err, ErrInvalidCursor) {
			t.Errorf("%q: expected ErrInvalidCursor, got %v", bad, err)
		}
	}
}

func TestMemoryStore_PositionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	meta := domain.PositionMeta{Symbol: "AAPL", Type: domain.TradeTypeStock, Side: domain.SideLong}
	pos, err := s.CreatePosition(ctx, meta, domain.Transaction{Kind: domain.TransactionEntry, Timestamp: base, Shares: 100, Price: 150})
	if err != nil {
		t.Fatalf("create position: %v", err)
	}
	if pos.ID == "" || pos.Status != domain.PositionStatusOpen {
		t.Fatalf("unexpected position: %+v", pos)
	}

	if _, err := s.AppendTransaction(ctx, pos.ID, domain.Transaction{Kind: domain.TransactionEntry, Timestamp: base.AddDate(0, 0, 1), Shares: 50, Price: 156}); err != nil {
		t.Fatalf("append entry: %v", err)
	}
	pos, err = s.AppendTransaction(ctx, pos.ID, domain.Transaction{Kind: domain.TransactionExit, Timestamp: base.AddDate(0, 0, 2), Shares: 60, Price: 165})
	if err != nil {
		t.Fatalf("append exit: %v", err)
	}
	if pos.RealizedPnL != 780 || pos.RemainingShares != 90 || pos.Status != domain.PositionStatusPartial {
		t.Errorf("unexpected aggregate: realized %v remaining %d status %s", pos.RealizedPnL, pos.RemainingShares, pos.Status)
	}

	_, err = s.AppendTransaction(ctx, pos.ID, domain.Transaction{Kind: domain.TransactionExit, Timestamp: base.AddDate(0, 0, 3), Shares: 91, Price: 170})
	if !errors.Is(err, position.ErrInvalidTransactionSequence) {
		t.Fatalf("expected ErrInvalidTransactionSequence, got %v", err)
	}

	rec, err := s.GetPosition(ctx, pos.ID)
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if len(rec.Transactions) != 3 {
		t.Fatalf("expected rejected append to leave 3 transactions, got %d", len(rec.Transactions))
	}
	last := rec.Transactions[2]
	if last.PnL == nil || *last.PnL != 780 || last.PositionTotalShares != 90 || last.PositionID != pos.ID {
		t.Errorf("expected stored derived fields, got %+v", last)
	}

	if _, err := s.AppendTransaction(ctx, "missing", domain.Transaction{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := s.DeletePosition(ctx, pos.ID); err != nil {
		t.Fatalf("delete position: %v", err)
	}
	list, _ := s.ListPositions(ctx)
	if len(list) != 0 {
		t.Errorf("expected no positions after delete, got %d", len(list))
	}
}

func TestMemoryStore_CreatePositionRequiresEntry(t *testing.T) {
	s := newTestStore()
	_, err := s.CreatePosition(context.Background(), domain.PositionMeta{Symbol: "X", Side: domain.SideLong},
		domain.Transaction{Kind: domain.TransactionExit, Timestamp: base, Shares: 1, Price: 1})
	if !errors.Is(err, position.ErrInvalidTransactionSequence) {
		t.Fatalf("expected ErrInvalidTransactionSequence, got %v", err)
	}
}

func TestMemoryStore_TransactionIDsUniqueAcrossPositions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	first, err := s.CreatePosition(ctx, domain.PositionMeta{Symbol: "AAPL", Side: domain.SideLong},
		domain.Transaction{ID: "txn-1", Kind: domain.TransactionEntry, Timestamp: base, Shares: 10, Price: 100})
	if err != nil {
		t.Fatalf("create position: %v", err)
	}
	second, err := s.CreatePosition(ctx, domain.PositionMeta{Symbol: "MSFT", Side: domain.SideLong},
		domain.Transaction{ID: "txn-2", Kind: domain.TransactionEntry, Timestamp: base, Shares: 10, Price: 400})
	if err != nil {
		t.Fatalf("create position: %v", err)
	}

	_, err = s.AppendTransaction(ctx, second.ID, domain.Transaction{
		ID: "txn-1", Kind: domain.TransactionEntry, Timestamp: base.Add(time.Minute), Shares: 5, Price: 405,
	})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("append: expected ErrAlreadyExists, got %v", err)
	}

	_, err = s.CreatePosition(ctx, domain.PositionMeta{Symbol: "NVDA", Side: domain.SideLong},
		domain.Transaction{ID: "txn-2", Kind: domain.TransactionEntry, Timestamp: base, Shares: 1, Price: 100})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("create: expected ErrAlreadyExists, got %v", err)
	}

	rec, _ := s.GetPosition(ctx, second.ID)
	if len(rec.Transactions) != 1 {
		t.Errorf("expected rejected append to leave 1 transaction, got %d", len(rec.Transactions))
	}

	// Deleting a position frees its transaction IDs.
	if err := s.DeletePosition(ctx, first.ID); err != nil {
		t.Fatalf("delete position: %v", err)
	}
	if _, err := s.AppendTransaction(ctx, second.ID, domain.Transaction{
		ID: "txn-1", Kind: domain.TransactionEntry, Timestamp: base.Add(time.Minute), Shares: 5, Price: 405,
	}); err != nil {
		t.Errorf("expected freed id to be accepted, got %v", err)
	}
}

func TestMemoryStore_ConcurrentAppendsNeverOversell(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	pos, err := s.CreatePosition(ctx, domain.PositionMeta{Symbol: "AAPL", Side: domain.SideLong},
		domain.Transaction{Kind: domain.TransactionEntry, Timestamp: base, Shares: 10, Price: 100})
	if err != nil {
		t.Fatalf("create position: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AppendTransaction(ctx, pos.ID, domain.Transaction{
				Kind: domain.TransactionExit, Timestamp: base.Add(time.Minute), Shares: 1, Price: 101,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, rejected int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, position.ErrInvalidTransactionSequence):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 10 || rejected != 10 {
		t.Errorf("expected 10 accepted and 10 rejected exits, got %d and %d", ok, rejected)
	}
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	if err := Seed(ctx, s); err != nil {
		t.Fatalf("seed: %v", err)
	}

	trades, _ := s.ListTrades(ctx, TradeFilter{})
	if len(trades) != len(demoTrades) {
		t.Errorf("expected %d trades, got %d", len(demoTrades), len(trades))
	}
	positions, _ := s.ListPositions(ctx)
	if len(positions) != len(demoPositions) {
		t.Errorf("expected %d positions, got %d", len(demoPositions), len(positions))
	}
}
