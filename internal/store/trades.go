package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"journal/internal/domain"
)

const tradeColumns = `id, symbol, type, status, shares, side, broker, entry_date, entry_price,
	entry_shares, exit_date, exit_price, exit_shares, pnl, pnl_percent, created_at, updated_at`

// ListTrades returns matching trades, newest entry date first.
func (r *Repository) ListTrades(ctx context.Context, filter TradeFilter) ([]domain.Trade, error) {
	var conditions []string
	var args []interface{}
	argIdx := 1

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIdx))
		args = append(args, filter.Type)
		argIdx++
	}

	// Keyset pagination: cursor is base64-encoded "entry_date|trade_id"
	if filter.Cursor != "" {
		cursorTS, cursorID, err := decodeCursor(filter.Cursor)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, fmt.Sprintf("(entry_date, id) < ($%d, $%d)", argIdx, argIdx+1))
		args = append(args, cursorTS, cursorID)
		argIdx += 2
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	limit := ""
	if filter.Limit > 0 {
		limit = fmt.Sprintf("LIMIT $%d", argIdx)
		args = append(args, filter.Limit)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM journal_trades
		%s
		ORDER BY entry_date DESC, id DESC
		%s
	`, tradeColumns, where, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	trades := []domain.Trade{}
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	return trades, nil
}

// GetTrade returns a trade by ID.
func (r *Repository) GetTrade(ctx context.Context, id string) (*domain.Trade, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+tradeColumns+" FROM journal_trades WHERE id = $1", id)
	return scanTrade(row)
}

// CreateTrade inserts a new trade with derived P&L.
func (r *Repository) CreateTrade(ctx context.Context, trade *domain.Trade) error {
	if err := prepareTrade(trade, r.now()); err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO journal_trades (`+tradeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO NOTHING
	`, tradeArgs(trade)...)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trade %s: %w", trade.ID, ErrAlreadyExists)
	}
	return nil
}

// UpdateTrade applies a partial update and recomputes the trade's P&L inside
// a transaction holding the row lock.
func (r *Repository) UpdateTrade(ctx context.Context, id string, patch TradePatch) (*domain.Trade, error) {
	var updated *domain.Trade
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, "SELECT "+tradeColumns+" FROM journal_trades WHERE id = $1 FOR UPDATE", id)
		t, err := scanTrade(row)
		if err != nil {
			return err
		}

		patch.Apply(t)
		if err := prepareTrade(t, r.now()); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE journal_trades SET
				symbol = $2, type = $3, status = $4, shares = $5, side = $6, broker = $7,
				entry_date = $8, entry_price = $9, entry_shares = $10, exit_date = $11,
				exit_price = $12, exit_shares = $13, pnl = $14, pnl_percent = $15,
				created_at = $16, updated_at = $17
			WHERE id = $1
		`, tradeArgs(t)...)
		if err != nil {
			return fmt.Errorf("update trade: %w", err)
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteTrade removes a trade.
func (r *Repository) DeleteTrade(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM journal_trades WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete trade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func tradeArgs(t *domain.Trade) []interface{} {
	return []interface{}{
		t.ID, t.Symbol, string(t.Type), string(t.Status), t.Shares, string(t.Side),
		string(t.Broker), t.EntryDate, t.EntryPrice, t.EntryShares, t.ExitDate,
		t.ExitPrice, t.ExitShares, t.PnL, t.PnLPercent, t.CreatedAt, t.UpdatedAt,
	}
}

func scanTrade(row pgx.Row) (*domain.Trade, error) {
	var t domain.Trade
	var tradeType, status, side, broker string
	err := row.Scan(
		&t.ID, &t.Symbol, &tradeType, &status, &t.Shares, &side, &broker,
		&t.EntryDate, &t.EntryPrice, &t.EntryShares, &t.ExitDate, &t.ExitPrice,
		&t.ExitShares, &t.PnL, &t.PnLPercent, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan trade: %w", err)
	}
	t.Type = domain.TradeType(tradeType)
	t.Status = domain.TradeStatus(status)
	t.Side = domain.Side(side)
	t.Broker = domain.Broker(broker)
	return &t, nil
}

// TradeCursor returns the cursor that continues a listing after t.
func TradeCursor(t *domain.Trade) string {
	return encodeCursor(t.EntryDate, t.ID)
}

func encodeCursor(ts time.Time, id string) string {
	raw := fmt.Sprintf("%s|%s", ts.UTC().Format(time.RFC3339Nano), id)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: decode base64: %v", ErrInvalidCursor, err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return time.Time{}, "", fmt.Errorf("%w: bad format", ErrInvalidCursor)
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: parse timestamp: %v", ErrInvalidCursor, err)
	}
	return ts, parts[1], nil
}
