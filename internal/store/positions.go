package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"journal/internal/domain"
	"journal/internal/position"
)

const transactionColumns = `id, position_id, kind, timestamp, shares, price, value, pnl, pnl_percent,
	position_avg_price, position_total_shares, notes, created_at`

// CreatePosition inserts a position together with its opening entry.
func (r *Repository) CreatePosition(ctx context.Context, meta domain.PositionMeta, first domain.Transaction) (*domain.Position, error) {
	pos, err := preparePosition(&meta, &first, r.now())
	if err != nil {
		return nil, err
	}

	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO journal_positions (id, symbol, type, side, broker, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, meta.ID, meta.Symbol, string(meta.Type), string(meta.Side), string(meta.Broker),
			meta.CreatedAt, meta.UpdatedAt)
		if isUniqueViolation(err) {
			return fmt.Errorf("position %s: %w", meta.ID, ErrAlreadyExists)
		}
		if err != nil {
			return fmt.Errorf("insert position: %w", err)
		}
		return insertTransaction(ctx, tx, &pos.Transactions[0])
	})
	if err != nil {
		return nil, err
	}
	return pos, nil
}

// GetPosition returns a stored position with its transactions in processing
// order.
func (r *Repository) GetPosition(ctx context.Context, id string) (*PositionRecord, error) {
	var rec *PositionRecord
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		rec, err = loadPosition(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListPositions returns all positions, newest first.
func (r *Repository) ListPositions(ctx context.Context) ([]PositionRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, symbol, type, side, broker, created_at, updated_at
		FROM journal_positions
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	metas, err := pgx.CollectRows(rows, scanMeta)
	if err != nil {
		return nil, fmt.Errorf("scan positions: %w", err)
	}

	byID := make(map[string]int, len(metas))
	records := make([]PositionRecord, len(metas))
	for i, m := range metas {
		records[i] = PositionRecord{Meta: m, Transactions: []domain.Transaction{}}
		byID[m.ID] = i
	}

	rows, err = r.pool.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM journal_transactions
		ORDER BY position_id, timestamp, seq
	`)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	txns, err := pgx.CollectRows(rows, scanTransaction)
	if err != nil {
		return nil, fmt.Errorf("scan transactions: %w", err)
	}
	for _, t := range txns {
		if i, ok := byID[t.PositionID]; ok {
			records[i].Transactions = append(records[i].Transactions, t)
		}
	}

	return records, nil
}

// AppendTransaction adds a fill to a position. The position row is locked for
// the duration so concurrent appends are applied one after the other, and the
// append is rejected when the resulting sequence is invalid.
func (r *Repository) AppendTransaction(ctx context.Context, positionID string, txn domain.Transaction) (*domain.Position, error) {
	var pos *domain.Position
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rec, err := loadPosition(ctx, tx, positionID, true)
		if err != nil {
			return err
		}

		now := r.now()
		prepareTransaction(&txn, positionID, now)
		for _, existing := range rec.Transactions {
			if existing.ID == txn.ID {
				return fmt.Errorf("transaction %s: %w", txn.ID, ErrAlreadyExists)
			}
		}
		rec.Meta.UpdatedAt = now

		pos, err = position.Compute(rec.Meta, append(rec.Transactions, txn))
		if err != nil {
			return fmt.Errorf("append transaction: %w", err)
		}

		batch := &pgx.Batch{}
		batch.Queue("UPDATE journal_positions SET updated_at = $2 WHERE id = $1", positionID, now)
		for i := range pos.Transactions {
			t := &pos.Transactions[i]
			if t.ID == txn.ID {
				queueInsertTransaction(batch, t)
				continue
			}
			batch.Queue(`
				UPDATE journal_transactions
				SET pnl = $2, pnl_percent = $3, position_avg_price = $4, position_total_shares = $5
				WHERE id = $1
			`, t.ID, t.PnL, t.PnLPercent, t.PositionAvgPrice, t.PositionTotalShares)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("transaction %s: %w", txn.ID, ErrAlreadyExists)
			}
			return fmt.Errorf("store transactions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pos, nil
}

// DeletePosition removes a position; its transactions cascade.
func (r *Repository) DeletePosition(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM journal_positions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func loadPosition(ctx context.Context, tx pgx.Tx, id string, forUpdate bool) (*PositionRecord, error) {
	query := `
		SELECT id, symbol, type, side, broker, created_at, updated_at
		FROM journal_positions
		WHERE id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}
	rows, err := tx.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("query position: %w", err)
	}
	meta, err := pgx.CollectExactlyOneRow(rows, scanMeta)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan position: %w", err)
	}

	rows, err = tx.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM journal_transactions
		WHERE position_id = $1
		ORDER BY timestamp, seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	txns, err := pgx.CollectRows(rows, scanTransaction)
	if err != nil {
		return nil, fmt.Errorf("scan transactions: %w", err)
	}

	return &PositionRecord{Meta: meta, Transactions: txns}, nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	batch := &pgx.Batch{}
	queueInsertTransaction(batch, t)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("transaction %s: %w", t.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func queueInsertTransaction(batch *pgx.Batch, t *domain.Transaction) {
	batch.Queue(`
		INSERT INTO journal_transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, t.ID, t.PositionID, string(t.Kind), t.Timestamp, t.Shares, t.Price, t.Value,
		t.PnL, t.PnLPercent, t.PositionAvgPrice, t.PositionTotalShares, t.Notes, t.CreatedAt)
}

func scanMeta(row pgx.CollectableRow) (domain.PositionMeta, error) {
	var m domain.PositionMeta
	var tradeType, side, broker string
	err := row.Scan(&m.ID, &m.Symbol, &tradeType, &side, &broker, &m.CreatedAt, &m.UpdatedAt)
	m.Type = domain.TradeType(tradeType)
	m.Side = domain.Side(side)
	m.Broker = domain.Broker(broker)
	return m, err
}

func scanTransaction(row pgx.CollectableRow) (domain.Transaction, error) {
	var t domain.Transaction
	var kind string
	err := row.Scan(
		&t.ID, &t.PositionID, &kind, &t.Timestamp, &t.Shares, &t.Price, &t.Value,
		&t.PnL, &t.PnLPercent, &t.PositionAvgPrice, &t.PositionTotalShares, &t.Notes, &t.CreatedAt,
	)
	t.Kind = domain.TransactionKind(kind)
	return t, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
