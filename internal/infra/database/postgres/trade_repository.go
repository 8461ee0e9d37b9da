package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/snowbot/internal/domain/trading"
)

// execer is satisfied by *pgxpool.Pool and pgx.Tx
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TradeRepository implements trading.TradeRepository
type TradeRepository struct {
	pool *pgxpool.Pool
}

// NewTradeRepository creates a new TradeRepository
func NewTradeRepository(pool *pgxpool.Pool) *TradeRepository {
	return &TradeRepository{pool: pool}
}

// Append inserts a trade record
func (r *TradeRepository) Append(ctx context.Context, t *trading.TradeRecord) error {
	return insertTrade(ctx, r.pool, t)
}

func insertTrade(ctx context.Context, db execer, t *trading.TradeRecord) error {
	query := `
		INSERT INTO trade.trade_history (
			order_no, item_cd, item_nm, trade_date, trade_time, trade_type,
			qty, price, amount, fee, tax, profit, profit_rate,
			mode, trade_source, trade_reason, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id
	`

	err := db.QueryRow(ctx, query,
		t.OrderNo,
		t.Symbol,
		t.Name,
		t.TradeDate,
		t.TradeTime,
		string(t.Side),
		t.Qty,
		t.Price,
		t.Amount,
		t.Fee,
		t.Tax,
		t.Profit,
		t.ProfitRate,
		t.Mode,
		string(t.Source),
		t.Reason,
		t.CreatedAt,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// BoughtSymbols returns symbols with a buy record on date
func (r *TradeRepository) BoughtSymbols(ctx context.Context, date string) (map[string]bool, error) {
	query := `
		SELECT DISTINCT item_cd
		FROM trade.trade_history
		WHERE trade_date = $1 AND trade_type = $2
	`

	rows, err := r.pool.Query(ctx, query, date, string(trading.SideBuy))
	if err != nil {
		return nil, fmt.Errorf("query bought symbols: %w", err)
	}
	defer rows.Close()

	bought := make(map[string]bool)
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("scan bought symbol: %w", err)
		}
		bought[symbol] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return bought, nil
}

// List returns the latest trades of every mode, newest first
func (r *TradeRepository) List(ctx context.Context, limit int) ([]*trading.TradeRecord, error) {
	return listTrades(ctx, r.pool, "", limit)
}

func listTrades(ctx context.Context, pool *pgxpool.Pool, mode string, limit int) ([]*trading.TradeRecord, error) {
	query := `
		SELECT
			id, COALESCE(order_no, ''), item_cd, COALESCE(item_nm, ''),
			trade_date, trade_time, trade_type, qty, price, amount,
			fee, tax, profit, profit_rate, mode, trade_source,
			COALESCE(trade_reason, ''), created_at
		FROM trade.trade_history
		WHERE ($1 = '' OR mode = $1)
		ORDER BY trade_date DESC, trade_time DESC, id DESC
		LIMIT $2
	`

	rows, err := pool.Query(ctx, query, mode, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []*trading.TradeRecord
	for rows.Next() {
		t := &trading.TradeRecord{}
		var side, source string
		err := rows.Scan(
			&t.ID,
			&t.OrderNo,
			&t.Symbol,
			&t.Name,
			&t.TradeDate,
			&t.TradeTime,
			&side,
			&t.Qty,
			&t.Price,
			&t.Amount,
			&t.Fee,
			&t.Tax,
			&t.Profit,
			&t.ProfitRate,
			&t.Mode,
			&source,
			&t.Reason,
			&t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Side = trading.Side(side)
		t.Source = trading.Source(source)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return trades, nil
}
