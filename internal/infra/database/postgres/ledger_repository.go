package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/snowbot/internal/domain/trading"
)

// LedgerRepository implements trading.LedgerRepository on the virtual_* tables
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new LedgerRepository
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// GetAccount returns the single account row
func (r *LedgerRepository) GetAccount(ctx context.Context) (*trading.Account, error) {
	query := `
		SELECT initial_balance, balance, realized_pnl, updated_at
		FROM trade.virtual_account
		WHERE id = 1
	`

	acc := &trading.Account{}
	err := r.pool.QueryRow(ctx, query).Scan(
		&acc.InitialBalance,
		&acc.Cash,
		&acc.RealizedPnL,
		&acc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, trading.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return acc, nil
}

// CreateAccount inserts the account row if none exists and returns it
func (r *LedgerRepository) CreateAccount(ctx context.Context, initialBalance int64) (*trading.Account, error) {
	query := `
		INSERT INTO trade.virtual_account (id, initial_balance, balance, realized_pnl, updated_at)
		VALUES (1, $1, $1, 0, NOW())
		ON CONFLICT (id) DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, query, initialBalance); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return r.GetAccount(ctx)
}

const positionColumns = `
	item_cd, COALESCE(item_nm, ''), qty, avg_price, current_price,
	eval_amt, profit, profit_rate, COALESCE(buy_date, ''), updated_at
`

func scanPosition(row pgx.Row) (*trading.Position, error) {
	p := &trading.Position{}
	err := row.Scan(
		&p.Symbol,
		&p.Name,
		&p.Qty,
		&p.AvgPrice,
		&p.CurrentPrice,
		&p.EvalAmount,
		&p.UnrealizedPnL,
		&p.PnLRate,
		&p.AcquiredOn,
		&p.UpdatedAt,
	)
	return p, err
}

// ListPositions returns all held positions ordered by symbol
func (r *LedgerRepository) ListPositions(ctx context.Context) ([]*trading.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM trade.virtual_holding WHERE qty > 0 ORDER BY item_cd ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var positions []*trading.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return positions, nil
}

// GetPosition returns one position
func (r *LedgerRepository) GetPosition(ctx context.Context, symbol string) (*trading.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM trade.virtual_holding WHERE item_cd = $1`

	p, err := scanPosition(r.pool.QueryRow(ctx, query, symbol))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", symbol, trading.ErrNoPosition)
		}
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

// UpdatePrices stores refreshed valuations in one batch
func (r *LedgerRepository) UpdatePrices(ctx context.Context, positions []*trading.Position) error {
	query := `
		UPDATE trade.virtual_holding
		SET current_price = $2,
			eval_amt = $3,
			profit = $4,
			profit_rate = $5,
			updated_at = $6
		WHERE item_cd = $1
	`

	batch := &pgx.Batch{}
	for _, p := range positions {
		batch.Queue(query, p.Symbol, p.CurrentPrice, p.EvalAmount, p.UnrealizedPnL, p.PnLRate, p.UpdatedAt)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("update prices: %w", err)
	}
	return nil
}

// Apply writes cash, the position change and the trade in one transaction
func (r *LedgerRepository) Apply(ctx context.Context, m *trading.LedgerMutation) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE trade.virtual_account
			SET balance = $1, realized_pnl = $2, updated_at = NOW()
			WHERE id = 1
		`, m.Cash, m.RealizedPnL)
		if err != nil {
			return fmt.Errorf("update account: %w", err)
		}

		if p := m.UpsertPosition; p != nil {
			_, err := tx.Exec(ctx, `
				INSERT INTO trade.virtual_holding (
					item_cd, item_nm, qty, avg_price, current_price,
					eval_amt, profit, profit_rate, buy_date, updated_at
				)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				ON CONFLICT (item_cd)
				DO UPDATE SET
					qty = EXCLUDED.qty,
					avg_price = EXCLUDED.avg_price,
					current_price = EXCLUDED.current_price,
					eval_amt = EXCLUDED.eval_amt,
					profit = EXCLUDED.profit,
					profit_rate = EXCLUDED.profit_rate,
					updated_at = EXCLUDED.updated_at
			`,
				p.Symbol,
				p.Name,
				p.Qty,
				p.AvgPrice,
				p.CurrentPrice,
				p.EvalAmount,
				p.UnrealizedPnL,
				p.PnLRate,
				p.AcquiredOn,
				p.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("upsert position: %w", err)
			}
		}

		if m.DeleteSymbol != "" {
			if _, err := tx.Exec(ctx, `DELETE FROM trade.virtual_holding WHERE item_cd = $1`, m.DeleteSymbol); err != nil {
				return fmt.Errorf("delete position: %w", err)
			}
		}

		if m.Trade != nil {
			if err := insertTrade(ctx, tx, m.Trade); err != nil {
				return err
			}
		}
		return nil
	})
}

// Reset deletes all positions and resets the account to initialBalance
func (r *LedgerRepository) Reset(ctx context.Context, initialBalance int64) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM trade.virtual_holding`); err != nil {
			return fmt.Errorf("delete positions: %w", err)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO trade.virtual_account (id, initial_balance, balance, realized_pnl, updated_at)
			VALUES (1, $1, $1, 0, NOW())
			ON CONFLICT (id) DO UPDATE SET
				initial_balance = EXCLUDED.initial_balance,
				balance = EXCLUDED.balance,
				realized_pnl = 0,
				updated_at = NOW()
		`, initialBalance)
		if err != nil {
			return fmt.Errorf("reset account: %w", err)
		}
		return nil
	})
}

// ListTrades returns the latest paper trades, newest first
func (r *LedgerRepository) ListTrades(ctx context.Context, limit int) ([]*trading.TradeRecord, error) {
	return listTrades(ctx, r.pool, string(trading.ModePaper), limit)
}
