package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/snowbot/internal/domain/trading"
)

// ReferenceRepository reads the market.* tables maintained by the ingestion jobs.
// Implements trading.ReferenceReader and trading.SessionSource.
type ReferenceRepository struct {
	pool *pgxpool.Pool
}

// NewReferenceRepository creates a new ReferenceRepository
func NewReferenceRepository(pool *pgxpool.Pool) *ReferenceRepository {
	return &ReferenceRepository{pool: pool}
}

// ListSymbols returns the symbol master rows listed for date
func (r *ReferenceRepository) ListSymbols(ctx context.Context, date string) ([]*trading.Symbol, error) {
	query := `
		SELECT item_cd, COALESCE(itms_nm, ''), COALESCE(mrkt_ctg, '')
		FROM market.item_mst
		WHERE base_date = $1
		ORDER BY item_cd ASC
	`

	rows, err := r.pool.Query(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []*trading.Symbol
	for rows.Next() {
		s := &trading.Symbol{}
		if err := rows.Scan(&s.Code, &s.Name, &s.Market); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return symbols, nil
}

// LoadSnapshot joins the latest price row on or before asOf with the latest
// fundamentals row and the equity row. Zero or missing debt ratio and 52w
// rates fall back to the trading.Missing* defaults.
func (r *ReferenceRepository) LoadSnapshot(ctx context.Context, symbol, asOf string) (*trading.MarketSnapshot, error) {
	query := `
		SELECT
			p.trade_date,
			COALESCE(p.stck_clpr, 0),
			COALESCE(p.ma5, 0), COALESCE(p.ma10, 0), COALESCE(p.ma20, 0),
			COALESCE(p.ma60, 0), COALESCE(p.ma120, 0), COALESCE(p.ma240, 0),
			COALESCE(f.grs, 0),
			COALESCE(f.bsop_prfi_inrt, 0),
			COALESCE(f.roe_val, 0),
			COALESCE(NULLIF(f.lblt_rate, 0), $3),
			COALESCE(f.thtr_ntin, 0),
			COALESCE(f.rsrv_rate, 0),
			COALESCE(e.frgn_ntby_qty, 0),
			COALESCE(e.pgtr_ntby_qty, 0),
			COALESCE(e.hts_avls, 0),
			COALESCE(e.per, 0),
			COALESCE(e.pbr, 0),
			COALESCE(NULLIF(e.dryy_hgpr_vrss_prpr_rate, 0), $4),
			COALESCE(NULLIF(e.dryy_lwpr_vrss_prpr_rate, 0), $4),
			COALESCE(e.hts_frgn_ehrt, 0)
		FROM (
			SELECT *
			FROM market.item_price
			WHERE item_cd = $1 AND trade_date <= $2
			ORDER BY trade_date DESC
			LIMIT 1
		) p
		LEFT JOIN LATERAL (
			SELECT *
			FROM market.financial_sheet fs
			WHERE fs.item_cd = p.item_cd AND fs.base_date <= $2
			ORDER BY fs.base_date DESC
			LIMIT 1
		) f ON TRUE
		LEFT JOIN market.item_equity e ON e.item_cd = p.item_cd
	`

	snap := trading.NewMarketSnapshot(symbol)
	err := r.pool.QueryRow(ctx, query, symbol, asOf, trading.MissingDebtRatio, trading.MissingRate52w).Scan(
		&snap.DataDate,
		&snap.Close,
		&snap.MA5,
		&snap.MA10,
		&snap.MA20,
		&snap.MA60,
		&snap.MA120,
		&snap.MA240,
		&snap.RevenueGrowth,
		&snap.OperatingProfitGrowth,
		&snap.ROE,
		&snap.DebtRatio,
		&snap.NetIncome,
		&snap.ReserveRatio,
		&snap.ForeignNetBuyQty,
		&snap.ProgramNetBuyQty,
		&snap.MarketCap,
		&snap.PER,
		&snap.PBR,
		&snap.HighRate52w,
		&snap.LowRate52w,
		&snap.ForeignOwnershipRate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("price of %s on or before %s: %w", symbol, asOf, trading.ErrDataUnavailable)
		}
		return nil, fmt.Errorf("load snapshot %s: %w", symbol, err)
	}
	return snap, nil
}

// PriorSession returns the latest daily bar strictly before date
func (r *ReferenceRepository) PriorSession(ctx context.Context, symbol, date string) (*trading.DailyBar, error) {
	query := `
		SELECT item_cd, trade_date,
			COALESCE(stck_oprc, 0), COALESCE(stck_hgpr, 0),
			COALESCE(stck_lwpr, 0), COALESCE(stck_clpr, 0),
			COALESCE(acml_vol, 0)
		FROM market.item_price
		WHERE item_cd = $1 AND trade_date < $2
		ORDER BY trade_date DESC
		LIMIT 1
	`

	bar := &trading.DailyBar{}
	err := r.pool.QueryRow(ctx, query, symbol, date).Scan(
		&bar.Symbol,
		&bar.TradeDate,
		&bar.Open,
		&bar.High,
		&bar.Low,
		&bar.Close,
		&bar.Volume,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session of %s before %s: %w", symbol, date, trading.ErrDataUnavailable)
		}
		return nil, fmt.Errorf("prior session %s: %w", symbol, err)
	}
	return bar, nil
}

// SymbolName returns the latest listed name of symbol ("" if unknown)
func (r *ReferenceRepository) SymbolName(ctx context.Context, symbol string) (string, error) {
	query := `
		SELECT COALESCE(itms_nm, '')
		FROM market.item_mst
		WHERE item_cd = $1
		ORDER BY base_date DESC
		LIMIT 1
	`

	var name string
	err := r.pool.QueryRow(ctx, query, symbol).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("symbol name %s: %w", symbol, err)
	}
	return name, nil
}
