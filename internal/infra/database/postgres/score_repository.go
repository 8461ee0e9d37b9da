package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/snowbot/internal/domain/trading"
)

// ScoreRepository implements trading.ScoreRepository on trade.evaluation_result
type ScoreRepository struct {
	pool *pgxpool.Pool
}

// NewScoreRepository creates a new ScoreRepository
func NewScoreRepository(pool *pgxpool.Pool) *ScoreRepository {
	return &ScoreRepository{pool: pool}
}

// Upsert stores a result keyed by (symbol, base date)
func (r *ScoreRepository) Upsert(ctx context.Context, s *trading.ScoreResult) error {
	query := `
		INSERT INTO trade.evaluation_result (
			item_cd, base_date, item_nm,
			sheet_score, trend_score, price_score, kpi_score,
			buy_score, avls_score, per_score, pbr_score,
			total_score, is_buy_candidate, current_price,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
		ON CONFLICT (item_cd, base_date)
		DO UPDATE SET
			item_nm = EXCLUDED.item_nm,
			sheet_score = EXCLUDED.sheet_score,
			trend_score = EXCLUDED.trend_score,
			price_score = EXCLUDED.price_score,
			kpi_score = EXCLUDED.kpi_score,
			buy_score = EXCLUDED.buy_score,
			avls_score = EXCLUDED.avls_score,
			per_score = EXCLUDED.per_score,
			pbr_score = EXCLUDED.pbr_score,
			total_score = EXCLUDED.total_score,
			is_buy_candidate = EXCLUDED.is_buy_candidate,
			current_price = EXCLUDED.current_price,
			updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query,
		s.Symbol,
		s.BaseDate,
		s.Name,
		s.Fundamentals,
		s.Momentum,
		s.PriceTrend,
		s.Technical,
		s.SupplyDemand,
		s.MarketCap,
		s.PER,
		s.PBR,
		s.Total,
		s.BuyCandidate,
		s.ClosePrice,
	)
	if err != nil {
		return fmt.Errorf("upsert score %s: %w", s.Symbol, err)
	}
	return nil
}

const scoreColumns = `
	item_cd, base_date, COALESCE(item_nm, ''),
	sheet_score, trend_score, price_score, kpi_score,
	buy_score, avls_score, per_score, pbr_score,
	total_score, is_buy_candidate, current_price
`

func scanScore(row pgx.Row) (*trading.ScoreResult, error) {
	s := &trading.ScoreResult{}
	err := row.Scan(
		&s.Symbol,
		&s.BaseDate,
		&s.Name,
		&s.Fundamentals,
		&s.Momentum,
		&s.PriceTrend,
		&s.Technical,
		&s.SupplyDemand,
		&s.MarketCap,
		&s.PER,
		&s.PBR,
		&s.Total,
		&s.BuyCandidate,
		&s.ClosePrice,
	)
	return s, err
}

// ListBuyCandidates returns candidates of baseDate with total >= minTotal,
// highest score first
func (r *ScoreRepository) ListBuyCandidates(ctx context.Context, baseDate string, minTotal, limit int) ([]*trading.ScoreResult, error) {
	query := `SELECT ` + scoreColumns + `
		FROM trade.evaluation_result
		WHERE base_date = $1
		  AND is_buy_candidate
		  AND total_score >= $2
		ORDER BY total_score DESC, item_cd ASC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, baseDate, minTotal, limit)
	if err != nil {
		return nil, fmt.Errorf("query buy candidates: %w", err)
	}
	defer rows.Close()

	var results []*trading.ScoreResult
	for rows.Next() {
		s, err := scanScore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return results, nil
}

// Get returns a single result
func (r *ScoreRepository) Get(ctx context.Context, symbol, baseDate string) (*trading.ScoreResult, error) {
	query := `SELECT ` + scoreColumns + ` FROM trade.evaluation_result WHERE item_cd = $1 AND base_date = $2`

	s, err := scanScore(r.pool.QueryRow(ctx, query, symbol, baseDate))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("score %s@%s: %w", symbol, baseDate, trading.ErrDataUnavailable)
		}
		return nil, fmt.Errorf("get score: %w", err)
	}
	return s, nil
}
