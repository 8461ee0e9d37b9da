package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/snowbot/internal/domain/trading"
	"github.com/wonny/snowbot/internal/infra/database/postgres"
	"github.com/wonny/snowbot/internal/pkg/config"
)

// testPool connects to TEST_DATABASE_URL and applies the schema
func testPool(t *testing.T) *postgres.Pool {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Integration test - requires PostgreSQL (TEST_DATABASE_URL)")
	}

	cfg, err := config.FromEnv()
	require.NoError(t, err)
	cfg.Database.URL = url
	cfg.Logging.FileEnabled = false

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pool.Migrate(ctx))
	_, err = pool.Exec(ctx, `
		TRUNCATE trade.virtual_account, trade.virtual_holding, trade.trade_history,
			trade.evaluation_result, system.schedule_run_log,
			market.item_mst, market.item_price, market.financial_sheet, market.item_equity
	`)
	require.NoError(t, err)
	return pool
}

func TestPool_Health(t *testing.T) {
	pool := testPool(t)

	health := pool.Health(context.Background())
	assert.NotNil(t, health)
	assert.NotEqual(t, "unhealthy", health.Status)
	assert.Greater(t, health.MaxConns, int32(0))
}

func TestLedgerRepository_ApplyIsAtomic(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := postgres.NewLedgerRepository(pool.Pool)

	_, err := repo.GetAccount(ctx)
	assert.ErrorIs(t, err, trading.ErrAccountNotFound)

	acc, err := repo.CreateAccount(ctx, 10_000_000)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_000), acc.Cash)

	now := time.Now()
	err = repo.Apply(ctx, &trading.LedgerMutation{
		Cash: 9_000_000,
		UpsertPosition: &trading.Position{
			Symbol: "005930", Name: "삼성전자", Qty: 10, AvgPrice: 100_000,
			CurrentPrice: 100_000, EvalAmount: 1_000_000, AcquiredOn: "20261015", UpdatedAt: now,
		},
		Trade: &trading.TradeRecord{
			OrderNo: "SIM20261015103000ABCDEF", Symbol: "005930", Name: "삼성전자",
			TradeDate: "20261015", TradeTime: "103000", Side: trading.SideBuy,
			Qty: 10, Price: 100_000, Amount: 1_000_000, Mode: string(trading.ModePaper),
			Source: trading.SourceManual, CreatedAt: now,
		},
	})
	require.NoError(t, err)

	// balance CHECK violation rolls back the whole mutation
	err = repo.Apply(ctx, &trading.LedgerMutation{
		Cash:         -1,
		DeleteSymbol: "005930",
		Trade: &trading.TradeRecord{
			Symbol: "005930", TradeDate: "20261015", TradeTime: "103001",
			Side: trading.SideSell, Mode: string(trading.ModePaper), Source: trading.SourceManual, CreatedAt: now,
		},
	})
	assert.Error(t, err)

	pos, err := repo.GetPosition(ctx, "005930")
	require.NoError(t, err)
	assert.Equal(t, int64(10), pos.Qty)

	trades, err := repo.ListTrades(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, trades, 1)

	bought, err := postgres.NewTradeRepository(pool.Pool).BoughtSymbols(ctx, "20261015")
	require.NoError(t, err)
	assert.True(t, bought["005930"])

	require.NoError(t, repo.Reset(ctx, 5_000_000))
	positions, err := repo.ListPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)

	_, err = repo.GetPosition(ctx, "005930")
	assert.ErrorIs(t, err, trading.ErrNoPosition)
}

func TestScoreRepository_UpsertAndCandidates(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := postgres.NewScoreRepository(pool.Pool)

	for _, s := range []*trading.ScoreResult{
		{Symbol: "000001", BaseDate: "20261015", Total: 20, BuyCandidate: true},
		{Symbol: "000002", BaseDate: "20261015", Total: 35, BuyCandidate: true},
		{Symbol: "000003", BaseDate: "20261015", Total: 40, BuyCandidate: false},
		{Symbol: "000001", BaseDate: "20261015", Total: 25, BuyCandidate: true},
	} {
		require.NoError(t, repo.Upsert(ctx, s))
	}

	got, err := repo.ListBuyCandidates(ctx, "20261015", 20, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "000002", got[0].Symbol)
	assert.Equal(t, 25, got[1].Total)

	_, err = repo.Get(ctx, "000009", "20261015")
	assert.ErrorIs(t, err, trading.ErrDataUnavailable)
}

func TestReferenceRepository_SnapshotDefaults(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := postgres.NewReferenceRepository(pool.Pool)

	_, err := pool.Exec(ctx, `
		INSERT INTO market.item_mst (item_cd, base_date, itms_nm) VALUES ('005930', '20261015', '삼성전자');
		INSERT INTO market.item_price (item_cd, trade_date, stck_hgpr, stck_lwpr, stck_clpr, ma5, ma20)
		VALUES ('005930', '20261013', 11000, 10000, 10400, 10300, 10100),
		       ('005930', '20261014', 11200, 10300, 10900, 10500, 10150);
		INSERT INTO market.financial_sheet (item_cd, base_date, lblt_rate) VALUES ('005930', '20260630', 0);
	`)
	require.NoError(t, err)

	snap, err := repo.LoadSnapshot(ctx, "005930", "20261014")
	require.NoError(t, err)
	assert.Equal(t, "20261014", snap.DataDate)
	assert.Equal(t, int64(10900), snap.Close)
	assert.Equal(t, trading.MissingDebtRatio, snap.DebtRatio)
	assert.Equal(t, trading.MissingRate52w, snap.HighRate52w)

	bar, err := repo.PriorSession(ctx, "005930", "20261014")
	require.NoError(t, err)
	assert.Equal(t, "20261013", bar.TradeDate)
	assert.Equal(t, int64(11000), bar.High)

	_, err = repo.PriorSession(ctx, "005930", "20261013")
	assert.ErrorIs(t, err, trading.ErrDataUnavailable)

	_, err = repo.LoadSnapshot(ctx, "999999", "20261014")
	assert.ErrorIs(t, err, trading.ErrDataUnavailable)

	name, err := repo.SymbolName(ctx, "005930")
	require.NoError(t, err)
	assert.Equal(t, "삼성전자", name)
}

func TestRunLogRepository_StartFinish(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := postgres.NewRunLogRepository(pool.Pool)

	run := &trading.ScheduleRunLog{
		RunID:     uuid.New(),
		Name:      "auto_trade",
		TaskType:  "paper",
		Status:    trading.RunRunning,
		StartedAt: time.Now(),
	}
	require.NoError(t, repo.Start(ctx, run))

	finished := time.Now()
	run.Status = trading.RunSuccess
	run.FinishedAt = &finished
	run.Message = "매도 0건, 매수 1건, 보류 0건, 실패 0건"
	require.NoError(t, repo.Finish(ctx, run))

	runs, err := repo.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, trading.RunSuccess, runs[0].Status)
	assert.NotNil(t, runs[0].FinishedAt)
}
