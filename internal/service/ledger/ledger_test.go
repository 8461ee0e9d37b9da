package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/snowbot/internal/domain/trading"
	"github.com/wonny/snowbot/internal/pkg/config"
)

// memoryRepo is an in-memory LedgerRepository
type memoryRepo struct {
	mu        sync.Mutex
	account   *trading.Account
	positions map[string]*trading.Position
	trades    []*trading.TradeRecord
	applyErr  error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{positions: make(map[string]*trading.Position)}
}

func (r *memoryRepo) GetAccount(context.Context) (*trading.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.account == nil {
		return nil, trading.ErrAccountNotFound
	}
	cp := *r.account
	return &cp, nil
}

func (r *memoryRepo) CreateAccount(_ context.Context, initial int64) (*trading.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.account = &trading.Account{InitialBalance: initial, Cash: initial}
	cp := *r.account
	return &cp, nil
}

func (r *memoryRepo) ListPositions(context.Context) ([]*trading.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*trading.Position, 0, len(r.positions))
	for _, p := range r.positions {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (r *memoryRepo) GetPosition(_ context.Context, symbol string) (*trading.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.positions[symbol]
	if !ok {
		return nil, trading.ErrNoPosition
	}
	cp := *p
	return &cp, nil
}

func (r *memoryRepo) UpdatePrices(_ context.Context, positions []*trading.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range positions {
		if cur, ok := r.positions[p.Symbol]; ok {
			cur.CurrentPrice = p.CurrentPrice
			cur.EvalAmount = p.EvalAmount
			cur.UnrealizedPnL = p.UnrealizedPnL
			cur.PnLRate = p.PnLRate
		}
	}
	return nil
}

func (r *memoryRepo) Apply(_ context.Context, m *trading.LedgerMutation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.applyErr != nil {
		return r.applyErr
	}
	r.account.Cash = m.Cash
	r.account.RealizedPnL = m.RealizedPnL
	if m.UpsertPosition != nil {
		cp := *m.UpsertPosition
		r.positions[cp.Symbol] = &cp
	}
	if m.DeleteSymbol != "" {
		delete(r.positions, m.DeleteSymbol)
	}
	if m.Trade != nil {
		t := *m.Trade
		t.ID = int64(len(r.trades) + 1)
		r.trades = append(r.trades, &t)
	}
	return nil
}

func (r *memoryRepo) Reset(_ context.Context, initial int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions = make(map[string]*trading.Position)
	r.account = &trading.Account{InitialBalance: initial, Cash: initial}
	return nil
}

func (r *memoryRepo) ListTrades(_ context.Context, limit int) ([]*trading.TradeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*trading.TradeRecord, 0, len(r.trades))
	for i := len(r.trades) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.trades[i])
	}
	return out, nil
}

// staticQuotes returns fixed prices
type staticQuotes struct {
	mu     sync.Mutex
	prices map[string]int64
	calls  int
}

func (q *staticQuotes) Quote(_ context.Context, symbol string) (*trading.Quote, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	p, ok := q.prices[symbol]
	if !ok {
		return nil, trading.ErrDataUnavailable
	}
	return &trading.Quote{Symbol: symbol, Price: p}, nil
}

func (q *staticQuotes) set(symbol string, price int64) {
	q.mu.Lock()
	q.prices[symbol] = price
	q.mu.Unlock()
}

func (q *staticQuotes) remove(symbol string) {
	q.mu.Lock()
	delete(q.prices, symbol)
	q.mu.Unlock()
}

var testNow = time.Date(2026, 10, 15, 10, 30, 0, 0, time.UTC)

func newTestLedger(t *testing.T, initial int64, mutate func(*config.SettingsStore)) (*Ledger, *memoryRepo, *staticQuotes) {
	t.Helper()
	settings := config.NewSettingsStore()
	require.NoError(t, settings.SetInitialBalance(initial))
	if mutate != nil {
		mutate(settings)
	}
	repo := newMemoryRepo()
	quotes := &staticQuotes{prices: map[string]int64{}}
	l := New(repo, quotes, settings, WithClock(func() time.Time { return testNow }))
	require.NoError(t, l.Init(context.Background()))
	return l, repo, quotes
}

func TestBuy_FeeScenario(t *testing.T) {
	l, repo, _ := newTestLedger(t, 1_000_000, nil)

	res, err := l.Buy(context.Background(), trading.OrderRequest{Symbol: "005930", Qty: 10, Price: 50_000})
	require.NoError(t, err)

	assert.Equal(t, int64(75), res.Trade.Fee)
	assert.Equal(t, int64(500_000), res.Trade.Amount)
	assert.True(t, res.Journaled)
	assert.Equal(t, int64(499_925), repo.account.Cash)

	pos := repo.positions["005930"]
	require.NotNil(t, pos)
	assert.Equal(t, int64(10), pos.Qty)
	assert.Equal(t, int64(50_000), pos.AvgPrice)
	assert.Equal(t, "20261015", pos.AcquiredOn)
	assert.Equal(t, "005930", pos.Name)
}

func TestBuy_InsufficientFunds(t *testing.T) {
	l, repo, _ := newTestLedger(t, 100_000, nil)

	_, err := l.Buy(context.Background(), trading.OrderRequest{Symbol: "005930", Qty: 2, Price: 50_000})
	assert.ErrorIs(t, err, trading.ErrInsufficientFunds, "fee pushes cost over cash")
	assert.Equal(t, int64(100_000), repo.account.Cash)
	assert.Empty(t, repo.positions)
	assert.Empty(t, repo.trades)
}

func TestBuy_InvalidQuantity(t *testing.T) {
	l, _, _ := newTestLedger(t, 1_000_000, nil)

	_, err := l.Buy(context.Background(), trading.OrderRequest{Symbol: "005930", Qty: 0, Price: 1000})
	assert.ErrorIs(t, err, trading.ErrInvalidQuantity)
}

func TestRoundTrip_NoFeesRestoresCash(t *testing.T) {
	l, repo, _ := newTestLedger(t, 1_000_000, func(s *config.SettingsStore) {
		s.SetApplyFee(false)
		s.SetApplyTax(false)
	})
	ctx := context.Background()

	_, err := l.Buy(ctx, trading.OrderRequest{Symbol: "000660", Qty: 7, Price: 123_456})
	require.NoError(t, err)
	res, err := l.Sell(ctx, trading.OrderRequest{Symbol: "000660", Price: 123_456})
	require.NoError(t, err)

	assert.Equal(t, int64(7), res.Qty)
	assert.Equal(t, int64(1_000_000), repo.account.Cash)
	assert.Zero(t, repo.account.RealizedPnL)
	assert.Empty(t, repo.positions)
}

func TestAverageCost(t *testing.T) {
	l, repo, _ := newTestLedger(t, 10_000_000, nil)
	ctx := context.Background()

	_, err := l.Buy(ctx, trading.OrderRequest{Symbol: "035720", Qty: 3, Price: 10_000})
	require.NoError(t, err)
	_, err = l.Buy(ctx, trading.OrderRequest{Symbol: "035720", Qty: 4, Price: 10_001})
	require.NoError(t, err)

	pos := repo.positions["035720"]
	assert.Equal(t, int64(7), pos.Qty)
	// (30000 + 40004) / 7 = 10000.57 -> 10001
	assert.Equal(t, int64(10_001), pos.AvgPrice)
	assert.Equal(t, "20261015", pos.AcquiredOn, "acquisition date kept on averaging")
}

func TestSell_PartialAndFull(t *testing.T) {
	l, repo, _ := newTestLedger(t, 10_000_000, nil)
	ctx := context.Background()

	_, err := l.Buy(ctx, trading.OrderRequest{Symbol: "005930", Name: "삼성전자", Qty: 10, Price: 70_000})
	require.NoError(t, err)

	res, err := l.Sell(ctx, trading.OrderRequest{Symbol: "005930", Qty: 4, Price: 77_000, Source: trading.SourceAuto, Reason: "익절"})
	require.NoError(t, err)

	// amount 308000, fee 46, tax 708, net 307246, cost 280000
	tr := res.Trade
	assert.Equal(t, int64(46), tr.Fee)
	assert.Equal(t, int64(708), tr.Tax)
	assert.Equal(t, int64(27_246), tr.Profit)
	assert.Equal(t, 9.73, tr.ProfitRate)
	assert.Equal(t, trading.SourceAuto, tr.Source)
	assert.Equal(t, "익절", tr.Reason)
	assert.Equal(t, "삼성전자", tr.Name)

	pos := repo.positions["005930"]
	require.NotNil(t, pos)
	assert.Equal(t, int64(6), pos.Qty)
	assert.Equal(t, int64(77_000), pos.CurrentPrice)
	assert.Equal(t, int64(462_000), pos.EvalAmount)
	assert.Equal(t, int64(27_246), repo.account.RealizedPnL)

	_, err = l.Sell(ctx, trading.OrderRequest{Symbol: "005930", Qty: 7, Price: 77_000})
	assert.ErrorIs(t, err, trading.ErrInsufficientQuantity)

	_, err = l.Sell(ctx, trading.OrderRequest{Symbol: "005930", Price: 77_000})
	require.NoError(t, err)
	assert.NotContains(t, repo.positions, "005930")

	_, err = l.Sell(ctx, trading.OrderRequest{Symbol: "005930", Price: 77_000})
	assert.ErrorIs(t, err, trading.ErrNoPosition)
}

func TestMarketOrderUsesRefPriceThenQuote(t *testing.T) {
	l, _, quotes := newTestLedger(t, 10_000_000, nil)
	ctx := context.Background()
	quotes.set("005930", 71_500)

	res, err := l.Buy(ctx, trading.OrderRequest{Symbol: "005930", Qty: 1, RefPrice: 71_000})
	require.NoError(t, err)
	assert.Equal(t, int64(71_000), res.Price)
	assert.Zero(t, quotes.calls)

	res, err = l.Buy(ctx, trading.OrderRequest{Symbol: "005930", Qty: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(71_500), res.Price)

	_, err = l.Buy(ctx, trading.OrderRequest{Symbol: "999999", Qty: 1})
	assert.ErrorIs(t, err, trading.ErrDataUnavailable)
}

func TestGetAccountInfo_RefreshesPrices(t *testing.T) {
	l, repo, quotes := newTestLedger(t, 10_000_000, func(s *config.SettingsStore) {
		s.SetApplyFee(false)
	})
	ctx := context.Background()

	_, err := l.Buy(ctx, trading.OrderRequest{Symbol: "005930", Qty: 10, Price: 70_000})
	require.NoError(t, err)
	_, err = l.Buy(ctx, trading.OrderRequest{Symbol: "000660", Qty: 1, Price: 100_000})
	require.NoError(t, err)
	quotes.set("005930", 77_000)

	acc, err := l.GetAccountInfo(ctx)
	require.NoError(t, err)
	require.Len(t, acc.Positions, 2)

	var samsung *trading.Position
	for _, p := range acc.Positions {
		if p.Symbol == "005930" {
			samsung = p
		}
	}
	require.NotNil(t, samsung)
	assert.Equal(t, int64(77_000), samsung.CurrentPrice)
	assert.Equal(t, int64(70_000), samsung.UnrealizedPnL)
	assert.InDelta(t, 10.0, samsung.PnLRate, 1e-9)
	assert.Equal(t, int64(77_000), repo.positions["005930"].CurrentPrice, "refresh persisted")

	assert.Equal(t, int64(9_200_000), acc.Cash)
	assert.Equal(t, int64(870_000), acc.PositionValue)
	assert.Equal(t, int64(10_070_000), acc.TotalEval)
	assert.Equal(t, int64(70_000), acc.TotalProfit)
	assert.InDelta(t, 0.7, acc.TotalProfitRate, 1e-9)

	hold, err := l.GetHolding(ctx, "000660")
	require.NoError(t, err)
	assert.Equal(t, int64(100_000), hold.CurrentPrice, "failed quote keeps last price")
	assert.True(t, hold.PriceStale)
	assert.False(t, samsung.PriceStale)

	_, err = l.GetHolding(ctx, "035420")
	assert.ErrorIs(t, err, trading.ErrNoPosition)
}

func TestReset(t *testing.T) {
	l, repo, _ := newTestLedger(t, 1_000_000, nil)
	ctx := context.Background()

	_, err := l.Buy(ctx, trading.OrderRequest{Symbol: "005930", Qty: 1, Price: 50_000})
	require.NoError(t, err)
	require.NoError(t, l.Reset(ctx))

	bal, err := l.GetBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), bal)
	assert.Empty(t, repo.positions)

	history, err := l.TradeHistory(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1, "history survives reset")
}

func TestApplyFailureIsInfrastructure(t *testing.T) {
	l, repo, _ := newTestLedger(t, 1_000_000, nil)
	repo.applyErr = errors.New("tx aborted")

	_, err := l.Buy(context.Background(), trading.OrderRequest{Symbol: "005930", Qty: 1, Price: 50_000})
	assert.ErrorIs(t, err, trading.ErrInfrastructure)
}

func TestOrderNoFormat(t *testing.T) {
	no := orderNo(testNow)
	assert.Regexp(t, `^SIM20261015103000[0-9A-F]{6}$`, no)
}

func TestInvariants_CashNonNegativeAndPositiveQty(t *testing.T) {
	l, repo, _ := newTestLedger(t, 300_000, nil)
	ctx := context.Background()

	ops := []trading.OrderRequest{
		{Side: trading.SideBuy, Symbol: "A", Qty: 3, Price: 50_000},
		{Side: trading.SideBuy, Symbol: "B", Qty: 5, Price: 20_000},
		{Side: trading.SideBuy, Symbol: "A", Qty: 2, Price: 60_000},
		{Side: trading.SideSell, Symbol: "B", Qty: 2, Price: 19_000},
		{Side: trading.SideBuy, Symbol: "C", Qty: 100, Price: 10_000},
		{Side: trading.SideSell, Symbol: "A", Qty: 0, Price: 55_000},
		{Side: trading.SideSell, Symbol: "B", Qty: 9, Price: 19_000},
		{Side: trading.SideBuy, Symbol: "C", Qty: 10, Price: 10_000},
	}
	broker := NewPaperBroker(l, &staticQuotes{prices: map[string]int64{}})
	for _, op := range ops {
		_, _ = broker.Submit(ctx, op)

		assert.GreaterOrEqual(t, repo.account.Cash, int64(0))
		for _, p := range repo.positions {
			assert.Greater(t, p.Qty, int64(0))
		}
	}
}

func TestConcurrentBuysAreSerialized(t *testing.T) {
	l, repo, _ := newTestLedger(t, 1_000_000, func(s *config.SettingsStore) {
		s.SetApplyFee(false)
	})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.Buy(ctx, trading.OrderRequest{Symbol: "005930", Qty: 1, Price: 100_000})
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(0), repo.account.Cash)
	assert.Equal(t, int64(10), repo.positions["005930"].Qty)
	assert.Len(t, repo.trades, 10)
}
