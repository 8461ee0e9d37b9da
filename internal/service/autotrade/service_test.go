package autotrade

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/snowbot/internal/domain/trading"
	"github.com/wonny/snowbot/internal/pkg/config"
)

var cycleNow = time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)

type fakeBroker struct {
	mode       trading.ExecutionMode
	account    *trading.Account
	accountErr error
	quotes     map[string]int64
	quoteErr   map[string]error
	submitErr  map[string]error
	journaled  bool
	submitted  []trading.OrderRequest
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		mode:      trading.ModeLive,
		account:   &trading.Account{Cash: 10_000_000},
		quotes:    map[string]int64{},
		quoteErr:  map[string]error{},
		submitErr: map[string]error{},
	}
}

func (b *fakeBroker) Mode() trading.ExecutionMode { return b.mode }

func (b *fakeBroker) Account(context.Context) (*trading.Account, error) {
	if b.accountErr != nil {
		return nil, b.accountErr
	}
	return b.account, nil
}

func (b *fakeBroker) Quote(_ context.Context, symbol string) (*trading.Quote, error) {
	if err := b.quoteErr[symbol]; err != nil {
		return nil, err
	}
	p, ok := b.quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("quote %s: %w", symbol, trading.ErrDataUnavailable)
	}
	return &trading.Quote{Symbol: symbol, Price: p}, nil
}

func (b *fakeBroker) Submit(_ context.Context, req trading.OrderRequest) (*trading.OrderResult, error) {
	if err := b.submitErr[req.Symbol]; err != nil {
		return nil, err
	}
	b.submitted = append(b.submitted, req)
	price := req.RefPrice
	return &trading.OrderResult{
		OrderNo:   fmt.Sprintf("ORD%d", len(b.submitted)),
		Symbol:    req.Symbol,
		Side:      req.Side,
		Qty:       req.Qty,
		Price:     price,
		Journaled: b.journaled,
		Trade: &trading.TradeRecord{
			Symbol: req.Symbol, Side: req.Side, Qty: req.Qty, Price: price,
			Amount: price * req.Qty, Source: req.Source, Reason: req.Reason,
			TradeDate: trading.DateKey(cycleNow),
		},
	}, nil
}

type fakeScores struct {
	candidates []*trading.ScoreResult
	gotDate    string
	gotMin     int
	gotLimit   int
}

func (f *fakeScores) Upsert(context.Context, *trading.ScoreResult) error { return nil }

func (f *fakeScores) ListBuyCandidates(_ context.Context, baseDate string, minTotal, limit int) ([]*trading.ScoreResult, error) {
	f.gotDate, f.gotMin, f.gotLimit = baseDate, minTotal, limit
	return f.candidates, nil
}

func (f *fakeScores) Get(context.Context, string, string) (*trading.ScoreResult, error) {
	return nil, trading.ErrDataUnavailable
}

type fakeTrades struct {
	bought   map[string]bool
	appended []*trading.TradeRecord
}

func (f *fakeTrades) Append(_ context.Context, t *trading.TradeRecord) error {
	f.appended = append(f.appended, t)
	return nil
}

func (f *fakeTrades) BoughtSymbols(context.Context, string) (map[string]bool, error) {
	return f.bought, nil
}

func (f *fakeTrades) List(context.Context, int) ([]*trading.TradeRecord, error) {
	return f.appended, nil
}

type fakeSessions map[string]*trading.DailyBar

func (f fakeSessions) PriorSession(_ context.Context, symbol, _ string) (*trading.DailyBar, error) {
	bar, ok := f[symbol]
	if !ok {
		return nil, trading.ErrDataUnavailable
	}
	return bar, nil
}

type fakeRunLogs struct {
	started  []*trading.ScheduleRunLog
	finished []*trading.ScheduleRunLog
}

func (f *fakeRunLogs) Start(_ context.Context, r *trading.ScheduleRunLog) error {
	f.started = append(f.started, r)
	return nil
}

func (f *fakeRunLogs) Finish(_ context.Context, r *trading.ScheduleRunLog) error {
	f.finished = append(f.finished, r)
	return nil
}

func (f *fakeRunLogs) Recent(context.Context, int) ([]*trading.ScheduleRunLog, error) {
	return f.finished, nil
}

// supportBar puts the pivot support average at 9,700
var supportBar = &trading.DailyBar{High: 11_000, Low: 10_000, Close: 10_400}

type harness struct {
	broker   *fakeBroker
	scores   *fakeScores
	trades   *fakeTrades
	sessions fakeSessions
	runLogs  *fakeRunLogs
	settings *config.SettingsStore
	svc      *Service
}

func newHarness() *harness {
	h := &harness{
		broker:   newFakeBroker(),
		scores:   &fakeScores{},
		trades:   &fakeTrades{bought: map[string]bool{}},
		sessions: fakeSessions{},
		runLogs:  &fakeRunLogs{},
		settings: config.NewSettingsStore(),
	}
	h.svc = NewService(h.broker, h.scores, h.trades, h.sessions, h.settings, WithRunLogs(h.runLogs))
	return h
}

func TestRunCycle_SellPass(t *testing.T) {
	h := newHarness()
	h.settings.SetBuyEnabled(false)
	h.broker.account.Positions = []*trading.Position{
		{Symbol: "000001", Name: "익절주", Qty: 10, AvgPrice: 10_000, CurrentPrice: 11_200, UnrealizedPnL: 12_000, PnLRate: 12},
		{Symbol: "000002", Name: "손절주", Qty: 5, AvgPrice: 10_000, CurrentPrice: 7_500, UnrealizedPnL: -12_500, PnLRate: -25},
		{Symbol: "000003", Name: "보유주", Qty: 3, AvgPrice: 10_000, CurrentPrice: 10_300, PnLRate: 3},
		{Symbol: "000004", Name: "경계주", Qty: 1, AvgPrice: 10_000, CurrentPrice: 8_000, PnLRate: -20},
	}

	report, err := h.svc.RunCycle(context.Background(), cycleNow)
	require.NoError(t, err)

	require.Len(t, h.broker.submitted, 3)
	assert.Equal(t, "000001", h.broker.submitted[0].Symbol)
	assert.Equal(t, int64(10), h.broker.submitted[0].Qty, "full quantity")
	assert.Equal(t, trading.SideSell, h.broker.submitted[0].Side)
	assert.Equal(t, int64(11_200), h.broker.submitted[0].RefPrice)
	assert.Contains(t, h.broker.submitted[0].Reason, "익절")
	assert.Contains(t, h.broker.submitted[1].Reason, "손절")
	assert.Equal(t, "000004", h.broker.submitted[2].Symbol, "stop-loss is inclusive")

	require.Len(t, h.trades.appended, 3, "live trades are journaled by the orchestrator")
	assert.Equal(t, trading.SourceAuto, h.trades.appended[0].Source)
	// 112,000 - fee 16 - tax 257 - cost 100,000
	assert.Equal(t, int64(16), h.trades.appended[0].Fee)
	assert.Equal(t, int64(257), h.trades.appended[0].Tax)
	assert.Equal(t, int64(11_727), h.trades.appended[0].Profit)
	assert.Equal(t, 11.73, h.trades.appended[0].ProfitRate)
	// 37,500 - fee 5 - tax 86 - cost 50,000
	assert.Equal(t, int64(-12_591), h.trades.appended[1].Profit)
	assert.Equal(t, -25.18, h.trades.appended[1].ProfitRate)

	assert.Equal(t, 3, report.Sold)
	assert.Contains(t, report.String(), "매수 비활성화됨")
}

func TestRunCycle_BuyPassFilters(t *testing.T) {
	h := newHarness()
	h.trades.bought["A00001"] = true
	h.scores.candidates = []*trading.ScoreResult{
		{Symbol: "A00001", Name: "이미매수", Total: 38},
		{Symbol: "B00001", Name: "동전주", Total: 37},
		{Symbol: "C00001", Name: "전일없음", Total: 36},
		{Symbol: "D00001", Name: "지지미달", Total: 35},
		{Symbol: "E00001", Name: "시세실패", Total: 34},
		{Symbol: "F00001", Name: "매수대상", Total: 33},
	}
	h.broker.quotes = map[string]int64{
		"A00001": 9_000, "B00001": 900, "C00001": 9_000, "D00001": 10_500, "F00001": 9_600,
	}
	h.sessions["B00001"] = supportBar
	h.sessions["D00001"] = supportBar
	h.sessions["F00001"] = supportBar

	report, err := h.svc.RunCycle(context.Background(), cycleNow)
	require.NoError(t, err)

	assert.Equal(t, "20261015", h.scores.gotDate)
	assert.Equal(t, 30, h.scores.gotMin)
	assert.Equal(t, 10, h.scores.gotLimit)

	require.Len(t, h.broker.submitted, 1)
	order := h.broker.submitted[0]
	assert.Equal(t, "F00001", order.Symbol)
	assert.Equal(t, trading.SideBuy, order.Side)
	// budget = min(500,000, 10,000,000 * 10%) = 500,000
	assert.Equal(t, int64(500_000/9_600), order.Qty)
	assert.Equal(t, "점수33/Pivot지지", order.Reason)
	assert.Equal(t, trading.SourceAuto, order.Source)

	assert.Equal(t, 1, report.Bought)
	assert.Equal(t, 4, report.Skipped)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "E00001")
	require.Len(t, h.trades.appended, 1)

	out := report.String()
	assert.Contains(t, out, "[매수보류] 이미매수 - 금일 이미 매수")
	assert.Contains(t, out, "[매수보류] 동전주 - 동전주")
	assert.Contains(t, out, "[매수보류] 전일없음 - 전일 시세 없음")
	assert.Contains(t, out, "[매수보류] 지지미달 - Pivot 미달")
	assert.Contains(t, out, "[매수실패] 시세실패")
	assert.Contains(t, out, "[매수성공] 매수대상")

	skipped := 0
	for _, o := range report.Outcomes {
		if o.Action == ActionSkip {
			skipped++
			assert.NotEmpty(t, o.Reason, o.Symbol)
		}
	}
	assert.Equal(t, 4, skipped)
}

func TestRunCycle_BudgetBelowPriceIsReported(t *testing.T) {
	h := newHarness()
	h.settings.SetMaxBuyAmount(20_000)
	h.scores.candidates = []*trading.ScoreResult{{Symbol: "F00001", Name: "고가주", Total: 35}}
	h.broker.quotes["F00001"] = 25_000
	h.sessions["F00001"] = &trading.DailyBar{High: 30_000, Low: 28_000, Close: 29_000}

	report, err := h.svc.RunCycle(context.Background(), cycleNow)
	require.NoError(t, err)
	assert.Empty(t, h.broker.submitted)
	assert.Equal(t, 1, report.Skipped)
	assert.Contains(t, report.String(), "[매수보류] 고가주 - 예산 부족")
}

func TestRunCycle_StalePositionIsNotSold(t *testing.T) {
	h := newHarness()
	h.settings.SetBuyEnabled(false)
	h.broker.account.Positions = []*trading.Position{
		{Symbol: "000001", Name: "시세없음", Qty: 10, AvgPrice: 10_000, CurrentPrice: 7_000, PnLRate: -30, PriceStale: true},
		{Symbol: "000002", Name: "익절주", Qty: 1, AvgPrice: 10_000, CurrentPrice: 12_000, PnLRate: 20},
	}

	report, err := h.svc.RunCycle(context.Background(), cycleNow)
	require.NoError(t, err)

	require.Len(t, h.broker.submitted, 1)
	assert.Equal(t, "000002", h.broker.submitted[0].Symbol)
	assert.Equal(t, 1, report.Sold)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "000001")
	assert.Contains(t, report.String(), "[매도판단보류] 시세없음")
}

func TestSettleSell_WithoutFeeAndTax(t *testing.T) {
	ts := config.DefaultTradingSettings()
	ts.ApplyFee = false
	ts.ApplyTax = false
	tr := &trading.TradeRecord{Qty: 4, Price: 12_500}

	settleSell(tr, 10_000, ts)
	assert.Equal(t, int64(50_000), tr.Amount)
	assert.Zero(t, tr.Fee)
	assert.Zero(t, tr.Tax)
	assert.Equal(t, int64(10_000), tr.Profit)
	assert.Equal(t, 25.0, tr.ProfitRate)
}

func TestRunCycle_SlotsFromPreSellHoldings(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.settings.SetMaxHoldings(2))
	h.broker.account.Positions = []*trading.Position{
		{Symbol: "000001", Qty: 1, CurrentPrice: 20_000, PnLRate: 15},
		{Symbol: "000002", Qty: 1, CurrentPrice: 10_000, PnLRate: 1},
	}
	h.scores.candidates = []*trading.ScoreResult{{Symbol: "F00001", Total: 33}}
	h.broker.quotes["F00001"] = 9_600
	h.sessions["F00001"] = supportBar

	report, err := h.svc.RunCycle(context.Background(), cycleNow)
	require.NoError(t, err)

	require.Len(t, h.broker.submitted, 1, "only the take-profit sell")
	assert.Equal(t, 0, report.Bought)
	assert.Contains(t, report.String(), "최대 보유 종목 수 도달 (2/2)")
}

func TestRunCycle_StopsAtAvailableSlots(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.settings.SetMaxHoldings(2))
	h.broker.account.Positions = []*trading.Position{{Symbol: "000009", Qty: 1, PnLRate: 0}}
	h.scores.candidates = []*trading.ScoreResult{{Symbol: "F00001", Total: 35}, {Symbol: "G00001", Total: 34}}
	for _, s := range []string{"F00001", "G00001"} {
		h.broker.quotes[s] = 9_000
		h.sessions[s] = supportBar
	}

	report, err := h.svc.RunCycle(context.Background(), cycleNow)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Bought)
	require.Len(t, h.broker.submitted, 1)
	assert.Equal(t, "F00001", h.broker.submitted[0].Symbol)
}

func TestRunCycle_DuplicateCandidateBoughtOnce(t *testing.T) {
	h := newHarness()
	h.scores.candidates = []*trading.ScoreResult{{Symbol: "F00001", Total: 35}, {Symbol: "F00001", Total: 35}}
	h.broker.quotes["F00001"] = 9_000
	h.sessions["F00001"] = supportBar

	report, err := h.svc.RunCycle(context.Background(), cycleNow)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Bought)
}

func TestRunCycle_BudgetBelowFloor(t *testing.T) {
	h := newHarness()
	h.broker.account.Cash = 90_000 // 10% = 9,000
	h.scores.candidates = []*trading.ScoreResult{{Symbol: "F00001", Total: 35}}

	report, err := h.svc.RunCycle(context.Background(), cycleNow)
	require.NoError(t, err)
	assert.Empty(t, h.broker.submitted)
	assert.Contains(t, report.String(), "가용 예산 부족")
	assert.Empty(t, h.scores.gotDate, "candidates not queried")
}

func TestRunCycle_OrderRejectionContinues(t *testing.T) {
	h := newHarness()
	h.scores.candidates = []*trading.ScoreResult{{Symbol: "F00001", Total: 35}, {Symbol: "G00001", Total: 34}}
	for _, s := range []string{"F00001", "G00001"} {
		h.broker.quotes[s] = 9_000
		h.sessions[s] = supportBar
	}
	h.broker.submitErr["F00001"] = fmt.Errorf("%w: APBK0952 주문가능금액 초과", trading.ErrOrderRejected)

	report, err := h.svc.RunCycle(context.Background(), cycleNow)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Bought)
	assert.Equal(t, "G00001", h.broker.submitted[0].Symbol)
}

func TestRunCycle_AccountFailureAborts(t *testing.T) {
	h := newHarness()
	h.broker.accountErr = errors.New("balance endpoint down")

	report, err := h.svc.RunCycle(context.Background(), cycleNow)
	require.Error(t, err)
	assert.ErrorIs(t, err, trading.ErrInfrastructure)
	assert.True(t, trading.IsFatal(err))
	assert.NotEmpty(t, report.Errors)

	require.Len(t, h.runLogs.finished, 1)
	assert.Equal(t, trading.RunFailed, h.runLogs.finished[0].Status)
	assert.Contains(t, h.runLogs.finished[0].ErrorMessage, "balance endpoint down")
}

func TestRunCycle_AuthFailureDuringBuyAborts(t *testing.T) {
	h := newHarness()
	h.scores.candidates = []*trading.ScoreResult{{Symbol: "F00001", Total: 35}, {Symbol: "G00001", Total: 34}}
	h.broker.quoteErr["F00001"] = fmt.Errorf("%w: %w", trading.ErrUnauthenticated, trading.ErrQuotaExceeded)
	h.broker.quotes["G00001"] = 9_000
	h.sessions["G00001"] = supportBar

	_, err := h.svc.RunCycle(context.Background(), cycleNow)
	require.Error(t, err)
	assert.ErrorIs(t, err, trading.ErrQuotaExceeded)
	assert.Empty(t, h.broker.submitted)
}

func TestRunCycle_JournaledTradesNotAppendedTwice(t *testing.T) {
	h := newHarness()
	h.broker.mode = trading.ModePaper
	h.broker.journaled = true
	h.broker.account.Positions = []*trading.Position{{Symbol: "000001", Qty: 2, CurrentPrice: 12_000, PnLRate: 20}}
	h.scores.candidates = []*trading.ScoreResult{{Symbol: "F00001", Total: 35}}
	h.broker.quotes["F00001"] = 9_000
	h.sessions["F00001"] = supportBar

	report, err := h.svc.RunCycle(context.Background(), cycleNow)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sold)
	assert.Equal(t, 1, report.Bought)
	assert.Empty(t, h.trades.appended)
	assert.Equal(t, trading.ModePaper, report.Mode)
}

func TestRunCycle_RunLogSuccess(t *testing.T) {
	h := newHarness()

	report, err := h.svc.RunCycle(context.Background(), cycleNow)
	require.NoError(t, err)

	require.Len(t, h.runLogs.started, 1)
	assert.Equal(t, trading.RunRunning, h.runLogs.started[0].Status)
	require.Len(t, h.runLogs.finished, 1)
	fin := h.runLogs.finished[0]
	assert.Equal(t, report.RunID, fin.RunID)
	assert.Equal(t, trading.RunSuccess, fin.Status)
	assert.Equal(t, report.Summary(), fin.Message)
	assert.Contains(t, report.String(), "매수 대상 종목이 없거나")
}

func TestPivotScenario(t *testing.T) {
	levels := Pivot(supportBar)
	assert.InDelta(t, 10_466.67, levels.PP, 0.01)
	assert.InDelta(t, 9_933.33, levels.S1, 0.01)
	assert.InDelta(t, 9_466.67, levels.S2, 0.01)
	assert.InDelta(t, 9_700, levels.SupportAverage(), 0.01)

	assert.False(t, levels.Supports(10_500))
	assert.True(t, levels.Supports(9_700))
}

func TestRunCycle_TradeLogRecordsEveryFill(t *testing.T) {
	h := newHarness()
	h.settings.SetBuyEnabled(false)
	h.broker.journaled = true
	h.broker.account.Positions = []*trading.Position{
		{Symbol: "000001", Name: "익절주", Qty: 10, AvgPrice: 10_000, CurrentPrice: 11_200, PnLRate: 12},
	}

	var buf bytes.Buffer
	svc := NewService(h.broker, h.scores, h.trades, h.sessions, h.settings, WithTradeLog(zerolog.New(&buf)))

	report, err := svc.RunCycle(context.Background(), cycleNow)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sold)
	assert.Empty(t, h.trades.appended)
	assert.Contains(t, buf.String(), `"symbol":"000001"`)
	assert.Contains(t, buf.String(), report.RunID.String())
}
