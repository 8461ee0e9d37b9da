package scoring

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/snowbot/internal/domain/trading"
	"github.com/wonny/snowbot/internal/pkg/config"
)

type fakeReference struct {
	symbols   map[string][]*trading.Symbol
	snapshots map[string]*trading.MarketSnapshot
	failing   map[string]error
}

func (f *fakeReference) ListSymbols(_ context.Context, date string) ([]*trading.Symbol, error) {
	return f.symbols[date], nil
}

func (f *fakeReference) LoadSnapshot(_ context.Context, symbol, _ string) (*trading.MarketSnapshot, error) {
	if err := f.failing[symbol]; err != nil {
		return nil, err
	}
	s, ok := f.snapshots[symbol]
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, trading.ErrDataUnavailable)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeReference) PriorSession(context.Context, string, string) (*trading.DailyBar, error) {
	return nil, trading.ErrDataUnavailable
}

func (f *fakeReference) SymbolName(_ context.Context, symbol string) (string, error) {
	for _, list := range f.symbols {
		for _, s := range list {
			if s.Code == symbol {
				return s.Name, nil
			}
		}
	}
	return "", nil
}

type memoryScores struct {
	rows map[string]*trading.ScoreResult
}

func newMemoryScores() *memoryScores {
	return &memoryScores{rows: make(map[string]*trading.ScoreResult)}
}

func (m *memoryScores) Upsert(_ context.Context, r *trading.ScoreResult) error {
	cp := *r
	m.rows[r.Symbol+"|"+r.BaseDate] = &cp
	return nil
}

func (m *memoryScores) ListBuyCandidates(_ context.Context, baseDate string, minTotal, limit int) ([]*trading.ScoreResult, error) {
	var out []*trading.ScoreResult
	for _, r := range m.rows {
		if r.BaseDate == baseDate && r.BuyCandidate && r.Total >= minTotal {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Total > out[j].Total })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryScores) Get(_ context.Context, symbol, baseDate string) (*trading.ScoreResult, error) {
	r, ok := m.rows[symbol+"|"+baseDate]
	if !ok {
		return nil, trading.ErrDataUnavailable
	}
	return r, nil
}

func newTestService() (*Service, *memoryScores) {
	weak := trading.NewMarketSnapshot("000002")
	weak.Close = 5000

	ref := &fakeReference{
		symbols: map[string][]*trading.Symbol{
			"20261014": {
				{Code: "005930", Name: "삼성전자"},
				{Code: "000002", Name: "약세주"},
				{Code: "000003", Name: "시세없음"},
				{Code: "000004", Name: "조회실패"},
			},
		},
		snapshots: map[string]*trading.MarketSnapshot{
			"005930": healthySnapshot(),
			"000002": weak,
		},
		failing: map[string]error{"000004": errors.New("connection reset")},
	}
	scores := newMemoryScores()
	svc := NewService(NewEvaluator(config.NewSettingsStore()), ref, scores, nil)
	return svc, scores
}

func TestRun_EvaluatesAndStoresUnderEvalDate(t *testing.T) {
	svc, scores := newTestService()

	res, err := svc.Run(context.Background(), "20261015", "20261014")
	require.NoError(t, err)

	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 2, res.Evaluated)
	assert.Equal(t, 1, res.BuyCandidates)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "000004")

	stored, err := scores.Get(context.Background(), "005930", "20261015")
	require.NoError(t, err)
	assert.Equal(t, int64(71000), stored.ClosePrice)
	assert.True(t, stored.BuyCandidate)

	weak, err := scores.Get(context.Background(), "000002", "20261015")
	require.NoError(t, err)
	assert.Equal(t, "약세주", weak.Name, "falls back to symbol master name")
}

func TestRun_IsIdempotent(t *testing.T) {
	svc, scores := newTestService()

	_, err := svc.Run(context.Background(), "20261015", "20261014")
	require.NoError(t, err)
	_, err = svc.Run(context.Background(), "20261015", "20261014")
	require.NoError(t, err)

	assert.Len(t, scores.rows, 2)
}

func TestRun_NoSymbols(t *testing.T) {
	svc, _ := newTestService()

	res, err := svc.Run(context.Background(), "20261015", "")
	require.NoError(t, err)
	assert.Equal(t, "20261015", res.DataDate)
	assert.Zero(t, res.Total)
	assert.Empty(t, res.Errors)
}

func TestAnalyze(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	a, err := svc.Analyze(ctx, "005930", "20261015")
	require.NoError(t, err)
	assert.Equal(t, SignalStrongBuy, a.Signal)
	assert.Equal(t, int64(74550), a.TargetPrice)

	hold, err := svc.Analyze(ctx, "000002", "20261015")
	require.NoError(t, err)
	assert.Equal(t, SignalHold, hold.Signal)
	assert.Equal(t, "약세주", hold.Name)

	_, err = svc.Analyze(ctx, "999999", "20261015")
	assert.ErrorIs(t, err, trading.ErrDataUnavailable)
}

func TestSignalOf(t *testing.T) {
	assert.Equal(t, SignalHold, signalOf(&trading.ScoreResult{Total: 39}))
	assert.Equal(t, SignalBuy, signalOf(&trading.ScoreResult{Total: 25, BuyCandidate: true}))
	assert.Equal(t, SignalStrongBuy, signalOf(&trading.ScoreResult{Total: 30, BuyCandidate: true}))
}
