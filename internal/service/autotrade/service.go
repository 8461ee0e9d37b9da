package autotrade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/wonny/snowbot/internal/domain/trading"
	"github.com/wonny/snowbot/internal/pkg/config"
	"github.com/wonny/snowbot/internal/pkg/metrics"
)

const runName = "auto_trade"

// Service 자동매매 오케스트레이터
// 계좌 조회 -> 매도 패스 -> 매수 패스 순서로 동기 실행한다.
// 동시에 두 번 실행되지 않도록 하는 것은 호출자의 책임이다.
type Service struct {
	broker   trading.Broker
	scores   trading.ScoreRepository
	trades   trading.TradeRepository
	sessions trading.SessionSource
	settings *config.SettingsStore
	runLogs  trading.RunLogRepository
	metrics  *metrics.Metrics
	tradeLog *zerolog.Logger
}

// Option configures a Service
type Option func(*Service)

// WithRunLogs records each cycle in the schedule run log
func WithRunLogs(repo trading.RunLogRepository) Option {
	return func(s *Service) { s.runLogs = repo }
}

// WithTradeLog writes every executed trade to a dedicated audit logger
func WithTradeLog(l zerolog.Logger) Option {
	return func(s *Service) { s.tradeLog = &l }
}

// WithMetrics attaches metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates the orchestrator
func NewService(
	broker trading.Broker,
	scores trading.ScoreRepository,
	trades trading.TradeRepository,
	sessions trading.SessionSource,
	settings *config.SettingsStore,
	opts ...Option,
) *Service {
	s := &Service{
		broker:   broker,
		scores:   scores,
		trades:   trades,
		sessions: sessions,
		settings: settings,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunCycle executes one sell-then-buy cycle.
// Per-symbol failures are recorded in the report; only failures that prevent
// establishing account state (or authenticating) abort the cycle.
func (s *Service) RunCycle(ctx context.Context, now time.Time) (*CycleReport, error) {
	report := newReport(s.broker.Mode(), now)
	started := time.Now()
	s.startRun(ctx, report)

	err := s.runCycle(ctx, now, report)

	report.FinishedAt = now.Add(time.Since(started))
	s.metrics.ObserveCycle(time.Since(started).Seconds())
	if err != nil {
		s.metrics.IncCycleError(trading.ErrorKind(err))
		report.Errors = append(report.Errors, err.Error())
		report.line("❌ 자동매매 중단: %v", err)
		log.Error().Err(err).Str("run_id", report.RunID.String()).Msg("❌ Auto-trade cycle aborted")
	} else {
		log.Info().
			Str("run_id", report.RunID.String()).
			Int("sold", report.Sold).
			Int("bought", report.Bought).
			Int("skipped", report.Skipped).
			Int("failed", report.Failed).
			Msg("✅ Auto-trade cycle completed")
	}
	s.finishRun(ctx, report, err)
	return report, err
}

func (s *Service) runCycle(ctx context.Context, now time.Time, report *CycleReport) error {
	acc, err := s.broker.Account(ctx)
	if err != nil {
		if !trading.IsFatal(err) {
			err = fmt.Errorf("%w: %w", trading.ErrInfrastructure, err)
		}
		return fmt.Errorf("account: %w", err)
	}
	// 매수 패스는 매도 전 예수금/보유 종목 수를 그대로 사용한다.
	report.Cash = acc.Cash
	report.Holdings = len(acc.Positions)

	ts := s.settings.Trading()

	if err := s.sellPass(ctx, acc, ts, report); err != nil {
		return err
	}
	if !ts.BuyEnabled {
		report.line("매수 비활성화됨 (설정 확인)")
		return nil
	}
	return s.buyPass(ctx, now, acc, ts, report)
}

// ============================================================================
// Sell pass
// ============================================================================

func (s *Service) sellPass(ctx context.Context, acc *trading.Account, ts config.TradingSettings, report *CycleReport) error {
	if ts.TrailingStopEnabled && len(acc.Positions) > 0 {
		log.Info().Float64("rate", ts.TrailingStopRate).Msg("ℹ️ Trailing stop configured but not applied")
	}

	for _, p := range acc.Positions {
		if p.Qty <= 0 {
			continue
		}
		if p.PriceStale {
			err := fmt.Errorf("quote %s: %w", p.Symbol, trading.ErrDataUnavailable)
			report.fail(p.Symbol, p.Name, err)
			report.line("⚠️ [매도판단보류] %s - 현재가 조회 실패", displayName(p.Name, p.Symbol))
			log.Warn().Str("symbol", p.Symbol).Msg("⚠️ Sell rules skipped: stale price")
			continue
		}

		var reason string
		switch {
		case p.PnLRate >= ts.TakeProfitRate:
			reason = fmt.Sprintf("익절 조건 도달 (%.2f%% >= %g%%)", p.PnLRate, ts.TakeProfitRate)
		case p.PnLRate <= ts.StopLossRate:
			reason = fmt.Sprintf("손절 조건 도달 (%.2f%% <= %g%%)", p.PnLRate, ts.StopLossRate)
		default:
			continue
		}

		res, err := s.broker.Submit(ctx, trading.OrderRequest{
			Symbol:   p.Symbol,
			Name:     p.Name,
			Side:     trading.SideSell,
			Qty:      p.Qty,
			Source:   trading.SourceAuto,
			Reason:   reason,
			RefPrice: p.CurrentPrice,
		})
		if err != nil {
			if trading.IsFatal(err) {
				return err
			}
			s.metrics.IncOrder(string(trading.SideSell), string(s.broker.Mode()), "failed")
			report.fail(p.Symbol, p.Name, err)
			report.line("❌ [매도실패] %s - %v", displayName(p.Name, p.Symbol), err)
			log.Error().Err(err).Str("symbol", p.Symbol).Str("kind", trading.ErrorKind(err)).Msg("❌ Sell failed")
			continue
		}

		if res.Trade != nil && !res.Journaled {
			settleSell(res.Trade, p.AvgPrice, ts)
		}
		s.journal(ctx, res, report)

		s.metrics.IncOrder(string(trading.SideSell), string(s.broker.Mode()), "filled")
		report.record(Outcome{
			Symbol:  p.Symbol,
			Name:    p.Name,
			Action:  ActionSell,
			Qty:     res.Qty,
			Price:   res.Price,
			OrderNo: res.OrderNo,
			Reason:  reason,
		})
		report.line("📉 [매도성공] %s(%s) %d주 - %s", displayName(p.Name, p.Symbol), p.Symbol, res.Qty, reason)
		log.Info().Str("symbol", p.Symbol).Int64("qty", res.Qty).Str("reason", reason).Msg("📉 Auto sell")
	}
	return nil
}

// ============================================================================
// Buy pass
// ============================================================================

func (s *Service) buyPass(ctx context.Context, now time.Time, acc *trading.Account, ts config.TradingSettings, report *CycleReport) error {
	held := len(acc.Positions)
	if held >= ts.MaxHoldings {
		report.line("매수 생략: 최대 보유 종목 수 도달 (%d/%d)", held, ts.MaxHoldings)
		return nil
	}
	slots := ts.MaxHoldings - held

	budget := int64(float64(acc.Cash) * ts.BuyRatePct / 100)
	if ts.MaxBuyAmount < budget {
		budget = ts.MaxBuyAmount
	}
	if budget < ts.MinOrderAmount {
		report.line("매수 생략: 가용 예산 부족 (%d원)", budget)
		return nil
	}

	today := trading.DateKey(now)
	bought, err := s.trades.BoughtSymbols(ctx, today)
	if err != nil {
		return fmt.Errorf("%w: bought symbols: %w", trading.ErrInfrastructure, err)
	}
	if bought == nil {
		bought = make(map[string]bool)
	}
	candidates, err := s.scores.ListBuyCandidates(ctx, today, s.settings.MinTotalScore(), ts.CandidateLimit)
	if err != nil {
		return fmt.Errorf("%w: buy candidates: %w", trading.ErrInfrastructure, err)
	}

	filled := 0
	linesBefore := len(report.Lines)
	for _, cand := range candidates {
		if filled >= slots {
			break
		}
		if bought[cand.Symbol] {
			skipCandidate(report, cand, "금일 이미 매수")
			continue
		}

		ok, err := s.tryBuy(ctx, today, cand, budget, ts, report)
		if err != nil {
			return err
		}
		if ok {
			bought[cand.Symbol] = true
			filled++
		}
	}

	if filled == 0 && len(report.Lines) == linesBefore {
		report.line("매수 대상 종목이 없거나 조건(이미매수/Pivot)을 만족하지 못했습니다.")
	}
	return nil
}

// tryBuy evaluates and buys one candidate. Only fatal errors are returned;
// skips and per-symbol failures go to the report.
func (s *Service) tryBuy(ctx context.Context, today string, cand *trading.ScoreResult, budget int64, ts config.TradingSettings, report *CycleReport) (bool, error) {
	name := displayName(cand.Name, cand.Symbol)
	skip := func(reason string) {
		skipCandidate(report, cand, reason)
	}
	failed := func(err error) (bool, error) {
		if trading.IsFatal(err) {
			return false, err
		}
		report.fail(cand.Symbol, cand.Name, err)
		report.line("❌ [매수실패] %s - %v", name, err)
		log.Warn().Err(err).Str("symbol", cand.Symbol).Str("kind", trading.ErrorKind(err)).Msg("⚠️ Buy candidate failed")
		return false, nil
	}

	quote, err := s.broker.Quote(ctx, cand.Symbol)
	if err != nil {
		return failed(err)
	}
	price := quote.Price
	if price <= 0 {
		return failed(fmt.Errorf("quote %s: %w", cand.Symbol, trading.ErrDataUnavailable))
	}
	if price < ts.MinPrice {
		skip(fmt.Sprintf("동전주 (%d원 < %d원)", price, ts.MinPrice))
		return false, nil
	}

	bar, err := s.sessions.PriorSession(ctx, cand.Symbol, today)
	if err != nil {
		if errors.Is(err, trading.ErrDataUnavailable) {
			skip("전일 시세 없음")
			return false, nil
		}
		return failed(err)
	}
	levels := Pivot(bar)
	if !levels.Supports(price) {
		skip(fmt.Sprintf("Pivot 미달: 현재가(%d) > 지지선평균(%d)", price, int64(levels.SupportAverage())))
		return false, nil
	}

	qty := budget / price
	if qty <= 0 {
		skip(fmt.Sprintf("예산 부족 (%d원 < %d원)", budget, price))
		return false, nil
	}

	reason := fmt.Sprintf("점수%d/Pivot지지", cand.Total)
	res, err := s.broker.Submit(ctx, trading.OrderRequest{
		Symbol:   cand.Symbol,
		Name:     cand.Name,
		Side:     trading.SideBuy,
		Qty:      qty,
		Source:   trading.SourceAuto,
		Reason:   reason,
		RefPrice: price,
	})
	if err != nil {
		s.metrics.IncOrder(string(trading.SideBuy), string(s.broker.Mode()), "failed")
		return failed(err)
	}

	s.journal(ctx, res, report)
	s.metrics.IncOrder(string(trading.SideBuy), string(s.broker.Mode()), "filled")
	report.record(Outcome{
		Symbol:  cand.Symbol,
		Name:    cand.Name,
		Action:  ActionBuy,
		Qty:     res.Qty,
		Price:   res.Price,
		OrderNo: res.OrderNo,
		Reason:  reason,
	})
	report.line("📈 [매수성공] %s(%s) %d주 - Pivot조건만족", name, cand.Symbol, res.Qty)
	log.Info().Str("symbol", cand.Symbol).Int64("qty", res.Qty).Int64("price", price).Msg("📈 Auto buy")
	return true, nil
}

func skipCandidate(report *CycleReport, cand *trading.ScoreResult, reason string) {
	report.record(Outcome{Symbol: cand.Symbol, Name: cand.Name, Action: ActionSkip, Reason: reason})
	report.line("✋ [매수보류] %s - %s", displayName(cand.Name, cand.Symbol), reason)
	log.Info().Str("symbol", cand.Symbol).Str("reason", reason).Msg("✋ Buy skipped")
}

// settleSell fills fee, tax and net realized profit of a broker-side sell
// from the position's average cost
func settleSell(t *trading.TradeRecord, avgPrice int64, ts config.TradingSettings) {
	amount := t.Price * t.Qty
	cost := avgPrice * t.Qty
	t.Amount = amount
	t.Fee = ts.Fee(amount)
	t.Tax = ts.Tax(amount)
	t.Profit = amount - t.Fee - t.Tax - cost
	if cost > 0 {
		t.ProfitRate = decimal.NewFromInt(t.Profit).
			Div(decimal.NewFromInt(cost)).
			Mul(decimal.NewFromInt(100)).
			Round(2).
			InexactFloat64()
	}
}

// journal appends the trade unless the executor already did
func (s *Service) journal(ctx context.Context, res *trading.OrderResult, report *CycleReport) {
	if res.Trade == nil {
		return
	}
	if s.tradeLog != nil {
		t := res.Trade
		s.tradeLog.Info().
			Str("run_id", report.RunID.String()).
			Str("mode", t.Mode).
			Str("order_no", t.OrderNo).
			Str("side", string(t.Side)).
			Str("symbol", t.Symbol).
			Int64("qty", t.Qty).
			Int64("price", t.Price).
			Int64("profit", t.Profit).
			Str("reason", t.Reason).
			Msg("trade")
	}
	if res.Journaled {
		return
	}
	if err := s.trades.Append(ctx, res.Trade); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("%s: journal: %v", res.Symbol, err))
		log.Error().Err(err).Str("symbol", res.Symbol).Str("order_no", res.OrderNo).Msg("❌ Trade journal failed")
	}
}

// ============================================================================
// Run log
// ============================================================================

func (s *Service) startRun(ctx context.Context, report *CycleReport) {
	if s.runLogs == nil {
		return
	}
	run := &trading.ScheduleRunLog{
		RunID:     report.RunID,
		Name:      runName,
		TaskType:  string(report.Mode),
		Status:    trading.RunRunning,
		StartedAt: report.StartedAt,
	}
	if err := s.runLogs.Start(ctx, run); err != nil {
		log.Warn().Err(err).Msg("⚠️ Run log start failed")
	}
}

func (s *Service) finishRun(ctx context.Context, report *CycleReport, runErr error) {
	if s.runLogs == nil {
		return
	}
	finished := report.FinishedAt
	run := &trading.ScheduleRunLog{
		RunID:      report.RunID,
		Name:       runName,
		TaskType:   string(report.Mode),
		Status:     trading.RunSuccess,
		StartedAt:  report.StartedAt,
		FinishedAt: &finished,
		Message:    report.Summary(),
	}
	if runErr != nil {
		run.Status = trading.RunFailed
		run.ErrorMessage = runErr.Error()
	}
	if err := s.runLogs.Finish(ctx, run); err != nil {
		log.Warn().Err(err).Msg("⚠️ Run log finish failed")
	}
}

func displayName(name, symbol string) string {
	if name != "" {
		return name
	}
	return symbol
}
