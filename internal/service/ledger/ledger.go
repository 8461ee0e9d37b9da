package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/wonny/snowbot/internal/domain/trading"
	"github.com/wonny/snowbot/internal/pkg/config"
	"github.com/wonny/snowbot/internal/pkg/metrics"
)

// Ledger 가상 계좌 원장
// 모든 변경(매수/매도/리셋)과 시세 반영은 mu 하나로 직렬화된다.
// 시세 조회(네트워크)는 락 밖에서 수행한다.
type Ledger struct {
	mu       sync.Mutex
	repo     trading.LedgerRepository
	quotes   trading.QuoteSource
	settings *config.SettingsStore
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures a Ledger
type Option func(*Ledger)

// WithClock overrides the wall clock
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithMetrics attaches metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// New creates a ledger
func New(repo trading.LedgerRepository, quotes trading.QuoteSource, settings *config.SettingsStore, opts ...Option) *Ledger {
	l := &Ledger{
		repo:     repo,
		quotes:   quotes,
		settings: settings,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Init creates the account row with the configured initial balance if none exists
func (l *Ledger) Init(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.accountLocked(ctx)
	return err
}

// accountLocked loads the account, creating it on first use
func (l *Ledger) accountLocked(ctx context.Context) (*trading.Account, error) {
	acc, err := l.repo.GetAccount(ctx)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, trading.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: load account: %w", trading.ErrInfrastructure, err)
	}

	initial := l.settings.Trading().InitialBalance
	acc, err = l.repo.CreateAccount(ctx, initial)
	if err != nil {
		return nil, fmt.Errorf("%w: create account: %w", trading.ErrInfrastructure, err)
	}
	log.Info().Int64("initial_balance", initial).Msg("💰 Paper account initialized")
	return acc, nil
}

// ============================================================================
// Read paths (eager price refresh)
// ============================================================================

// GetAccountInfo refreshes every position's price and returns the account
func (l *Ledger) GetAccountInfo(ctx context.Context) (*trading.Account, error) {
	positions, err := l.repo.ListPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list positions: %w", trading.ErrInfrastructure, err)
	}
	symbols := make([]string, 0, len(positions))
	for _, p := range positions {
		symbols = append(symbols, p.Symbol)
	}
	prices := l.fetchPrices(ctx, symbols)

	l.mu.Lock()
	defer l.mu.Unlock()

	acc, err := l.accountLocked(ctx)
	if err != nil {
		return nil, err
	}
	positions, err = l.repo.ListPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list positions: %w", trading.ErrInfrastructure, err)
	}
	if err := l.applyPricesLocked(ctx, positions, prices); err != nil {
		return nil, err
	}

	l.fillAccount(acc, positions)
	l.metrics.SetLedgerCash(acc.Cash)
	return acc, nil
}

// GetHolding refreshes and returns one position (ErrNoPosition if not held)
func (l *Ledger) GetHolding(ctx context.Context, symbol string) (*trading.Position, error) {
	prices := l.fetchPrices(ctx, []string{symbol})

	l.mu.Lock()
	defer l.mu.Unlock()

	pos, err := l.repo.GetPosition(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if err := l.applyPricesLocked(ctx, []*trading.Position{pos}, prices); err != nil {
		return nil, err
	}
	return pos, nil
}

// GetBalance returns the cash balance
func (l *Ledger) GetBalance(ctx context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, err := l.accountLocked(ctx)
	if err != nil {
		return 0, err
	}
	return acc.Cash, nil
}

// TradeHistory returns the latest paper trades, newest first
func (l *Ledger) TradeHistory(ctx context.Context, limit int) ([]*trading.TradeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	return l.repo.ListTrades(ctx, limit)
}

// fetchPrices queries quotes without holding the lock.
// Symbols whose quote fails are absent from the result.
func (l *Ledger) fetchPrices(ctx context.Context, symbols []string) map[string]int64 {
	prices := make(map[string]int64, len(symbols))
	for _, sym := range symbols {
		q, err := l.quotes.Quote(ctx, sym)
		if err != nil {
			log.Warn().Err(err).Str("symbol", sym).Msg("⚠️ Quote refresh failed, position marked stale")
			continue
		}
		prices[sym] = q.Price
	}
	return prices
}

// applyPricesLocked revalues positions with a fresh quote and marks the rest stale
func (l *Ledger) applyPricesLocked(ctx context.Context, positions []*trading.Position, prices map[string]int64) error {
	now := l.now()
	changed := make([]*trading.Position, 0, len(positions))
	for _, p := range positions {
		price, ok := prices[p.Symbol]
		if !ok {
			p.PriceStale = true
			continue
		}
		revalue(p, price)
		p.UpdatedAt = now
		changed = append(changed, p)
	}
	if len(changed) == 0 {
		return nil
	}
	if err := l.repo.UpdatePrices(ctx, changed); err != nil {
		return fmt.Errorf("%w: update prices: %w", trading.ErrInfrastructure, err)
	}
	return nil
}

// fillAccount derives valuation fields from cash and positions
func (l *Ledger) fillAccount(acc *trading.Account, positions []*trading.Position) {
	if acc.InitialBalance == 0 {
		acc.InitialBalance = l.settings.Trading().InitialBalance
	}
	acc.Positions = positions
	acc.PositionValue = 0
	for _, p := range positions {
		acc.PositionValue += p.EvalAmount
	}
	acc.TotalEval = acc.Cash + acc.PositionValue
	acc.TotalProfit = acc.TotalEval - acc.InitialBalance
	acc.TotalProfitRate = percent(acc.TotalProfit, acc.InitialBalance)
	acc.RealizedPnLRate = percent(acc.RealizedPnL, acc.InitialBalance)
}

// ============================================================================
// Mutations
// ============================================================================

// Buy debits cash and opens or averages into a position.
// Price 0 uses RefPrice, then the current quote.
func (l *Ledger) Buy(ctx context.Context, req trading.OrderRequest) (*trading.OrderResult, error) {
	if req.Qty <= 0 {
		return nil, fmt.Errorf("buy %s qty %d: %w", req.Symbol, req.Qty, trading.ErrInvalidQuantity)
	}
	price, err := l.resolvePrice(ctx, req)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acc, err := l.accountLocked(ctx)
	if err != nil {
		return nil, err
	}

	ts := l.settings.Trading()
	amount := price * req.Qty
	fee := ts.Fee(amount)
	if acc.Cash < amount+fee {
		return nil, fmt.Errorf("%w: need %d, have %d", trading.ErrInsufficientFunds, amount+fee, acc.Cash)
	}

	now := l.now()
	today := trading.DateKey(now)

	pos, err := l.repo.GetPosition(ctx, req.Symbol)
	switch {
	case errors.Is(err, trading.ErrNoPosition):
		pos = &trading.Position{
			Symbol:     req.Symbol,
			Name:       displayName(req),
			Qty:        req.Qty,
			AvgPrice:   price,
			AcquiredOn: today,
		}
	case err != nil:
		return nil, fmt.Errorf("%w: load position: %w", trading.ErrInfrastructure, err)
	default:
		pos.AvgPrice = averagePrice(pos.Qty, pos.AvgPrice, req.Qty, price)
		pos.Qty += req.Qty
	}
	revalue(pos, price)
	pos.UpdatedAt = now

	trade := l.newTrade(req, trading.SideBuy, price, now)
	trade.Name = pos.Name
	trade.Amount = amount
	trade.Fee = fee
	if trade.Reason == "" {
		trade.Reason = fmt.Sprintf("시뮬레이션 매수: %s", pos.Name)
	}

	m := &trading.LedgerMutation{
		Cash:           acc.Cash - amount - fee,
		RealizedPnL:    acc.RealizedPnL,
		UpsertPosition: pos,
		Trade:          trade,
	}
	if err := l.repo.Apply(ctx, m); err != nil {
		return nil, fmt.Errorf("%w: apply buy: %w", trading.ErrInfrastructure, err)
	}
	l.metrics.SetLedgerCash(m.Cash)

	log.Info().
		Str("symbol", req.Symbol).
		Int64("qty", req.Qty).
		Int64("price", price).
		Int64("fee", fee).
		Int64("cash", m.Cash).
		Msg("🟢 Paper buy filled")

	return &trading.OrderResult{
		OrderNo:   trade.OrderNo,
		Symbol:    req.Symbol,
		Side:      trading.SideBuy,
		Qty:       req.Qty,
		Price:     price,
		Trade:     trade,
		Journaled: true,
	}, nil
}

// Sell credits net proceeds and reduces or closes a position.
// Qty 0 sells the whole position.
func (l *Ledger) Sell(ctx context.Context, req trading.OrderRequest) (*trading.OrderResult, error) {
	if req.Qty < 0 {
		return nil, fmt.Errorf("sell %s qty %d: %w", req.Symbol, req.Qty, trading.ErrInvalidQuantity)
	}
	price, err := l.resolvePrice(ctx, req)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acc, err := l.accountLocked(ctx)
	if err != nil {
		return nil, err
	}
	pos, err := l.repo.GetPosition(ctx, req.Symbol)
	if err != nil {
		if errors.Is(err, trading.ErrNoPosition) {
			return nil, fmt.Errorf("sell %s: %w", req.Symbol, err)
		}
		return nil, fmt.Errorf("%w: load position: %w", trading.ErrInfrastructure, err)
	}

	qty := req.Qty
	if qty == 0 {
		qty = pos.Qty
	}
	if qty > pos.Qty {
		return nil, fmt.Errorf("%w: held %d, requested %d", trading.ErrInsufficientQuantity, pos.Qty, qty)
	}

	ts := l.settings.Trading()
	amount := price * qty
	fee := ts.Fee(amount)
	tax := ts.Tax(amount)
	net := amount - fee - tax
	cost := pos.AvgPrice * qty
	profit := net - cost
	rate := roundRate(percent(profit, cost))

	now := l.now()
	m := &trading.LedgerMutation{
		Cash:        acc.Cash + net,
		RealizedPnL: acc.RealizedPnL + profit,
	}
	if qty == pos.Qty {
		m.DeleteSymbol = pos.Symbol
	} else {
		pos.Qty -= qty
		revalue(pos, price)
		pos.UpdatedAt = now
		m.UpsertPosition = pos
	}

	trade := l.newTrade(req, trading.SideSell, price, now)
	trade.Name = pos.Name
	trade.Qty = qty
	trade.Amount = amount
	trade.Fee = fee
	trade.Tax = tax
	trade.Profit = profit
	trade.ProfitRate = rate
	if trade.Reason == "" {
		trade.Reason = fmt.Sprintf("시뮬레이션 매도: %s (손익: %+d원, %+.2f%%)", pos.Name, profit, rate)
	}
	m.Trade = trade

	if err := l.repo.Apply(ctx, m); err != nil {
		return nil, fmt.Errorf("%w: apply sell: %w", trading.ErrInfrastructure, err)
	}
	l.metrics.SetLedgerCash(m.Cash)

	log.Info().
		Str("symbol", req.Symbol).
		Int64("qty", qty).
		Int64("price", price).
		Int64("profit", profit).
		Float64("profit_rate", rate).
		Int64("cash", m.Cash).
		Msg("🔴 Paper sell filled")

	return &trading.OrderResult{
		OrderNo:   trade.OrderNo,
		Symbol:    req.Symbol,
		Side:      trading.SideSell,
		Qty:       qty,
		Price:     price,
		Trade:     trade,
		Journaled: true,
	}, nil
}

// Reset deletes all positions and restores the configured initial balance.
// Trade history is kept.
func (l *Ledger) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.accountLocked(ctx); err != nil {
		return err
	}
	initial := l.settings.Trading().InitialBalance
	if err := l.repo.Reset(ctx, initial); err != nil {
		return fmt.Errorf("%w: reset: %w", trading.ErrInfrastructure, err)
	}
	l.metrics.SetLedgerCash(initial)
	log.Info().Int64("initial_balance", initial).Msg("♻️ Paper account reset")
	return nil
}

func (l *Ledger) resolvePrice(ctx context.Context, req trading.OrderRequest) (int64, error) {
	if req.Price > 0 {
		return req.Price, nil
	}
	if req.RefPrice > 0 {
		return req.RefPrice, nil
	}
	q, err := l.quotes.Quote(ctx, req.Symbol)
	if err != nil {
		return 0, fmt.Errorf("quote %s: %w", req.Symbol, err)
	}
	if q.Price <= 0 {
		return 0, fmt.Errorf("quote %s: %w", req.Symbol, trading.ErrDataUnavailable)
	}
	return q.Price, nil
}

func (l *Ledger) newTrade(req trading.OrderRequest, side trading.Side, price int64, now time.Time) *trading.TradeRecord {
	source := req.Source
	if source == "" {
		source = trading.SourceManual
	}
	return &trading.TradeRecord{
		OrderNo:   orderNo(now),
		Symbol:    req.Symbol,
		TradeDate: trading.DateKey(now),
		TradeTime: now.Format("150405"),
		Side:      side,
		Qty:       req.Qty,
		Price:     price,
		Mode:      string(trading.ModePaper),
		Source:    source,
		Reason:    req.Reason,
		CreatedAt: now,
	}
}

// orderNo builds a paper order number: SIM + yyyymmddHHMMSS + 6 hex
func orderNo(now time.Time) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "SIM" + now.Format("20060102150405") + strings.ToUpper(id[:6])
}

func displayName(req trading.OrderRequest) string {
	if req.Name != "" {
		return req.Name
	}
	return req.Symbol
}

// ============================================================================
// Arithmetic
// ============================================================================

// averagePrice returns round((q1*p1 + q2*p2) / (q1+q2))
func averagePrice(q1, p1, q2, p2 int64) int64 {
	total := decimal.NewFromInt(q1 * p1).Add(decimal.NewFromInt(q2 * p2))
	return total.Div(decimal.NewFromInt(q1 + q2)).Round(0).IntPart()
}

// revalue sets the current price and derived valuation fields
func revalue(p *trading.Position, price int64) {
	p.CurrentPrice = price
	p.EvalAmount = p.Qty * price
	cost := p.CostBasis()
	p.UnrealizedPnL = p.EvalAmount - cost
	p.PnLRate = percent(p.UnrealizedPnL, cost)
}

// percent returns num/den*100, 0 when den is 0
func percent(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return decimal.NewFromInt(num).Div(decimal.NewFromInt(den)).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

func roundRate(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
