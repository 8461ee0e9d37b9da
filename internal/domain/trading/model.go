package trading

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout is the broker's calendar date format (YYYYMMDD).
const DateLayout = "20060102"

// DateKey formats t as a trading date key.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// ============================================================================
// Profile / Mode
// ============================================================================

// Profile is an authentication/account context at the broker
type Profile string

const (
	ProfilePaper Profile = "paper" // 모의투자
	ProfileLive  Profile = "live"  // 실전투자
)

// Valid reports whether p is a known profile
func (p Profile) Valid() bool {
	return p == ProfilePaper || p == ProfileLive
}

// ParseProfile parses a profile name (paper/live, mock/real accepted)
func ParseProfile(s string) (Profile, error) {
	switch s {
	case "paper", "mock", "PAPER":
		return ProfilePaper, nil
	case "live", "real", "LIVE":
		return ProfileLive, nil
	}
	return "", ErrInvalidProfile
}

// ExecutionMode selects where orders are executed
type ExecutionMode string

const (
	ModePaper ExecutionMode = "paper" // internal ledger
	ModeLive  ExecutionMode = "live"  // brokerage account
)

// ParseExecutionMode parses an execution mode name
func ParseExecutionMode(s string) (ExecutionMode, error) {
	switch s {
	case "paper", "simulation":
		return ModePaper, nil
	case "live", "real_trading":
		return ModeLive, nil
	}
	return "", ErrInvalidMode
}

// ============================================================================
// Credentials
// ============================================================================

// CredentialState is the persisted token state of one profile.
// IssuedCount resets when IssuedOn differs from the current date.
type CredentialState struct {
	Profile     Profile   `json:"profile"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"token_expires"`
	IssuedCount int       `json:"issue_count"`
	IssuedOn    string    `json:"issue_date"` // YYYYMMDD
}

// Usable reports whether the token can be used at now
func (s *CredentialState) Usable(now time.Time) bool {
	return s != nil && s.AccessToken != "" && now.Before(s.ExpiresAt)
}

// TokenStatus is an operator view of a profile's token state
type TokenStatus struct {
	Profile     Profile       `json:"profile"`
	HasToken    bool          `json:"has_token"`
	Valid       bool          `json:"valid"`
	ExpiresAt   *time.Time    `json:"expires_at,omitempty"`
	Remaining   time.Duration `json:"remaining"`
	IssuedToday int           `json:"issued_today"`
	DailyLimit  int           `json:"daily_limit"`
}

// ============================================================================
// Market data
// ============================================================================

// Symbol is an entry of the symbol master
type Symbol struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Market string `json:"market"`
}

// MarketSnapshot is the normalized input to scoring.
// Rates are percentages. MarketCap is in KRW.
type MarketSnapshot struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	DataDate string `json:"data_date"`

	Close int64   `json:"close"`
	MA5   float64 `json:"ma5"`
	MA10  float64 `json:"ma10"`
	MA20  float64 `json:"ma20"`
	MA60  float64 `json:"ma60"`
	MA120 float64 `json:"ma120"`
	MA240 float64 `json:"ma240"`

	RevenueGrowth         float64 `json:"revenue_growth"`
	OperatingProfitGrowth float64 `json:"operating_profit_growth"`
	ROE                   float64 `json:"roe"`
	DebtRatio             float64 `json:"debt_ratio"`
	NetIncome             int64   `json:"net_income"`
	ReserveRatio          float64 `json:"reserve_ratio"`

	ForeignNetBuyQty int64 `json:"foreign_net_buy_qty"`
	ProgramNetBuyQty int64 `json:"program_net_buy_qty"`

	PER       float64 `json:"per"`
	PBR       float64 `json:"pbr"`
	MarketCap int64   `json:"market_cap"`

	HighRate52w          float64 `json:"high_rate_52w"` // distance from 52w high (<= 0)
	LowRate52w           float64 `json:"low_rate_52w"`  // distance from 52w low (>= 0)
	ForeignOwnershipRate float64 `json:"foreign_ownership_rate"`
}

// Defaults applied to snapshot fields missing from reference data
const (
	MissingDebtRatio = 999.0
	MissingRate52w   = -99.0
)

// NewMarketSnapshot returns a snapshot with missing-value defaults applied
func NewMarketSnapshot(symbol string) *MarketSnapshot {
	return &MarketSnapshot{
		Symbol:      symbol,
		DebtRatio:   MissingDebtRatio,
		HighRate52w: MissingRate52w,
		LowRate52w:  MissingRate52w,
	}
}

// DailyBar is one trading session's OHLC
type DailyBar struct {
	Symbol    string `json:"symbol"`
	TradeDate string `json:"trade_date"`
	Open      int64  `json:"open"`
	High      int64  `json:"high"`
	Low       int64  `json:"low"`
	Close     int64  `json:"close"`
	Volume    int64  `json:"volume"`
}

// Quote is a live price quote
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     int64     `json:"price"`
	Open      int64     `json:"open"`
	High      int64     `json:"high"`
	Low       int64     `json:"low"`
	Volume    int64     `json:"volume"`
	FetchedAt time.Time `json:"fetched_at"`
}

// InvestorFlow is the daily net-buy breakdown by investor type
type InvestorFlow struct {
	Symbol        string `json:"symbol"`
	ForeignNetBuy int64  `json:"foreign_net_buy"`
	InstNetBuy    int64  `json:"inst_net_buy"`
	RetailNetBuy  int64  `json:"retail_net_buy"`
}

// ============================================================================
// Scoring
// ============================================================================

// ScoreResult is the outcome of evaluating one snapshot
type ScoreResult struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	BaseDate string `json:"base_date"`

	Fundamentals int `json:"fundamentals"`
	Momentum     int `json:"momentum"`
	PriceTrend   int `json:"price_trend"`
	Technical    int `json:"technical"`
	SupplyDemand int `json:"supply_demand"`
	MarketCap    int `json:"market_cap"`
	PER          int `json:"per"`
	PBR          int `json:"pbr"`

	Total        int   `json:"total"`
	BuyCandidate bool  `json:"buy_candidate"`
	ClosePrice   int64 `json:"close_price"`
}

// ============================================================================
// Ledger
// ============================================================================

// Side is an order/trade direction
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Source tags who initiated a trade
type Source string

const (
	SourceManual Source = "manual"
	SourceAuto   Source = "auto"
)

// Position is a held symbol. Qty > 0 while the row exists.
type Position struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name"`
	Qty           int64     `json:"qty"`
	AvgPrice      int64     `json:"avg_price"`
	CurrentPrice  int64     `json:"current_price"`
	EvalAmount    int64     `json:"eval_amount"`
	UnrealizedPnL int64     `json:"unrealized_pnl"`
	PnLRate       float64   `json:"pnl_rate"`
	AcquiredOn    string    `json:"acquired_on"`
	UpdatedAt     time.Time `json:"updated_at"`

	// PriceStale is set when this read could not refresh the quote;
	// CurrentPrice and the derived fields are then the last stored values.
	PriceStale bool `json:"price_stale,omitempty"`
}

// CostBasis returns qty * avg price
func (p *Position) CostBasis() int64 {
	return p.Qty * p.AvgPrice
}

// Account is the ledger (or broker) account projection
type Account struct {
	InitialBalance  int64       `json:"initial_balance"`
	Cash            int64       `json:"cash"`
	PositionValue   int64       `json:"position_value"`
	TotalEval       int64       `json:"total_eval"`
	RealizedPnL     int64       `json:"realized_pnl"`
	RealizedPnLRate float64     `json:"realized_pnl_rate"`
	TotalProfit     int64       `json:"total_profit"`
	TotalProfitRate float64     `json:"total_profit_rate"`
	Positions       []*Position `json:"positions"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// TradeRecord is an append-only executed trade
type TradeRecord struct {
	ID         int64     `json:"id"`
	OrderNo    string    `json:"order_no"`
	Symbol     string    `json:"symbol"`
	Name       string    `json:"name"`
	TradeDate  string    `json:"trade_date"` // YYYYMMDD
	TradeTime  string    `json:"trade_time"` // HHMMSS
	Side       Side      `json:"side"`
	Qty        int64     `json:"qty"`
	Price      int64     `json:"price"`
	Amount     int64     `json:"amount"`
	Fee        int64     `json:"fee"`
	Tax        int64     `json:"tax"`
	Profit     int64     `json:"profit"`
	ProfitRate float64   `json:"profit_rate"`
	Mode       string    `json:"mode"`
	Source     Source    `json:"source"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

// OrderRequest is a market (Price == 0) or priced order
type OrderRequest struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Side   Side   `json:"side"`
	Qty    int64  `json:"qty"`   // sell: 0 means the whole position
	Price  int64  `json:"price"` // 0: market / current quote
	Source Source `json:"source"`
	Reason string `json:"reason"`

	// RefPrice is the price observed when the order was decided.
	// Market orders are journaled at this price when it is set.
	RefPrice int64 `json:"ref_price,omitempty"`
}

// OrderResult is the outcome of an accepted order.
// Journaled is true when the executor already appended the TradeRecord.
type OrderResult struct {
	OrderNo   string       `json:"order_no"`
	Symbol    string       `json:"symbol"`
	Side      Side         `json:"side"`
	Qty       int64        `json:"qty"`
	Price     int64        `json:"price"`
	Trade     *TradeRecord `json:"trade,omitempty"`
	Journaled bool         `json:"journaled"`
}

// ============================================================================
// Run log
// ============================================================================

// RunStatus is the state of a ScheduleRunLog
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// ScheduleRunLog is one row per orchestrator invocation
type ScheduleRunLog struct {
	RunID        uuid.UUID  `json:"run_id"`
	Name         string     `json:"name"`
	TaskType     string     `json:"task_type"`
	Status       RunStatus  `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Message      string     `json:"message,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}
