package trading

import "context"

// ReferenceReader reads reference data persisted by the ingestion subsystem
type ReferenceReader interface {
	// ListSymbols returns the symbol master rows listed for date
	ListSymbols(ctx context.Context, date string) ([]*Symbol, error)

	// LoadSnapshot builds a scoring snapshot from the latest price row and
	// fundamentals row on or before asOf. Returns ErrDataUnavailable if no
	// price row exists.
	LoadSnapshot(ctx context.Context, symbol, asOf string) (*MarketSnapshot, error)

	// PriorSession returns the latest daily bar strictly before date.
	// Returns ErrDataUnavailable if none exists.
	PriorSession(ctx context.Context, symbol, date string) (*DailyBar, error)

	// SymbolName returns the display name of symbol ("" if unknown)
	SymbolName(ctx context.Context, symbol string) (string, error)
}

// ScoreRepository persists score results
type ScoreRepository interface {
	// Upsert stores a result keyed by (symbol, base date)
	Upsert(ctx context.Context, result *ScoreResult) error

	// ListBuyCandidates returns buy candidates of baseDate with total >= minTotal,
	// ordered by total score descending
	ListBuyCandidates(ctx context.Context, baseDate string, minTotal, limit int) ([]*ScoreResult, error)

	// Get returns a single result
	Get(ctx context.Context, symbol, baseDate string) (*ScoreResult, error)
}

// TradeRepository persists the append-only trade journal
type TradeRepository interface {
	// Append inserts a trade record
	Append(ctx context.Context, trade *TradeRecord) error

	// BoughtSymbols returns symbols with a buy record on date
	BoughtSymbols(ctx context.Context, date string) (map[string]bool, error)

	// List returns the latest trades, newest first
	List(ctx context.Context, limit int) ([]*TradeRecord, error)
}

// LedgerMutation is the atomic unit written by a ledger buy/sell
type LedgerMutation struct {
	Cash           int64
	RealizedPnL    int64 // cumulative
	UpsertPosition *Position
	DeleteSymbol   string
	Trade          *TradeRecord
}

// LedgerRepository persists the paper ledger (account, positions, trades)
type LedgerRepository interface {
	// GetAccount returns the account row (ErrAccountNotFound if absent)
	GetAccount(ctx context.Context) (*Account, error)

	// CreateAccount inserts the account row with the initial balance
	CreateAccount(ctx context.Context, initialBalance int64) (*Account, error)

	// ListPositions returns all held positions
	ListPositions(ctx context.Context) ([]*Position, error)

	// GetPosition returns a position (ErrNoPosition if absent)
	GetPosition(ctx context.Context, symbol string) (*Position, error)

	// UpdatePrices stores refreshed current prices / valuations
	UpdatePrices(ctx context.Context, positions []*Position) error

	// Apply writes cash, the position change and the trade in one transaction
	Apply(ctx context.Context, m *LedgerMutation) error

	// Reset deletes all positions and resets cash to initialBalance
	Reset(ctx context.Context, initialBalance int64) error

	// ListTrades returns the latest ledger trades, newest first
	ListTrades(ctx context.Context, limit int) ([]*TradeRecord, error)
}

// RunLogRepository persists schedule run logs
type RunLogRepository interface {
	// Start inserts a running row
	Start(ctx context.Context, run *ScheduleRunLog) error

	// Finish closes the row with status and messages
	Finish(ctx context.Context, run *ScheduleRunLog) error

	// Recent returns the latest runs, newest first
	Recent(ctx context.Context, limit int) ([]*ScheduleRunLog, error)
}

// Broker executes orders and reports account state for one execution mode
type Broker interface {
	// Mode returns the execution mode this broker serves
	Mode() ExecutionMode

	// Account returns cash and holdings with current profit rates
	Account(ctx context.Context) (*Account, error)

	// Quote returns the live quote of symbol
	Quote(ctx context.Context, symbol string) (*Quote, error)

	// Submit executes a market order
	Submit(ctx context.Context, req OrderRequest) (*OrderResult, error)
}

// QuoteSource returns live quotes
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (*Quote, error)
}

// SessionSource returns the prior trading session's OHLC
type SessionSource interface {
	PriorSession(ctx context.Context, symbol, date string) (*DailyBar, error)
}
