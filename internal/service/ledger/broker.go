package ledger

import (
	"context"
	"fmt"

	"github.com/wonny/snowbot/internal/domain/trading"
)

// PaperBroker executes orders against the ledger
type PaperBroker struct {
	ledger *Ledger
	quotes trading.QuoteSource
}

// NewPaperBroker creates a paper broker
func NewPaperBroker(ledger *Ledger, quotes trading.QuoteSource) *PaperBroker {
	return &PaperBroker{ledger: ledger, quotes: quotes}
}

// Mode returns ModePaper
func (b *PaperBroker) Mode() trading.ExecutionMode {
	return trading.ModePaper
}

// Account returns the refreshed ledger account
func (b *PaperBroker) Account(ctx context.Context) (*trading.Account, error) {
	return b.ledger.GetAccountInfo(ctx)
}

// Quote returns the live quote
func (b *PaperBroker) Quote(ctx context.Context, symbol string) (*trading.Quote, error) {
	return b.quotes.Quote(ctx, symbol)
}

// quoteInvalidator is implemented by quote caches
type quoteInvalidator interface {
	Invalidate(symbol string)
}

// Submit fills the order on the ledger. The trade is journaled by the ledger.
// A cached quote of the symbol is dropped after the fill.
func (b *PaperBroker) Submit(ctx context.Context, req trading.OrderRequest) (*trading.OrderResult, error) {
	var (
		res *trading.OrderResult
		err error
	)
	switch req.Side {
	case trading.SideBuy:
		res, err = b.ledger.Buy(ctx, req)
	case trading.SideSell:
		res, err = b.ledger.Sell(ctx, req)
	default:
		return nil, fmt.Errorf("unknown side %q: %w", req.Side, trading.ErrOrderRejected)
	}
	if err != nil {
		return nil, err
	}
	if inv, ok := b.quotes.(quoteInvalidator); ok {
		inv.Invalidate(req.Symbol)
	}
	return res, nil
}
