package kis

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wonny/snowbot/internal/domain/trading"
)

// LiveBroker adapts the KIS client to trading.Broker.
// Account state is a read-through projection of the broker balance.
type LiveBroker struct {
	client *Client
	now    func() time.Time
}

// NewLiveBroker creates a LiveBroker
func NewLiveBroker(client *Client) *LiveBroker {
	return &LiveBroker{client: client, now: time.Now}
}

func (b *LiveBroker) Mode() trading.ExecutionMode {
	return trading.ModeLive
}

// Account fetches the balance. Any failure means no account state.
func (b *LiveBroker) Account(ctx context.Context) (*trading.Account, error) {
	account, err := b.client.Balance(ctx)
	if err != nil {
		if trading.IsFatal(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: fetch balance: %w", trading.ErrInfrastructure, err)
	}
	return account, nil
}

func (b *LiveBroker) Quote(ctx context.Context, symbol string) (*trading.Quote, error) {
	return b.client.Quote(ctx, symbol)
}

// Submit places a market order. The returned trade is not journaled.
func (b *LiveBroker) Submit(ctx context.Context, req trading.OrderRequest) (*trading.OrderResult, error) {
	if req.Qty <= 0 {
		return nil, fmt.Errorf("%w: %s %s qty=%d", trading.ErrInvalidQuantity, req.Side, req.Symbol, req.Qty)
	}

	orderNo, err := b.client.PlaceOrder(ctx, req.Side, req.Symbol, req.Qty, req.Price)
	if err != nil {
		return nil, err
	}

	price := req.Price
	if price == 0 {
		price = req.RefPrice
	}

	now := b.now()
	trade := &trading.TradeRecord{
		OrderNo:   orderNo,
		Symbol:    req.Symbol,
		Name:      req.Name,
		TradeDate: trading.DateKey(now),
		TradeTime: now.Format("150405"),
		Side:      req.Side,
		Qty:       req.Qty,
		Price:     price,
		Amount:    price * req.Qty,
		Mode:      string(trading.ModeLive),
		Source:    req.Source,
		Reason:    req.Reason,
		CreatedAt: now,
	}

	log.Info().
		Str("order_no", orderNo).
		Str("side", string(req.Side)).
		Str("symbol", req.Symbol).
		Int64("qty", req.Qty).
		Str("profile", string(b.client.Profile())).
		Msg("📤 KIS order accepted")

	return &trading.OrderResult{
		OrderNo: orderNo,
		Symbol:  req.Symbol,
		Side:    req.Side,
		Qty:     req.Qty,
		Price:   price,
		Trade:   trade,
	}, nil
}
