package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/wonny/snowbot/internal/api/response"
	"github.com/wonny/snowbot/internal/domain/trading"
)

// AccountHandler serves the account, the trade journal and manual orders
// of the configured execution mode
type AccountHandler struct {
	broker trading.Broker
	trades trading.TradeRepository
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(broker trading.Broker, trades trading.TradeRepository) *AccountHandler {
	return &AccountHandler{broker: broker, trades: trades}
}

// GetAccount returns cash, positions and profit figures
// GET /api/account
func (h *AccountHandler) GetAccount(c *gin.Context) {
	acc, err := h.broker.Account(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, acc)
}

// ListTrades returns the latest trades, newest first
// GET /api/trades?limit=100
func (h *AccountHandler) ListTrades(c *gin.Context) {
	limit := response.QueryLimit(c, 100, 1000)

	trades, err := h.trades.List(c.Request.Context(), limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if trades == nil {
		trades = []*trading.TradeRecord{}
	}
	response.SuccessList(c, trades, len(trades))
}

// OrderBody is the manual order request
type OrderBody struct {
	Symbol string       `json:"symbol" binding:"required"`
	Name   string       `json:"name"`
	Side   trading.Side `json:"side" binding:"required,oneof=buy sell"`
	Qty    int64        `json:"qty"`
	Price  int64        `json:"price"`
	Reason string       `json:"reason"`
}

// PlaceOrder submits a manual order through the active broker
// POST /api/orders
func (h *AccountHandler) PlaceOrder(c *gin.Context) {
	var body OrderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	req := trading.OrderRequest{
		Symbol: body.Symbol,
		Name:   body.Name,
		Side:   body.Side,
		Qty:    body.Qty,
		Price:  body.Price,
		Source: trading.SourceManual,
		Reason: body.Reason,
	}

	// 시장가 주문은 현재가를 기록 가격으로 사용
	if req.Price == 0 {
		if q, err := h.broker.Quote(ctx, req.Symbol); err == nil {
			req.RefPrice = q.Price
		}
	}

	res, err := h.broker.Submit(ctx, req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	if !res.Journaled && res.Trade != nil {
		if err := h.trades.Append(ctx, res.Trade); err != nil {
			log.Error().Err(err).Str("order_no", res.OrderNo).Msg("❌ Trade journal failed")
		}
	}

	log.Info().
		Str("order_no", res.OrderNo).
		Str("side", string(res.Side)).
		Str("symbol", res.Symbol).
		Int64("qty", res.Qty).
		Str("mode", string(h.broker.Mode())).
		Msg("✅ Manual order filled")

	response.Created(c, res, "order accepted")
}
