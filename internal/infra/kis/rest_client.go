package kis

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/snowbot/internal/domain/trading"
)

// Endpoints
const (
	pathInquirePrice    = "/uapi/domestic-stock/v1/quotations/inquire-price"
	pathInquireInvestor = "/uapi/domestic-stock/v1/quotations/inquire-investor"
	pathDailyChart      = "/uapi/domestic-stock/v1/quotations/inquire-daily-itemchartprice"
	pathInquireBalance  = "/uapi/domestic-stock/v1/trading/inquire-balance"
	pathOrderCash       = "/uapi/domestic-stock/v1/trading/order-cash"
)

// Quotation TR ids (same on both servers)
const (
	trInquirePrice    = "FHKST01010100" // 주식현재가 시세
	trInquireInvestor = "FHKST01010900" // 주식현재가 투자자
	trDailyChart      = "FHKST03010100" // 국내주식기간별시세
)

// trID returns the account TR id for the profile (T: 실전, V: 모의)
func (c *Client) trID(live string) string {
	if c.cfg.IsPaper() {
		return "V" + live[1:]
	}
	return live
}

// ============================================================================
// Quote
// ============================================================================

type quoteResponse struct {
	Output struct {
		Price     string `json:"stck_prpr"` // 현재가
		Open      string `json:"stck_oprc"` // 시가
		High      string `json:"stck_hgpr"` // 고가
		Low       string `json:"stck_lwpr"` // 저가
		Volume    string `json:"acml_vol"`  // 누적거래량
		PER       string `json:"per"`
		PBR       string `json:"pbr"`
		MarketCap string `json:"hts_avls"` // 시가총액 (억)
	} `json:"output"`
}

// Quote fetches the current price of symbol.
// Failures are wrapped with trading.ErrDataUnavailable unless fatal.
func (c *Client) Quote(ctx context.Context, symbol string) (*trading.Quote, error) {
	params := url.Values{}
	params.Set("FID_COND_MRKT_DIV_CODE", "J") // J: 주식, ETF, ETN
	params.Set("FID_INPUT_ISCD", symbol)

	resp, err := c.Call(ctx, trInquirePrice, http.MethodGet, pathInquirePrice, params, nil)
	if err != nil {
		return nil, dataErr("quote "+symbol, err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: quote %s: code=%s msg=%s", trading.ErrDataUnavailable, symbol, resp.MsgCode, resp.Msg1)
	}

	var out quoteResponse
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: quote %s: %w", trading.ErrDataUnavailable, symbol, err)
	}

	price := parseInt(out.Output.Price)
	if price <= 0 {
		return nil, fmt.Errorf("%w: quote %s: no price", trading.ErrDataUnavailable, symbol)
	}

	return &trading.Quote{
		Symbol:    symbol,
		Price:     price,
		Open:      parseInt(out.Output.Open),
		High:      parseInt(out.Output.High),
		Low:       parseInt(out.Output.Low),
		Volume:    parseInt(out.Output.Volume),
		FetchedAt: time.Now(),
	}, nil
}

// ============================================================================
// Investor flow
// ============================================================================

type investorResponse struct {
	Output []struct {
		Date       string `json:"stck_bsop_date"`
		ForeignNet string `json:"frgn_ntby_qty"` // 외국인 순매수 수량
		InstNet    string `json:"orgn_ntby_qty"` // 기관 순매수 수량
		RetailNet  string `json:"prsn_ntby_qty"` // 개인 순매수 수량
	} `json:"output"`
}

// InvestorFlow fetches the latest day's net-buy quantities by investor type
func (c *Client) InvestorFlow(ctx context.Context, symbol string) (*trading.InvestorFlow, error) {
	params := url.Values{}
	params.Set("FID_COND_MRKT_DIV_CODE", "J")
	params.Set("FID_INPUT_ISCD", symbol)

	resp, err := c.Call(ctx, trInquireInvestor, http.MethodGet, pathInquireInvestor, params, nil)
	if err != nil {
		return nil, dataErr("investor "+symbol, err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: investor %s: code=%s msg=%s", trading.ErrDataUnavailable, symbol, resp.MsgCode, resp.Msg1)
	}

	var out investorResponse
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: investor %s: %w", trading.ErrDataUnavailable, symbol, err)
	}
	if len(out.Output) == 0 {
		return nil, fmt.Errorf("%w: investor %s: empty output", trading.ErrDataUnavailable, symbol)
	}

	row := out.Output[0]
	return &trading.InvestorFlow{
		Symbol:        symbol,
		ForeignNetBuy: parseInt(row.ForeignNet),
		InstNetBuy:    parseInt(row.InstNet),
		RetailNetBuy:  parseInt(row.RetailNet),
	}, nil
}

// ============================================================================
// Daily bars
// ============================================================================

type dailyChartResponse struct {
	Output2 []struct {
		Date   string `json:"stck_bsop_date"`
		Close  string `json:"stck_clpr"`
		Open   string `json:"stck_oprc"`
		High   string `json:"stck_hgpr"`
		Low    string `json:"stck_lwpr"`
		Volume string `json:"acml_vol"`
	} `json:"output2"`
}

// DailyBars fetches daily OHLC between from and to (YYYYMMDD), newest first
func (c *Client) DailyBars(ctx context.Context, symbol, from, to string) ([]*trading.DailyBar, error) {
	params := url.Values{}
	params.Set("FID_COND_MRKT_DIV_CODE", "J")
	params.Set("FID_INPUT_ISCD", symbol)
	params.Set("FID_INPUT_DATE_1", from)
	params.Set("FID_INPUT_DATE_2", to)
	params.Set("FID_PERIOD_DIV_CODE", "D")
	params.Set("FID_ORG_ADJ_PRC", "0") // 수정주가

	resp, err := c.Call(ctx, trDailyChart, http.MethodGet, pathDailyChart, params, nil)
	if err != nil {
		return nil, dataErr("daily bars "+symbol, err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: daily bars %s: code=%s msg=%s", trading.ErrDataUnavailable, symbol, resp.MsgCode, resp.Msg1)
	}

	var out dailyChartResponse
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: daily bars %s: %w", trading.ErrDataUnavailable, symbol, err)
	}

	bars := make([]*trading.DailyBar, 0, len(out.Output2))
	for _, row := range out.Output2 {
		if row.Date == "" {
			continue
		}
		bars = append(bars, &trading.DailyBar{
			Symbol:    symbol,
			TradeDate: row.Date,
			Open:      parseInt(row.Open),
			High:      parseInt(row.High),
			Low:       parseInt(row.Low),
			Close:     parseInt(row.Close),
			Volume:    parseInt(row.Volume),
		})
	}
	return bars, nil
}

// PriorSession returns the latest daily bar strictly before date
func (c *Client) PriorSession(ctx context.Context, symbol, date string) (*trading.DailyBar, error) {
	day, err := time.ParseInLocation(trading.DateLayout, date, time.Local)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", date, err)
	}
	from := trading.DateKey(day.AddDate(0, 0, -14))

	bars, err := c.DailyBars(ctx, symbol, from, date)
	if err != nil {
		return nil, err
	}
	for _, bar := range bars {
		if bar.TradeDate < date {
			return bar, nil
		}
	}
	return nil, fmt.Errorf("%w: no session before %s for %s", trading.ErrDataUnavailable, date, symbol)
}

// ============================================================================
// Balance
// ============================================================================

type balanceResponse struct {
	Output1 []struct {
		Symbol       string `json:"pdno"`          // 종목코드
		Name         string `json:"prdt_name"`     // 종목명
		Qty          string `json:"hldg_qty"`      // 보유수량
		AvgPrice     string `json:"pchs_avg_pric"` // 매입평균가격
		CurrentPrice string `json:"prpr"`          // 현재가
		EvalAmount   string `json:"evlu_amt"`      // 평가금액
		PnL          string `json:"evlu_pfls_amt"` // 평가손익금액
		PnLRate      string `json:"evlu_pfls_rt"`  // 평가손익율
	} `json:"output1"`
	Output2 []struct {
		Deposit     string `json:"dnca_tot_amt"`       // 예수금총금액
		TotalEval   string `json:"tot_evlu_amt"`       // 총평가금액
		PnLSum      string `json:"evlu_pfls_smtl_amt"` // 평가손익합계금액
		PurchaseSum string `json:"pchs_amt_smtl_amt"`  // 매입금액합계금액
	} `json:"output2"`
}

// Balance fetches the account projection (cash + holdings) from the broker
func (c *Client) Balance(ctx context.Context) (*trading.Account, error) {
	if c.cfg.AccountNo == "" {
		return nil, fmt.Errorf("%w: account number not configured (%s)", trading.ErrInfrastructure, c.cfg.Profile)
	}

	params := url.Values{}
	params.Set("CANO", c.cfg.AccountNo)
	params.Set("ACNT_PRDT_CD", c.cfg.AccountCode)
	params.Set("AFHR_FLPR_YN", "N") // 시간외단일가여부
	params.Set("OFL_YN", "")        // 오프라인여부
	params.Set("INQR_DVSN", "02")   // 조회구분 (02: 종목별)
	params.Set("UNPR_DVSN", "01")   // 단가구분
	params.Set("FUND_STTL_ICLD_YN", "N")
	params.Set("FNCG_AMT_AUTO_RDPT_YN", "N")
	params.Set("PRCS_DVSN", "01") // 처리구분 (01: 전일매매포함)
	params.Set("CTX_AREA_FK100", "")
	params.Set("CTX_AREA_NK100", "")

	resp, err := c.Call(ctx, c.trID("TTTC8434R"), http.MethodGet, pathInquireBalance, params, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &APIError{TrID: c.trID("TTTC8434R"), Status: resp.Status, Code: resp.MsgCode, Message: resp.Msg1}
	}

	var out balanceResponse
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}

	account := &trading.Account{UpdatedAt: time.Now()}
	for _, h := range out.Output1 {
		qty := parseInt(h.Qty)
		if qty <= 0 {
			continue
		}
		p := &trading.Position{
			Symbol:        h.Symbol,
			Name:          h.Name,
			Qty:           qty,
			AvgPrice:      int64(parseFloat(h.AvgPrice)),
			CurrentPrice:  parseInt(h.CurrentPrice),
			EvalAmount:    parseInt(h.EvalAmount),
			UnrealizedPnL: parseInt(h.PnL),
			PnLRate:       parseFloat(h.PnLRate),
			UpdatedAt:     account.UpdatedAt,
		}
		account.Positions = append(account.Positions, p)
		account.PositionValue += p.EvalAmount
	}

	if len(out.Output2) > 0 {
		sum := out.Output2[0]
		account.Cash = parseInt(sum.Deposit)
		account.TotalEval = parseInt(sum.TotalEval)
		account.TotalProfit = parseInt(sum.PnLSum)
		if purchase := parseInt(sum.PurchaseSum); purchase > 0 {
			account.TotalProfitRate = float64(account.TotalProfit) / float64(purchase) * 100
		}
	}
	if account.TotalEval == 0 {
		account.TotalEval = account.Cash + account.PositionValue
	}

	return account, nil
}

// ============================================================================
// Orders
// ============================================================================

type orderResponse struct {
	Output struct {
		OrgNo   string `json:"KRX_FWDG_ORD_ORGNO"` // 주문조직번호
		OrderNo string `json:"ODNO"`               // 주문번호
		OrdTime string `json:"ORD_TMD"`            // 주문시각
	} `json:"output"`
}

// PlaceOrder submits a cash order. price 0 places a market order.
// Business rejections are wrapped with trading.ErrOrderRejected.
func (c *Client) PlaceOrder(ctx context.Context, side trading.Side, symbol string, qty, price int64) (string, error) {
	if c.cfg.AccountNo == "" {
		return "", fmt.Errorf("%w: account number not configured (%s)", trading.ErrInfrastructure, c.cfg.Profile)
	}
	if qty <= 0 {
		return "", trading.ErrInvalidQuantity
	}

	trID := c.trID("TTTC0012U") // 매수
	if side == trading.SideSell {
		trID = c.trID("TTTC0011U") // 매도
	}

	ordDvsn := "01" // 시장가
	ordUnpr := "0"
	if price > 0 {
		ordDvsn = "00" // 지정가
		ordUnpr = strconv.FormatInt(price, 10)
	}

	body := map[string]string{
		"CANO":         c.cfg.AccountNo,
		"ACNT_PRDT_CD": c.cfg.AccountCode,
		"PDNO":         symbol,
		"ORD_DVSN":     ordDvsn,
		"ORD_QTY":      strconv.FormatInt(qty, 10),
		"ORD_UNPR":     ordUnpr,
	}

	resp, err := c.Call(ctx, trID, http.MethodPost, pathOrderCash, nil, body)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", fmt.Errorf("%w: %s %s x%d: [%s] %s", trading.ErrOrderRejected, side, symbol, qty, resp.MsgCode, resp.Msg1)
	}

	var out orderResponse
	if err := resp.Decode(&out); err != nil {
		return "", err
	}
	return out.Output.OrderNo, nil
}

// ============================================================================
// helpers
// ============================================================================

// dataErr keeps fatal classes intact and marks the rest as missing data
func dataErr(what string, err error) error {
	if trading.IsFatal(err) {
		return fmt.Errorf("%s: %w", what, err)
	}
	return fmt.Errorf("%w: %s: %w", trading.ErrDataUnavailable, what, err)
}

func parseInt(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return int64(parseFloat(s))
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}
