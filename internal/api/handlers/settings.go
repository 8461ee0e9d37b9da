package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/wonny/snowbot/internal/api/response"
	"github.com/wonny/snowbot/internal/pkg/config"
)

// SettingsHandler 매매/평가 설정 조회 및 변경
// 변경값은 다음 자동매매/평가 실행부터 적용된다.
type SettingsHandler struct {
	settings *config.SettingsStore
}

// NewSettingsHandler creates a new SettingsHandler
func NewSettingsHandler(settings *config.SettingsStore) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// SettingsView is the current settings snapshot
type SettingsView struct {
	Trading    config.TradingSettings    `json:"trading"`
	Evaluation config.EvaluationSettings `json:"evaluation"`
}

// SettingsPatch holds the fields to change. Absent fields are untouched.
type SettingsPatch struct {
	MinTotalScore *int `json:"min_total_score" binding:"omitempty,gte=0"`

	InitialBalance *int64   `json:"initial_balance" binding:"omitempty,gte=0"`
	FeeRate        *float64 `json:"fee_rate" binding:"omitempty,gte=0"`
	TaxRate        *float64 `json:"tax_rate" binding:"omitempty,gte=0"`
	ApplyFee       *bool    `json:"apply_fee"`
	ApplyTax       *bool    `json:"apply_tax"`

	BuyEnabled     *bool    `json:"buy_enabled"`
	TakeProfitRate *float64 `json:"take_profit_rate"`
	StopLossRate   *float64 `json:"stop_loss_rate" binding:"omitempty,lte=0"`
	MaxHoldings    *int     `json:"max_holdings" binding:"omitempty,gte=0"`
	BuyRatePct     *float64 `json:"buy_rate_pct" binding:"omitempty,gte=0,lte=100"`
	MaxBuyAmount   *int64   `json:"max_buy_amount" binding:"omitempty,gte=0"`

	TrailingStopEnabled *bool    `json:"trailing_stop_enabled"`
	TrailingStopRate    *float64 `json:"trailing_stop_rate" binding:"omitempty,gte=0"`
}

// Get returns the current settings
// GET /api/settings
func (h *SettingsHandler) Get(c *gin.Context) {
	response.Success(c, h.view())
}

// Update applies a partial change through the typed setters.
// The whole patch is validated before any field changes.
// PATCH /api/settings
func (h *SettingsHandler) Update(c *gin.Context) {
	var p SettingsPatch
	if err := c.ShouldBindJSON(&p); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	next := p.merge(h.settings.Trading())
	if err := next.Validate(); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.apply(p, next); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	log.Info().Interface("patch", p).Msg("⚙️ Settings updated")
	response.SuccessWithMessage(c, h.view(), "settings updated")
}

func (h *SettingsHandler) view() SettingsView {
	return SettingsView{
		Trading:    h.settings.Trading(),
		Evaluation: h.settings.Evaluation(),
	}
}

// merge returns t with the patched trading fields applied
func (p SettingsPatch) merge(t config.TradingSettings) config.TradingSettings {
	if p.InitialBalance != nil {
		t.InitialBalance = *p.InitialBalance
	}
	if p.FeeRate != nil {
		t.FeeRate = *p.FeeRate
	}
	if p.TaxRate != nil {
		t.TaxRate = *p.TaxRate
	}
	if p.ApplyFee != nil {
		t.ApplyFee = *p.ApplyFee
	}
	if p.ApplyTax != nil {
		t.ApplyTax = *p.ApplyTax
	}
	if p.BuyEnabled != nil {
		t.BuyEnabled = *p.BuyEnabled
	}
	if p.TakeProfitRate != nil {
		t.TakeProfitRate = *p.TakeProfitRate
	}
	if p.StopLossRate != nil {
		t.StopLossRate = *p.StopLossRate
	}
	if p.MaxHoldings != nil {
		t.MaxHoldings = *p.MaxHoldings
	}
	if p.BuyRatePct != nil {
		t.BuyRatePct = *p.BuyRatePct
	}
	if p.MaxBuyAmount != nil {
		t.MaxBuyAmount = *p.MaxBuyAmount
	}
	if p.TrailingStopEnabled != nil {
		t.TrailingStopEnabled = *p.TrailingStopEnabled
	}
	if p.TrailingStopRate != nil {
		t.TrailingStopRate = *p.TrailingStopRate
	}
	return t
}

func (h *SettingsHandler) apply(p SettingsPatch, next config.TradingSettings) error {
	s := h.settings

	if p.MinTotalScore != nil {
		s.SetMinTotalScore(*p.MinTotalScore)
	}
	if p.InitialBalance != nil {
		if err := s.SetInitialBalance(*p.InitialBalance); err != nil {
			return err
		}
	}
	if p.FeeRate != nil {
		if err := s.SetFeeRate(*p.FeeRate); err != nil {
			return err
		}
	}
	if p.TaxRate != nil {
		if err := s.SetTaxRate(*p.TaxRate); err != nil {
			return err
		}
	}
	if p.ApplyFee != nil {
		s.SetApplyFee(*p.ApplyFee)
	}
	if p.ApplyTax != nil {
		s.SetApplyTax(*p.ApplyTax)
	}
	if p.BuyEnabled != nil {
		s.SetBuyEnabled(*p.BuyEnabled)
	}
	if p.TakeProfitRate != nil {
		s.SetTakeProfitRate(*p.TakeProfitRate)
	}
	if p.StopLossRate != nil {
		if err := s.SetStopLossRate(*p.StopLossRate); err != nil {
			return err
		}
	}
	if p.MaxHoldings != nil {
		if err := s.SetMaxHoldings(*p.MaxHoldings); err != nil {
			return err
		}
	}
	if p.BuyRatePct != nil {
		if err := s.SetBuyRatePct(*p.BuyRatePct); err != nil {
			return err
		}
	}
	if p.MaxBuyAmount != nil {
		s.SetMaxBuyAmount(*p.MaxBuyAmount)
	}
	if p.TrailingStopEnabled != nil || p.TrailingStopRate != nil {
		s.SetTrailingStop(next.TrailingStopEnabled, next.TrailingStopRate)
	}
	return nil
}
