package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// TradingSettings are the ledger and auto-trading parameters.
// Rates ending in Rate/Pct are percentages except FeeRate/TaxRate (fractions).
type TradingSettings struct {
	InitialBalance int64   `yaml:"initial_balance" json:"initial_balance"`
	FeeRate        float64 `yaml:"fee_rate" json:"fee_rate"`
	TaxRate        float64 `yaml:"tax_rate" json:"tax_rate"`
	ApplyFee       bool    `yaml:"apply_fee" json:"apply_fee"`
	ApplyTax       bool    `yaml:"apply_tax" json:"apply_tax"`

	BuyEnabled     bool    `yaml:"buy_enabled" json:"buy_enabled"`
	TakeProfitRate float64 `yaml:"take_profit_rate" json:"take_profit_rate"` // sell when profit rate >= this
	StopLossRate   float64 `yaml:"stop_loss_rate" json:"stop_loss_rate"`     // sell when profit rate <= this
	MaxHoldings    int     `yaml:"max_holdings" json:"max_holdings"`
	BuyRatePct     float64 `yaml:"buy_rate_pct" json:"buy_rate_pct"`
	MaxBuyAmount   int64   `yaml:"max_buy_amount" json:"max_buy_amount"`
	MinOrderAmount int64   `yaml:"min_order_amount" json:"min_order_amount"`
	MinPrice       int64   `yaml:"min_price" json:"min_price"`
	CandidateLimit int     `yaml:"candidate_limit" json:"candidate_limit"`

	TrailingStopEnabled bool    `yaml:"trailing_stop_enabled" json:"trailing_stop_enabled"`
	TrailingStopRate    float64 `yaml:"trailing_stop_rate" json:"trailing_stop_rate"`
}

// EvaluationSettings are the scoring parameters
type EvaluationSettings struct {
	MinTotalScore int     `yaml:"min_total_score" json:"min_total_score"`
	MaxDebtRatio  float64 `yaml:"max_debt_ratio" json:"max_debt_ratio"`
}

// DefaultTradingSettings returns the stock trading parameters
func DefaultTradingSettings() TradingSettings {
	return TradingSettings{
		InitialBalance:   10_000_000,
		FeeRate:          0.00015,
		TaxRate:          0.0023,
		ApplyFee:         true,
		ApplyTax:         true,
		BuyEnabled:       true,
		TakeProfitRate:   10,
		StopLossRate:     -20,
		MaxHoldings:      10,
		BuyRatePct:       10,
		MaxBuyAmount:     500_000,
		MinOrderAmount:   10_000,
		MinPrice:         1_000,
		CandidateLimit:   10,
		TrailingStopRate: 5,
	}
}

// DefaultEvaluationSettings returns the stock scoring parameters
func DefaultEvaluationSettings() EvaluationSettings {
	return EvaluationSettings{
		MinTotalScore: 30,
		MaxDebtRatio:  400,
	}
}

type settingsFile struct {
	Trading    *TradingSettings    `yaml:"trading"`
	Evaluation *EvaluationSettings `yaml:"evaluation"`
}

// SettingsStore holds the live trading/evaluation settings.
// Readers receive copies; every setter takes the write lock.
type SettingsStore struct {
	mu         sync.RWMutex
	trading    TradingSettings
	evaluation EvaluationSettings
}

// NewSettingsStore creates a store with defaults
func NewSettingsStore() *SettingsStore {
	return &SettingsStore{
		trading:    DefaultTradingSettings(),
		evaluation: DefaultEvaluationSettings(),
	}
}

// LoadSettings creates a store seeded from a YAML file.
// A missing file yields defaults.
func LoadSettings(path string) (*SettingsStore, error) {
	s := NewSettingsStore()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}

	// Sections are decoded over the defaults so absent keys keep them
	file := settingsFile{Trading: &s.trading, Evaluation: &s.evaluation}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if err := s.trading.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the trading settings for impossible values
func (t TradingSettings) Validate() error {
	switch {
	case t.FeeRate < 0 || t.TaxRate < 0:
		return fmt.Errorf("fee/tax rate must be >= 0")
	case t.InitialBalance < 0:
		return fmt.Errorf("initial balance must be >= 0")
	case t.MaxHoldings < 0:
		return fmt.Errorf("max holdings must be >= 0")
	case t.BuyRatePct < 0 || t.BuyRatePct > 100:
		return fmt.Errorf("buy rate must be within [0,100]")
	case t.StopLossRate > 0:
		return fmt.Errorf("stop loss rate must be <= 0")
	}
	return nil
}

// Fee returns floor(amount * FeeRate), 0 when fees are off
func (t TradingSettings) Fee(amount int64) int64 {
	return charge(amount, t.FeeRate, t.ApplyFee)
}

// Tax returns floor(amount * TaxRate), 0 when tax is off. Sells only.
func (t TradingSettings) Tax(amount int64) int64 {
	return charge(amount, t.TaxRate, t.ApplyTax)
}

func charge(amount int64, rate float64, enabled bool) int64 {
	if !enabled || rate <= 0 {
		return 0
	}
	return decimal.NewFromInt(amount).Mul(decimal.NewFromFloat(rate)).IntPart()
}

// Trading returns a copy of the trading settings
func (s *SettingsStore) Trading() TradingSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trading
}

// Evaluation returns a copy of the evaluation settings
func (s *SettingsStore) Evaluation() EvaluationSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.evaluation
}

// MinTotalScore returns the current buy-candidate threshold
func (s *SettingsStore) MinTotalScore() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.evaluation.MinTotalScore
}

// MaxDebtRatio returns the current debt ratio rejection threshold
func (s *SettingsStore) MaxDebtRatio() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.evaluation.MaxDebtRatio
}

func (s *SettingsStore) SetMinTotalScore(v int) {
	s.mu.Lock()
	s.evaluation.MinTotalScore = v
	s.mu.Unlock()
}

func (s *SettingsStore) SetFeeRate(v float64) error {
	if v < 0 {
		return fmt.Errorf("fee rate must be >= 0")
	}
	s.mu.Lock()
	s.trading.FeeRate = v
	s.mu.Unlock()
	return nil
}

func (s *SettingsStore) SetTaxRate(v float64) error {
	if v < 0 {
		return fmt.Errorf("tax rate must be >= 0")
	}
	s.mu.Lock()
	s.trading.TaxRate = v
	s.mu.Unlock()
	return nil
}

func (s *SettingsStore) SetApplyFee(v bool) {
	s.mu.Lock()
	s.trading.ApplyFee = v
	s.mu.Unlock()
}

func (s *SettingsStore) SetApplyTax(v bool) {
	s.mu.Lock()
	s.trading.ApplyTax = v
	s.mu.Unlock()
}

func (s *SettingsStore) SetTakeProfitRate(v float64) {
	s.mu.Lock()
	s.trading.TakeProfitRate = v
	s.mu.Unlock()
}

func (s *SettingsStore) SetStopLossRate(v float64) error {
	if v > 0 {
		return fmt.Errorf("stop loss rate must be <= 0")
	}
	s.mu.Lock()
	s.trading.StopLossRate = v
	s.mu.Unlock()
	return nil
}

func (s *SettingsStore) SetMaxHoldings(v int) error {
	if v < 0 {
		return fmt.Errorf("max holdings must be >= 0")
	}
	s.mu.Lock()
	s.trading.MaxHoldings = v
	s.mu.Unlock()
	return nil
}

func (s *SettingsStore) SetBuyRatePct(v float64) error {
	if v < 0 || v > 100 {
		return fmt.Errorf("buy rate must be within [0,100]")
	}
	s.mu.Lock()
	s.trading.BuyRatePct = v
	s.mu.Unlock()
	return nil
}

func (s *SettingsStore) SetMaxBuyAmount(v int64) {
	s.mu.Lock()
	s.trading.MaxBuyAmount = v
	s.mu.Unlock()
}

func (s *SettingsStore) SetInitialBalance(v int64) error {
	if v < 0 {
		return fmt.Errorf("initial balance must be >= 0")
	}
	s.mu.Lock()
	s.trading.InitialBalance = v
	s.mu.Unlock()
	return nil
}

func (s *SettingsStore) SetBuyEnabled(v bool) {
	s.mu.Lock()
	s.trading.BuyEnabled = v
	s.mu.Unlock()
}

func (s *SettingsStore) SetTrailingStop(enabled bool, rate float64) {
	s.mu.Lock()
	s.trading.TrailingStopEnabled = enabled
	s.trading.TrailingStopRate = rate
	s.mu.Unlock()
}
