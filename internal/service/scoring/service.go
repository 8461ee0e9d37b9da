package scoring

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/wonny/snowbot/internal/domain/trading"
	"github.com/wonny/snowbot/internal/pkg/metrics"
)

// Signal 단일 종목 분석 시그널
type Signal string

const (
	SignalStrongBuy Signal = "STRONG_BUY"
	SignalBuy       Signal = "BUY"
	SignalHold      Signal = "HOLD"
)

// strongBuyScore is the total at which a candidate is promoted to STRONG_BUY
const strongBuyScore = 30

// RunResult 일괄 평가 결과
type RunResult struct {
	EvalDate      string   `json:"eval_date"`
	DataDate      string   `json:"data_date"`
	Total         int      `json:"total"`
	Evaluated     int      `json:"total_evaluated"`
	BuyCandidates int      `json:"buy_candidates"`
	Skipped       int      `json:"skipped"`
	Errors        []string `json:"errors"`
}

// Analysis 단일 종목 분석 결과
type Analysis struct {
	Symbol      string               `json:"symbol"`
	Name        string               `json:"name"`
	Price       int64                `json:"current_price"`
	Signal      Signal               `json:"signal"`
	TargetPrice int64                `json:"target_price"`
	Score       *trading.ScoreResult `json:"score"`
}

// Service runs the evaluator over persisted reference data
type Service struct {
	evaluator *Evaluator
	reference trading.ReferenceReader
	scores    trading.ScoreRepository
	metrics   *metrics.Metrics
}

// NewService creates a scoring service
func NewService(evaluator *Evaluator, reference trading.ReferenceReader, scores trading.ScoreRepository, m *metrics.Metrics) *Service {
	return &Service{
		evaluator: evaluator,
		reference: reference,
		scores:    scores,
		metrics:   m,
	}
}

// Run evaluates every symbol listed on dataDate and stores one result per
// (symbol, evalDate). Symbols without a price row are skipped; other
// per-symbol failures are collected and the run continues.
func (s *Service) Run(ctx context.Context, evalDate, dataDate string) (*RunResult, error) {
	if dataDate == "" {
		dataDate = evalDate
	}
	result := &RunResult{EvalDate: evalDate, DataDate: dataDate, Errors: []string{}}

	symbols, err := s.reference.ListSymbols(ctx, dataDate)
	if err != nil {
		return nil, fmt.Errorf("list symbols %s: %w", dataDate, err)
	}
	result.Total = len(symbols)
	if len(symbols) == 0 {
		log.Warn().Str("data_date", dataDate).Msg("⚠️ No symbols collected for data date")
		return result, nil
	}

	log.Info().
		Int("symbols", len(symbols)).
		Str("eval_date", evalDate).
		Str("data_date", dataDate).
		Msg("📊 Evaluation started")

	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		snap, err := s.reference.LoadSnapshot(ctx, sym.Code, dataDate)
		if err != nil {
			if errors.Is(err, trading.ErrDataUnavailable) {
				result.Skipped++
				continue
			}
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", sym.Code, err))
			continue
		}
		if snap.Name == "" {
			snap.Name = sym.Name
		}

		score := s.evaluator.Evaluate(snap)
		score.BaseDate = evalDate
		if err := s.scores.Upsert(ctx, score); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", sym.Code, err))
			continue
		}

		result.Evaluated++
		if score.BuyCandidate {
			result.BuyCandidates++
		}
	}

	s.metrics.ObserveEvaluation(result.Evaluated, result.BuyCandidates)
	log.Info().
		Int("evaluated", result.Evaluated).
		Int("buy_candidates", result.BuyCandidates).
		Int("skipped", result.Skipped).
		Int("errors", len(result.Errors)).
		Msg("✅ Evaluation completed")

	return result, nil
}

// Analyze scores one symbol against its latest data on or before date
func (s *Service) Analyze(ctx context.Context, symbol, date string) (*Analysis, error) {
	snap, err := s.reference.LoadSnapshot(ctx, symbol, date)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", symbol, err)
	}
	if snap.Name == "" {
		if name, err := s.reference.SymbolName(ctx, symbol); err == nil {
			snap.Name = name
		}
	}

	score := s.evaluator.Evaluate(snap)
	score.BaseDate = date

	return &Analysis{
		Symbol:      symbol,
		Name:        snap.Name,
		Price:       snap.Close,
		Signal:      signalOf(score),
		TargetPrice: snap.Close * 105 / 100,
		Score:       score,
	}, nil
}

func signalOf(r *trading.ScoreResult) Signal {
	if !r.BuyCandidate {
		return SignalHold
	}
	if r.Total >= strongBuyScore {
		return SignalStrongBuy
	}
	return SignalBuy
}
