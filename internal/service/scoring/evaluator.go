package scoring

import (
	"github.com/wonny/snowbot/internal/domain/trading"
)

// Thresholds supplies the adjustable verdict parameters.
// Values are read on every verdict, never cached.
type Thresholds interface {
	MinTotalScore() int
	MaxDebtRatio() float64
}

// Evaluator 종목 평가기
// 8개 항목 점수(각 0~5)의 합으로 총점을 내고 안전망 검사로 매수 후보를 판정한다.
type Evaluator struct {
	thresholds Thresholds
}

// NewEvaluator creates an Evaluator
func NewEvaluator(thresholds Thresholds) *Evaluator {
	return &Evaluator{thresholds: thresholds}
}

// Evaluate scores a snapshot. The same snapshot always yields the same
// sub-scores; only the verdict depends on the current thresholds.
func (e *Evaluator) Evaluate(s *trading.MarketSnapshot) *trading.ScoreResult {
	r := &trading.ScoreResult{
		Symbol:       s.Symbol,
		Name:         s.Name,
		ClosePrice:   s.Close,
		Fundamentals: fundamentalsScore(s),
		Momentum:     momentumScore(s),
		PriceTrend:   priceTrendScore(s),
		Technical:    technicalScore(s),
		SupplyDemand: supplyDemandScore(s),
		MarketCap:    marketCapScore(s),
		PER:          perScore(s.PER),
		PBR:          pbrScore(s.PBR),
	}
	r.Total = r.Fundamentals + r.Momentum + r.PriceTrend + r.Technical +
		r.SupplyDemand + r.MarketCap + r.PER + r.PBR
	r.BuyCandidate = e.passesSafetyNet(s, r.Total)
	return r
}

// passesSafetyNet 안전망: 적자, 고부채, 총점 미달 종목 제외
func (e *Evaluator) passesSafetyNet(s *trading.MarketSnapshot, total int) bool {
	if s.NetIncome < 0 {
		return false
	}
	if s.DebtRatio > e.thresholds.MaxDebtRatio() {
		return false
	}
	return total >= e.thresholds.MinTotalScore()
}

// fundamentalsScore 재무 (0~5)
func fundamentalsScore(s *trading.MarketSnapshot) int {
	point := 0
	if s.RevenueGrowth > 0 {
		point++
	}
	if s.OperatingProfitGrowth > 0 {
		point++
	}
	if s.ROE > 5 {
		point++
	}
	if s.DebtRatio < 200 {
		point++
	}
	if s.NetIncome > 0 {
		point++
	}
	return point
}

// momentumScore 52주 고저 대비 위치 + 외국인 지분 (0~5)
func momentumScore(s *trading.MarketSnapshot) int {
	point := 0
	if s.HighRate52w > -10 {
		point += 2
	} else if s.HighRate52w > -20 {
		point++
	}
	if s.LowRate52w > 10 {
		point += 2
	} else if s.LowRate52w > 5 {
		point++
	}
	if s.ForeignOwnershipRate > 10 {
		point++
	}
	return min(5, point)
}

// priceTrendScore 이동평균 정배열 (0~5). MA5/MA20 없으면 0.
func priceTrendScore(s *trading.MarketSnapshot) int {
	if s.MA5 == 0 || s.MA20 == 0 {
		return 0
	}
	price := float64(s.Close)
	point := 0
	if price >= s.MA5 {
		point++
	}
	if price >= s.MA20 {
		point++
	}
	if s.MA5 >= s.MA20 {
		point++
	}
	if s.MA20 >= s.MA60 {
		point++
	}
	if s.MA60 >= s.MA120 {
		point++
	}
	return point
}

// technicalScore 20일 이격도 (0~5)
func technicalScore(s *trading.MarketSnapshot) int {
	point := 2
	if s.MA20 > 0 {
		disparity := float64(s.Close) / s.MA20 * 100
		if disparity >= 98 && disparity <= 110 {
			point += 2
		} else if disparity > 115 {
			point--
		}
	}
	return min(5, max(0, point))
}

// supplyDemandScore 외국인/프로그램 순매수 (0~5)
func supplyDemandScore(s *trading.MarketSnapshot) int {
	point := 0
	if s.ForeignNetBuyQty > 0 {
		point += 2
	}
	if s.ProgramNetBuyQty > 0 {
		point += 3
	}
	return min(5, point)
}

// marketCapScore 시가총액 구간 (1~5).
// 초대형주(1조 초과)는 4점으로 중형주보다 낮다.
func marketCapScore(s *trading.MarketSnapshot) int {
	eok := s.MarketCap / 100_000_000 // 억 원
	if eok < 500 {
		return 1
	}
	if eok > 10_000 {
		return 4
	}
	return 5
}

func perScore(per float64) int {
	switch {
	case per <= 0:
		return 0
	case per < 10:
		return 5
	case per < 15:
		return 4
	case per < 20:
		return 3
	case per < 50:
		return 2
	}
	return 1
}

func pbrScore(pbr float64) int {
	switch {
	case pbr <= 0:
		return 0
	case pbr < 1.0:
		return 5
	case pbr < 1.5:
		return 4
	case pbr < 3.0:
		return 3
	}
	return 2
}
