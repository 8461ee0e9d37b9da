package autotrade

import "github.com/wonny/snowbot/internal/domain/trading"

// PivotLevels 전일 OHLC 기준 피벗 포인트와 지지선
type PivotLevels struct {
	PP float64
	S1 float64
	S2 float64
}

// Pivot computes PP=(H+L+C)/3, S1=2PP-H, S2=PP-(H-L)
func Pivot(bar *trading.DailyBar) PivotLevels {
	h, l, c := float64(bar.High), float64(bar.Low), float64(bar.Close)
	pp := (h + l + c) / 3
	return PivotLevels{
		PP: pp,
		S1: 2*pp - h,
		S2: pp - (h - l),
	}
}

// SupportAverage returns (S1+S2)/2
func (p PivotLevels) SupportAverage() float64 {
	return (p.S1 + p.S2) / 2
}

// Supports reports whether price is at or below the support average
func (p PivotLevels) Supports(price int64) bool {
	return float64(price) <= p.SupportAverage()
}
