package autotrade

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/snowbot/internal/domain/trading"
)

// Action is the decision taken for one symbol
type Action string

const (
	ActionSell Action = "sell"
	ActionBuy  Action = "buy"
	ActionSkip Action = "skip"
	ActionFail Action = "fail"
)

// Outcome is one per-symbol decision of a cycle
type Outcome struct {
	Symbol  string `json:"symbol"`
	Name    string `json:"name"`
	Action  Action `json:"action"`
	Qty     int64  `json:"qty,omitempty"`
	Price   int64  `json:"price,omitempty"`
	OrderNo string `json:"order_no,omitempty"`
	Reason  string `json:"reason"`
}

// CycleReport 자동매매 1회 실행 결과
type CycleReport struct {
	RunID      uuid.UUID             `json:"run_id"`
	Mode       trading.ExecutionMode `json:"mode"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`

	Cash     int64 `json:"cash"`
	Holdings int   `json:"holdings"`

	Sold    int `json:"sold"`
	Bought  int `json:"bought"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`

	Outcomes []Outcome `json:"outcomes"`
	Errors   []string  `json:"errors"`
	Lines    []string  `json:"lines"`
}

func newReport(mode trading.ExecutionMode, now time.Time) *CycleReport {
	return &CycleReport{
		RunID:     uuid.New(),
		Mode:      mode,
		StartedAt: now,
		Outcomes:  []Outcome{},
		Errors:    []string{},
		Lines:     []string{},
	}
}

func (r *CycleReport) line(format string, args ...interface{}) {
	r.Lines = append(r.Lines, fmt.Sprintf(format, args...))
}

func (r *CycleReport) record(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Action {
	case ActionSell:
		r.Sold++
	case ActionBuy:
		r.Bought++
	case ActionSkip:
		r.Skipped++
	case ActionFail:
		r.Failed++
	}
}

func (r *CycleReport) fail(symbol, name string, err error) {
	r.record(Outcome{Symbol: symbol, Name: name, Action: ActionFail, Reason: err.Error()})
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", symbol, err))
}

// Summary returns a one-line result for run logs
func (r *CycleReport) Summary() string {
	return fmt.Sprintf("매도 %d건, 매수 %d건, 보류 %d건, 실패 %d건", r.Sold, r.Bought, r.Skipped, r.Failed)
}

// String joins the human-readable lines
func (r *CycleReport) String() string {
	if len(r.Lines) == 0 {
		return r.Summary()
	}
	return strings.Join(r.Lines, "\n")
}
