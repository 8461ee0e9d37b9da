package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wonny/snowbot/internal/api/response"
	"github.com/wonny/snowbot/internal/domain/trading"
	"github.com/wonny/snowbot/internal/service/scoring"
)

// Evaluator runs batch scoring and single-symbol analysis
type Evaluator interface {
	Run(ctx context.Context, evalDate, dataDate string) (*scoring.RunResult, error)
	Analyze(ctx context.Context, symbol, date string) (*scoring.Analysis, error)
}

// EvaluationHandler serves scoring endpoints
type EvaluationHandler struct {
	evaluator Evaluator
	now       func() time.Time
}

// NewEvaluationHandler creates a new EvaluationHandler
func NewEvaluationHandler(evaluator Evaluator) *EvaluationHandler {
	return &EvaluationHandler{evaluator: evaluator, now: time.Now}
}

// EvaluationBody selects the evaluation and data dates (YYYYMMDD).
// Both default to today; data_date defaults to eval_date.
type EvaluationBody struct {
	EvalDate string `json:"eval_date" binding:"omitempty,len=8,numeric"`
	DataDate string `json:"data_date" binding:"omitempty,len=8,numeric"`
}

// Run evaluates every listed symbol
// POST /api/evaluations
func (h *EvaluationHandler) Run(c *gin.Context) {
	var body EvaluationBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	if body.EvalDate == "" {
		body.EvalDate = trading.DateKey(h.now())
	}

	result, err := h.evaluator.Run(c.Request.Context(), body.EvalDate, body.DataDate)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// Analyze scores one symbol against the data of ?date= (default today)
// GET /api/evaluations/:symbol
func (h *EvaluationHandler) Analyze(c *gin.Context) {
	date := c.DefaultQuery("date", trading.DateKey(h.now()))

	analysis, err := h.evaluator.Analyze(c.Request.Context(), c.Param("symbol"), date)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, analysis)
}
