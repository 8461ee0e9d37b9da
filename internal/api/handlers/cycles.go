package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wonny/snowbot/internal/api/response"
	"github.com/wonny/snowbot/internal/domain/trading"
	"github.com/wonny/snowbot/internal/service/autotrade"
)

// CycleRunner runs one orchestrator cycle
type CycleRunner interface {
	RunCycle(ctx context.Context, now time.Time) (*autotrade.CycleReport, error)
}

// CycleHandler triggers orchestrator cycles and lists past runs
type CycleHandler struct {
	runner  CycleRunner
	runLogs trading.RunLogRepository
	now     func() time.Time

	// 이 API로 들어온 트리거끼리만 직렬화
	mu sync.Mutex
}

// NewCycleHandler creates a new CycleHandler
func NewCycleHandler(runner CycleRunner, runLogs trading.RunLogRepository) *CycleHandler {
	return &CycleHandler{runner: runner, runLogs: runLogs, now: time.Now}
}

// Run executes a cycle synchronously and returns its report.
// Responds 409 while another API-triggered cycle is in flight.
// POST /api/cycles
func (h *CycleHandler) Run(c *gin.Context) {
	if !h.mu.TryLock() {
		response.Conflict(c, "auto trade cycle already running")
		return
	}
	defer h.mu.Unlock()

	// 클라이언트가 끊겨도 사이클은 끝까지 수행
	ctx := context.WithoutCancel(c.Request.Context())

	report, err := h.runner.RunCycle(ctx, h.now())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, report, report.Summary())
}

// Recent returns the latest schedule run logs
// GET /api/cycles?limit=20
func (h *CycleHandler) Recent(c *gin.Context) {
	limit := response.QueryLimit(c, 20, 200)

	runs, err := h.runLogs.Recent(c.Request.Context(), limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if runs == nil {
		runs = []*trading.ScheduleRunLog{}
	}
	response.SuccessList(c, runs, len(runs))
}
