package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/snowbot/internal/domain/trading"
)

// RunLogRepository implements trading.RunLogRepository on system.schedule_run_log
type RunLogRepository struct {
	pool *pgxpool.Pool
}

// NewRunLogRepository creates a new RunLogRepository
func NewRunLogRepository(pool *pgxpool.Pool) *RunLogRepository {
	return &RunLogRepository{pool: pool}
}

// Start inserts a running row
func (r *RunLogRepository) Start(ctx context.Context, run *trading.ScheduleRunLog) error {
	query := `
		INSERT INTO system.schedule_run_log (run_id, name, task_type, status, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query, run.RunID, run.Name, run.TaskType, string(run.Status), run.StartedAt)
	if err != nil {
		return fmt.Errorf("insert run log: %w", err)
	}
	return nil
}

// Finish closes the row with status and messages
func (r *RunLogRepository) Finish(ctx context.Context, run *trading.ScheduleRunLog) error {
	query := `
		UPDATE system.schedule_run_log
		SET status = $2,
			finished_at = $3,
			message = NULLIF($4, ''),
			error_message = NULLIF($5, '')
		WHERE run_id = $1
	`

	tag, err := r.pool.Exec(ctx, query, run.RunID, string(run.Status), run.FinishedAt, run.Message, run.ErrorMessage)
	if err != nil {
		return fmt.Errorf("update run log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run log not found: %s", run.RunID)
	}
	return nil
}

// Recent returns the latest runs, newest first
func (r *RunLogRepository) Recent(ctx context.Context, limit int) ([]*trading.ScheduleRunLog, error) {
	query := `
		SELECT run_id, name, COALESCE(task_type, ''), status, started_at,
			finished_at, COALESCE(message, ''), COALESCE(error_message, '')
		FROM system.schedule_run_log
		ORDER BY started_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query run logs: %w", err)
	}
	defer rows.Close()

	var runs []*trading.ScheduleRunLog
	for rows.Next() {
		run := &trading.ScheduleRunLog{}
		var status string
		err := rows.Scan(
			&run.RunID,
			&run.Name,
			&run.TaskType,
			&status,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Message,
			&run.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run log: %w", err)
		}
		run.Status = trading.RunStatus(status)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return runs, nil
}
