package stubstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/wenfer/strmgate/internal/ids"
)

// RunState is RunLog.state / Task.state's terminal value (spec.md §3).
type RunState string

const (
	RunSuccess RunState = "success"
	RunError   RunState = "error"
)

// RunLog is one task execution record (spec.md §3 RunLog).
type RunLog struct {
	ID              int64
	TaskID          ids.TaskID
	StartedAt       time.Time
	EndedAt         time.Time
	State           RunState
	Scanned         int
	Created         int
	Updated         int
	Removed         int
	Skipped         int
	SidecarsCopied  int
	SidecarsSkipped int
	ErrorCount      int
	Trace           string
}

// Duration is EndedAt - StartedAt.
func (r RunLog) Duration() time.Duration { return r.EndedAt.Sub(r.StartedAt) }

// RunLogStore owns the `run_logs` table.
type RunLogStore struct {
	db *sql.DB
}

// NewRunLogStore wraps an already-migrated *sql.DB (see Open).
func NewRunLogStore(db *sql.DB) *RunLogStore {
	return &RunLogStore{db: db}
}

// Insert writes one completed run (spec.md §4.7 step 6 "Finalise").
func (s *RunLogStore) Insert(ctx context.Context, r RunLog) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO run_logs (
			task_id, started_at, ended_at, duration_ms, state, scanned, created,
			updated, removed, skipped, sidecars_copied, sidecars_skipped,
			error_count, trace
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`,
		r.TaskID.String(), r.StartedAt.Unix(), r.EndedAt.Unix(), r.Duration().Milliseconds(),
		string(r.State), r.Scanned, r.Created, r.Updated, r.Removed, r.Skipped,
		r.SidecarsCopied, r.SidecarsSkipped, r.ErrorCount, r.Trace,
	)
	if err != nil {
		return 0, fmt.Errorf("stubstore: inserting run log for task %s: %w", r.TaskID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("stubstore: reading inserted run log id: %w", err)
	}

	return id, nil
}

// FindByTask returns a task's run history, most recent first, capped at
// limit (0 means no cap).
func (s *RunLogStore) FindByTask(ctx context.Context, taskID ids.TaskID, limit int) ([]RunLog, error) {
	query := `SELECT id, task_id, started_at, ended_at, state, scanned, created, updated,
		removed, skipped, sidecars_copied, sidecars_skipped, error_count, trace
		FROM run_logs WHERE task_id = ? ORDER BY started_at DESC`

	args := []any{taskID.String()}

	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("stubstore: finding run logs for task %s: %w", taskID, err)
	}
	defer rows.Close()

	var out []RunLog

	for rows.Next() {
		var (
			r         RunLog
			taskIDStr string
			state     string
			startedAt int64
			endedAt   int64
		)

		if err := rows.Scan(&r.ID, &taskIDStr, &startedAt, &endedAt, &state, &r.Scanned, &r.Created,
			&r.Updated, &r.Removed, &r.Skipped, &r.SidecarsCopied, &r.SidecarsSkipped, &r.ErrorCount, &r.Trace); err != nil {
			return nil, fmt.Errorf("stubstore: scanning run log row: %w", err)
		}

		parsedTaskID, err := ids.ParseTaskID(taskIDStr)
		if err != nil {
			return nil, fmt.Errorf("stubstore: parsing task id %q: %w", taskIDStr, err)
		}

		r.TaskID = parsedTaskID
		r.StartedAt = time.Unix(startedAt, 0).UTC()
		r.EndedAt = time.Unix(endedAt, 0).UTC()
		r.State = RunState(state)

		out = append(out, r)
	}

	return out, rows.Err()
}
