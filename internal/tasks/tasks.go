// Package tasks implements the Task Registry (spec.md §4.8, C8): CRUD over
// Task rows with validation, sharing the relational store opened by
// internal/stubstore.
package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/wenfer/strmgate/internal/ids"
)

// ScheduleKind is Task.Schedule's tagged union discriminator (spec.md §3).
type ScheduleKind string

const (
	ScheduleNone     ScheduleKind = "none"
	ScheduleInterval ScheduleKind = "interval"
	ScheduleCron     ScheduleKind = "cron"
)

// State is Task.state (spec.md §3).
type State string

const (
	StateIdle    State = "idle"
	StatePending State = "pending"
	StateRunning State = "running"
	StateSuccess State = "success"
	StateError   State = "error"
)

// Task is spec.md §3's Task entity.
type Task struct {
	ID            ids.TaskID
	DriveID       ids.DriveID
	Name          string
	SourceRootID  string
	OutputDir     string
	StubBaseURL   string
	IncludeVideo  bool
	IncludeAudio  bool
	CustomExts    []string // overrides IncludeVideo/IncludeAudio when non-empty

	ScheduleKind   ScheduleKind
	SchedulePeriod time.Duration
	ScheduleUnit   string // "seconds" | "minutes" | "hours"; informational, SchedulePeriod is always normalized to time.Duration
	ScheduleCron   string // five-field cron expression
	ScheduleOn     bool

	WatchOn          bool
	WatchPollSeconds int
	LastEventCursor  int64

	DeleteOrphans     bool
	PreserveLayout    bool
	OverwriteExisting bool
	CopySidecars      bool

	State             State
	LastRunStartedAt  time.Time
	LastRunEndedAt    time.Time
	LastRunMessage    string
	TotalRuns         int
	TotalItemsCreated int
	TotalItems        int
	CurrentIndex      int

	CreatedAt time.Time
}

// Validation errors (spec.md §4.8 "validation (non-empty name, drive
// exists, source root looks like an id, output dir is absolute)").
var (
	ErrEmptyName         = errors.New("tasks: name must not be empty")
	ErrDriveNotFound     = errors.New("tasks: drive does not exist")
	ErrEmptySourceRoot   = errors.New("tasks: source_root_id must not be empty")
	ErrOutputDirRelative = errors.New("tasks: output_dir must be an absolute path")
	ErrNotFound          = errors.New("tasks: task not found")
)

// Registry is the Task Registry (C8).
type Registry struct {
	db     *sql.DB
	drives DriveExistsChecker
}

// DriveExistsChecker reports whether a drive id is known. Implemented by a
// thin adapter over stubstore.DriveStore (see NewDriveExistsChecker).
type DriveExistsChecker func(ctx context.Context, id ids.DriveID) (bool, error)

// New builds a Registry over an already-migrated *sql.DB.
func New(db *sql.DB, drives DriveExistsChecker) *Registry {
	return &Registry{db: db, drives: drives}
}

// Validate checks the invariants spec.md §4.8 names, independent of
// persistence, so callers (HTTP handlers, CLI) can surface validation
// errors before touching the database.
func (r *Registry) Validate(ctx context.Context, t Task) error {
	if strings.TrimSpace(t.Name) == "" {
		return ErrEmptyName
	}

	if strings.TrimSpace(t.SourceRootID) == "" {
		return ErrEmptySourceRoot
	}

	if !filepath.IsAbs(t.OutputDir) {
		return ErrOutputDirRelative
	}

	ok, err := r.drives(ctx, t.DriveID)
	if err != nil {
		return fmt.Errorf("tasks: checking drive existence: %w", err)
	}

	if !ok {
		return ErrDriveNotFound
	}

	return nil
}

// Create validates and inserts a new task.
func (r *Registry) Create(ctx context.Context, t Task) (Task, error) {
	if err := r.Validate(ctx, t); err != nil {
		return Task{}, err
	}

	t.ID = ids.NewTaskID()
	t.CreatedAt = time.Now()

	if t.ScheduleKind == "" {
		t.ScheduleKind = ScheduleNone
	}

	if t.ScheduleUnit == "" {
		t.ScheduleUnit = "seconds"
	}

	if t.State == "" {
		t.State = StateIdle
	}

	if t.WatchPollSeconds == 0 {
		t.WatchPollSeconds = 60
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks (
			id, drive_id, name, source_root_id, output_dir, stub_base_url,
			include_video, include_audio, custom_extensions,
			schedule_kind, schedule_period, schedule_unit, schedule_cron, schedule_enabled,
			watch_enabled, watch_poll_seconds, last_event_cursor,
			delete_orphans, preserve_layout, overwrite_existing, copy_sidecars,
			state, total_runs, total_items_created, total_items, current_index, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`,
		t.ID.String(), t.DriveID.String(), t.Name, t.SourceRootID, t.OutputDir, t.StubBaseURL,
		boolToInt(t.IncludeVideo), boolToInt(t.IncludeAudio), strings.Join(t.CustomExts, ","),
		string(t.ScheduleKind), int64(t.SchedulePeriod/time.Second), t.ScheduleUnit, t.ScheduleCron, boolToInt(t.ScheduleOn),
		boolToInt(t.WatchOn), t.WatchPollSeconds, t.LastEventCursor,
		boolToInt(t.DeleteOrphans), boolToInt(t.PreserveLayout), boolToInt(t.OverwriteExisting), boolToInt(t.CopySidecars),
		string(t.State), t.TotalRuns, t.TotalItemsCreated, t.TotalItems, t.CurrentIndex, t.CreatedAt.Unix(),
	)
	if err != nil {
		return Task{}, fmt.Errorf("tasks: inserting task: %w", err)
	}

	return t, nil
}

// Get fetches a task by id.
func (r *Registry) Get(ctx context.Context, id ids.TaskID) (Task, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id.String())

	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}

	if err != nil {
		return Task{}, fmt.Errorf("tasks: getting task %s: %w", id, err)
	}

	return t, nil
}

// ListByDrive returns every task for a drive.
func (r *Registry) ListByDrive(ctx context.Context, driveID ids.DriveID) ([]Task, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` WHERE drive_id = ? ORDER BY created_at`, driveID.String())
	if err != nil {
		return nil, fmt.Errorf("tasks: listing tasks for drive %s: %w", driveID, err)
	}
	defer rows.Close()

	var out []Task

	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("tasks: scanning task row: %w", err)
		}

		out = append(out, t)
	}

	return out, rows.Err()
}

// List returns every task across all drives, ordered by creation time.
// Used at process startup to re-arm the scheduler and watcher.
func (r *Registry) List(ctx context.Context) ([]Task, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("tasks: listing tasks: %w", err)
	}
	defer rows.Close()

	var out []Task

	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("tasks: scanning task row: %w", err)
		}

		out = append(out, t)
	}

	return out, rows.Err()
}

// Delete removes a task; cascades to its records/run_logs.
func (r *Registry) Delete(ctx context.Context, id ids.TaskID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("tasks: deleting task %s: %w", id, err)
	}

	return nil
}

// UpdateSchedule updates only the schedule-related fields. Nothing in the
// repository calls it: the Scheduler (C9) keeps its triggers in memory and
// its Add/Remove/Pause/Resume do not write schedule fields back to this
// table.
func (r *Registry) UpdateSchedule(ctx context.Context, id ids.TaskID, kind ScheduleKind, period time.Duration, cron string, enabled bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET schedule_kind = ?, schedule_period = ?, schedule_cron = ?, schedule_enabled = ?
		WHERE id = ?
	`, string(kind), int64(period/time.Second), cron, boolToInt(enabled), id.String())
	if err != nil {
		return fmt.Errorf("tasks: updating schedule for task %s: %w", id, err)
	}

	return nil
}

// UpdateProgress sets the live (total_items, current_index) pair (spec.md
// §3 "live progress set during a run").
func (r *Registry) UpdateProgress(ctx context.Context, id ids.TaskID, totalItems, currentIndex int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET total_items = ?, current_index = ? WHERE id = ?`,
		totalItems, currentIndex, id.String())
	if err != nil {
		return fmt.Errorf("tasks: updating progress for task %s: %w", id, err)
	}

	return nil
}

// UpdateEventCursor persists the watcher's last-seen event id (spec.md
// §4.10 step 4).
func (r *Registry) UpdateEventCursor(ctx context.Context, id ids.TaskID, cursor int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE tasks SET last_event_cursor = ? WHERE id = ?`, cursor, id.String())
	if err != nil {
		return fmt.Errorf("tasks: updating event cursor for task %s: %w", id, err)
	}

	return nil
}

// FinishRun updates terminal run state and counters, clearing transient
// progress fields regardless of outcome (spec.md §4.7 step 6 "Clear
// transient progress fields even on failure").
func (r *Registry) FinishRun(ctx context.Context, id ids.TaskID, state State, message string, itemsCreated int, startedAt, endedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET
			state = ?, last_run_message = ?, last_run_started_at = ?, last_run_ended_at = ?,
			total_runs = total_runs + 1, total_items_created = total_items_created + ?,
			total_items = 0, current_index = 0
		WHERE id = ?
	`, string(state), message, startedAt.Unix(), endedAt.Unix(), itemsCreated, id.String())
	if err != nil {
		return fmt.Errorf("tasks: finishing run for task %s: %w", id, err)
	}

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
