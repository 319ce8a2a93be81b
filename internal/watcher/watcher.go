// Package watcher implements the Event Watcher (spec.md §4.10, C10): one
// polling loop per watch-enabled task that follows the upstream's
// change-event feed, coalesces in-scope events into a scheduler run
// request, and persists its cursor so a restart resumes without
// reprocessing.
//
// Grounded on the teacher's internal/sync Orchestrator.RunWatch
// watchRunner bookkeeping (per-task cancel/done pair, state captured for
// an operational query interface) — narrowed from a two-way delta sync
// loop to a one-way poll-and-request loop.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wenfer/strmgate/internal/ids"
	"github.com/wenfer/strmgate/internal/pool"
	"github.com/wenfer/strmgate/internal/syncengine"
	"github.com/wenfer/strmgate/internal/tasks"
	"github.com/wenfer/strmgate/internal/upstream"
)

// State is a watcher's lifecycle stage (spec.md §4.10 "starting → running
// → (failed | stopped)").
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateFailed   State = "failed"
	StateStopped  State = "stopped"
)

// defaultPollPeriod is used when a task's WatchPollSeconds is unset.
const defaultPollPeriod = 60 * time.Second

// Status is a watcher's state as surfaced to an operational UI.
type Status struct {
	TaskID       ids.TaskID
	State        State
	LastError    string
	LastPolledAt time.Time
	Cursor       int64
}

// Requester is the narrow slice of the Scheduler a watcher needs: asking
// for an immediate run while honoring the same per-task mutual-exclusion
// rule as a scheduled tick (spec.md §4.10 step 4).
type Requester interface {
	RunNow(ctx context.Context, id ids.TaskID) (syncengine.Result, error)
}

type runner struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	status Status
}

// Manager owns one runner per watch-enabled task.
type Manager struct {
	pool      *pool.Pool
	taskReg   *tasks.Registry
	requester Requester
	logger    *slog.Logger

	mu      sync.Mutex
	runners map[ids.TaskID]*runner
}

// NewManager builds a watcher Manager.
func NewManager(p *pool.Pool, taskReg *tasks.Registry, requester Requester, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		pool:      p,
		taskReg:   taskReg,
		requester: requester,
		logger:    logger,
		runners:   make(map[ids.TaskID]*runner),
	}
}

// Start launches a polling loop for task, replacing any prior runner for
// the same task id.
func (m *Manager) Start(ctx context.Context, task tasks.Task) {
	m.Stop(task.ID)

	runCtx, cancel := context.WithCancel(ctx)
	r := &runner{
		cancel: cancel,
		done:   make(chan struct{}),
		status: Status{TaskID: task.ID, State: StateStarting, Cursor: task.LastEventCursor},
	}

	m.mu.Lock()
	m.runners[task.ID] = r
	m.mu.Unlock()

	go m.poll(runCtx, task, r)
}

// Stop cancels a task's watcher and waits for it to exit.
func (m *Manager) Stop(id ids.TaskID) {
	m.mu.Lock()
	r, ok := m.runners[id]
	if ok {
		delete(m.runners, id)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	r.cancel()
	<-r.done
}

// Status returns the current state of a task's watcher.
func (m *Manager) Status(id ids.TaskID) (Status, error) {
	m.mu.Lock()
	r, ok := m.runners[id]
	m.mu.Unlock()

	if !ok {
		return Status{}, fmt.Errorf("watcher: no watcher for task %s", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.status, nil
}

// List returns every tracked watcher's status.
func (m *Manager) List() []Status {
	m.mu.Lock()
	runners := make([]*runner, 0, len(m.runners))
	for _, r := range m.runners {
		runners = append(runners, r)
	}
	m.mu.Unlock()

	out := make([]Status, 0, len(runners))
	for _, r := range runners {
		r.mu.Lock()
		out = append(out, r.status)
		r.mu.Unlock()
	}

	return out
}

func (m *Manager) setStatus(r *runner, state State, lastErr string, cursor int64) {
	r.mu.Lock()
	r.status.State = state
	r.status.LastError = lastErr
	r.status.LastPolledAt = time.Now()
	if cursor != 0 {
		r.status.Cursor = cursor
	}
	r.mu.Unlock()
}

func (m *Manager) poll(ctx context.Context, task tasks.Task, r *runner) {
	defer close(r.done)

	m.setStatus(r, StateRunning, "", task.LastEventCursor)

	period := time.Duration(task.WatchPollSeconds) * time.Second
	if period <= 0 {
		period = defaultPollPeriod
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	cursor := task.LastEventCursor

	for {
		select {
		case <-ctx.Done():
			m.setStatus(r, StateStopped, "", cursor)
			return
		case <-ticker.C:
		}

		next, err := m.pollOnce(ctx, task, cursor)
		if err != nil {
			if errors.Is(err, upstream.ErrUnauthorized) {
				if invErr := m.pool.Invalidate(task.DriveID); invErr != nil {
					m.logger.Error("watcher: invalidating pool entry", slog.String("task_id", task.ID.String()), slog.String("error", invErr.Error()))
				}

				m.setStatus(r, StateFailed, err.Error(), cursor)

				return
			}

			m.logger.Warn("watcher: poll failed, will retry next tick", slog.String("task_id", task.ID.String()), slog.String("error", err.Error()))
			m.setStatus(r, StateRunning, err.Error(), cursor)

			continue
		}

		cursor = next
		m.setStatus(r, StateRunning, "", cursor)
	}
}

// pollOnce performs one full cycle of spec.md §4.10 steps 2-4: paginate
// the event feed since cursor, filter to in-scope events, and if any
// remain, persist the new cursor and request a run.
func (m *Manager) pollOnce(ctx context.Context, task tasks.Task, cursor int64) (int64, error) {
	entry, err := m.pool.Acquire(ctx, task.DriveID)
	if err != nil {
		return cursor, fmt.Errorf("watcher: acquiring pool entry: %w", err)
	}

	maxSeen := cursor

	var inScope []upstream.Event

	since := cursor

	for {
		var (
			events  []upstream.Event
			next    int64
			hasMore bool
		)

		err := entry.Client.Retry(ctx, func(ctx context.Context) error {
			var listErr error
			events, next, hasMore, listErr = entry.Client.ListEvents(ctx, task.DriveID, entry.Credential, since)
			return listErr
		})
		if err != nil {
			return cursor, fmt.Errorf("watcher: listing events: %w", err)
		}

		for _, ev := range events {
			if ev.ID > maxSeen {
				maxSeen = ev.ID
			}

			if eventInScope(ev, task.SourceRootID) {
				inScope = append(inScope, ev)
			}
		}

		if !hasMore {
			break
		}

		since = next
	}

	if len(inScope) == 0 {
		return maxSeen, nil
	}

	if err := m.taskReg.UpdateEventCursor(ctx, task.ID, maxSeen); err != nil {
		m.logger.Warn("watcher: persisting event cursor", slog.String("task_id", task.ID.String()), slog.String("error", err.Error()))
	}

	if _, err := m.requester.RunNow(ctx, task.ID); err != nil {
		m.logger.Debug("watcher: run request did not start a new run", slog.String("task_id", task.ID.String()), slog.String("error", err.Error()))
	}

	return maxSeen, nil
}

// eventInScope reports whether ev belongs to the sync-triggering set and
// is under task's source root (spec.md §4.10 step 3). The upstream only
// ever exposes an event's immediate parent, so this is an immediate-parent
// check only — an event nested deeper than one level below the source
// root is missed until the next full scan (spec.md §9 Open Question,
// accepted as approximate; see DESIGN.md). C6's stub records key file
// items only (folders are never stub targets, spec.md §4.7 step 1), so
// they cannot resolve a folder-to-folder ancestor chain and are not
// consulted here.
func eventInScope(ev upstream.Event, sourceRootID string) bool {
	if !ev.Type.IsSyncTriggering() {
		return false
	}

	return sourceRootID == "" || ev.ParentID == "" || ev.ParentID == sourceRootID
}
