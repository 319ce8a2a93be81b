// Package scheduler implements the Scheduler (spec.md §4.9, C9): a
// cooperative single-owner tick loop that fires due tasks on their
// interval or cron trigger, enforces at most one in-flight run per task,
// and exposes add/remove/pause/resume/run-now to the CLI and Watcher.
//
// Grounded on the teacher's internal/sync Orchestrator.RunWatch: a
// map of per-task runners advanced by one goroutine's select loop,
// started/stopped via context cancellation and a done channel per entry.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wenfer/strmgate/internal/ids"
	"github.com/wenfer/strmgate/internal/syncengine"
	"github.com/wenfer/strmgate/internal/tasks"
)

// ErrConflict is returned by RunNow when the task already has a run in
// flight (spec.md §4.9 "run_now fails fast with conflict if the task's
// mutex is already held").
var ErrConflict = errors.New("scheduler: task already running")

// ErrUnknownTask is returned by operations addressing a task id the
// Scheduler has no entry for.
var ErrUnknownTask = errors.New("scheduler: unknown task")

// Runner executes one task's sync cycle. Implemented by *syncengine.Engine;
// tests inject a fake.
type Runner interface {
	Run(ctx context.Context, task tasks.Task) (syncengine.Result, error)
}

// entry is the Scheduler's live state for one task: its trigger, its
// exclusive run lock, and whether it is currently paused.
type entry struct {
	mu sync.Mutex // held for the duration of a run; TryLock enforces exclusivity

	task    tasks.Task
	trigger trigger
	nextRun time.Time
	paused  bool
}

// Scheduler owns the trigger set for every registered task and ticks it
// forward, dispatching due tasks to Runner.Run.
type Scheduler struct {
	runner Runner
	logger *slog.Logger
	tick   time.Duration

	mu      sync.Mutex
	entries map[ids.TaskID]*entry

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Scheduler. tick is how often the loop checks for due
// tasks; a zero value defaults to one second.
func New(runner Runner, logger *slog.Logger, tick time.Duration) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	if tick <= 0 {
		tick = time.Second
	}

	return &Scheduler{
		runner:  runner,
		logger:  logger,
		tick:    tick,
		entries: make(map[ids.TaskID]*entry),
	}
}

// Add registers a task's trigger. A task whose ScheduleOn is false, or
// whose ScheduleKind is ScheduleNone, is tracked but never fires until
// Resume is called after its schedule is turned on.
func (s *Scheduler) Add(task tasks.Task) error {
	trig, err := newTrigger(task)
	if err != nil {
		return fmt.Errorf("scheduler: adding task %s: %w", task.ID, err)
	}

	e := &entry{task: task, trigger: trig, paused: !task.ScheduleOn}
	if !e.paused {
		next, err := trig.next(time.Now())
		if err != nil {
			return fmt.Errorf("scheduler: computing first run for task %s: %w", task.ID, err)
		}

		e.nextRun = next
	}

	s.mu.Lock()
	s.entries[task.ID] = e
	s.mu.Unlock()

	return nil
}

// Remove drops a task from the trigger set. A run already in flight is
// not interrupted; it simply stops being rescheduled afterwards.
func (s *Scheduler) Remove(id ids.TaskID) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

// Pause stops a task from firing without forgetting its trigger
// configuration, so Resume can pick up where it left off.
func (s *Scheduler) Pause(id ids.TaskID) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	e.paused = true
	s.mu.Unlock()

	return nil
}

// Resume re-arms a paused task's trigger from the current time.
func (s *Scheduler) Resume(id ids.TaskID) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}

	next, err := e.trigger.next(time.Now())
	if err != nil {
		return fmt.Errorf("scheduler: resuming task %s: %w", id, err)
	}

	s.mu.Lock()
	e.paused = false
	e.nextRun = next
	s.mu.Unlock()

	return nil
}

// RunNow triggers an immediate out-of-band run, failing fast with
// ErrConflict if the task is already running (spec.md §4.9).
func (s *Scheduler) RunNow(ctx context.Context, id ids.TaskID) (syncengine.Result, error) {
	e, err := s.lookup(id)
	if err != nil {
		return syncengine.Result{}, err
	}

	if !e.mu.TryLock() {
		return syncengine.Result{}, ErrConflict
	}
	defer e.mu.Unlock()

	return s.runner.Run(ctx, e.task)
}

func (s *Scheduler) lookup(id ids.TaskID) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}

	return e, nil
}

// Start launches the tick loop in a background goroutine. Stop shuts it
// down; Start must not be called again after Stop without building a new
// Scheduler.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx)
}

// Stop cancels the tick loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}

	s.cancel()
	<-s.done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.dispatchDue(ctx, now)
		}
	}
}

// dispatchDue fires every non-paused task whose trigger is due, each in
// its own goroutine so a slow run never delays other tasks' checks.
func (s *Scheduler) dispatchDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	due := make([]*entry, 0)

	for _, e := range s.entries {
		if !e.paused && !e.nextRun.IsZero() && !e.nextRun.After(now) {
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		go s.fire(ctx, e)
	}
}

func (s *Scheduler) fire(ctx context.Context, e *entry) {
	if !e.mu.TryLock() {
		s.logger.Warn("scheduler: skipping tick, run already in flight", slog.String("task_id", e.task.ID.String()))
		return
	}
	defer e.mu.Unlock()

	if _, err := s.runner.Run(ctx, e.task); err != nil {
		s.logger.Error("scheduler: task run failed", slog.String("task_id", e.task.ID.String()), slog.String("error", err.Error()))
	}

	next, err := e.trigger.next(time.Now())
	if err != nil {
		s.logger.Error("scheduler: rescheduling task", slog.String("task_id", e.task.ID.String()), slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	if live, ok := s.entries[e.task.ID]; ok {
		live.nextRun = next
	}
	s.mu.Unlock()
}
