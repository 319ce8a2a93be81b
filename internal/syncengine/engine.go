// Package syncengine implements the Sync Engine (spec.md §4.7, C7): the
// heart of the system. One call to Run walks a task's remote subtree,
// diffs it against the Stub Record Store, writes/removes stub files and
// sidecars, and produces run statistics — grounded throughout on the
// teacher's internal/sync engine/executor split, narrowed from
// bidirectional file sync to one-way stub generation.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/wenfer/strmgate/internal/credstore"
	"github.com/wenfer/strmgate/internal/ids"
	"github.com/wenfer/strmgate/internal/pool"
	"github.com/wenfer/strmgate/internal/stubstore"
	"github.com/wenfer/strmgate/internal/tasks"
	"github.com/wenfer/strmgate/internal/upstream"
)

// Result is the run-level outcome the Scheduler/CLI surface after a run
// (spec.md §4.7 step 6 "produce run statistics").
type Result struct {
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

// Engine is the Sync Engine (C7). Per-task mutual exclusion is the
// Scheduler's (C9) responsibility (spec.md §4.9) — Engine.Run assumes the
// caller already holds that lock.
type Engine struct {
	pool    *pool.Pool
	records *stubstore.RecordStore
	runLogs *stubstore.RunLogStore
	taskReg *tasks.Registry
	logger  *slog.Logger
}

// New builds an Engine over the shared dependencies.
func New(p *pool.Pool, records *stubstore.RecordStore, runLogs *stubstore.RunLogStore, taskReg *tasks.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{pool: p, records: records, runLogs: runLogs, taskReg: taskReg, logger: logger}
}

// Run executes one task top to bottom (spec.md §4.7 steps 1-6). Every run
// gets a fresh correlation id (runID) threaded through its log lines, the
// same way the teacher's planner tags each reconciliation pass with a
// CycleID (internal/sync/planner.go) so concurrent runs across tasks can
// be told apart in the logs.
func (e *Engine) Run(ctx context.Context, task tasks.Task) (Result, error) {
	started := time.Now()
	runID := uuid.New().String()

	e.logger.Info("syncengine: run started",
		slog.String("run_id", runID), slog.String("task_id", task.ID.String()))

	entry, err := e.pool.Acquire(ctx, task.DriveID)
	if err != nil {
		return e.finish(ctx, task, runID, started, Result{}, err)
	}

	result, runErr := e.runWithClient(ctx, task, entry.Client, entry.Credential)
	if runErr != nil && errors.Is(runErr, upstream.ErrUnauthorized) {
		if invalidateErr := e.pool.Invalidate(task.DriveID); invalidateErr != nil {
			e.logger.Error("syncengine: invalidating pool entry after unauth",
				slog.String("run_id", runID), slog.String("task_id", task.ID.String()),
				slog.String("error", invalidateErr.Error()))
		}
	}

	return e.finish(ctx, task, runID, started, result, runErr)
}

func (e *Engine) runWithClient(ctx context.Context, task tasks.Task, client *upstream.Client, cred credstore.Credential) (Result, error) {
	filter := NewFilter(task.IncludeVideo, task.IncludeAudio, task.CustomExts)
	folders := newMediaFolders()

	var (
		kept    []KeptFile
		scanned int
	)

	walkErr := client.IterSubtree(ctx, task.DriveID, cred, task.SourceRootID, upstream.WalkOptions{FilesOnly: true},
		func(entry upstream.WalkEntry) error {
			scanned++

			if filter.Keep(entry.Item.Name) {
				kept = append(kept, KeptFile{Item: entry.Item, RelativePath: entry.RelativePath})
				folders.record(entry.Item, entry.RelativePath)
			}

			return nil
		})
	if walkErr != nil {
		return Result{Scanned: scanned}, fmt.Errorf("syncengine: walking task %s: %w", task.ID, walkErr)
	}

	// IterSubtree fans folder expansion out across goroutines (spec.md §4.7
	// "implementations may parallelise page fetches"), so the order kept
	// files arrive in is not reproducible run to run. Sort before planning
	// so flat-layout collision resolution (which kept file wins a shared
	// stub path) is deterministic rather than a scheduling accident.
	sort.Slice(kept, func(i, j int) bool { return kept[i].RelativePath < kept[j].RelativePath })

	existing, err := e.records.FindByTask(ctx, task.ID, stubstore.RecordActive)
	if err != nil {
		return Result{Scanned: scanned}, fmt.Errorf("syncengine: loading existing records for task %s: %w", task.ID, err)
	}

	plan := Build(kept, existing, task.OverwriteExisting, task.DeleteOrphans, task.OutputDir, task.PreserveLayout, fileExists)

	result := Result{Scanned: scanned, Skipped: plan.Skipped}

	var itemErrs error

	total := len(plan.Create) + len(plan.Update) + len(plan.Delete) + len(plan.Errors)
	index := 0

	for _, pe := range plan.Errors {
		index++

		itemErrs = multierr.Append(itemErrs, fmt.Errorf("syncengine: planning %s: %w", pe.File.Item.Name, pe.Err))
		result.ErrorCount++

		e.reportProgress(ctx, task.ID, total, index)
	}

	for _, kf := range plan.Create {
		index++

		if err := e.applyCreate(ctx, client, task, cred, kf); err != nil {
			itemErrs = multierr.Append(itemErrs, err)
			result.ErrorCount++
		} else {
			result.Created++
		}

		e.reportProgress(ctx, task.ID, total, index)
	}

	for _, pu := range plan.Update {
		index++

		if err := e.applyUpdate(ctx, client, task, cred, pu); err != nil {
			itemErrs = multierr.Append(itemErrs, err)
			result.ErrorCount++
		} else {
			result.Updated++
		}

		e.reportProgress(ctx, task.ID, total, index)
	}

	for _, rec := range plan.Delete {
		index++

		if err := e.applyDelete(ctx, rec); err != nil {
			itemErrs = multierr.Append(itemErrs, err)
			result.ErrorCount++
		} else {
			result.Removed++
		}

		e.reportProgress(ctx, task.ID, total, index)
	}

	if task.CopySidecars {
		copied, skipped, sidecarErrs := e.copySidecars(ctx, client, task, cred, folders)
		result.SidecarsCopied += copied
		result.SidecarsSkipped += skipped
		itemErrs = multierr.Append(itemErrs, sidecarErrs)
	}

	if itemErrs != nil {
		result.Trace = itemErrs.Error()
	}

	for _, err := range multierr.Errors(itemErrs) {
		if errors.Is(err, upstream.ErrUnauthorized) {
			return result, err
		}
	}

	return result, nil
}

func (e *Engine) reportProgress(ctx context.Context, taskID ids.TaskID, total, index int) {
	if err := e.taskReg.UpdateProgress(ctx, taskID, total, index); err != nil {
		e.logger.Warn("syncengine: updating progress", slog.String("task_id", taskID.String()), slog.String("error", err.Error()))
	}
}

func (e *Engine) applyCreate(ctx context.Context, client *upstream.Client, task tasks.Task, cred credstore.Credential, kf KeptFile) error {
	pickHandle, err := e.resolvePickHandle(ctx, client, task.DriveID, cred, kf.Item)
	if err != nil {
		return fmt.Errorf("syncengine: resolving pick handle for %s: %w", kf.Item.Name, err)
	}

	path := stubPath(task.OutputDir, kf.RelativePath, task.PreserveLayout)
	contents := stubContents(task.StubBaseURL, task.DriveID.Kind(), pickHandle)

	if err := writeStub(path, contents); err != nil {
		return err
	}

	record := stubstore.StubRecord{
		TaskID:       task.ID,
		ItemID:       kf.Item.ID,
		Name:         kf.Item.Name,
		Size:         kf.Item.Size,
		ParentID:     kf.Item.ParentID,
		ModifiedAt:   kf.Item.ModifiedAt,
		PickHandle:   pickHandle,
		ContentHash:  kf.Item.ContentHash,
		StubPath:     path,
		StubContents: contents,
		State:        stubstore.RecordActive,
	}

	if err := e.records.Upsert(ctx, record); err != nil {
		return fmt.Errorf("syncengine: upserting record for %s: %w", kf.Item.Name, err)
	}

	return nil
}

func (e *Engine) applyUpdate(ctx context.Context, client *upstream.Client, task tasks.Task, cred credstore.Credential, pu PlannedUpdate) error {
	newPath := stubPath(task.OutputDir, pu.File.RelativePath, task.PreserveLayout)

	if newPath != pu.Record.StubPath {
		if err := removeStub(pu.Record.StubPath); err != nil {
			return err
		}
	}

	return e.applyCreate(ctx, client, task, cred, pu.File)
}

func (e *Engine) applyDelete(ctx context.Context, rec stubstore.StubRecord) error {
	if err := removeStub(rec.StubPath); err != nil {
		return err
	}

	return e.records.MarkDeleted(ctx, rec.RecordID())
}

// resolvePickHandle returns the item's pick handle, refetching the item if
// the walker didn't populate one (spec.md §4.7 step 4 "may be on the item
// already; otherwise via C2").
func (e *Engine) resolvePickHandle(ctx context.Context, client *upstream.Client, driveID ids.DriveID, cred credstore.Credential, item upstream.RemoteItem) (string, error) {
	if item.PickHandle != "" {
		return item.PickHandle, nil
	}

	var fresh upstream.RemoteItem

	err := client.Retry(ctx, func(ctx context.Context) error {
		var getErr error
		fresh, getErr = client.GetItem(ctx, driveID, cred, item.ID)
		return getErr
	})
	if err != nil {
		return "", err
	}

	return fresh.PickHandle, nil
}

// copySidecars walks each media folder's immediate remote contents and
// downloads sidecar-matching files byte-for-byte (spec.md §4.7 step 5).
func (e *Engine) copySidecars(ctx context.Context, client *upstream.Client, task tasks.Task, cred credstore.Credential, folders *mediaFolders) (copied, skipped int, errs error) {
	for folderID, relDir := range folders.byFolderID {
		offset := 0

		for {
			var (
				items   []upstream.RemoteItem
				hasMore bool
			)

			err := client.Retry(ctx, func(ctx context.Context) error {
				var listErr error
				items, hasMore, listErr = client.ListChildren(ctx, task.DriveID, cred, folderID, offset)
				return listErr
			})
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("syncengine: listing sidecars in %s: %w", relDir, err))
				break
			}

			for _, item := range items {
				if item.IsFolder || !isSidecar(item.Name) {
					continue
				}

				childRel := item.Name
				if relDir != "" {
					childRel = relDir + "/" + item.Name
				}

				path := sidecarPath(task.OutputDir, childRel, task.PreserveLayout)

				written, err := downloadSidecar(path, task.OverwriteExisting, func(w io.Writer) (int64, error) {
					var n int64

					retryErr := client.Retry(ctx, func(ctx context.Context) error {
						// A retried attempt must restart from byte zero, or a
						// partial write from the failed attempt corrupts the
						// file with leftover bytes.
						if seeker, ok := w.(io.Seeker); ok {
							if _, err := seeker.Seek(0, io.SeekStart); err != nil {
								return err
							}
						}
						if truncater, ok := w.(interface{ Truncate(int64) error }); ok {
							if err := truncater.Truncate(0); err != nil {
								return err
							}
						}

						var downloadErr error
						n, downloadErr = client.DownloadFile(ctx, task.DriveID, cred, item.PickHandle, w)
						return downloadErr
					})

					return n, retryErr
				})
				if err != nil {
					errs = multierr.Append(errs, err)
					continue
				}

				if written {
					copied++
				} else {
					skipped++
				}
			}

			if !hasMore {
				break
			}

			offset += len(items)
		}
	}

	return copied, skipped, errs
}

// finish writes the RunLog and updates the task's terminal state
// regardless of outcome (spec.md §4.7 step 6 "clear transient progress
// fields even on failure").
func (e *Engine) finish(ctx context.Context, task tasks.Task, runID string, started time.Time, result Result, runErr error) (Result, error) {
	ended := time.Now()

	state := tasks.StateSuccess
	message := "ok"

	if runErr != nil {
		state = tasks.StateError
		message = runErr.Error()
		result.Trace = message
	} else if result.ErrorCount > 0 {
		message = fmt.Sprintf("completed with %d item errors", result.ErrorCount)
	}

	if _, err := e.runLogs.Insert(ctx, stubstore.RunLog{
		TaskID: task.ID, StartedAt: started, EndedAt: ended,
		State:           runLogState(runErr),
		Scanned:         result.Scanned,
		Created:         result.Created,
		Updated:         result.Updated,
		Removed:         result.Removed,
		Skipped:         result.Skipped,
		SidecarsCopied:  result.SidecarsCopied,
		SidecarsSkipped: result.SidecarsSkipped,
		ErrorCount:      result.ErrorCount,
		Trace:           result.Trace,
	}); err != nil {
		e.logger.Error("syncengine: inserting run log",
			slog.String("run_id", runID), slog.String("task_id", task.ID.String()), slog.String("error", err.Error()))
	}

	if err := e.taskReg.FinishRun(ctx, task.ID, state, message, result.Created, started, ended); err != nil {
		e.logger.Error("syncengine: finishing run",
			slog.String("run_id", runID), slog.String("task_id", task.ID.String()), slog.String("error", err.Error()))
	}

	e.logger.Info("syncengine: run finished",
		slog.String("run_id", runID), slog.String("task_id", task.ID.String()),
		slog.String("state", string(state)), slog.Int("error_count", result.ErrorCount))

	return result, runErr
}

func runLogState(runErr error) stubstore.RunState {
	if runErr != nil {
		return stubstore.RunError
	}

	return stubstore.RunSuccess
}
