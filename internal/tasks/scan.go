package tasks

import (
	"strings"
	"time"

	"github.com/wenfer/strmgate/internal/ids"
)

const selectColumns = `SELECT
	id, drive_id, name, source_root_id, output_dir, stub_base_url,
	include_video, include_audio, custom_extensions,
	schedule_kind, schedule_period, schedule_unit, schedule_cron, schedule_enabled,
	watch_enabled, watch_poll_seconds, last_event_cursor,
	delete_orphans, preserve_layout, overwrite_existing, copy_sidecars,
	state, COALESCE(last_run_started_at, 0), COALESCE(last_run_ended_at, 0), last_run_message,
	total_runs, total_items_created, total_items, current_index, created_at
	FROM tasks`

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (Task, error) {
	var (
		t                          Task
		id, driveID                string
		customExts                 string
		scheduleKind               string
		schedulePeriodSeconds      int64
		state                      string
		includeVideo, includeAudio int
		scheduleEnabled            int
		watchEnabled               int
		deleteOrphans              int
		preserveLayout             int
		overwriteExisting          int
		copySidecars               int
		lastRunStarted             int64
		lastRunEnded               int64
		createdAt                  int64
	)

	err := row.Scan(
		&id, &driveID, &t.Name, &t.SourceRootID, &t.OutputDir, &t.StubBaseURL,
		&includeVideo, &includeAudio, &customExts,
		&scheduleKind, &schedulePeriodSeconds, &t.ScheduleUnit, &t.ScheduleCron, &scheduleEnabled,
		&watchEnabled, &t.WatchPollSeconds, &t.LastEventCursor,
		&deleteOrphans, &preserveLayout, &overwriteExisting, &copySidecars,
		&state, &lastRunStarted, &lastRunEnded, &t.LastRunMessage,
		&t.TotalRuns, &t.TotalItemsCreated, &t.TotalItems, &t.CurrentIndex, &createdAt,
	)
	if err != nil {
		return Task{}, err
	}

	parsedID, err := ids.ParseTaskID(id)
	if err != nil {
		return Task{}, err
	}

	parsedDriveID, err := ids.ParseDriveID(driveID)
	if err != nil {
		return Task{}, err
	}

	t.ID = parsedID
	t.DriveID = parsedDriveID
	t.IncludeVideo = includeVideo != 0
	t.IncludeAudio = includeAudio != 0

	if customExts != "" {
		t.CustomExts = strings.Split(customExts, ",")
	}

	t.ScheduleKind = ScheduleKind(scheduleKind)
	t.SchedulePeriod = time.Duration(schedulePeriodSeconds) * time.Second
	t.ScheduleOn = scheduleEnabled != 0
	t.WatchOn = watchEnabled != 0
	t.DeleteOrphans = deleteOrphans != 0
	t.PreserveLayout = preserveLayout != 0
	t.OverwriteExisting = overwriteExisting != 0
	t.CopySidecars = copySidecars != 0
	t.State = State(state)

	if lastRunStarted > 0 {
		t.LastRunStartedAt = time.Unix(lastRunStarted, 0).UTC()
	}

	if lastRunEnded > 0 {
		t.LastRunEndedAt = time.Unix(lastRunEnded, 0).UTC()
	}

	t.CreatedAt = time.Unix(createdAt, 0).UTC()

	return t, nil
}
