package tasks

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenfer/strmgate/internal/ids"
	"github.com/wenfer/strmgate/internal/stubstore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func setupRegistry(t *testing.T) (*Registry, ids.DriveID) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")

	db, err := stubstore.Open(t.Context(), path, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	drives := stubstore.NewDriveStore(db)
	driveID := ids.NewDriveID("drive")

	_, err = drives.Create(t.Context(), driveID, "d", "115", true)
	require.NoError(t, err)

	checker := func(ctx context.Context, id ids.DriveID) (bool, error) {
		d, err := drives.Get(ctx, id)
		if err != nil {
			return false, err
		}

		return d != nil, nil
	}

	return New(db, checker), driveID
}

func baseTask(driveID ids.DriveID) Task {
	return Task{
		DriveID:        driveID,
		Name:           "movies",
		SourceRootID:   "root123",
		OutputDir:      "/data/movies",
		IncludeVideo:   true,
		PreserveLayout: true,
	}
}

func TestCreateAndGet(t *testing.T) {
	t.Parallel()

	reg, driveID := setupRegistry(t)

	created, err := reg.Create(t.Context(), baseTask(driveID))
	require.NoError(t, err)
	assert.False(t, created.ID.IsZero())
	assert.Equal(t, StateIdle, created.State)

	got, err := reg.Get(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "movies", got.Name)
	assert.True(t, got.IncludeVideo)
	assert.True(t, got.PreserveLayout)
}

func TestCreateValidatesEmptyName(t *testing.T) {
	t.Parallel()

	reg, driveID := setupRegistry(t)

	task := baseTask(driveID)
	task.Name = "  "

	_, err := reg.Create(t.Context(), task)
	require.ErrorIs(t, err, ErrEmptyName)
}

func TestCreateValidatesOutputDirAbsolute(t *testing.T) {
	t.Parallel()

	reg, driveID := setupRegistry(t)

	task := baseTask(driveID)
	task.OutputDir = "relative/path"

	_, err := reg.Create(t.Context(), task)
	require.ErrorIs(t, err, ErrOutputDirRelative)
}

func TestCreateValidatesDriveExists(t *testing.T) {
	t.Parallel()

	reg, _ := setupRegistry(t)

	task := baseTask(ids.NewDriveID("nonexistent"))

	_, err := reg.Create(t.Context(), task)
	require.ErrorIs(t, err, ErrDriveNotFound)
}

func TestGetNotFound(t *testing.T) {
	t.Parallel()

	reg, _ := setupRegistry(t)

	_, err := reg.Get(t.Context(), ids.NewTaskID())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateProgressAndFinishRun(t *testing.T) {
	t.Parallel()

	reg, driveID := setupRegistry(t)

	created, err := reg.Create(t.Context(), baseTask(driveID))
	require.NoError(t, err)

	require.NoError(t, reg.UpdateProgress(t.Context(), created.ID, 50, 10))

	got, err := reg.Get(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.TotalItems)
	assert.Equal(t, 10, got.CurrentIndex)

	now := got.CreatedAt
	require.NoError(t, reg.FinishRun(t.Context(), created.ID, StateSuccess, "ok", 7, now, now))

	got, err = reg.Get(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, got.State)
	assert.Equal(t, 1, got.TotalRuns)
	assert.Equal(t, 7, got.TotalItemsCreated)
	assert.Equal(t, 0, got.TotalItems, "progress cleared after finish")
	assert.Equal(t, 0, got.CurrentIndex)
}

func TestListByDrive(t *testing.T) {
	t.Parallel()

	reg, driveID := setupRegistry(t)

	_, err := reg.Create(t.Context(), baseTask(driveID))
	require.NoError(t, err)

	second := baseTask(driveID)
	second.Name = "shows"
	_, err = reg.Create(t.Context(), second)
	require.NoError(t, err)

	list, err := reg.ListByDrive(t.Context(), driveID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestDeleteTask(t *testing.T) {
	t.Parallel()

	reg, driveID := setupRegistry(t)

	created, err := reg.Create(t.Context(), baseTask(driveID))
	require.NoError(t, err)

	require.NoError(t, reg.Delete(t.Context(), created.ID))

	_, err = reg.Get(t.Context(), created.ID)
	require.ErrorIs(t, err, ErrNotFound)
}
