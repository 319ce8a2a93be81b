package stubstore

import (
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenfer/strmgate/internal/ids"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(t.Context(), path, discardLogger())
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return db
}

func TestDriveCreateEnforcesSingleCurrent(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	store := NewDriveStore(db)

	d1, err := store.Create(t.Context(), ids.NewDriveID("drive"), "first", "115", false)
	require.NoError(t, err)
	assert.True(t, d1.IsCurrent, "first drive becomes current by default")

	d2, err := store.Create(t.Context(), ids.NewDriveID("drive"), "second", "115", true)
	require.NoError(t, err)
	assert.True(t, d2.IsCurrent)

	got1, err := store.Get(t.Context(), d1.ID)
	require.NoError(t, err)
	assert.False(t, got1.IsCurrent, "creating a new current drive clears the old one")

	current, err := store.Current(t.Context())
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, d2.ID, current.ID)
}

func TestDriveCreateRejectsNameCollision(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	store := NewDriveStore(db)

	_, err := store.Create(t.Context(), ids.NewDriveID("drive"), "dup", "115", false)
	require.NoError(t, err)

	_, err = store.Create(t.Context(), ids.NewDriveID("drive"), "dup", "115", false)
	require.ErrorIs(t, err, ErrNameCollision)
}

func TestDriveDeleteCascadesToRecords(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	drives := NewDriveStore(db)
	records := NewRecordStore(db)

	driveID := ids.NewDriveID("drive")
	_, err := drives.Create(t.Context(), driveID, "d", "115", true)
	require.NoError(t, err)

	taskID := ids.NewTaskID()
	seedTask(t, db, taskID, driveID)

	require.NoError(t, records.Upsert(t.Context(), StubRecord{
		TaskID: taskID, ItemID: "item1", Name: "a.mp4", StubPath: "/x/a.strm",
		StubContents: "stream://115/handle", State: RecordActive,
	}))

	require.NoError(t, drives.Delete(t.Context(), driveID))

	found, err := records.FindByTask(t.Context(), taskID, "")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func seedTask(t *testing.T, db *sql.DB, taskID ids.TaskID, driveID ids.DriveID) {
	t.Helper()

	_, err := db.ExecContext(t.Context(), `INSERT INTO tasks (id, drive_id, name, source_root_id, output_dir, created_at)
		VALUES (?,?,?,?,?,?)`, taskID.String(), driveID.String(), "task", "root", "/out", time.Now().Unix())
	require.NoError(t, err)
}

func TestRecordUpsertIsIdempotentOnNaturalKey(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	drives := NewDriveStore(db)
	records := NewRecordStore(db)

	driveID := ids.NewDriveID("drive")
	_, err := drives.Create(t.Context(), driveID, "d", "115", true)
	require.NoError(t, err)

	taskID := ids.NewTaskID()
	seedTask(t, db, taskID, driveID)

	rec := StubRecord{
		TaskID: taskID, ItemID: "item1", Name: "a.mp4", Size: 100,
		StubPath: "/out/a.strm", StubContents: "stream://115/h1", State: RecordActive,
	}

	require.NoError(t, records.Upsert(t.Context(), rec))

	rec.Size = 200
	rec.Name = "a-renamed.mp4"
	require.NoError(t, records.Upsert(t.Context(), rec))

	all, err := records.FindByTask(t.Context(), taskID, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.EqualValues(t, 200, all[0].Size)
	assert.Equal(t, "a-renamed.mp4", all[0].Name)

	got, err := records.FindByItem(t.Context(), taskID, "item1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a-renamed.mp4", got.Name)
}

func TestRecordMarkDeletedAndFindByState(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	drives := NewDriveStore(db)
	records := NewRecordStore(db)

	driveID := ids.NewDriveID("drive")
	_, err := drives.Create(t.Context(), driveID, "d", "115", true)
	require.NoError(t, err)

	taskID := ids.NewTaskID()
	seedTask(t, db, taskID, driveID)

	rec := StubRecord{TaskID: taskID, ItemID: "item1", Name: "a.mp4", StubPath: "/a.strm", StubContents: "x", State: RecordActive}
	require.NoError(t, records.Upsert(t.Context(), rec))

	require.NoError(t, records.MarkDeleted(t.Context(), rec.RecordID()))

	active, err := records.FindByTask(t.Context(), taskID, RecordActive)
	require.NoError(t, err)
	assert.Empty(t, active)

	deleted, err := records.FindByTask(t.Context(), taskID, RecordDeleted)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
}

func TestRunLogInsertAndFindByTask(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	drives := NewDriveStore(db)
	runLogs := NewRunLogStore(db)

	driveID := ids.NewDriveID("drive")
	_, err := drives.Create(t.Context(), driveID, "d", "115", true)
	require.NoError(t, err)

	taskID := ids.NewTaskID()
	seedTask(t, db, taskID, driveID)

	start := time.Now().Add(-time.Minute)

	_, err = runLogs.Insert(t.Context(), RunLog{
		TaskID: taskID, StartedAt: start, EndedAt: start.Add(30 * time.Second),
		State: RunSuccess, Scanned: 10, Created: 5,
	})
	require.NoError(t, err)

	logs, err := runLogs.FindByTask(t.Context(), taskID, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, RunSuccess, logs[0].State)
	assert.Equal(t, 5, logs[0].Created)
}
