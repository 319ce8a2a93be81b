package mounts

import (
	"database/sql"
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

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")

	db, err := stubstore.Open(t.Context(), path, discardLogger())
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return db
}

func seedDrive(t *testing.T, db *sql.DB) ids.DriveID {
	t.Helper()

	id := ids.NewDriveID("115")
	_, err := stubstore.NewDriveStore(db).Create(t.Context(), id, "seed", "115", true)
	require.NoError(t, err)

	return id
}

func TestCreateAndGet(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	driveID := seedDrive(t, db)
	r := New(db)

	m, err := r.Create(t.Context(), "movies", driveID, "root-123")
	require.NoError(t, err)
	assert.Equal(t, "movies", m.Alias)
	assert.Equal(t, "root-123", m.RootID)

	got, err := r.Get(t.Context(), "movies")
	require.NoError(t, err)
	assert.Equal(t, driveID, got.DriveID)
}

func TestCreateRejectsAliasCollision(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	driveID := seedDrive(t, db)
	r := New(db)

	_, err := r.Create(t.Context(), "movies", driveID, "root-123")
	require.NoError(t, err)

	_, err = r.Create(t.Context(), "movies", driveID, "root-456")
	assert.ErrorIs(t, err, ErrAliasCollision)
}

func TestGetUnknownAlias(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	r := New(db)

	_, err := r.Get(t.Context(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAndListByDrive(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	driveID := seedDrive(t, db)
	other := ids.NewDriveID("115")
	_, err := stubstore.NewDriveStore(db).Create(t.Context(), other, "other", "115", false)
	require.NoError(t, err)

	r := New(db)

	_, err = r.Create(t.Context(), "movies", driveID, "root-1")
	require.NoError(t, err)
	_, err = r.Create(t.Context(), "shows", other, "root-2")
	require.NoError(t, err)

	all, err := r.List(t.Context())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyDrive, err := r.ListByDrive(t.Context(), driveID)
	require.NoError(t, err)
	assert.Len(t, onlyDrive, 1)
	assert.Equal(t, "movies", onlyDrive[0].Alias)
}

func TestDeleteIsIdempotent(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	driveID := seedDrive(t, db)
	r := New(db)

	_, err := r.Create(t.Context(), "movies", driveID, "root-1")
	require.NoError(t, err)

	require.NoError(t, r.Delete(t.Context(), "movies"))
	require.NoError(t, r.Delete(t.Context(), "movies"))

	_, err = r.Get(t.Context(), "movies")
	assert.ErrorIs(t, err, ErrNotFound)
}
