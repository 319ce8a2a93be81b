package credstore

import (
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

func TestLoadMissingReturnsNilNil(t *testing.T) {
	t.Parallel()

	store := New(t.TempDir(), discardLogger())

	cred, err := store.Load(ids.NewDriveID("drive"))
	require.NoError(t, err)
	assert.Nil(t, cred)
	assert.False(t, store.IsPresent(ids.NewDriveID("drive")))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := New(dir, discardLogger())
	driveID := ids.NewDriveID("drive")

	cred := Credential{
		Kind:          KindBearer,
		Payload:       []byte("secret-token"),
		ExpiresAt:     time.Now().Add(time.Hour).UTC(),
		RefreshHandle: "refresh-abc",
		Meta:          map[string]string{"account": "alice"},
	}

	require.NoError(t, store.Save(driveID, cred))
	assert.True(t, store.IsPresent(driveID))

	got, err := store.Load(driveID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cred.Kind, got.Kind)
	assert.Equal(t, cred.Payload, got.Payload)
	assert.Equal(t, cred.RefreshHandle, got.RefreshHandle)
	assert.Equal(t, cred.Meta, got.Meta)
	assert.False(t, got.Expired())
}

func TestSavePersistsWithOwnerOnlyPerms(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := New(dir, discardLogger())
	driveID := ids.NewDriveID("drive")

	require.NoError(t, store.Save(driveID, Credential{Kind: KindCookie, Payload: []byte("c")}))

	info, err := os.Stat(filepath.Join(dir, "credentials", driveID.String()+".json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())
}

func TestInvalidateRemovesCredential(t *testing.T) {
	t.Parallel()

	store := New(t.TempDir(), discardLogger())
	driveID := ids.NewDriveID("drive")

	require.NoError(t, store.Save(driveID, Credential{Kind: KindCookie, Payload: []byte("c")}))
	require.NoError(t, store.Invalidate(driveID))
	assert.False(t, store.IsPresent(driveID))

	// Invalidating an already-absent credential is not an error.
	require.NoError(t, store.Invalidate(driveID))
}

func TestExpiredCredential(t *testing.T) {
	t.Parallel()

	expired := Credential{ExpiresAt: time.Now().Add(-time.Hour)}
	assert.True(t, expired.Expired())

	cookieLike := Credential{}
	assert.False(t, cookieLike.Expired())
}

func TestSaveIsIsolatedPerDrive(t *testing.T) {
	t.Parallel()

	store := New(t.TempDir(), discardLogger())
	a := ids.NewDriveID("a")
	b := ids.NewDriveID("b")

	require.NoError(t, store.Save(a, Credential{Kind: KindBearer, Payload: []byte("a-token")}))
	require.NoError(t, store.Save(b, Credential{Kind: KindBearer, Payload: []byte("b-token")}))

	gotA, err := store.Load(a)
	require.NoError(t, err)
	gotB, err := store.Load(b)
	require.NoError(t, err)

	assert.Equal(t, []byte("a-token"), gotA.Payload)
	assert.Equal(t, []byte("b-token"), gotB.Payload)
}
