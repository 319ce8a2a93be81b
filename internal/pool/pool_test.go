package pool

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenfer/strmgate/internal/credstore"
	"github.com/wenfer/strmgate/internal/ids"
	"github.com/wenfer/strmgate/internal/upstream"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func factoryCountingCalls(t *testing.T, n *int, mu *sync.Mutex) ClientFactory {
	t.Helper()

	return func(kind string) (*upstream.Client, error) {
		mu.Lock()
		*n++
		mu.Unlock()

		return upstream.NewClient("http://example.invalid", nil, upstream.Config{RequestsPerSecond: 1, MaxInFlight: 1}, discardLogger()), nil
	}
}

func TestAcquireCreatesOnce(t *testing.T) {
	t.Parallel()

	store := credstore.New(t.TempDir(), discardLogger())
	driveID := ids.NewDriveID("drive")
	require.NoError(t, store.Save(driveID, credstore.Credential{Kind: credstore.KindCookie, Payload: []byte("c")}))

	var (
		calls int
		mu    sync.Mutex
	)

	p := New(store, factoryCountingCalls(t, &calls, &mu), discardLogger())
	p.Register(driveID, "115")

	var wg sync.WaitGroup

	for range 10 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := p.Acquire(t.Context(), driveID)
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, calls)
}

func TestAcquireWithoutCredentialFails(t *testing.T) {
	t.Parallel()

	store := credstore.New(t.TempDir(), discardLogger())
	p := New(store, factoryCountingCalls(t, new(int), new(sync.Mutex)), discardLogger())

	driveID := ids.NewDriveID("drive")
	p.Register(driveID, "115")

	_, err := p.Acquire(t.Context(), driveID)
	require.ErrorIs(t, err, ErrNoCredential)
}

func TestInvalidateClearsEntryAndCredential(t *testing.T) {
	t.Parallel()

	store := credstore.New(t.TempDir(), discardLogger())
	driveID := ids.NewDriveID("drive")
	require.NoError(t, store.Save(driveID, credstore.Credential{Kind: credstore.KindCookie, Payload: []byte("c")}))

	p := New(store, factoryCountingCalls(t, new(int), new(sync.Mutex)), discardLogger())
	p.Register(driveID, "115")

	_, err := p.Acquire(t.Context(), driveID)
	require.NoError(t, err)

	require.NoError(t, p.Invalidate(driveID))
	assert.False(t, store.IsPresent(driveID))
	assert.Empty(t, p.Snapshot())

	_, err = p.Acquire(t.Context(), driveID)
	require.ErrorIs(t, err, ErrNoCredential)
}

func TestAcquireLeavesCookieCredentialUntouched(t *testing.T) {
	t.Parallel()

	store := credstore.New(t.TempDir(), discardLogger())
	driveID := ids.NewDriveID("drive")
	require.NoError(t, store.Save(driveID, credstore.Credential{Kind: credstore.KindCookie, Payload: []byte("session=abc")}))

	p := New(store, factoryCountingCalls(t, new(int), new(sync.Mutex)), discardLogger())
	p.Register(driveID, "115")

	entry, err := p.Acquire(t.Context(), driveID)
	require.NoError(t, err)
	assert.Equal(t, []byte("session=abc"), entry.Credential.Payload)
}

func TestAcquireRefreshesExpiredBearerCredential(t *testing.T) {
	t.Parallel()

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"new-access","refresh_token":"new-refresh","token_type":"bearer","expires_in":3600}`)
	}))
	defer tokenSrv.Close()

	store := credstore.New(t.TempDir(), discardLogger())
	driveID := ids.NewDriveID("drive")
	require.NoError(t, store.Save(driveID, credstore.Credential{
		Kind:          credstore.KindBearer,
		Payload:       []byte("stale-access"),
		RefreshHandle: "stale-refresh",
		ExpiresAt:     time.Now().Add(-time.Hour),
		Meta:          map[string]string{"token_url": tokenSrv.URL},
	}))

	p := New(store, factoryCountingCalls(t, new(int), new(sync.Mutex)), discardLogger())
	p.Register(driveID, "115")

	entry, err := p.Acquire(t.Context(), driveID)
	require.NoError(t, err)
	assert.Equal(t, []byte("new-access"), entry.Credential.Payload)

	persisted, err := store.Load(driveID)
	require.NoError(t, err)
	assert.Equal(t, []byte("new-access"), persisted.Payload)
	assert.Equal(t, "new-refresh", persisted.RefreshHandle)
}

func TestSnapshotReportsLiveEntries(t *testing.T) {
	t.Parallel()

	store := credstore.New(t.TempDir(), discardLogger())
	driveID := ids.NewDriveID("drive")
	require.NoError(t, store.Save(driveID, credstore.Credential{Kind: credstore.KindCookie, Payload: []byte("c")}))

	p := New(store, factoryCountingCalls(t, new(int), new(sync.Mutex)), discardLogger())
	p.Register(driveID, "115")

	_, err := p.Acquire(t.Context(), driveID)
	require.NoError(t, err)

	snap := p.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, driveID.String(), snap[0].DriveID)
	assert.Equal(t, "115", snap[0].Kind)
}
