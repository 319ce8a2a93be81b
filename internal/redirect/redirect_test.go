package redirect

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenfer/strmgate/internal/credstore"
	"github.com/wenfer/strmgate/internal/ids"
	"github.com/wenfer/strmgate/internal/upstream"
)

type fakeResolver struct {
	calls atomic.Int32
	url   string
	err   error
}

func (f *fakeResolver) ResolveSignedURL(_ context.Context, _ ids.DriveID, _ credstore.Credential, _ string) (string, int64, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", 0, f.err
	}

	return f.url, 0, nil
}

func TestGetCachesAcrossCalls(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{url: "https://cdn/a"}
	cache := New(time.Hour, nil)
	driveID := ids.NewDriveID("drive")

	url1, err := cache.Get(t.Context(), resolver, driveID, credstore.Credential{}, "handle1")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/a", url1)

	url2, err := cache.Get(t.Context(), resolver, driveID, credstore.Credential{}, "handle1")
	require.NoError(t, err)
	assert.Equal(t, url1, url2)
	assert.EqualValues(t, 1, resolver.calls.Load())
}

func TestGetCoalescesConcurrentCalls(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{url: "https://cdn/b"}
	cache := New(time.Hour, nil)
	driveID := ids.NewDriveID("drive")

	var wg sync.WaitGroup

	for range 20 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := cache.Get(t.Context(), resolver, driveID, credstore.Credential{}, "shared-handle")
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	assert.LessOrEqual(t, resolver.calls.Load(), int32(2))
}

func TestGetDoesNotCacheUnauth(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{err: upstream.ErrUnauthorized}
	cache := New(time.Hour, nil)
	driveID := ids.NewDriveID("drive")

	_, err := cache.Get(t.Context(), resolver, driveID, credstore.Credential{}, "handle")
	require.ErrorIs(t, err, upstream.ErrUnauthorized)
	assert.Equal(t, 0, cache.Len())
}

func TestSweepRemovesExpired(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{url: "https://cdn/c"}
	cache := New(time.Millisecond, nil)
	driveID := ids.NewDriveID("drive")

	_, err := cache.Get(t.Context(), resolver, driveID, credstore.Credential{}, "handle")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	assert.Equal(t, 1, cache.Sweep())
	assert.Equal(t, 0, cache.Len())
}
