// Package redirect implements the Redirect Cache (spec.md §4.5, C5):
// pick_handle -> (signed_url, expires_at), coalesced per handle via
// golang.org/x/sync/singleflight so a thundering herd of stub requests for
// the same file resolves upstream exactly once.
package redirect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wenfer/strmgate/internal/credstore"
	"github.com/wenfer/strmgate/internal/ids"
	"github.com/wenfer/strmgate/internal/upstream"
)

// DefaultTTL is the fallback lifetime for a resolved URL when the upstream
// does not hand back an explicit expiry (spec.md §4.5, default 3600s).
const DefaultTTL = 3600 * time.Second

// entry is one cached resolution.
type entry struct {
	signedURL string
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// Resolver is the subset of C2 this cache needs — satisfied by
// *upstream.Client.
type Resolver interface {
	ResolveSignedURL(ctx context.Context, driveID ids.DriveID, cred credstore.Credential, pickHandle string) (string, int64, error)
}

// Cache is the Redirect Cache (C5).
type Cache struct {
	ttl    time.Duration
	logger *slog.Logger

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]entry
}

// New builds a Cache with the given TTL (0 selects DefaultTTL).
func New(ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Cache{
		ttl:     ttl,
		logger:  logger,
		entries: make(map[string]entry),
	}
}

// cacheKey scopes pick_handle by drive — the same handle string is only
// ever meaningful within one upstream drive.
func cacheKey(driveID ids.DriveID, pickHandle string) string {
	return driveID.String() + ":" + pickHandle
}

// Get resolves a pick handle to a signed URL, serving from cache when a
// non-expired entry exists (spec.md §4.5 get()). On upstream unauth, the
// error is propagated unchanged and nothing is cached — the caller is
// expected to invalidate the Provider Pool entry.
func (c *Cache) Get(
	ctx context.Context, resolver Resolver, driveID ids.DriveID, cred credstore.Credential, pickHandle string,
) (string, error) {
	key := cacheKey(driveID, pickHandle)

	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()

	if ok && !e.expired(time.Now()) {
		return e.signedURL, nil
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		// A caller that missed the cache just before an earlier flight
		// stored its result must not resolve the same handle again.
		c.mu.Lock()
		cached, hit := c.entries[key]
		c.mu.Unlock()

		if hit && !cached.expired(time.Now()) {
			return cached.signedURL, nil
		}

		signedURL, upstreamExpiry, resolveErr := resolver.ResolveSignedURL(ctx, driveID, cred, pickHandle)
		if resolveErr != nil {
			if errors.Is(resolveErr, upstream.ErrUnauthorized) {
				return nil, resolveErr
			}

			return nil, fmt.Errorf("redirect: resolving %s: %w", pickHandle, resolveErr)
		}

		expiresAt := time.Now().Add(c.ttl)
		if upstreamExpiry > 0 {
			if byUpstream := time.Unix(upstreamExpiry, 0); byUpstream.Before(expiresAt) {
				expiresAt = byUpstream
			}
		}

		c.mu.Lock()
		c.entries[key] = entry{signedURL: signedURL, expiresAt: expiresAt}
		c.mu.Unlock()

		return signedURL, nil
	})
	if err != nil {
		return "", err
	}

	return result.(string), nil //nolint:forcetypeassert // singleflight.Do always returns our own type here
}

// Sweep removes every expired entry. Not required for correctness (spec.md
// §4.5 "a background sweeper may trim expired entries but is not required
// for correctness") — callers may run it periodically to bound memory.
func (c *Cache) Sweep() int {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0

	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)

			removed++
		}
	}

	return removed
}

// Len reports the current entry count (diagnostics).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}
