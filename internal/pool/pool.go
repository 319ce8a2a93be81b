// Package pool implements the Provider Pool (spec.md §4.4, C4): an
// in-memory map of drive_id -> {client, credential, last_checked}, created
// lazily under a per-drive lock so concurrent acquires never block on an
// unrelated drive (spec.md "no global lock on the map for reads").
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wenfer/strmgate/internal/credstore"
	"github.com/wenfer/strmgate/internal/ids"
	"github.com/wenfer/strmgate/internal/upstream"
)

// ErrNoCredential is returned by acquire when the drive has never
// authenticated (no credential in the Credential Store).
var ErrNoCredential = fmt.Errorf("pool: no credential for drive")

// ClientFactory builds the Upstream Client implementation for a drive kind
// (spec.md §3 "kind (tag selecting an Upstream Client implementation)").
// The pool calls it once per drive, on first acquire.
type ClientFactory func(kind string) (*upstream.Client, error)

// Entry is one pool slot, exactly the shape spec.md §4.4 names.
type Entry struct {
	Client      *upstream.Client
	Credential  credstore.Credential
	LastChecked time.Time
}

// Pool is the Provider Pool (C4).
type Pool struct {
	credStore *credstore.Store
	newClient ClientFactory
	logger    *slog.Logger

	// driveLocks serialises get-or-create per drive without a global lock
	// on the entries map for reads (entriesMu is only ever held briefly).
	locksMu    sync.Mutex
	driveLocks map[string]*sync.Mutex

	entriesMu sync.RWMutex
	entries   map[string]*Entry

	// drives maps id -> kind, populated by Register (the Task
	// Registry / drive CRUD layer owns drive metadata; the pool only
	// needs kind to build a client).
	drivesMu sync.RWMutex
	drives   map[string]string
}

// New builds a Pool. newClient constructs an Upstream Client for a given
// drive kind; credStore is the Credential Store (C1) the pool reads from
// and writes invalidations to.
func New(credStore *credstore.Store, newClient ClientFactory, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}

	return &Pool{
		credStore:  credStore,
		newClient:  newClient,
		logger:     logger,
		driveLocks: make(map[string]*sync.Mutex),
		entries:    make(map[string]*Entry),
		drives:     make(map[string]string),
	}
}

// Register records a drive's kind so a later Acquire can build its client.
// Called once when a drive is created (or on pool warm-up at startup).
func (p *Pool) Register(driveID ids.DriveID, kind string) {
	p.drivesMu.Lock()
	defer p.drivesMu.Unlock()

	p.drives[driveID.String()] = kind
}

// Forget removes a drive's kind mapping and any pool entry, without
// touching its credential (use Invalidate for that) — for full drive
// deletion, spec.md's cascade, call Invalidate then Forget.
func (p *Pool) Forget(driveID ids.DriveID) {
	key := driveID.String()

	p.drivesMu.Lock()
	delete(p.drives, key)
	p.drivesMu.Unlock()

	p.entriesMu.Lock()
	delete(p.entries, key)
	p.entriesMu.Unlock()
}

func (p *Pool) lockFor(key string) *sync.Mutex {
	p.locksMu.Lock()
	defer p.locksMu.Unlock()

	l, ok := p.driveLocks[key]
	if !ok {
		l = &sync.Mutex{}
		p.driveLocks[key] = l
	}

	return l
}

// Acquire returns the pool Entry for a drive, creating it (loading the
// credential, instantiating the client) on first use (spec.md §4.4
// acquire()).
func (p *Pool) Acquire(ctx context.Context, driveID ids.DriveID) (*Entry, error) {
	key := driveID.String()

	p.entriesMu.RLock()
	entry, ok := p.entries[key]
	p.entriesMu.RUnlock()

	if ok {
		return entry, nil
	}

	lock := p.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	// Re-check: another goroutine may have created it while we waited.
	p.entriesMu.RLock()
	entry, ok = p.entries[key]
	p.entriesMu.RUnlock()

	if ok {
		return entry, nil
	}

	cred, err := p.credStore.Load(driveID)
	if err != nil {
		return nil, fmt.Errorf("pool: loading credential for %s: %w", driveID, err)
	}

	if cred == nil {
		return nil, ErrNoCredential
	}

	if cred.Kind == credstore.KindBearer {
		src := bearerTokenSource(ctx, driveID, *cred, p.credStore, p.logger)

		tok, err := src.Token()
		if err != nil {
			return nil, fmt.Errorf("pool: refreshing bearer credential for %s: %w", driveID, err)
		}

		cred.Payload = []byte(tok.AccessToken)
		cred.ExpiresAt = tok.Expiry
		cred.RefreshHandle = tok.RefreshToken
	}

	p.drivesMu.RLock()
	kind := p.drives[key]
	p.drivesMu.RUnlock()

	client, err := p.newClient(kind)
	if err != nil {
		return nil, fmt.Errorf("pool: building client for drive %s (kind %q): %w", driveID, kind, err)
	}

	entry = &Entry{Client: client, Credential: *cred, LastChecked: time.Now()}

	p.entriesMu.Lock()
	p.entries[key] = entry
	p.entriesMu.Unlock()

	p.logger.Info("pool entry created", slog.String("drive_id", key), slog.String("kind", kind))

	return entry, nil
}

// Invalidate clears the pool entry for a drive and removes its persisted
// credential (spec.md §4.4 "clears the entry *and* the persisted
// credential"). Call this whenever C2 reports unauthenticated.
func (p *Pool) Invalidate(driveID ids.DriveID) error {
	key := driveID.String()

	lock := p.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	p.entriesMu.Lock()
	delete(p.entries, key)
	p.entriesMu.Unlock()

	if err := p.credStore.Invalidate(driveID); err != nil {
		return fmt.Errorf("pool: invalidating credential for %s: %w", driveID, err)
	}

	p.logger.Info("pool entry invalidated", slog.String("drive_id", key))

	return nil
}

// Snapshot returns a point-in-time, non-authoritative view of every live
// pool entry for diagnostics (SPEC_FULL.md supplemented feature 4, grounded
// in original_source's provider_manager health listing).
type Snapshot struct {
	DriveID     string
	Kind        string
	LastChecked time.Time
}

// Snapshot lists every currently-pooled drive. Safe to call concurrently
// with Acquire/Invalidate; the result may be stale by the time it returns.
func (p *Pool) Snapshot() []Snapshot {
	p.entriesMu.RLock()
	defer p.entriesMu.RUnlock()

	p.drivesMu.RLock()
	defer p.drivesMu.RUnlock()

	out := make([]Snapshot, 0, len(p.entries))

	for key, entry := range p.entries {
		out = append(out, Snapshot{
			DriveID:     key,
			Kind:        p.drives[key],
			LastChecked: entry.LastChecked,
		})
	}

	return out
}
