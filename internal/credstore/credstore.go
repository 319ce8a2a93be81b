// Package credstore implements the Credential Store (spec.md §4.1, C1):
// one opaque, per-drive credential blob on disk, loaded/saved/invalidated
// atomically. File layout and the write-to-temp+rename dance are carried
// over from the teacher's internal/tokenfile, generalized from "one OAuth2
// token" to "one opaque credential of either supported shape" (spec.md §3).
package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wenfer/strmgate/internal/ids"
)

// FilePerms restricts credential files to owner-only read/write — these are
// bearer tokens or session cookies, never world-readable.
const FilePerms = 0o600

// DirPerms is used when creating the credentials directory.
const DirPerms = 0o700

// Kind distinguishes the two credential shapes described in spec.md §3.
type Kind string

const (
	// KindCookie is a long-lived cookie-like token, refreshed implicitly by
	// the upstream on use (no local refresh handle).
	KindCookie Kind = "cookie"
	// KindBearer is a short-lived bearer token with an explicit refresh
	// handle (refresh token) used to mint a new one before expiry.
	KindBearer Kind = "bearer"
)

// Credential is the opaque, per-drive payload persisted by the store.
// Payload is whatever bytes the matching Upstream Client implementation
// understands (a cookie string, a JSON-encoded OAuth2 token, ...) — this
// package never interprets it.
type Credential struct {
	Kind          Kind              `json:"kind"`
	Payload       []byte            `json:"payload"`
	ExpiresAt     time.Time         `json:"expires_at"`
	RefreshHandle string            `json:"refresh_handle,omitempty"`
	Meta          map[string]string `json:"meta,omitempty"`
}

// Expired reports whether the credential's expiry instant is in the past.
// A zero ExpiresAt (cookie-like credentials refreshed implicitly upstream)
// is never considered expired by this check alone — consumers must still
// treat an "unauthenticated" response from the upstream as invalidation
// (spec.md §3 Invariant).
func (c Credential) Expired() bool {
	return !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(time.Now())
}

// fileFormat is the on-disk JSON envelope.
type fileFormat struct {
	Credential Credential `json:"credential"`
}

// Store is the Credential Store (C1). One instance per process, shared by
// every drive; per-drive access is serialized by an internal lock map so
// concurrent save/invalidate calls on the same drive never race.
type Store struct {
	dir    string
	logger *slog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates a Store rooted at dataDir/credentials.
func New(dataDir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		dir:    filepath.Join(dataDir, "credentials"),
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (s *Store) lockFor(driveID ids.DriveID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	key := driveID.String()

	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}

	return l
}

func (s *Store) path(driveID ids.DriveID) string {
	return filepath.Join(s.dir, driveID.String()+".json")
}

// Load reads the saved credential for a drive. Returns (nil, nil) if none
// is present — callers use IsPresent or the nil return to distinguish
// "never logged in" from an error.
func (s *Store) Load(driveID ids.DriveID) (*Credential, error) {
	l := s.lockFor(driveID)
	l.Lock()
	defer l.Unlock()

	data, err := os.ReadFile(s.path(driveID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not present"
	}

	if err != nil {
		return nil, fmt.Errorf("credstore: reading credential for %s: %w", driveID, err)
	}

	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("credstore: decoding credential for %s: %w", driveID, err)
	}

	return &ff.Credential, nil
}

// Save persists a credential for a drive atomically (write-to-temp, fsync,
// rename). Never logs the payload.
func (s *Store) Save(driveID ids.DriveID, cred Credential) error {
	l := s.lockFor(driveID)
	l.Lock()
	defer l.Unlock()

	if err := os.MkdirAll(s.dir, DirPerms); err != nil {
		return fmt.Errorf("credstore: creating directory: %w", err)
	}

	data, err := json.Marshal(fileFormat{Credential: cred})
	if err != nil {
		return fmt.Errorf("credstore: encoding credential for %s: %w", driveID, err)
	}

	path := s.path(driveID)

	tmp, err := os.CreateTemp(s.dir, ".cred-*.tmp")
	if err != nil {
		return fmt.Errorf("credstore: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false

	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("credstore: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("credstore: writing: %w", err)
	}

	// Flush before rename so a crash between close and rename cannot leave
	// a truncated credential file at the final path.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("credstore: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credstore: closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("credstore: renaming into place: %w", err)
	}

	success = true

	s.logger.Info("credential saved", slog.String("drive_id", driveID.String()), slog.String("kind", string(cred.Kind)))

	return nil
}

// Invalidate removes the credential backing a drive. Atomic from a reader's
// perspective: os.Remove either fully succeeds or leaves the file exactly
// as it was (spec.md §4.1). Returns nil if already absent.
func (s *Store) Invalidate(driveID ids.DriveID) error {
	l := s.lockFor(driveID)
	l.Lock()
	defer l.Unlock()

	err := os.Remove(s.path(driveID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("credstore: invalidating credential for %s: %w", driveID, err)
	}

	s.logger.Info("credential invalidated", slog.String("drive_id", driveID.String()))

	return nil
}

// IsPresent reports whether a credential file exists for the drive, without
// reading or parsing it.
func (s *Store) IsPresent(driveID ids.DriveID) bool {
	_, err := os.Stat(s.path(driveID))
	return err == nil
}
