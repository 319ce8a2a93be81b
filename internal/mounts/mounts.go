// Package mounts implements the supplemented Mount Registry: a lightweight
// alias -> (drive_id, root_id) mapping, independent of stub-sync tasks.
//
// Grounded on the original Python project's app/models/mount.py and
// app/services/mount_service.py (mount points consumed by its WebDAV/FUSE
// projections, out of scope here) and shaped like internal/stubstore's
// DriveStore CRUD — a reusable building block for future filesystem
// projections, CRUD only, no filesystem code.
package mounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wenfer/strmgate/internal/ids"
)

// Mount is one alias -> (drive, root folder) binding.
type Mount struct {
	Alias     string
	DriveID   ids.DriveID
	RootID    string
	CreatedAt time.Time
}

// ErrAliasCollision is returned by Create when the alias is already taken.
var ErrAliasCollision = errors.New("mounts: alias already in use")

// ErrNotFound is returned by Get for an unknown alias.
var ErrNotFound = errors.New("mounts: mount not found")

// Registry owns the `mounts` table.
type Registry struct {
	db *sql.DB
}

// New wraps an already-migrated *sql.DB (see stubstore.Open).
func New(db *sql.DB) *Registry {
	return &Registry{db: db}
}

// Create registers a new alias. Fails with ErrAliasCollision if the alias
// is already bound (checked explicitly, the way stubstore.DriveStore.Create
// pre-checks name collisions inside a transaction rather than parsing
// driver-specific constraint errors).
func (r *Registry) Create(ctx context.Context, alias string, driveID ids.DriveID, rootID string) (Mount, error) {
	if alias == "" {
		return Mount{}, fmt.Errorf("mounts: alias must not be empty")
	}

	if rootID == "" {
		return Mount{}, fmt.Errorf("mounts: root_id must not be empty")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Mount{}, fmt.Errorf("mounts: beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	var existing int

	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM mounts WHERE alias = ?`, alias).Scan(&existing); err != nil {
		return Mount{}, fmt.Errorf("mounts: checking alias collision: %w", err)
	}

	if existing > 0 {
		return Mount{}, ErrAliasCollision
	}

	now := time.Now()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO mounts (alias, drive_id, root_id, created_at) VALUES (?,?,?,?)
	`, alias, driveID.String(), rootID, now.Unix()); err != nil {
		return Mount{}, fmt.Errorf("mounts: creating %q: %w", alias, err)
	}

	if err := tx.Commit(); err != nil {
		return Mount{}, fmt.Errorf("mounts: committing: %w", err)
	}

	return Mount{Alias: alias, DriveID: driveID, RootID: rootID, CreatedAt: now}, nil
}

// Get returns a mount by alias.
func (r *Registry) Get(ctx context.Context, alias string) (Mount, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT alias, drive_id, root_id, created_at FROM mounts WHERE alias = ?`, alias)

	m, err := scanMount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Mount{}, ErrNotFound
	}

	if err != nil {
		return Mount{}, fmt.Errorf("mounts: getting %q: %w", alias, err)
	}

	return m, nil
}

// List returns every mount, ordered by alias.
func (r *Registry) List(ctx context.Context) ([]Mount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT alias, drive_id, root_id, created_at FROM mounts ORDER BY alias`)
	if err != nil {
		return nil, fmt.Errorf("mounts: listing: %w", err)
	}
	defer rows.Close()

	var out []Mount

	for rows.Next() {
		m, err := scanMount(rows)
		if err != nil {
			return nil, fmt.Errorf("mounts: scanning row: %w", err)
		}

		out = append(out, m)
	}

	return out, rows.Err()
}

// ListByDrive returns every mount bound to driveID.
func (r *Registry) ListByDrive(ctx context.Context, driveID ids.DriveID) ([]Mount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT alias, drive_id, root_id, created_at FROM mounts WHERE drive_id = ? ORDER BY alias`,
		driveID.String())
	if err != nil {
		return nil, fmt.Errorf("mounts: listing for drive %s: %w", driveID, err)
	}
	defer rows.Close()

	var out []Mount

	for rows.Next() {
		m, err := scanMount(rows)
		if err != nil {
			return nil, fmt.Errorf("mounts: scanning row: %w", err)
		}

		out = append(out, m)
	}

	return out, rows.Err()
}

// Delete removes a mount by alias. Deleting an unknown alias is a no-op,
// matching stubstore.DriveStore.Delete's idempotent shape.
func (r *Registry) Delete(ctx context.Context, alias string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM mounts WHERE alias = ?`, alias)
	if err != nil {
		return fmt.Errorf("mounts: deleting %q: %w", alias, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMount(row rowScanner) (Mount, error) {
	var (
		m         Mount
		driveID   string
		createdAt int64
	)

	if err := row.Scan(&m.Alias, &driveID, &m.RootID, &createdAt); err != nil {
		return Mount{}, err
	}

	id, err := ids.ParseDriveID(driveID)
	if err != nil {
		return Mount{}, fmt.Errorf("parsing drive id: %w", err)
	}

	m.DriveID = id
	m.CreatedAt = time.Unix(createdAt, 0)

	return m, nil
}
