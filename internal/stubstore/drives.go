package stubstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wenfer/strmgate/internal/ids"
)

// Drive is the persisted row backing spec.md §3's Drive entity. The
// Credential itself never lives here — it's file-backed via C1
// (internal/credstore); this row only carries the reference (its id).
type Drive struct {
	ID         ids.DriveID
	Name       string
	Kind       string
	IsCurrent  bool
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// DriveStore owns the `drives` table. Not one of the named C1-C10
// components, but the plumbing spec.md §3/§6 requires to persist Drive
// rows alongside tasks/records in the same relational store.
type DriveStore struct {
	db *sql.DB
}

// NewDriveStore wraps an already-migrated *sql.DB (see Open).
func NewDriveStore(db *sql.DB) *DriveStore {
	return &DriveStore{db: db}
}

// ErrNameCollision is returned by Create when a drive with the same name
// already exists (spec.md §7 "Conflict ... attempt to create a drive whose
// name collides").
var ErrNameCollision = errors.New("stubstore: drive name already in use")

// Create inserts a new drive row. If makeCurrent is true (or this is the
// first drive), every other drive's is_current flag is cleared first so at
// most one drive is ever current (spec.md §3 invariant).
func (s *DriveStore) Create(ctx context.Context, id ids.DriveID, name, kind string, makeCurrent bool) (Drive, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Drive{}, fmt.Errorf("stubstore: beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	var existing int

	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM drives WHERE name = ?`, name).Scan(&existing); err != nil {
		return Drive{}, fmt.Errorf("stubstore: checking drive name collision: %w", err)
	}

	if existing > 0 {
		return Drive{}, ErrNameCollision
	}

	var total int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM drives`).Scan(&total); err != nil {
		return Drive{}, fmt.Errorf("stubstore: counting drives: %w", err)
	}

	current := makeCurrent || total == 0

	if current {
		if _, err := tx.ExecContext(ctx, `UPDATE drives SET is_current = 0`); err != nil {
			return Drive{}, fmt.Errorf("stubstore: clearing current drive flag: %w", err)
		}
	}

	now := time.Now()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO drives (id, name, kind, is_current, created_at, last_used_at)
		VALUES (?,?,?,?,?,?)
	`, id.String(), name, kind, boolToInt(current), now.Unix(), now.Unix())
	if err != nil {
		return Drive{}, fmt.Errorf("stubstore: inserting drive: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Drive{}, fmt.Errorf("stubstore: committing drive creation: %w", err)
	}

	return Drive{ID: id, Name: name, Kind: kind, IsCurrent: current, CreatedAt: now, LastUsedAt: now}, nil
}

// Get fetches a drive by id, or (nil, nil) if absent.
func (s *DriveStore) Get(ctx context.Context, id ids.DriveID) (*Drive, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, kind, is_current, created_at, last_used_at FROM drives WHERE id = ?`, id.String())

	d, err := scanDrive(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // sentinel for "no such drive"
	}

	if err != nil {
		return nil, fmt.Errorf("stubstore: getting drive %s: %w", id, err)
	}

	return &d, nil
}

// Current returns the drive flagged is_current, or (nil, nil) if none.
func (s *DriveStore) Current(ctx context.Context) (*Drive, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, kind, is_current, created_at, last_used_at FROM drives WHERE is_current = 1 LIMIT 1`)

	d, err := scanDrive(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // sentinel for "no current drive"
	}

	if err != nil {
		return nil, fmt.Errorf("stubstore: getting current drive: %w", err)
	}

	return &d, nil
}

// List returns every drive, ordered by creation time.
func (s *DriveStore) List(ctx context.Context) ([]Drive, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, kind, is_current, created_at, last_used_at FROM drives ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("stubstore: listing drives: %w", err)
	}
	defer rows.Close()

	var out []Drive

	for rows.Next() {
		d, err := scanDrive(rows)
		if err != nil {
			return nil, fmt.Errorf("stubstore: scanning drive row: %w", err)
		}

		out = append(out, d)
	}

	return out, rows.Err()
}

// Delete removes a drive row; cascades to tasks/records/run_logs via the
// schema's ON DELETE CASCADE (spec.md §3 "Deletion of a parent cascades").
// The caller is still responsible for invalidating the credential (C1) and
// the Provider Pool entry, which live outside this store.
func (s *DriveStore) Delete(ctx context.Context, id ids.DriveID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM drives WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("stubstore: deleting drive %s: %w", id, err)
	}

	return nil
}

// TouchLastUsed updates last_used_at to now.
func (s *DriveStore) TouchLastUsed(ctx context.Context, id ids.DriveID) error {
	_, err := s.db.ExecContext(ctx, `UPDATE drives SET last_used_at = ? WHERE id = ?`, time.Now().Unix(), id.String())
	if err != nil {
		return fmt.Errorf("stubstore: touching drive %s: %w", id, err)
	}

	return nil
}

func scanDrive(row rowScanner) (Drive, error) {
	var (
		d          Drive
		id         string
		isCurrent  int
		createdAt  int64
		lastUsedAt int64
	)

	if err := row.Scan(&id, &d.Name, &d.Kind, &isCurrent, &createdAt, &lastUsedAt); err != nil {
		return Drive{}, err
	}

	parsed, err := ids.ParseDriveID(id)
	if err != nil {
		return Drive{}, fmt.Errorf("parsing drive id %q: %w", id, err)
	}

	d.ID = parsed
	d.IsCurrent = isCurrent != 0
	d.CreatedAt = time.Unix(createdAt, 0).UTC()
	d.LastUsedAt = time.Unix(lastUsedAt, 0).UTC()

	return d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
