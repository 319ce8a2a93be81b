package stubstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wenfer/strmgate/internal/ids"
)

// RecordState is StubRecord.state (spec.md §3).
type RecordState string

const (
	RecordActive  RecordState = "active"
	RecordDeleted RecordState = "deleted"
)

// StubRecord is one generated stub, keyed by task_id+item_id (spec.md §3
// "record_id = task_id ⊕ item_id").
type StubRecord struct {
	TaskID       ids.TaskID
	ItemID       string
	Name         string
	Size         int64
	ParentID     string
	ModifiedAt   time.Time
	PickHandle   string
	ContentHash  string
	StubPath     string
	StubContents string
	State        RecordState
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RecordID returns the composite identity for this record.
func (r StubRecord) RecordID() ids.RecordID {
	return ids.NewRecordID(r.TaskID, r.ItemID)
}

// RecordStore is the Stub Record Store (C6).
type RecordStore struct {
	db *sql.DB
}

// NewRecordStore wraps an already-migrated *sql.DB (see Open).
func NewRecordStore(db *sql.DB) *RecordStore {
	return &RecordStore{db: db}
}

// Upsert inserts or updates a record by its natural key (task_id, item_id)
// (spec.md §4.6 upsert()).
func (s *RecordStore) Upsert(ctx context.Context, r StubRecord) error {
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}

	r.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stub_records (
			record_id, task_id, item_id, name, size, parent_id, modified_at,
			pick_handle, content_hash, stub_path, stub_contents, state,
			created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(task_id, item_id) DO UPDATE SET
			name = excluded.name,
			size = excluded.size,
			parent_id = excluded.parent_id,
			modified_at = excluded.modified_at,
			pick_handle = excluded.pick_handle,
			content_hash = excluded.content_hash,
			stub_path = excluded.stub_path,
			stub_contents = excluded.stub_contents,
			state = excluded.state,
			updated_at = excluded.updated_at
	`,
		r.RecordID().String(), r.TaskID.String(), r.ItemID, r.Name, r.Size, r.ParentID,
		r.ModifiedAt.Unix(), r.PickHandle, r.ContentHash, r.StubPath, r.StubContents,
		string(r.State), r.CreatedAt.Unix(), r.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("stubstore: upserting record %s/%s: %w", r.TaskID, r.ItemID, err)
	}

	return nil
}

// Delete removes a record outright (spec.md §4.6 delete()), as opposed to
// MarkDeleted's soft-delete.
func (s *RecordStore) Delete(ctx context.Context, recordID ids.RecordID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM stub_records WHERE record_id = ?`, recordID.String())
	if err != nil {
		return fmt.Errorf("stubstore: deleting record %s: %w", recordID, err)
	}

	return nil
}

// MarkDeleted soft-deletes a record (spec.md §4.6 mark_deleted()).
func (s *RecordStore) MarkDeleted(ctx context.Context, recordID ids.RecordID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE stub_records SET state = ?, updated_at = ? WHERE record_id = ?`,
		string(RecordDeleted), time.Now().Unix(), recordID.String(),
	)
	if err != nil {
		return fmt.Errorf("stubstore: marking record %s deleted: %w", recordID, err)
	}

	return nil
}

// FindByTask returns every record for a task, optionally filtered by state
// (spec.md §4.6 find_by_task(); pass "" for no state filter). Indexed on
// task_id / task_id+state per spec.md §4.6.
func (s *RecordStore) FindByTask(ctx context.Context, taskID ids.TaskID, state RecordState) ([]StubRecord, error) {
	query := `SELECT task_id, item_id, name, size, parent_id, modified_at, pick_handle,
		content_hash, stub_path, stub_contents, state, created_at, updated_at
		FROM stub_records WHERE task_id = ?`
	args := []any{taskID.String()}

	if state != "" {
		query += ` AND state = ?`
		args = append(args, string(state))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("stubstore: finding records for task %s: %w", taskID, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// FindByItem returns the single record for (task_id, item_id), if any
// (spec.md §4.6 find_by_item()).
func (s *RecordStore) FindByItem(ctx context.Context, taskID ids.TaskID, itemID string) (*StubRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT task_id, item_id, name, size, parent_id, modified_at,
		pick_handle, content_hash, stub_path, stub_contents, state, created_at, updated_at
		FROM stub_records WHERE task_id = ? AND item_id = ?`, taskID.String(), itemID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // sentinel for "no such record"
	}

	if err != nil {
		return nil, fmt.Errorf("stubstore: finding record %s/%s: %w", taskID, itemID, err)
	}

	return &rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (StubRecord, error) {
	var (
		r          StubRecord
		taskID     string
		state      string
		modifiedAt int64
		created    int64
		updated    int64
	)

	err := row.Scan(
		&taskID, &r.ItemID, &r.Name, &r.Size, &r.ParentID, &modifiedAt,
		&r.PickHandle, &r.ContentHash, &r.StubPath, &r.StubContents, &state,
		&created, &updated,
	)
	if err != nil {
		return StubRecord{}, err
	}

	parsedTaskID, err := ids.ParseTaskID(taskID)
	if err != nil {
		return StubRecord{}, fmt.Errorf("stubstore: parsing task id %q: %w", taskID, err)
	}

	r.TaskID = parsedTaskID
	r.ModifiedAt = time.Unix(modifiedAt, 0).UTC()
	r.CreatedAt = time.Unix(created, 0).UTC()
	r.UpdatedAt = time.Unix(updated, 0).UTC()
	r.State = RecordState(state)

	return r, nil
}

func scanRecords(rows *sql.Rows) ([]StubRecord, error) {
	var out []StubRecord

	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("stubstore: scanning record row: %w", err)
		}

		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stubstore: iterating record rows: %w", err)
	}

	return out, nil
}
