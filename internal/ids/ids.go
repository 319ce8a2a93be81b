// Package ids provides type-safe identifier types for strmgate's core
// entities (drives, tasks, stub records). Consolidates the
// "{kind}_{monotonic-ms}" generation scheme (spec.md §3) and gives each ID
// compile-time safety over raw string usage, the way internal/driveid does
// for OneDrive identifiers in the teacher repo.
package ids

import (
	"database/sql"
	"database/sql/driver"
	"encoding"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// lastMillis guarantees monotonically increasing IDs even when two are
// generated within the same millisecond (New is called concurrently from
// HTTP handlers and the scheduler).
var lastMillis atomic.Int64

// nextMillis returns a strictly increasing millisecond timestamp.
func nextMillis() int64 {
	now := time.Now().UnixMilli()

	for {
		prev := lastMillis.Load()
		next := now

		if next <= prev {
			next = prev + 1
		}

		if lastMillis.CompareAndSwap(prev, next) {
			return next
		}
	}
}

// DriveID identifies one configured upstream account (spec.md §3 "Drive").
// Shape: "{kind}_{monotonic-ms}", e.g. "p115_1732550400123".
type DriveID struct{ value string }

// NewDriveID generates a fresh DriveID for the given drive kind.
func NewDriveID(kind string) DriveID {
	return DriveID{value: fmt.Sprintf("%s_%d", kind, nextMillis())}
}

// ParseDriveID wraps a raw string (e.g. loaded from the database) as a DriveID
// without validation beyond non-emptiness — the database is the source of
// truth for existence.
func ParseDriveID(raw string) (DriveID, error) {
	if raw == "" {
		return DriveID{}, fmt.Errorf("ids: empty drive id")
	}

	return DriveID{value: raw}, nil
}

// Kind returns the drive-kind tag encoded in the ID (the segment before the
// first "_"), used to select an Upstream Client implementation (spec.md §3).
func (id DriveID) Kind() string {
	kind, _, ok := strings.Cut(id.value, "_")
	if !ok {
		return ""
	}

	return kind
}

func (id DriveID) String() string { return id.value }
func (id DriveID) IsZero() bool   { return id.value == "" }

func (id DriveID) MarshalText() ([]byte, error) { return []byte(id.value), nil }

func (id *DriveID) UnmarshalText(text []byte) error {
	id.value = string(text)
	return nil
}

func (id *DriveID) Scan(src any) error {
	v, err := scanString(src)
	if err != nil {
		return fmt.Errorf("ids.DriveID.Scan: %w", err)
	}

	id.value = v

	return nil
}

func (id DriveID) Value() (driver.Value, error) {
	if id.IsZero() {
		return nil, nil
	}

	return id.value, nil
}

// TaskID identifies one stub-sync task definition (spec.md §3 "Task").
// Shape: "task_{monotonic-ms}".
type TaskID struct{ value string }

// NewTaskID generates a fresh TaskID.
func NewTaskID() TaskID {
	return TaskID{value: fmt.Sprintf("task_%d", nextMillis())}
}

// ParseTaskID wraps a raw string as a TaskID.
func ParseTaskID(raw string) (TaskID, error) {
	if raw == "" {
		return TaskID{}, fmt.Errorf("ids: empty task id")
	}

	return TaskID{value: raw}, nil
}

func (id TaskID) String() string { return id.value }
func (id TaskID) IsZero() bool   { return id.value == "" }

func (id TaskID) MarshalText() ([]byte, error) { return []byte(id.value), nil }

func (id *TaskID) UnmarshalText(text []byte) error {
	id.value = string(text)
	return nil
}

func (id *TaskID) Scan(src any) error {
	v, err := scanString(src)
	if err != nil {
		return fmt.Errorf("ids.TaskID.Scan: %w", err)
	}

	id.value = v

	return nil
}

func (id TaskID) Value() (driver.Value, error) {
	if id.IsZero() {
		return nil, nil
	}

	return id.value, nil
}

// RecordID is the natural composite key of a StubRecord: task_id ⊕ item_id
// (spec.md §3 "record_id = task_id ⊕ item_id"). Kept as a distinct type
// (rather than a plain concatenated string) so callers can't accidentally
// swap the argument order when building one.
type RecordID struct {
	TaskID TaskID
	ItemID string
}

// NewRecordID builds the natural key for a stub record.
func NewRecordID(taskID TaskID, itemID string) RecordID {
	return RecordID{TaskID: taskID, ItemID: itemID}
}

// String returns the "task_id:item_id" representation used as the SQLite
// composite-unique-index value and for logging.
func (k RecordID) String() string {
	return k.TaskID.String() + ":" + k.ItemID
}

// IsZero reports whether both components are zero/empty.
func (k RecordID) IsZero() bool {
	return k.TaskID.IsZero() && k.ItemID == ""
}

// scanString normalizes the handful of types database/sql hands back for a
// TEXT column into a Go string.
func scanString(src any) (string, error) {
	switch v := src.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("unsupported source type %T", src)
	}
}

// Compile-time interface assertions.
var (
	_ encoding.TextMarshaler   = DriveID{}
	_ encoding.TextUnmarshaler = (*DriveID)(nil)
	_ fmt.Stringer             = DriveID{}
	_ driver.Valuer            = DriveID{}
	_ sql.Scanner              = (*DriveID)(nil)

	_ encoding.TextMarshaler   = TaskID{}
	_ encoding.TextUnmarshaler = (*TaskID)(nil)
	_ fmt.Stringer             = TaskID{}
	_ driver.Valuer            = TaskID{}
	_ sql.Scanner              = (*TaskID)(nil)

	_ fmt.Stringer = RecordID{}
)
