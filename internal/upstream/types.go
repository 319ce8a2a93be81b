package upstream

import "time"

// RemoteItem is a value object describing one remote file or folder
// (spec.md §3 "RemoteItem" — never persisted, produced by C2, consumed
// everywhere).
type RemoteItem struct {
	ID          string
	Name        string
	IsFolder    bool
	Size        int64
	ParentID    string
	ModifiedAt  time.Time
	PickHandle  string // opaque; resolves to a signed URL, distinct from ID
	ContentHash string // empty when the upstream doesn't provide one
}

// EventType is the tagged variant replacing the upstream's raw type_code
// integer (spec.md §9 "From dynamic attribute access to sum types").
type EventType int

// Sync-triggering event types (spec.md §4.10 step 3).
const (
	EventUnknown EventType = iota
	EventUpload
	EventMove
	EventReceive
	EventNewFolder
	EventCopy
	EventRename
	EventDelete
	// Ignored event types — never trigger a re-sync.
	EventImageStar
	EventFileStar
	EventBrowseImage
	EventBrowseVideo
	EventBrowseAudio
	EventBrowseDoc
	EventFolderLabel
)

// syncTriggering is the set from spec.md §4.10 step 3.
var syncTriggering = map[EventType]bool{
	EventUpload:    true,
	EventMove:      true,
	EventReceive:   true,
	EventNewFolder: true,
	EventCopy:      true,
	EventRename:    true,
	EventDelete:    true,
}

// IsSyncTriggering reports whether an event type belongs to the
// sync-triggering set (vs. the ignored set, or neither).
func (t EventType) IsSyncTriggering() bool {
	return syncTriggering[t]
}

// Event is one entry from the upstream's change-event feed (spec.md §4.2
// list_events, §6 "Upstream event feed").
type Event struct {
	ID         int64 // opaque monotonic id
	Type       EventType
	FileID     string
	FileName   string
	ParentID   string
	OccurredAt time.Time
}

// WalkOptions controls IterSubtree (spec.md §4.2 "caller may request files
// only or files+folders").
type WalkOptions struct {
	FilesOnly bool
}

// WalkEntry is one (item, relative-path) pair yielded by IterSubtree
// (spec.md §4.2).
type WalkEntry struct {
	Item         RemoteItem
	RelativePath string // slash-separated, relative to the walk root
}

// unixToTime converts the upstream's unix-seconds timestamps to time.Time,
// treating 0 as the zero value rather than the unix epoch.
func unixToTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}

	return time.Unix(sec, 0).UTC()
}
