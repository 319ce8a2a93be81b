package upstream

import (
	"context"
	"net/url"
	"strconv"

	"github.com/wenfer/strmgate/internal/credstore"
	"github.com/wenfer/strmgate/internal/ids"
)

// eventTypeCodes maps the upstream's raw integer type_code to the domain
// EventType (spec.md §9 "sum types"; codes supplemented from
// original_source's event-feed handler).
var eventTypeCodes = map[int]EventType{
	1:  EventUpload,
	2:  EventMove,
	3:  EventReceive,
	4:  EventNewFolder,
	5:  EventCopy,
	6:  EventRename,
	7:  EventDelete,
	11: EventImageStar,
	12: EventFileStar,
	21: EventBrowseImage,
	22: EventBrowseVideo,
	23: EventBrowseAudio,
	24: EventBrowseDoc,
	31: EventFolderLabel,
}

type wireEvent struct {
	ID         int64  `json:"id"`
	TypeCode   int    `json:"type_code"`
	FileID     string `json:"file_id"`
	FileName   string `json:"file_name"`
	ParentID   string `json:"parent_id"`
	OccurredAt int64  `json:"occurred_at"`
}

func (w wireEvent) toDomain() Event {
	t, ok := eventTypeCodes[w.TypeCode]
	if !ok {
		t = EventUnknown
	}

	return Event{
		ID:         w.ID,
		Type:       t,
		FileID:     w.FileID,
		FileName:   w.FileName,
		ParentID:   w.ParentID,
		OccurredAt: unixToTime(w.OccurredAt),
	}
}

type eventsPage struct {
	Events     []wireEvent `json:"events"`
	NextCursor int64       `json:"next_cursor"`
	HasMore    bool        `json:"has_more"`
}

// ListEvents returns one page of the drive's change-event feed starting
// strictly after sinceCursor (spec.md §4.2, §4.10, §6 "polled, never
// pushed"). A zero sinceCursor means "from the beginning of what the
// upstream retains".
func (c *Client) ListEvents(
	ctx context.Context, driveID ids.DriveID, cred credstore.Credential, sinceCursor int64,
) (events []Event, nextCursor int64, hasMore bool, err error) {
	q := url.Values{
		"since": {strconv.FormatInt(sinceCursor, 10)},
		"limit": {strconv.Itoa(listPageSize)},
	}

	resp, err := c.do(ctx, driveID, cred, "GET", "/events", q, nil)
	if err != nil {
		return nil, sinceCursor, false, err
	}

	var page eventsPage
	if err := decodeJSON(resp, &page); err != nil {
		return nil, sinceCursor, false, err
	}

	events = make([]Event, len(page.Events))
	for i, w := range page.Events {
		events[i] = w.toDomain()
	}

	next := page.NextCursor
	if next < sinceCursor {
		// Defensive: never let a malformed page move the cursor backwards
		// (spec.md §4.10 "cursor must be monotonically non-decreasing").
		next = sinceCursor
	}

	return events, next, page.HasMore, nil
}
