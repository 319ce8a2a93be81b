package upstream

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/wenfer/strmgate/internal/credstore"
	"github.com/wenfer/strmgate/internal/ids"
)

// childrenPage is the wire shape for a single paginated list_children /
// search response.
type childrenPage struct {
	Items      []wireItem `json:"items"`
	NextOffset int        `json:"next_offset"`
	HasMore    bool       `json:"has_more"`
}

// wireItem is the upstream's raw item representation, translated into the
// domain RemoteItem before it ever leaves this package (spec.md §9 "the
// domain model never leaks the upstream's field names").
type wireItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsFolder    bool   `json:"is_folder"`
	Size        int64  `json:"size"`
	ParentID    string `json:"parent_id"`
	ModifiedAt  int64  `json:"modified_at"` // unix seconds
	PickHandle  string `json:"pick_code"`
	ContentHash string `json:"sha1"`
}

func (w wireItem) toDomain() RemoteItem {
	return RemoteItem{
		ID:          w.ID,
		Name:        w.Name,
		IsFolder:    w.IsFolder,
		Size:        w.Size,
		ParentID:    w.ParentID,
		ModifiedAt:  unixToTime(w.ModifiedAt),
		PickHandle:  w.PickHandle,
		ContentHash: w.ContentHash,
	}
}

// ListChildren returns one page of a folder's direct children (spec.md
// §4.2). offset/limit follow the upstream's pagination scheme; callers
// that want the whole folder should loop until HasMore is false.
func (c *Client) ListChildren(
	ctx context.Context, driveID ids.DriveID, cred credstore.Credential,
	folderID string, offset int,
) (items []RemoteItem, hasMore bool, err error) {
	q := url.Values{
		"folder_id": {folderID},
		"offset":    {strconv.Itoa(offset)},
		"limit":     {strconv.Itoa(listPageSize)},
	}

	resp, err := c.do(ctx, driveID, cred, "GET", "/files", q, nil)
	if err != nil {
		return nil, false, err
	}

	var page childrenPage
	if err := decodeJSON(resp, &page); err != nil {
		return nil, false, err
	}

	items = make([]RemoteItem, len(page.Items))
	for i, w := range page.Items {
		items[i] = w.toDomain()
	}

	return items, page.HasMore, nil
}

// GetItem fetches a single item's metadata by ID (spec.md §4.2).
func (c *Client) GetItem(
	ctx context.Context, driveID ids.DriveID, cred credstore.Credential, itemID string,
) (RemoteItem, error) {
	resp, err := c.do(ctx, driveID, cred, "GET", "/files/"+url.PathEscape(itemID), nil, nil)
	if err != nil {
		return RemoteItem{}, err
	}

	var w wireItem
	if err := decodeJSON(resp, &w); err != nil {
		return RemoteItem{}, err
	}

	return w.toDomain(), nil
}

// Search looks up items by name under an optional folder scope (spec.md
// §4.2). No other package calls it.
func (c *Client) Search(
	ctx context.Context, driveID ids.DriveID, cred credstore.Credential,
	query, folderID string, offset int,
) (items []RemoteItem, hasMore bool, err error) {
	q := url.Values{
		"query":  {query},
		"offset": {strconv.Itoa(offset)},
		"limit":  {strconv.Itoa(listPageSize)},
	}
	if folderID != "" {
		q.Set("folder_id", folderID)
	}

	resp, err := c.do(ctx, driveID, cred, "GET", "/search", q, nil)
	if err != nil {
		return nil, false, err
	}

	var page childrenPage
	if err := decodeJSON(resp, &page); err != nil {
		return nil, false, err
	}

	items = make([]RemoteItem, len(page.Items))
	for i, w := range page.Items {
		items[i] = w.toDomain()
	}

	return items, page.HasMore, nil
}

// ResolveSignedURL exchanges a pick handle for a time-limited signed URL
// (spec.md §4.2, consumed by C5 Redirect Cache). Returns ErrUnauthorized
// when the credential can no longer resolve handles for this drive.
func (c *Client) ResolveSignedURL(
	ctx context.Context, driveID ids.DriveID, cred credstore.Credential, pickHandle string,
) (signedURL string, expiresAt int64, err error) {
	q := url.Values{"pick_code": {pickHandle}}

	resp, err := c.do(ctx, driveID, cred, "GET", "/download_url", q, nil)
	if err != nil {
		return "", 0, err
	}

	var body struct {
		URL       string `json:"url"`
		ExpiresAt int64  `json:"expires_at"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return "", 0, err
	}

	return body.URL, body.ExpiresAt, nil
}

// IterSubtree walks a folder's subtree (spec.md §4.2, §9: "natural order
// within a folder"; no global total order required across a run). Each
// subfolder is expanded in its own goroutine, or inline (depth-first) when
// the pool is saturated, so the order across folders is not defined. Folder expansion is fanned out up to the drive's MaxInFlight bound,
// reusing the same rate limiter that guards every other call for this
// drive, so concurrent walking never exceeds the drive's configured RPS.
func (c *Client) IterSubtree(
	ctx context.Context, driveID ids.DriveID, cred credstore.Credential,
	rootID string, opts WalkOptions, visit func(WalkEntry) error,
) error {
	var visitMu chanMutex = make(chan struct{}, 1)

	eg, egCtx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, c.cfg.MaxInFlight)

	var walk func(folderID, relPath string) error

	walk = func(folderID, relPath string) error {
		offset := 0

		for {
			var (
				items   []RemoteItem
				hasMore bool
			)

			err := c.Retry(egCtx, func(ctx context.Context) error {
				var listErr error
				items, hasMore, listErr = c.ListChildren(ctx, driveID, cred, folderID, offset)
				return listErr
			})
			if err != nil {
				return fmt.Errorf("upstream: walking %s: %w", relPath, err)
			}

			for _, item := range items {
				childPath := item.Name
				if relPath != "" {
					childPath = relPath + "/" + item.Name
				}

				if item.IsFolder {
					if !opts.FilesOnly {
						if err := visitMu.protect(func() error {
							return visit(WalkEntry{Item: item, RelativePath: childPath})
						}); err != nil {
							return err
						}
					}

					child := item
					childRelPath := childPath

					select {
					case sem <- struct{}{}:
						eg.Go(func() error {
							defer func() { <-sem }()
							return walk(child.ID, childRelPath)
						})
					case <-egCtx.Done():
						return egCtx.Err()
					default:
						// Pool saturated: recurse inline rather than block the
						// caller on a full semaphore while holding this slot.
						if err := walk(child.ID, childRelPath); err != nil {
							return err
						}
					}
				} else {
					if err := visitMu.protect(func() error {
						return visit(WalkEntry{Item: item, RelativePath: childPath})
					}); err != nil {
						return err
					}
				}
			}

			if !hasMore {
				break
			}

			offset += len(items)
		}

		return nil
	}

	eg.Go(func() error { return walk(rootID, "") })

	return eg.Wait()
}

// chanMutex is a channel-backed mutex serializing visit calls. protect
// blocks until the slot is free; it does not watch for context
// cancellation while waiting.
type chanMutex chan struct{}

func (m chanMutex) protect(fn func() error) error {
	m <- struct{}{}
	defer func() { <-m }()

	return fn()
}
