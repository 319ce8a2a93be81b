package upstream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenfer/strmgate/internal/credstore"
	"github.com/wenfer/strmgate/internal/ids"
)

func TestListChildrenPagination(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		w.Header().Set("Content-Type", "application/json")

		if offset == 0 {
			_ = json.NewEncoder(w).Encode(childrenPage{
				Items:   []wireItem{{ID: "1", Name: "a"}},
				HasMore: true,
			})

			return
		}

		_ = json.NewEncoder(w).Encode(childrenPage{
			Items:   []wireItem{{ID: "2", Name: "b"}},
			HasMore: false,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), testConfig(), nil)
	cred := credstore.Credential{Kind: credstore.KindBearer, Payload: []byte("t")}

	items, hasMore, err := c.ListChildren(t.Context(), ids.NewDriveID("drive"), cred, "root", 0)
	require.NoError(t, err)
	assert.True(t, hasMore)
	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0].Name)

	items, hasMore, err = c.ListChildren(t.Context(), ids.NewDriveID("drive"), cred, "root", 1)
	require.NoError(t, err)
	assert.False(t, hasMore)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].Name)
}

// fakeTree serves a small two-level folder tree for IterSubtree tests:
// root/ -> {folderA/ -> {file1}, file2}
func fakeTreeServer(t *testing.T) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		folderID := r.URL.Query().Get("folder_id")

		w.Header().Set("Content-Type", "application/json")

		var items []wireItem

		switch folderID {
		case "root":
			items = []wireItem{
				{ID: "folderA", Name: "folderA", IsFolder: true},
				{ID: "file2", Name: "file2.mp4"},
			}
		case "folderA":
			items = []wireItem{
				{ID: "file1", Name: "file1.mp4"},
			}
		}

		_ = json.NewEncoder(w).Encode(childrenPage{Items: items, HasMore: false})
	}))
}

func TestIterSubtreeVisitsAllEntriesFilesOnly(t *testing.T) {
	t.Parallel()

	srv := fakeTreeServer(t)
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), testConfig(), nil)
	cred := credstore.Credential{Kind: credstore.KindBearer, Payload: []byte("t")}

	var (
		mu    sync.Mutex
		names []string
	)

	err := c.IterSubtree(t.Context(), ids.NewDriveID("drive"), cred, "root", WalkOptions{FilesOnly: true},
		func(entry WalkEntry) error {
			mu.Lock()
			defer mu.Unlock()

			names = append(names, entry.RelativePath)

			return nil
		})
	require.NoError(t, err)

	sort.Strings(names)
	assert.Equal(t, []string{"file2.mp4", "folderA/file1.mp4"}, names)
}

func TestIterSubtreeIncludesFolders(t *testing.T) {
	t.Parallel()

	srv := fakeTreeServer(t)
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), testConfig(), nil)
	cred := credstore.Credential{Kind: credstore.KindBearer, Payload: []byte("t")}

	var (
		mu    sync.Mutex
		names []string
	)

	err := c.IterSubtree(t.Context(), ids.NewDriveID("drive"), cred, "root", WalkOptions{FilesOnly: false},
		func(entry WalkEntry) error {
			mu.Lock()
			defer mu.Unlock()

			names = append(names, entry.RelativePath)

			return nil
		})
	require.NoError(t, err)

	sort.Strings(names)
	assert.Equal(t, []string{"file2.mp4", "folderA", "folderA/file1.mp4"}, names)
}

func TestListEventsMapsUnknownCodes(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(eventsPage{
			Events: []wireEvent{
				{ID: 1, TypeCode: 1, FileName: "a.mp4"},
				{ID: 2, TypeCode: 999, FileName: "b.mp4"},
			},
			NextCursor: 2,
			HasMore:    false,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), testConfig(), nil)
	cred := credstore.Credential{Kind: credstore.KindBearer, Payload: []byte("t")}

	events, next, hasMore, err := c.ListEvents(t.Context(), ids.NewDriveID("drive"), cred, 0)
	require.NoError(t, err)
	assert.False(t, hasMore)
	assert.EqualValues(t, 2, next)
	require.Len(t, events, 2)
	assert.Equal(t, EventUpload, events[0].Type)
	assert.True(t, events[0].Type.IsSyncTriggering())
	assert.Equal(t, EventUnknown, events[1].Type)
}
