package syncengine

import (
	"path/filepath"
	"testing"
)

func TestStubPathPreserveLayout(t *testing.T) {
	t.Parallel()

	got := stubPath("/d", "A/B/C.mp4", true)
	want := filepath.Join("/d", "A", "B", "C.strm")

	if got != want {
		t.Errorf("stubPath = %q, want %q", got, want)
	}
}

func TestStubPathFlatLayout(t *testing.T) {
	t.Parallel()

	got := stubPath("/d", "A/B/C.mp4", false)
	want := filepath.Join("/d", "C.strm")

	if got != want {
		t.Errorf("stubPath = %q, want %q", got, want)
	}
}

func TestStubContentsWithBaseURL(t *testing.T) {
	t.Parallel()

	got := stubContents("https://gw.example.com/", "115", "abc123")
	want := "https://gw.example.com/stream/abc123"

	if got != want {
		t.Errorf("stubContents = %q, want %q", got, want)
	}
}

func TestStubContentsPlaceholder(t *testing.T) {
	t.Parallel()

	got := stubContents("", "115", "abc123")
	want := "stream://115/abc123"

	if got != want {
		t.Errorf("stubContents = %q, want %q", got, want)
	}
}
