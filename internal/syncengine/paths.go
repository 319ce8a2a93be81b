package syncengine

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/wenfer/strmgate/internal/upstream"
)

// placeholderScheme is the canonical stub-contents scheme used when a task
// has no stub_base_url (spec.md §4.7 step 3).
const placeholderScheme = "stream://"

// normalizeName applies NFC normalization to a remote name before it is
// used to build any local path, exactly as the teacher normalizes file
// names in scanner.go, so stub trees are stable across platforms.
func normalizeName(name string) string {
	return norm.NFC.String(name)
}

// stubPath builds a task's on-disk stub path for one kept file (spec.md
// §4.7 step 3 / §8 property "Layout"). relativePath is slash-separated,
// relative to the task's source root, as produced by C2.IterSubtree.
func stubPath(outputDir, relativePath string, preserveLayout bool) string {
	normalized := normalizeName(relativePath)

	base := filepath.Base(normalized)
	base = strings.TrimSuffix(base, filepath.Ext(base)) + ".strm"

	if !preserveLayout {
		return filepath.Join(outputDir, base)
	}

	dir := filepath.Dir(normalized)
	if dir == "." {
		return filepath.Join(outputDir, base)
	}

	return filepath.Join(outputDir, filepath.FromSlash(dir), base)
}

// sidecarPath mirrors stubPath's layout rules but keeps the sidecar's own
// extension (spec.md §4.7 step 5 "respecting preserve_layout").
func sidecarPath(outputDir, relativePath string, preserveLayout bool) string {
	normalized := normalizeName(relativePath)
	base := filepath.Base(normalized)

	if !preserveLayout {
		return filepath.Join(outputDir, base)
	}

	dir := filepath.Dir(normalized)
	if dir == "." {
		return filepath.Join(outputDir, base)
	}

	return filepath.Join(outputDir, filepath.FromSlash(dir), base)
}

// stubContents builds the one-line pointer URL a stub file holds (spec.md
// §4.7 step 3). When baseURL is empty, the canonical placeholder scheme is
// used so the file is still well-formed.
func stubContents(baseURL, kind, pickHandle string) string {
	if baseURL == "" {
		return placeholderScheme + kind + "/" + pickHandle
	}

	trimmed := strings.TrimRight(baseURL, "/")

	return trimmed + "/stream/" + pickHandle
}

// mediaFolders derives the set of remote folder IDs containing at least
// one kept file, each mapped to its relative directory path (spec.md
// §4.7 step 1 "media folders"). Built incrementally as the walk proceeds.
type mediaFolders struct {
	byFolderID map[string]string // folder remote id -> relative dir path
}

func newMediaFolders() *mediaFolders {
	return &mediaFolders{byFolderID: make(map[string]string)}
}

func (m *mediaFolders) record(item upstream.RemoteItem, relPath string) {
	dir := filepath.Dir(filepath.FromSlash(relPath))
	if dir == "." {
		dir = ""
	}

	m.byFolderID[item.ParentID] = dir
}
