package syncengine

import (
	"path/filepath"
	"strings"
)

// VideoExtensions is the built-in video extension set (spec.md §4.7 step 1
// "ext ∈ VIDEO_EXTS"), grounded on original_source's
// lib115/services/strm_service.py VIDEO_EXTENSIONS.
var VideoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".avi": true, ".mov": true, ".wmv": true,
	".flv": true, ".webm": true, ".m4v": true, ".mpg": true, ".mpeg": true,
	".ts": true, ".m2ts": true, ".vob": true, ".iso": true, ".rmvb": true,
	".rm": true, ".asf": true, ".3gp": true, ".3g2": true, ".f4v": true, ".ogv": true,
}

// AudioExtensions is the built-in audio extension set, same source.
var AudioExtensions = map[string]bool{
	".mp3": true, ".flac": true, ".wav": true, ".aac": true, ".ogg": true,
	".wma": true, ".m4a": true, ".ape": true, ".alac": true, ".opus": true,
	".aiff": true, ".dsd": true, ".dsf": true, ".dff": true,
}

// sidecarExtensions is the subtitle/metadata extension set (spec.md §4.7
// step 5).
var sidecarExtensions = map[string]bool{
	".nfo": true, ".srt": true, ".ass": true, ".sub": true,
	".ssa": true, ".idx": true, ".vtt": true, ".sup": true,
}

// imageExtensions is the set of image extensions eligible for stem
// matching against artworkStems (spec.md §4.7 step 5).
var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true,
}

// artworkStems are the case-insensitive, substring-matched stems that turn
// an image file into a sidecar (spec.md §4.7 step 5).
var artworkStems = []string{
	"poster", "fanart", "banner", "thumb", "logo",
	"clearart", "landscape", "disc", "folder", "backdrop",
}

// Filter decides which remote files a task keeps (spec.md §4.7 step 1).
type Filter struct {
	IncludeVideo bool
	IncludeAudio bool
	CustomExts   map[string]bool // nil/empty means "not set"
}

// NewFilter builds a Filter from a task's declared extension policy.
// customExts, if non-empty, overrides IncludeVideo/IncludeAudio entirely
// (spec.md §4.7 step 1: "if custom_extensions is set, membership").
func NewFilter(includeVideo, includeAudio bool, customExts []string) Filter {
	f := Filter{IncludeVideo: includeVideo, IncludeAudio: includeAudio}

	if len(customExts) > 0 {
		f.CustomExts = make(map[string]bool, len(customExts))
		for _, e := range customExts {
			f.CustomExts[normalizeExt(e)] = true
		}
	}

	return f
}

// Keep reports whether a file name passes the filter. Only ever called for
// files; folders are never stub targets (spec.md §4.7 step 1).
func (f Filter) Keep(name string) bool {
	ext := normalizeExt(filepath.Ext(name))

	if len(f.CustomExts) > 0 {
		return f.CustomExts[ext]
	}

	if f.IncludeVideo && VideoExtensions[ext] {
		return true
	}

	if f.IncludeAudio && AudioExtensions[ext] {
		return true
	}

	return false
}

func normalizeExt(ext string) string {
	return strings.ToLower(ext)
}

// isSidecar reports whether a file name is a sidecar candidate for a media
// folder (spec.md §4.7 step 5).
func isSidecar(name string) bool {
	ext := normalizeExt(filepath.Ext(name))

	if sidecarExtensions[ext] {
		return true
	}

	if !imageExtensions[ext] {
		return false
	}

	stem := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))

	for _, artwork := range artworkStems {
		if strings.Contains(stem, artwork) {
			return true
		}
	}

	return false
}
