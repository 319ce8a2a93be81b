package syncengine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// dirPerms matches the teacher's sync executor (0o755 dirs). Stub files are
// written 0o644; sidecars get os.Create's default perms.
const dirPerms = 0o755

// writeStub writes a stub file atomically: temp file in the same
// directory, then rename, mirroring the teacher's
// internal/sync/executor_transfer.go ".partial" + os.Rename dance so a
// crash mid-write never leaves a half-written stub.
func writeStub(path, contents string) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPerms); err != nil {
		return fmt.Errorf("syncengine: creating parent dir for %s: %w", path, err)
	}

	tmp := path + ".partial"

	if err := os.WriteFile(tmp, []byte(contents), 0o644); err != nil { //nolint:gosec // stub files are not secrets
		return fmt.Errorf("syncengine: writing %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("syncengine: renaming %s to %s: %w", tmp, path, err)
	}

	return nil
}

// removeStub deletes a stub file, treating "already gone" as success
// (spec.md §4.7 step 4 "remove the stub file (ignore if already gone)").
func removeStub(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("syncengine: removing %s: %w", path, err)
	}

	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// downloadSidecar streams a sidecar file to disk atomically, skipping the
// write entirely when the target exists and overwrite is false (spec.md
// §4.7 step 5 "respecting ... overwrite_existing").
func downloadSidecar(path string, overwrite bool, stream func(w io.Writer) (int64, error)) (written bool, err error) {
	if !overwrite && fileExists(path) {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerms); err != nil {
		return false, fmt.Errorf("syncengine: creating parent dir for %s: %w", path, err)
	}

	tmp := path + ".partial"

	f, err := os.Create(tmp) //nolint:gosec // sidecar files are not secrets
	if err != nil {
		return false, fmt.Errorf("syncengine: creating %s: %w", tmp, err)
	}

	_, streamErr := stream(f)

	if closeErr := f.Close(); closeErr != nil && streamErr == nil {
		streamErr = closeErr
	}

	if streamErr != nil {
		os.Remove(tmp)

		return false, fmt.Errorf("syncengine: downloading sidecar %s: %w", path, streamErr)
	}

	if err := os.Rename(tmp, path); err != nil {
		return false, fmt.Errorf("syncengine: renaming %s to %s: %w", tmp, path, err)
	}

	return true, nil
}
