package syncengine

import (
	"fmt"

	"github.com/wenfer/strmgate/internal/stubstore"
	"github.com/wenfer/strmgate/internal/upstream"
)

// KeptFile is one file that survived the walk's filter (spec.md §4.7
// step 1), paired with its walk-relative path.
type KeptFile struct {
	Item         upstream.RemoteItem
	RelativePath string
}

// PlannedUpdate pairs a kept file with its existing record, so the apply
// step can tell whether the stub path moved.
type PlannedUpdate struct {
	File   KeptFile
	Record stubstore.StubRecord
}

// PlanError pairs a kept file that could not be planned with the reason
// (spec.md §8 property 5: "collisions in the flat mode produce a per-item
// error, not a crash").
type PlanError struct {
	File KeptFile
	Err  error
}

// Plan is the three-way split spec.md §4.7 step 2 describes: create,
// update, skip, plus the orphan candidates for deletion, plus any kept
// files that couldn't be planned at all (path collisions).
type Plan struct {
	Create  []KeptFile
	Update  []PlannedUpdate
	Skipped int
	Delete  []stubstore.StubRecord
	Errors  []PlanError
}

// FileExists abstracts the on-disk stub-presence check so Build stays
// testable without touching a real filesystem.
type FileExists func(path string) bool

// Build joins the kept files against the task's existing active records on
// item_id (spec.md §4.7 step 2). deleteOrphans gates whether records with
// no matching walked item populate Plan.Delete at all.
func Build(
	kept []KeptFile, existing []stubstore.StubRecord, overwriteExisting, deleteOrphans bool,
	outputDir string, preserveLayout bool, exists FileExists,
) Plan {
	byItemID := make(map[string]stubstore.StubRecord, len(existing))
	for _, r := range existing {
		byItemID[r.ItemID] = r
	}

	seen := make(map[string]bool, len(kept))
	pathOwners := make(map[string]string, len(kept))

	var plan Plan

	for _, kf := range kept {
		seen[kf.Item.ID] = true

		wantPath := stubPath(outputDir, kf.RelativePath, preserveLayout)

		// Flat layout collapses every kept file to its basename, so two
		// files from different remote folders can collide on one stub
		// path. Route the second occurrence to a per-item error instead
		// of silently overwriting the first (spec.md §8 property 5).
		if !preserveLayout {
			if owner, claimed := pathOwners[wantPath]; claimed && owner != kf.Item.ID {
				plan.Errors = append(plan.Errors, PlanError{
					File: kf,
					Err:  fmt.Errorf("syncengine: stub path %s collides with another item in flat layout", wantPath),
				})

				continue
			}

			pathOwners[wantPath] = kf.Item.ID
		}

		record, ok := byItemID[kf.Item.ID]
		if !ok {
			plan.Create = append(plan.Create, kf)
			continue
		}

		nameChanged := record.Name != kf.Item.Name
		stubMissing := !exists(record.StubPath)

		if overwriteExisting || nameChanged || stubMissing || record.StubPath != wantPath {
			plan.Update = append(plan.Update, PlannedUpdate{File: kf, Record: record})
			continue
		}

		plan.Skipped++
	}

	if !deleteOrphans {
		return plan
	}

	for _, r := range existing {
		if !seen[r.ItemID] {
			plan.Delete = append(plan.Delete, r)
		}
	}

	return plan
}
