package reconcile

import (
	"context"
	"testing"
)

func TestRunCheckRejectsNilSnapshots(t *testing.T) {
	r := &Reconciler{}
	ctx := context.Background()

	if _, err := r.RunCheck(ctx, DBSnapshot{}, IndexSnapshot{Crates: map[string]bool{}}, true); err != ErrDiffUnavailable {
		t.Errorf("expected ErrDiffUnavailable for nil db.Crates, got %v", err)
	}
	if _, err := r.RunCheck(ctx, DBSnapshot{Crates: map[string]bool{}}, IndexSnapshot{}, true); err != ErrDiffUnavailable {
		t.Errorf("expected ErrDiffUnavailable for nil index.Crates, got %v", err)
	}
}

func TestRunCheckDryRunCountsAllFiveCategories(t *testing.T) {
	r := &Reconciler{}
	ctx := context.Background()

	db := DBSnapshot{
		Crates: map[string]bool{"onlyindb": true, "both": true},
		Releases: map[string]map[string]bool{
			"both": {"1.0.0": false, "2.0.0": false},
		},
	}
	index := IndexSnapshot{
		Crates: map[string]bool{"onlyinindex": true, "both": true},
		Releases: map[string]map[string]bool{
			"both": {"1.0.0": true, "3.0.0": false},
		},
	}

	result, err := r.RunCheck(ctx, db, index, true)
	if err != nil {
		t.Fatalf("RunCheck: %v", err)
	}

	want := map[CheckCategory]int{
		CrateNotInIndex:   1, // onlyindb
		CrateNotInDb:      1, // onlyinindex
		ReleaseNotInIndex: 1, // both@2.0.0
		ReleaseNotInDb:    1, // both@3.0.0
		ReleaseYank:       1, // both@1.0.0 flips false->true
	}
	for cat, count := range want {
		if result.Counts[cat] != count {
			t.Errorf("category %d = %d, want %d", cat, result.Counts[cat], count)
		}
	}
}

func TestRunCheckDryRunTouchesNoCollaborators(t *testing.T) {
	// store/q/del/purger are all nil; a dry run must never dereference them,
	// since it only tallies counts (§4.6: "dry-run returns the count per
	// category without side effects").
	r := &Reconciler{}
	ctx := context.Background()

	db := DBSnapshot{
		Crates:   map[string]bool{"gone": true},
		Releases: map[string]map[string]bool{"gone": {"1.0.0": false}},
	}
	index := IndexSnapshot{
		Crates:   map[string]bool{},
		Releases: map[string]map[string]bool{},
	}

	result, err := r.RunCheck(ctx, db, index, true)
	if err != nil {
		t.Fatalf("RunCheck panicked or errored on nil collaborators during dry run: %v", err)
	}
	if result.Counts[CrateNotInIndex] != 1 {
		t.Errorf("CrateNotInIndex = %d, want 1", result.Counts[CrateNotInIndex])
	}
	if result.Counts[ReleaseNotInIndex] != 1 {
		t.Errorf("ReleaseNotInIndex = %d, want 1", result.Counts[ReleaseNotInIndex])
	}
}

func TestRunCheckNoDiffProducesZeroCounts(t *testing.T) {
	r := &Reconciler{}
	ctx := context.Background()

	snapshotCrates := map[string]bool{"serde": true}
	snapshotReleases := map[string]map[string]bool{"serde": {"1.0.0": false}}

	db := DBSnapshot{Crates: snapshotCrates, Releases: snapshotReleases}
	index := IndexSnapshot{Crates: snapshotCrates, Releases: snapshotReleases}

	result, err := r.RunCheck(ctx, db, index, true)
	if err != nil {
		t.Fatalf("RunCheck: %v", err)
	}
	for cat, count := range result.Counts {
		if count != 0 {
			t.Errorf("expected zero counts for identical snapshots, category %d = %d", cat, count)
		}
	}
}
