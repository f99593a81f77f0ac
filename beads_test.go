package beads_test

import (
	"testing"
	"time"

	"github.com/beads-core/beads"
)

func TestOpenCreatesFreshDataDir(t *testing.T) {
	dir := t.TempDir()
	r, err := beads.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if r.Store().Count() != 0 {
		t.Errorf("expected empty store, got %d issues", r.Store().Count())
	}
}

func TestFindDataDirRespectsEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BEADS_DIR", dir)
	if got := beads.FindDataDir(); got != dir {
		t.Errorf("FindDataDir = %q, want %q", got, dir)
	}
}

func TestCreateAndCompactRoundTrip(t *testing.T) {
	dir := t.TempDir()
	r, err := beads.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	now := time.Now().UTC()

	issue, err := r.CreateIssue(&beads.Issue{Title: "ship it", Priority: 1, Type: beads.TypeTask}, now)
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}

	if _, err := beads.Compact(r, now); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	reopened, err := beads.Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !reopened.Store().Exists(issue.ID) {
		t.Error("expected issue to survive compaction and reopen")
	}
}

func TestReadyExcludesBlockedIssues(t *testing.T) {
	dir := t.TempDir()
	r, _ := beads.Open(dir)
	now := time.Now().UTC()

	blocker, _ := r.CreateIssue(&beads.Issue{Title: "blocker", Priority: 0, Type: beads.TypeTask}, now)
	blocked, _ := r.CreateIssue(&beads.Issue{Title: "blocked", Priority: 0, Type: beads.TypeTask}, now)
	if err := r.AddDependency(blocked.ID, blocker.ID, beads.DepBlocks, now); err != nil {
		t.Fatalf("AddDependency: %v", err)
	}

	ready := beads.Ready(r, now)
	if len(ready) != 1 || ready[0] != blocker.ID {
		t.Fatalf("expected only %s ready, got %v", blocker.ID, ready)
	}

	blockedIDs := beads.BlockedIssues(r, now)
	if len(blockedIDs) != 1 || blockedIDs[0] != blocked.ID {
		t.Fatalf("expected only %s blocked, got %v", blocked.ID, blockedIDs)
	}
}

func TestReadyExcludesDeferredIssues(t *testing.T) {
	dir := t.TempDir()
	r, _ := beads.Open(dir)
	now := time.Now().UTC()

	past := now.Add(-time.Second)
	future := now.Add(time.Hour)
	soon, _ := r.CreateIssue(&beads.Issue{Title: "soon", Priority: 0, Type: beads.TypeTask, DeferUntil: &past}, now)
	later, _ := r.CreateIssue(&beads.Issue{Title: "later", Priority: 0, Type: beads.TypeTask, DeferUntil: &future}, now)

	ready := beads.Ready(r, now)
	foundSoon, foundLater := false, false
	for _, id := range ready {
		if id == soon.ID {
			foundSoon = true
		}
		if id == later.ID {
			foundLater = true
		}
	}
	if !foundSoon {
		t.Errorf("expected %s (defer_until in the past) to be ready", soon.ID)
	}
	if foundLater {
		t.Errorf("expected %s (defer_until in the future) to not be ready", later.ID)
	}
}

func TestConstants(t *testing.T) {
	if beads.StatusOpen != "open" {
		t.Errorf("StatusOpen = %q, want %q", beads.StatusOpen, "open")
	}
	if beads.StatusInProgress != "in_progress" {
		t.Errorf("StatusInProgress = %q, want %q", beads.StatusInProgress, "in_progress")
	}
	if beads.StatusBlocked != "blocked" {
		t.Errorf("StatusBlocked = %q, want %q", beads.StatusBlocked, "blocked")
	}
	if beads.StatusClosed != "closed" {
		t.Errorf("StatusClosed = %q, want %q", beads.StatusClosed, "closed")
	}
	if beads.TypeBug != "bug" {
		t.Errorf("TypeBug = %q, want %q", beads.TypeBug, "bug")
	}
	if beads.DepBlocks != "blocks" {
		t.Errorf("DepBlocks = %q, want %q", beads.DepBlocks, "blocks")
	}
}
