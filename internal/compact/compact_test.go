package compact

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/beads-core/beads/internal/model"
	"github.com/beads-core/beads/internal/repo"
)

func TestCompactFoldsWALIntoSnapshot(t *testing.T) {
	dir := t.TempDir()
	r, err := repo.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	now := time.Now().UTC()
	if _, err := r.CreateIssue(&model.Issue{Title: "a", Priority: 0, Type: model.TypeTask}, now); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}

	result, err := Compact(r, Options{}, now)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if result.IssueCount != 1 {
		t.Errorf("expected 1 issue in snapshot, got %d", result.IssueCount)
	}

	if r.WAL().Generation() != 2 {
		t.Errorf("expected generation 2 after one compaction, got %d", r.WAL().Generation())
	}
	if _, err := os.Stat(filepath.Join(dir, "beads.wal.1")); !os.IsNotExist(err) {
		t.Errorf("expected beads.wal.1 to be removed, stat err=%v", err)
	}
	info, err := os.Stat(filepath.Join(dir, "beads.wal.2"))
	if err != nil {
		t.Fatalf("stat beads.wal.2: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("expected empty new-generation WAL, got size %d", info.Size())
	}

	r2, err := repo.Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if r2.Store().Count() != 1 {
		t.Errorf("expected issue to survive compaction, count=%d", r2.Store().Count())
	}
}

func TestCompactBacksUpNonEmptyWAL(t *testing.T) {
	dir := t.TempDir()
	r, _ := repo.Open(dir)
	now := time.Now().UTC()
	r.CreateIssue(&model.Issue{Title: "a", Priority: 0, Type: model.TypeTask}, now)

	result, err := Compact(r, Options{}, now)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if result.BackupPath == "" {
		t.Fatal("expected a backup path for a non-empty WAL")
	}
	if _, err := os.Stat(result.BackupPath); err != nil {
		t.Fatalf("expected backup file to exist: %v", err)
	}
}

func TestPruneBackupsByCount(t *testing.T) {
	dir := t.TempDir()
	r, _ := repo.Open(dir)
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		r.CreateIssue(&model.Issue{Title: "a", Priority: 0, Type: model.TypeTask}, now)
		if _, err := Compact(r, Options{MaxBackupGenerations: 1, BackupRetentionDays: 365}, now.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("Compact: %v", err)
		}
	}

	entries, err := os.ReadDir(filepath.Join(dir, backupsDirName))
	if err != nil {
		t.Fatalf("read backups dir: %v", err)
	}
	if len(entries) > 1 {
		t.Errorf("expected at most 1 backup retained, got %d", len(entries))
	}
}

func TestBatchCompactMultipleDirs(t *testing.T) {
	now := time.Now().UTC()
	var repos []*repo.Repo
	for i := 0; i < 3; i++ {
		dir := t.TempDir()
		r, err := repo.Open(dir)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if _, err := r.CreateIssue(&model.Issue{Title: "a", Priority: 0, Type: model.TypeTask}, now); err != nil {
			t.Fatalf("CreateIssue: %v", err)
		}
		repos = append(repos, r)
	}

	results, err := BatchCompact(context.Background(), repos, Options{}, now, 2)
	if err != nil {
		t.Fatalf("BatchCompact: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for _, res := range results {
		if res.IssueCount != 1 {
			t.Errorf("expected 1 issue, got %d", res.IssueCount)
		}
	}
}
