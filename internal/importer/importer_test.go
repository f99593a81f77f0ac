package importer

import (
	"testing"
	"time"

	"github.com/beads-core/beads/internal/errs"
	"github.com/beads-core/beads/internal/model"
	"github.com/beads-core/beads/internal/repo"
)

func TestDetectConflictMarkers(t *testing.T) {
	if !DetectConflictMarkers([]byte("foo\n<<<<<<< HEAD\nbar\n")) {
		t.Error("expected conflict marker detection")
	}
	if DetectConflictMarkers([]byte(`{"id":"bd-1"}`)) {
		t.Error("expected no false positive")
	}
}

func TestImportAbortsOnConflictMarkers(t *testing.T) {
	dir := t.TempDir()
	r, _ := repo.Open(dir)
	now := time.Now().UTC()

	raw := []byte("<<<<<<< left\n{}\n=======\n{}\n>>>>>>> right\n")
	_, err := Import(r, raw, nil, Options{}, now)
	if err != errs.ErrMergeConflictDetected {
		t.Fatalf("expected ErrMergeConflictDetected, got %v", err)
	}
	if r.Store().Count() != 0 {
		t.Error("expected no mutation on aborted import")
	}
}

func TestImportCreatesNewIssues(t *testing.T) {
	dir := t.TempDir()
	r, _ := repo.Open(dir)
	now := time.Now().UTC()

	incoming := []*model.Issue{{ID: "bd-1", Title: "imported", Priority: 2, Type: model.TypeTask, CreatedAt: now, UpdatedAt: now}}
	result, err := Import(r, nil, incoming, Options{}, now)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(result.Created) != 1 {
		t.Fatalf("expected 1 created, got %v", result.Created)
	}
	if !r.Store().Exists("bd-1") {
		t.Error("expected issue to exist after import")
	}
}

func TestImportMergesByLastWriterWins(t *testing.T) {
	dir := t.TempDir()
	r, _ := repo.Open(dir)
	now := time.Now().UTC()

	created, err := r.CreateIssue(&model.Issue{Title: "original", Priority: 1, Type: model.TypeTask}, now)
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}

	later := now.Add(time.Hour)
	incoming := []*model.Issue{{ID: created.ID, Title: "updated remotely", Priority: 1, Type: model.TypeTask, UpdatedAt: later}}
	result, err := Import(r, nil, incoming, Options{}, later)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(result.Updated) != 1 {
		t.Fatalf("expected 1 updated, got %+v", result)
	}
	got, _ := r.Store().Get(created.ID)
	if got.Title != "updated remotely" {
		t.Errorf("expected last-writer-wins title, got %q", got.Title)
	}
}

func TestImportSkipUpdateLeavesExistingAlone(t *testing.T) {
	dir := t.TempDir()
	r, _ := repo.Open(dir)
	now := time.Now().UTC()

	created, _ := r.CreateIssue(&model.Issue{Title: "original", Priority: 1, Type: model.TypeTask}, now)
	incoming := []*model.Issue{{ID: created.ID, Title: "should not apply", Priority: 1, Type: model.TypeTask, UpdatedAt: now.Add(time.Hour)}}

	result, err := Import(r, nil, incoming, Options{SkipUpdate: true}, now)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(result.Unchanged) != 1 {
		t.Fatalf("expected unchanged, got %+v", result)
	}
	got, _ := r.Store().Get(created.ID)
	if got.Title != "original" {
		t.Errorf("expected title untouched, got %q", got.Title)
	}
}

func TestImportRefusesEmptyOverwriteWithoutForce(t *testing.T) {
	dir := t.TempDir()
	r, _ := repo.Open(dir)
	now := time.Now().UTC()
	r.CreateIssue(&model.Issue{Title: "keep me", Priority: 0, Type: model.TypeTask}, now)

	_, err := Import(r, nil, nil, Options{}, now)
	if err != errs.ErrWouldOverwriteData {
		t.Fatalf("expected ErrWouldOverwriteData, got %v", err)
	}
}

func TestImportForceAllowsEmptyOverwrite(t *testing.T) {
	dir := t.TempDir()
	r, _ := repo.Open(dir)
	now := time.Now().UTC()
	r.CreateIssue(&model.Issue{Title: "keep me", Priority: 0, Type: model.TypeTask}, now)

	result, err := Import(r, nil, nil, Options{Force: true}, now)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(result.Created) != 0 {
		t.Errorf("expected no creations for an empty input, got %v", result.Created)
	}
}

func TestImportMatchesByExternalRef(t *testing.T) {
	dir := t.TempDir()
	r, _ := repo.Open(dir)
	now := time.Now().UTC()

	created, _ := r.CreateIssue(&model.Issue{Title: "tracked upstream", Priority: 0, Type: model.TypeTask, ExternalRef: "GH-42", SourceSystem: "github"}, now)

	incoming := []*model.Issue{{Title: "tracked upstream, renamed", Priority: 0, Type: model.TypeTask, ExternalRef: "GH-42", SourceSystem: "github", UpdatedAt: now.Add(time.Minute)}}
	result, err := Import(r, nil, incoming, Options{}, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(result.CollisionIDs) != 1 || result.CollisionIDs[0] != created.ID {
		t.Fatalf("expected collision on external ref, got %+v", result)
	}
}
