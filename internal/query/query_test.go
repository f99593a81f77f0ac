package query

import (
	"testing"
	"time"

	"github.com/beads-core/beads/internal/model"
)

func issue(id string, status model.Status, priority int) *model.Issue {
	return &model.Issue{ID: id, Title: id, Status: status, Priority: priority, CreatedAt: time.Now(), UpdatedAt: time.Now()}
}

func TestCompileSimpleComparison(t *testing.T) {
	pred, err := Compile("status=open")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !pred(issue("bd-1", model.StatusOpen, 2)) {
		t.Error("expected open issue to match")
	}
	if pred(issue("bd-2", model.StatusClosed, 2)) {
		t.Error("expected closed issue not to match")
	}
}

func TestCompileAndOrNot(t *testing.T) {
	pred, err := Compile("status=open AND priority<2")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !pred(issue("bd-1", model.StatusOpen, 1)) {
		t.Error("expected match")
	}
	if pred(issue("bd-2", model.StatusOpen, 3)) {
		t.Error("expected no match on priority")
	}

	pred2, err := Compile("NOT status=closed")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !pred2(issue("bd-3", model.StatusOpen, 0)) {
		t.Error("expected NOT closed to match open")
	}

	pred3, err := Compile("status=open OR status=blocked")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !pred3(issue("bd-4", model.StatusBlocked, 0)) {
		t.Error("expected OR to match blocked")
	}
}

func TestCompileUnknownField(t *testing.T) {
	if _, err := Compile("nonsense=1"); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestCompileParentheses(t *testing.T) {
	pred, err := Compile("(status=open OR status=blocked) AND priority>=1")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !pred(issue("bd-5", model.StatusBlocked, 2)) {
		t.Error("expected match")
	}
	if pred(issue("bd-6", model.StatusBlocked, 0)) {
		t.Error("expected no match below priority threshold")
	}
}
