package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseIssueSortOrder(t *testing.T) {
	opts := ParseIssueSortOrder("updated-desc,title-asc,priority-desc")
	if assert.Len(t, opts, 3) {
		assert.Equal(t, IssueSortOption{Field: SortFieldUpdated, Direction: SortDesc}, opts[0])
		assert.Equal(t, IssueSortOption{Field: SortFieldTitle, Direction: SortAsc}, opts[1])
		assert.Equal(t, IssueSortOption{Field: SortFieldPriority, Direction: SortDesc}, opts[2])
	}
}

func TestParseIssueSortOrderSkipsInvalid(t *testing.T) {
	opts := ParseIssueSortOrder("unknown-desc,updated-ascending,,title-desc")
	if assert.Len(t, opts, 2) {
		assert.Equal(t, IssueSortOption{Field: SortFieldUpdated, Direction: SortAsc}, opts[0])
		assert.Equal(t, IssueSortOption{Field: SortFieldTitle, Direction: SortDesc}, opts[1])
	}
}

func TestEncodeIssueSortOrder(t *testing.T) {
	order := EncodeIssueSortOrder([]IssueSortOption{
		{Field: SortFieldUpdated, Direction: SortDesc},
		{Field: SortFieldTitle, Direction: SortAsc},
	})
	assert.Equal(t, "updated-desc,title-asc", order)
}

func TestDefaultIssueSortOptions(t *testing.T) {
	defaults := DefaultIssueSortOptions()
	if assert.Len(t, defaults, 2) {
		assert.Equal(t, IssueSortOption{Field: SortFieldPriority, Direction: SortAsc}, defaults[0])
		assert.Equal(t, IssueSortOption{Field: SortFieldUpdated, Direction: SortDesc}, defaults[1])
	}
}

func TestSortIssuesByPriority(t *testing.T) {
	issues := []*Issue{
		{ID: "bd-1", Priority: 3},
		{ID: "bd-2", Priority: 0},
		{ID: "bd-3", Priority: 1},
	}
	SortIssues(issues, nil)
	assert.Equal(t, []string{"bd-2", "bd-3", "bd-1"}, []string{issues[0].ID, issues[1].ID, issues[2].ID})
}
