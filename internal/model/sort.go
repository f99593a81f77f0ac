package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SortField names an Issue field that list results can be ordered by.
type SortField string

const (
	SortFieldPriority SortField = "priority"
	SortFieldUpdated  SortField = "updated"
	SortFieldCreated  SortField = "created"
	SortFieldTitle    SortField = "title"
	SortFieldStatus   SortField = "status"
)

func (f SortField) valid() bool {
	switch f {
	case SortFieldPriority, SortFieldUpdated, SortFieldCreated, SortFieldTitle, SortFieldStatus:
		return true
	}
	return false
}

// SortDirection is ascending or descending.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// IssueSortOption is one field/direction pair in a multi-key sort.
type IssueSortOption struct {
	Field     SortField
	Direction SortDirection
}

// ParseIssueSortOrder parses a comma-separated "field-direction" list
// such as "updated-desc,title-asc". Entries with an unrecognized field
// are dropped; a direction token other than "desc" defaults to
// ascending, matching a loosely-typed CLI flag.
func ParseIssueSortOrder(spec string) []IssueSortOption {
	var opts []IssueSortOption
	for _, token := range strings.Split(spec, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		idx := strings.LastIndex(token, "-")
		if idx < 0 {
			continue
		}
		field := SortField(token[:idx])
		if !field.valid() {
			continue
		}
		direction := SortAsc
		if token[idx+1:] == "desc" {
			direction = SortDesc
		}
		opts = append(opts, IssueSortOption{Field: field, Direction: direction})
	}
	return opts
}

// EncodeIssueSortOrder is the inverse of ParseIssueSortOrder.
func EncodeIssueSortOrder(opts []IssueSortOption) string {
	parts := make([]string, len(opts))
	for i, o := range opts {
		parts[i] = fmt.Sprintf("%s-%s", o.Field, o.Direction)
	}
	return strings.Join(parts, ",")
}

// DefaultIssueSortOptions orders by priority ascending (most urgent
// first), falling back to most-recently-updated.
func DefaultIssueSortOptions() []IssueSortOption {
	return []IssueSortOption{
		{Field: SortFieldPriority, Direction: SortAsc},
		{Field: SortFieldUpdated, Direction: SortDesc},
	}
}

// SortIssues orders issues in place according to opts, applied in
// order as tiebreakers.
func SortIssues(issues []*Issue, opts []IssueSortOption) {
	if len(opts) == 0 {
		opts = DefaultIssueSortOptions()
	}
	sort.SliceStable(issues, func(i, j int) bool {
		for _, o := range opts {
			cmp := compareField(issues[i], issues[j], o.Field)
			if cmp == 0 {
				continue
			}
			if o.Direction == SortDesc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func compareField(a, b *Issue, field SortField) int {
	switch field {
	case SortFieldPriority:
		return a.Priority - b.Priority
	case SortFieldTitle:
		return strings.Compare(a.Title, b.Title)
	case SortFieldStatus:
		return strings.Compare(string(a.Status), string(b.Status))
	case SortFieldCreated:
		return compareTime(a.CreatedAt, b.CreatedAt)
	case SortFieldUpdated:
		return compareTime(a.UpdatedAt, b.UpdatedAt)
	}
	return 0
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}
