package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/beads-core/beads/internal/model"
	"github.com/beads-core/beads/internal/timeutil"
)

// Predicate decides whether an issue matches a compiled query.
type Predicate func(*model.Issue) bool

// Compile parses expr and returns a Predicate over model.Issue.
func Compile(expr string) (Predicate, error) {
	node, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	return compileNode(node)
}

func compileNode(n Node) (Predicate, error) {
	switch v := n.(type) {
	case *ComparisonNode:
		return compileComparison(v)
	case *AndNode:
		left, err := compileNode(v.Left)
		if err != nil {
			return nil, err
		}
		right, err := compileNode(v.Right)
		if err != nil {
			return nil, err
		}
		return func(i *model.Issue) bool { return left(i) && right(i) }, nil
	case *OrNode:
		left, err := compileNode(v.Left)
		if err != nil {
			return nil, err
		}
		right, err := compileNode(v.Right)
		if err != nil {
			return nil, err
		}
		return func(i *model.Issue) bool { return left(i) || right(i) }, nil
	case *NotNode:
		inner, err := compileNode(v.Operand)
		if err != nil {
			return nil, err
		}
		return func(i *model.Issue) bool { return !inner(i) }, nil
	default:
		return nil, fmt.Errorf("unsupported query node %T", n)
	}
}

func compileComparison(c *ComparisonNode) (Predicate, error) {
	field := normalizeField(c.Field)
	if !KnownFields[c.Field] {
		return nil, fmt.Errorf("unknown query field %q", c.Field)
	}

	switch field {
	case "status":
		return stringFieldPredicate(c, func(i *model.Issue) string { return string(i.Status) }), nil
	case "type":
		return stringFieldPredicate(c, func(i *model.Issue) string { return string(i.Type) }), nil
	case "assignee":
		return stringFieldPredicate(c, func(i *model.Issue) string { return i.Assignee }), nil
	case "id":
		return stringFieldPredicate(c, func(i *model.Issue) string { return i.ID }), nil
	case "title":
		return containsFieldPredicate(c, func(i *model.Issue) string { return i.Title }), nil
	case "description":
		return containsFieldPredicate(c, func(i *model.Issue) string { return i.Description }), nil
	case "priority":
		return numericFieldPredicate(c, func(i *model.Issue) float64 { return float64(i.Priority) })
	case "label":
		want := c.Value
		return func(i *model.Issue) bool {
			for _, l := range i.Labels {
				if l == want {
					return c.Op != OpNotEquals
				}
			}
			return c.Op == OpNotEquals
		}, nil
	case "pinned":
		want := c.Value == "true"
		return func(i *model.Issue) bool { return i.Pinned == want }, nil
	case "template":
		want := c.Value == "true"
		return func(i *model.Issue) bool { return i.IsTemplate == want }, nil
	case "created_at", "updated_at", "closed_at":
		return timeFieldPredicate(c, field)
	default:
		return nil, fmt.Errorf("unsupported query field %q", field)
	}
}

func normalizeField(field string) string {
	switch field {
	case "desc":
		return "description"
	case "owner":
		return "assignee"
	case "created":
		return "created_at"
	case "updated":
		return "updated_at"
	case "closed":
		return "closed_at"
	case "labels":
		return "label"
	case "spec_id":
		return "spec"
	default:
		return field
	}
}

func stringFieldPredicate(c *ComparisonNode, get func(*model.Issue) string) Predicate {
	return func(i *model.Issue) bool {
		v := get(i)
		switch c.Op {
		case OpEquals:
			return v == c.Value
		case OpNotEquals:
			return v != c.Value
		default:
			return false
		}
	}
}

func containsFieldPredicate(c *ComparisonNode, get func(*model.Issue) string) Predicate {
	needle := strings.ToLower(c.Value)
	return func(i *model.Issue) bool {
		v := strings.ToLower(get(i))
		contains := strings.Contains(v, needle)
		if c.Op == OpNotEquals {
			return !contains
		}
		return contains
	}
}

func numericFieldPredicate(c *ComparisonNode, get func(*model.Issue) float64) (Predicate, error) {
	want, err := strconv.ParseFloat(c.Value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid numeric value %q: %w", c.Value, err)
	}
	return func(i *model.Issue) bool {
		v := get(i)
		switch c.Op {
		case OpEquals:
			return v == want
		case OpNotEquals:
			return v != want
		case OpLess:
			return v < want
		case OpLessEq:
			return v <= want
		case OpGreater:
			return v > want
		case OpGreaterEq:
			return v >= want
		default:
			return false
		}
	}, nil
}

func timeFieldPredicate(c *ComparisonNode, field string) (Predicate, error) {
	now := time.Now().UTC()
	var target time.Time

	if c.ValueType == TokenDuration {
		t, err := timeutil.ParseCompactDuration("-"+strings.ToLower(c.Value), now)
		if err != nil {
			return nil, err
		}
		target = t
	} else {
		t, err := timeutil.ParseRFC3339(c.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid time value %q for field %s: %w", c.Value, field, err)
		}
		target = t
	}

	get := func(i *model.Issue) *time.Time {
		switch field {
		case "created_at":
			return &i.CreatedAt
		case "updated_at":
			return &i.UpdatedAt
		case "closed_at":
			return i.ClosedAt
		default:
			return nil
		}
	}

	return func(i *model.Issue) bool {
		v := get(i)
		if v == nil {
			return c.Op == OpNotEquals
		}
		switch c.Op {
		case OpEquals:
			return v.Equal(target)
		case OpNotEquals:
			return !v.Equal(target)
		case OpLess:
			return v.Before(target)
		case OpLessEq:
			return v.Before(target) || v.Equal(target)
		case OpGreater:
			return v.After(target)
		case OpGreaterEq:
			return v.After(target) || v.Equal(target)
		default:
			return false
		}
	}, nil
}
