// Package model defines the issue-tracker data model: Issue, Dependency,
// Comment, and Event entities, their enums, and validation rules.
package model

import (
	"fmt"
	"strconv"
	"time"

	"github.com/beads-core/beads/internal/errs"
	"github.com/beads-core/beads/internal/timeutil"
)

// Status is the lifecycle state of an issue. The set is extensible: any
// string not in the closed set below is accepted as a custom status when
// the caller opts in via ValidateWithCustomStatuses.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusClosed     Status = "closed"
	StatusTombstoned Status = "tombstoned"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusBlocked, StatusClosed, StatusTombstoned:
		return true
	default:
		return false
	}
}

func (s Status) IsValidWithCustom(custom []string) bool {
	if s.IsValid() {
		return true
	}
	for _, c := range custom {
		if string(s) == c {
			return true
		}
	}
	return false
}

// IssueType classifies the kind of work an issue represents. Extensible,
// like Status.
type IssueType string

const (
	TypeTask    IssueType = "task"
	TypeBug     IssueType = "bug"
	TypeFeature IssueType = "feature"
	TypeEpic    IssueType = "epic"
	TypeChore   IssueType = "chore"
)

func (t IssueType) IsValid() bool {
	switch t {
	case TypeTask, TypeBug, TypeFeature, TypeEpic, TypeChore:
		return true
	default:
		return len(t) > 0 // custom issue types are accepted as-is
	}
}

// DependencyType names the semantics of an edge between two issues.
type DependencyType string

const (
	DepBlocks            DependencyType = "blocks"
	DepParentChild       DependencyType = "parent_child"
	DepConditionalBlocks DependencyType = "conditional_blocks"
	DepWaitsFor          DependencyType = "waits_for"
	DepRelated           DependencyType = "related"
	DepDiscoveredFrom    DependencyType = "discovered_from"
	DepRepliesTo         DependencyType = "replies_to"
	DepRelatesTo         DependencyType = "relates_to"
	DepDuplicates        DependencyType = "duplicates"
	DepSupersedes        DependencyType = "supersedes"
	DepCausedBy          DependencyType = "caused_by"
)

func (d DependencyType) IsValid() bool {
	switch d {
	case DepBlocks, DepParentChild, DepConditionalBlocks, DepWaitsFor, DepRelated,
		DepDiscoveredFrom, DepRepliesTo, DepRelatesTo, DepDuplicates, DepSupersedes, DepCausedBy:
		return true
	default:
		return len(d) > 0 // custom edge types are accepted as-is
	}
}

// ParticipatesInCycleCheck reports whether edges of this type belong to
// the subgraph in which cycles are disallowed.
func (d DependencyType) ParticipatesInCycleCheck() bool {
	return d == DepBlocks || d == DepParentChild
}

// Outstanding reports whether this edge type counts as "still pending" for
// ready/blocked computation: blocks, parent_child, conditional_blocks, and
// waits_for all hold an issue back from being ready until their target is
// closed or tombstoned.
func (d DependencyType) Outstanding() bool {
	switch d {
	case DepBlocks, DepParentChild, DepConditionalBlocks, DepWaitsFor:
		return true
	default:
		return false
	}
}

// EventType enumerates the closed set of audit event kinds.
type EventType string

const (
	EventCreated           EventType = "created"
	EventUpdated           EventType = "updated"
	EventStatusChanged     EventType = "status_changed"
	EventPriorityChanged   EventType = "priority_changed"
	EventAssigneeChanged   EventType = "assignee_changed"
	EventCommented         EventType = "commented"
	EventClosed            EventType = "closed"
	EventReopened          EventType = "reopened"
	EventTombstoned        EventType = "tombstoned"
	EventDependencyAdded   EventType = "dependency_added"
	EventDependencyRemoved EventType = "dependency_removed"
	EventLabelAdded        EventType = "label_added"
	EventLabelRemoved      EventType = "label_removed"
	EventCommentAdded      EventType = "comment_added"
	EventCompacted         EventType = "compacted"
	EventDeleted           EventType = "deleted"
	EventRestored          EventType = "restored"
	EventImported          EventType = "imported"
)

func (e EventType) IsValid() bool {
	switch e {
	case EventCreated, EventUpdated, EventStatusChanged, EventPriorityChanged, EventAssigneeChanged,
		EventCommented, EventClosed, EventReopened, EventTombstoned,
		EventDependencyAdded, EventDependencyRemoved, EventLabelAdded, EventLabelRemoved,
		EventCommentAdded, EventCompacted, EventDeleted, EventRestored, EventImported:
		return true
	default:
		return false
	}
}

// Retention constants governing tombstone expiry.
const (
	DefaultTombstoneTTL = 30 * 24 * time.Hour
	MinTombstoneTTL     = 7 * 24 * time.Hour
	ClockSkewGrace      = time.Hour
)

const maxTitleLength = 500

// Issue is a single tracked unit of work.
type Issue struct {
	ID                 string            `json:"id"`
	Title              string            `json:"title"`
	Description        string            `json:"description,omitempty"`
	Design             string            `json:"design,omitempty"`
	AcceptanceCriteria string            `json:"acceptance_criteria,omitempty"`
	Notes              string            `json:"notes,omitempty"`
	Status             Status            `json:"status"`
	Priority           int               `json:"priority"`
	Type               IssueType         `json:"issue_type"`
	Assignee           string            `json:"assignee,omitempty"`
	Owner              string            `json:"owner,omitempty"`
	CreatedBy          string            `json:"created_by,omitempty"`
	CloseReason        string            `json:"close_reason,omitempty"`
	EstimatedMinutes   int               `json:"estimated_minutes,omitempty"`
	Labels             []string          `json:"labels,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	ExternalRef        string            `json:"external_ref,omitempty"`
	SourceSystem       string            `json:"source_system,omitempty"`
	ContentHash        string            `json:"content_hash,omitempty"`
	Pinned             bool              `json:"pinned,omitempty"`
	IsTemplate         bool              `json:"is_template,omitempty"`
	DeferUntil         *time.Time        `json:"defer_until,omitempty"`
	DueAt              *time.Time        `json:"due_at,omitempty"`
	DeletedAt          *time.Time        `json:"deleted_at,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
	ClosedAt           *time.Time        `json:"closed_at,omitempty"`

	// Extra is excluded from JSON encoding and decoding (json:"-"):
	// decoding does not fill it, so unrecognized JSON fields are dropped
	// when a snapshot line or WAL payload is read, and it is never written.
	Extra map[string]any `json:"-"`
}

// Dependency is a directed, typed edge from From to To.
type Dependency struct {
	From      string         `json:"from"`
	To        string         `json:"to"`
	Type      DependencyType `json:"type"`
	CreatedAt time.Time      `json:"created_at"`
}

// Comment is an immutable note attached to an issue.
type Comment struct {
	ID        string    `json:"id"`
	IssueID   string    `json:"issue_id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is an immutable audit record of a single mutation.
type Event struct {
	ID        string         `json:"id"`
	IssueID   string         `json:"issue_id"`
	Type      EventType      `json:"type"`
	Actor     string         `json:"actor,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Validate checks Issue invariants against the closed enum sets.
func (i *Issue) Validate() error {
	return i.ValidateWithCustomStatuses(nil)
}

// ValidateWithCustomStatuses validates Issue, additionally accepting any
// status in customStatuses as valid.
func (i *Issue) ValidateWithCustomStatuses(customStatuses []string) error {
	if i.Title == "" {
		return fmt.Errorf("issue %s: %w", i.ID, errs.ErrTitleEmpty)
	}
	if len(i.Title) > maxTitleLength {
		return fmt.Errorf("issue %s: title length %d exceeds %d: %w", i.ID, len(i.Title), maxTitleLength, errs.ErrTitleTooLong)
	}
	if i.Priority < 0 || i.Priority > 4 {
		return fmt.Errorf("issue %s: priority %d: %w", i.ID, i.Priority, errs.ErrInvalidPriority)
	}
	if !i.Status.IsValidWithCustom(customStatuses) {
		return fmt.Errorf("issue %s: status %q: %w", i.ID, i.Status, errs.ErrInvalidStatus)
	}
	if i.Type != "" && !i.Type.IsValid() {
		return fmt.Errorf("issue %s: issue_type %q: %w", i.ID, i.Type, errs.ErrInvalidStatus)
	}
	return nil
}

// hashFieldOrNull renders s for inclusion in the content hash concatenation,
// substituting the literal string "null" for an unset optional field.
func hashFieldOrNull(s string) string {
	if s == "" {
		return "null"
	}
	return s
}

// ComputeContentHash derives the dedup content hash used by import
// collision detection: SHA-256 over the canonical NUL-joined concatenation
// of every field that defines an issue's content identity.
func (i *Issue) ComputeContentHash() string {
	return timeutil.ContentHash(
		hashFieldOrNull(i.Title),
		hashFieldOrNull(i.Description),
		hashFieldOrNull(i.Design),
		hashFieldOrNull(i.AcceptanceCriteria),
		hashFieldOrNull(i.Notes),
		string(i.Status),
		strconv.Itoa(i.Priority),
		string(i.Type),
		hashFieldOrNull(i.Assignee),
		hashFieldOrNull(i.Owner),
		hashFieldOrNull(i.CreatedBy),
		hashFieldOrNull(i.ExternalRef),
		hashFieldOrNull(i.SourceSystem),
		strconv.FormatBool(i.Pinned),
		strconv.FormatBool(i.IsTemplate),
	)
}

// ChangedFields compares before and after and returns the name of every
// §3 content/metadata field that differs between them, in a stable
// order. Used to emit one audit event per changed field on update.
func ChangedFields(before, after *Issue) []string {
	var changed []string
	add := func(name string, equal bool) {
		if !equal {
			changed = append(changed, name)
		}
	}
	add("title", before.Title == after.Title)
	add("description", before.Description == after.Description)
	add("design", before.Design == after.Design)
	add("acceptance_criteria", before.AcceptanceCriteria == after.AcceptanceCriteria)
	add("notes", before.Notes == after.Notes)
	add("status", before.Status == after.Status)
	add("priority", before.Priority == after.Priority)
	add("issue_type", before.Type == after.Type)
	add("assignee", before.Assignee == after.Assignee)
	add("owner", before.Owner == after.Owner)
	add("created_by", before.CreatedBy == after.CreatedBy)
	add("close_reason", before.CloseReason == after.CloseReason)
	add("estimated_minutes", before.EstimatedMinutes == after.EstimatedMinutes)
	add("external_ref", before.ExternalRef == after.ExternalRef)
	add("source_system", before.SourceSystem == after.SourceSystem)
	add("pinned", before.Pinned == after.Pinned)
	add("is_template", before.IsTemplate == after.IsTemplate)
	return changed
}

// IsTombstone reports whether the issue has been soft-deleted.
func (i *Issue) IsTombstone() bool {
	return i.Status == StatusTombstoned || i.DeletedAt != nil
}

// IsExpired reports whether a tombstoned issue's TTL, plus clock-skew
// grace, has elapsed as of now.
func (i *Issue) IsExpired(ttl time.Duration, now time.Time) bool {
	if !i.IsTombstone() || i.DeletedAt == nil {
		return false
	}
	if ttl < MinTombstoneTTL {
		ttl = MinTombstoneTTL
	}
	return now.After(i.DeletedAt.Add(ttl).Add(ClockSkewGrace))
}

// BlockedIssue pairs an issue with the outstanding dependency ids holding
// it back from being ready.
type BlockedIssue struct {
	Issue        *Issue
	BlockingIDs  []string
}

// TreeNode is a single node in a rendered hierarchical/dependency tree.
type TreeNode struct {
	Issue    *Issue
	Children []*TreeNode
}

// IssueFilter selects issues by structured predicate. Zero-value fields
// are unconstrained (match anything).
type IssueFilter struct {
	Status     []Status
	Type       []IssueType
	Assignee   string
	Label      string
	Pinned     *bool
	IsTemplate *bool
	TitleContains string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Predicate  func(*Issue) bool
}

// Match reports whether an issue satisfies the filter.
func (f *IssueFilter) Match(i *Issue) bool {
	if len(f.Status) > 0 && !containsStatus(f.Status, i.Status) {
		return false
	}
	if len(f.Type) > 0 && !containsType(f.Type, i.Type) {
		return false
	}
	if f.Assignee != "" && i.Assignee != f.Assignee {
		return false
	}
	if f.Label != "" && !containsLabel(i.Labels, f.Label) {
		return false
	}
	if f.Pinned != nil && i.Pinned != *f.Pinned {
		return false
	}
	if f.IsTemplate != nil && i.IsTemplate != *f.IsTemplate {
		return false
	}
	if f.TitleContains != "" && !contains(i.Title, f.TitleContains) {
		return false
	}
	if f.CreatedAfter != nil && i.CreatedAt.Before(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && i.CreatedAt.After(*f.CreatedBefore) {
		return false
	}
	if f.Predicate != nil && !f.Predicate(i) {
		return false
	}
	return true
}

func containsStatus(ss []Status, s Status) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

func containsType(ts []IssueType, t IssueType) bool {
	for _, x := range ts {
		if x == t {
			return true
		}
	}
	return false
}

func containsLabel(labels []string, l string) bool {
	for _, x := range labels {
		if x == l {
			return true
		}
	}
	return false
}

func contains(haystack, needle string) bool {
	return len(needle) == 0 || indexFold(haystack, needle) >= 0
}

func indexFold(haystack, needle string) int {
	hl, nl := []rune(toLower(haystack)), []rune(toLower(needle))
	if len(nl) == 0 {
		return 0
	}
	for i := 0; i+len(nl) <= len(hl); i++ {
		match := true
		for j := range nl {
			if hl[i+j] != nl[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func toLower(s string) string {
	r := []rune(s)
	for i, c := range r {
		if c >= 'A' && c <= 'Z' {
			r[i] = c + ('a' - 'A')
		}
	}
	return string(r)
}
