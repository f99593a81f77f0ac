// Package repo ties the snapshot, WAL, in-memory store, and dependency
// graph together into the single entry point the rest of beads talks
// to: locate a data directory, load it, and mediate every mutation
// through the write-ahead log under the exclusive file lock.
package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/beads-core/beads/internal/audit"
	"github.com/beads-core/beads/internal/config"
	"github.com/beads-core/beads/internal/depgraph"
	"github.com/beads-core/beads/internal/errs"
	"github.com/beads-core/beads/internal/idgen"
	"github.com/beads-core/beads/internal/model"
	"github.com/beads-core/beads/internal/otelsetup"
	"github.com/beads-core/beads/internal/pathutil"
	"github.com/beads-core/beads/internal/snapshot"
	"github.com/beads-core/beads/internal/store"
	"github.com/beads-core/beads/internal/wal"
)

const dataDirName = ".beads"

// unsafePrefixes lists system directories a data directory should never
// resolve into, so a stray or malicious BEADS_DIR can't be used to read
// or write outside the caller's intended project.
var unsafePrefixes = []string{
	"/etc", "/usr", "/var", "/root", "/System", "/Library",
	"/bin", "/sbin", "/opt", "/private",
}

// FindDataDir locates the data directory: BEADS_DIR if set, otherwise a
// .beads directory found by walking up from cwd. Returns "" if neither
// resolves.
func FindDataDir() string {
	if envDir := os.Getenv("BEADS_DIR"); envDir != "" {
		abs := pathutil.CanonicalizePath(envDir)
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			return abs
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for dir := cwd; ; {
		candidate := filepath.Join(dir, dataDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// isSafeBoundary reports whether path is safe to use as a data
// directory: not a system directory, and not another user's home.
func isSafeBoundary(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}

	tempDir := os.TempDir()
	if strings.HasPrefix(abs, tempDir) {
		return true
	}

	for _, prefix := range unsafePrefixes {
		if abs == prefix || strings.HasPrefix(abs, prefix+"/") {
			return false
		}
	}
	homeDir, _ := os.UserHomeDir()
	if strings.HasPrefix(abs, "/Users/") || strings.HasPrefix(abs, "/home/") {
		if homeDir != "" && !strings.HasPrefix(abs, homeDir) {
			return false
		}
	}
	return true
}

// Repo is the loaded state of one data directory: the issue store, the
// dependency graph, dependency and comment collections, the WAL used to
// record every mutation, and the configuration governing them.
type Repo struct {
	dir          string
	snapshotPath string
	depsPath     string
	commentsPath string

	cfg   *config.Config
	wal   *wal.Log
	store *store.Store
	graph *depgraph.Graph
	audit *audit.Log
	diag  *otelsetup.Provider

	deps     []model.Dependency
	comments map[string][]*model.Comment
}

// Open loads dir's snapshot and replays its WAL on top of it, rebuilding
// the in-memory store and dependency graph. dir must already exist.
func Open(dir string) (*Repo, error) {
	if !isSafeBoundary(dir) {
		return nil, fmt.Errorf("data directory %s is outside the safe boundary", dir)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	r := &Repo{
		dir:          dir,
		snapshotPath: filepath.Join(dir, pathutil.FindJSONLInDir(dir)),
		depsPath:     filepath.Join(dir, "dependencies.jsonl"),
		commentsPath: filepath.Join(dir, "comments.jsonl"),
		cfg:          cfg,
		store:        store.New(),
		comments:     map[string][]*model.Comment{},
	}

	issues, err := snapshot.Read(r.snapshotPath)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	r.store.LoadAll(issues)

	deps, err := readDependencies(r.depsPath)
	if err != nil {
		return nil, fmt.Errorf("read dependencies: %w", err)
	}
	r.deps = deps
	r.graph = depgraph.Load(deps)

	comments, err := readComments(r.commentsPath)
	if err != nil {
		return nil, fmt.Errorf("read comments: %w", err)
	}
	for _, c := range comments {
		r.comments[c.IssueID] = append(r.comments[c.IssueID], c)
	}

	r.wal, err = wal.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("open WAL: %w", err)
	}
	r.diag = otelsetup.NewProvider()
	r.audit, err = audit.Open(dir, r.diag.Meter("beads"))
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	if err := r.replay(); err != nil {
		return nil, fmt.Errorf("replay WAL: %w", err)
	}
	return r, nil
}

// Close releases resources held by r, including flushing any pending
// metric export. It does not release the WAL's exclusive lock, which
// individual operations hold only for the duration of a single call.
func (r *Repo) Close(ctx context.Context) error {
	return r.diag.Shutdown(ctx)
}

// replayAttemptLimit bounds the number of generation-mismatch restarts a
// single load will absorb before giving up, so a pathologically fast
// compaction loop can't hang Open forever.
const replayAttemptLimit = 10

// replay runs the WAL replay/generation-recheck loop: the generation file
// is read before replay begins, the WAL is replayed into a scratch copy
// of the store, and the generation file is read again afterward. If it
// changed, a compaction raced the load; the whole attempt restarts
// against the new generation rather than risk applying frames out of
// step with the snapshot they were merged into.
func (r *Repo) replay() error {
	for attempt := 0; ; attempt++ {
		startGen := r.wal.Generation()

		trial := cloneStoreShape(r.store)
		deps := append([]model.Dependency(nil), r.deps...)
		graph := depgraph.Load(deps)
		comments := cloneComments(r.comments)

		err := r.wal.Replay(func(rec wal.Record) error {
			return applyRecord(trial, graph, &deps, comments, rec)
		})
		if err != nil {
			return err
		}

		endGen, genErr := r.wal.DiskGeneration()
		if genErr != nil {
			return genErr
		}
		if endGen != startGen {
			if attempt >= replayAttemptLimit {
				return fmt.Errorf("replay: %w after %d attempts", errs.ErrGenerationMismatch, attempt)
			}
			if err := r.wal.Reopen(); err != nil {
				return err
			}
			continue
		}

		r.store = trial
		r.graph = graph
		r.deps = deps
		r.comments = comments
		return nil
	}
}

func cloneStoreShape(s *store.Store) *store.Store {
	trial := store.New()
	var copies []*model.Issue
	for _, i := range s.All() {
		c := *i
		c.Labels = append([]string(nil), i.Labels...)
		copies = append(copies, &c)
	}
	trial.LoadAll(copies)
	return trial
}

func cloneComments(src map[string][]*model.Comment) map[string][]*model.Comment {
	out := make(map[string][]*model.Comment, len(src))
	for id, cs := range src {
		out[id] = append([]*model.Comment(nil), cs...)
	}
	return out
}

func applyRecord(s *store.Store, graph *depgraph.Graph, deps *[]model.Dependency, comments map[string][]*model.Comment, rec wal.Record) error {
	switch rec.Op {
	case wal.OpAdd, wal.OpUpdate, wal.OpClose, wal.OpReopen, wal.OpSetBlocked, wal.OpUnsetBlocked, wal.OpDelete:
		var issue model.Issue
		if err := json.Unmarshal(rec.Data, &issue); err != nil {
			return fmt.Errorf("decode %s payload: %w", rec.Op, err)
		}
		s.Put(&issue)
	case wal.OpLabelAdded:
		var payload struct {
			Label string `json:"label"`
		}
		if err := json.Unmarshal(rec.Data, &payload); err != nil {
			return fmt.Errorf("decode label_added payload: %w", err)
		}
		_ = s.AddLabel(rec.ID, payload.Label)
	case wal.OpLabelRemoved:
		var payload struct {
			Label string `json:"label"`
		}
		if err := json.Unmarshal(rec.Data, &payload); err != nil {
			return fmt.Errorf("decode label_removed payload: %w", err)
		}
		_ = s.RemoveLabel(rec.ID, payload.Label)
	case wal.OpDependencyAdded:
		var dep model.Dependency
		if err := json.Unmarshal(rec.Data, &dep); err != nil {
			return fmt.Errorf("decode dependency_added payload: %w", err)
		}
		if err := graph.AddDependency(dep.From, dep.To, dep.Type); err != nil {
			return err
		}
		*deps = append(*deps, dep)
	case wal.OpDependencyRemoved:
		var dep model.Dependency
		if err := json.Unmarshal(rec.Data, &dep); err != nil {
			return fmt.Errorf("decode dependency_removed payload: %w", err)
		}
		graph.RemoveDependency(dep.From, dep.To, dep.Type)
		*deps = removeDependency(*deps, dep)
	case wal.OpCommentAdded:
		var c model.Comment
		if err := json.Unmarshal(rec.Data, &c); err != nil {
			return fmt.Errorf("decode comment_added payload: %w", err)
		}
		comments[c.IssueID] = append(comments[c.IssueID], &c)
	}
	return nil
}

func removeDependency(deps []model.Dependency, target model.Dependency) []model.Dependency {
	out := deps[:0]
	for _, d := range deps {
		if d.From == target.From && d.To == target.To && (target.Type == "" || d.Type == target.Type) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Config returns the data directory's loaded configuration.
func (r *Repo) Config() *config.Config { return r.cfg }

// Dir returns the data directory path.
func (r *Repo) Dir() string { return r.dir }

// Store returns the in-memory issue store for read access.
func (r *Repo) Store() *store.Store { return r.store }

// Graph returns the dependency graph for read access.
func (r *Repo) Graph() *depgraph.Graph { return r.graph }

// Dependencies returns every dependency edge currently loaded.
func (r *Repo) Dependencies() []model.Dependency {
	out := make([]model.Dependency, len(r.deps))
	copy(out, r.deps)
	return out
}

// Comments returns the comments recorded against issueID, in append
// order.
func (r *Repo) Comments(issueID string) []*model.Comment {
	return append([]*model.Comment(nil), r.comments[issueID]...)
}

// CreateIssue assigns an id, defaults an empty status to open,
// validates, appends the creation to the
// WAL, applies it to the in-memory store, and records an audit event.
func (r *Repo) CreateIssue(issue *model.Issue, now time.Time) (*model.Issue, error) {
	if issue.ID == "" {
		id, err := idgen.Generate(r.cfg.IDPrefix, issue.Title, issue.Description, issue.CreatedBy, now, r.store.Count(), r.store.Exists)
		if err != nil {
			return nil, err
		}
		issue.ID = id
	}
	if r.store.Exists(issue.ID) {
		return nil, errs.ErrDuplicateID
	}
	if issue.Status == "" {
		issue.Status = model.StatusOpen
	}
	if err := issue.Validate(); err != nil {
		return nil, err
	}
	issue.CreatedAt = now
	issue.UpdatedAt = now
	issue.ContentHash = issue.ComputeContentHash()

	if _, err := r.appendWAL(wal.OpAdd, issue.ID, issue, now); err != nil {
		return nil, err
	}
	r.store.Put(issue)
	r.recordEvent(issue.ID, model.EventCreated, now, nil)
	return issue, nil
}

// UpdateIssue persists a mutated issue: caller fetches via Store().Get,
// mutates a copy of the returned issue's fields, and passes it back
// here. One audit event is emitted per §3 content/metadata field that
// differs from the currently-stored issue.
func (r *Repo) UpdateIssue(issue *model.Issue, now time.Time) error {
	before, err := r.store.Get(issue.ID)
	if err != nil {
		return err
	}
	beforeCopy := *before

	if err := issue.Validate(); err != nil {
		return err
	}
	issue.UpdatedAt = now
	if _, err := r.appendWAL(wal.OpUpdate, issue.ID, issue, now); err != nil {
		return err
	}
	r.store.Put(issue)
	for _, field := range model.ChangedFields(&beforeCopy, issue) {
		r.recordFieldEvent(issue.ID, field, now)
	}
	return nil
}

// DeleteIssue soft-deletes the issue with id: its status becomes
// tombstoned and it is excluded from ready/blocked/list queries, but it
// is never physically removed from the store or the log.
func (r *Repo) DeleteIssue(id string, now time.Time) error {
	issue, err := r.store.Get(id)
	if err != nil {
		return err
	}
	tombstoned := *issue
	tombstoned.Status = model.StatusTombstoned
	tombstoned.DeletedAt = &now
	tombstoned.UpdatedAt = now

	if _, err := r.appendWAL(wal.OpDelete, id, &tombstoned, now); err != nil {
		return err
	}
	r.store.Put(&tombstoned)
	r.recordEvent(id, model.EventDeleted, now, nil)
	return nil
}

// PurgeExpiredTombstones permanently removes tombstoned issues whose
// retention TTL (plus clock-skew grace) has elapsed as of now. Called by
// the compactor immediately before it rewrites the snapshot, so expired
// tombstones never make it into the new generation.
func (r *Repo) PurgeExpiredTombstones(now time.Time) int {
	purged := 0
	for _, issue := range r.store.All() {
		if issue.IsExpired(r.cfg.DefaultTombstoneTTL, now) {
			r.store.Delete(issue.ID)
			purged++
		}
	}
	return purged
}

// AddLabel attaches label to the issue with id, normalizing it to NFC
// and trimming whitespace; idempotent.
func (r *Repo) AddLabel(id, label string) error {
	if err := r.store.AddLabel(id, label); err != nil {
		return err
	}
	now := time.Now().UTC()
	if _, err := r.appendWAL(wal.OpLabelAdded, id, map[string]string{"label": label}, now); err != nil {
		return err
	}
	r.recordEvent(id, model.EventLabelAdded, now, map[string]any{"label": label})
	return nil
}

// RemoveLabel detaches label from the issue with id; idempotent.
func (r *Repo) RemoveLabel(id, label string) error {
	if err := r.store.RemoveLabel(id, label); err != nil {
		return err
	}
	now := time.Now().UTC()
	if _, err := r.appendWAL(wal.OpLabelRemoved, id, map[string]string{"label": label}, now); err != nil {
		return err
	}
	r.recordEvent(id, model.EventLabelRemoved, now, map[string]any{"label": label})
	return nil
}

func (r *Repo) appendWAL(op wal.OpType, id string, data any, now time.Time) (uint64, error) {
	return r.wal.Append(op, id, data, now)
}

// AddDependency validates the edge against the dependency graph (cycle
// and self-dependency checks), appends it to the WAL, and applies it.
func (r *Repo) AddDependency(from, to string, typ model.DependencyType, now time.Time) error {
	if !r.store.Exists(from) {
		return errs.NotFound(from, r.store.IDs())
	}
	if !r.store.Exists(to) {
		return errs.NotFound(to, r.store.IDs())
	}
	dep := model.Dependency{From: from, To: to, Type: typ, CreatedAt: now}
	if err := r.graph.AddDependency(from, to, typ); err != nil {
		return err
	}
	if _, err := r.appendWAL(wal.OpDependencyAdded, from, dep, now); err != nil {
		r.graph.RemoveDependency(from, to, typ)
		return err
	}
	r.deps = append(r.deps, dep)
	r.recordEvent(from, model.EventDependencyAdded, now, nil)
	return nil
}

// RemoveDependency removes every edge between from and to, or only the
// edges of typ if typ is non-empty.
func (r *Repo) RemoveDependency(from, to string, typ model.DependencyType, now time.Time) error {
	dep := model.Dependency{From: from, To: to, Type: typ}
	if _, err := r.appendWAL(wal.OpDependencyRemoved, from, dep, now); err != nil {
		return err
	}
	r.graph.RemoveDependency(from, to, typ)
	r.deps = removeDependency(r.deps, dep)
	r.recordEvent(from, model.EventDependencyRemoved, now, nil)
	return nil
}

// AddComment appends a comment to an issue's history.
func (r *Repo) AddComment(c *model.Comment, now time.Time) error {
	if !r.store.Exists(c.IssueID) {
		return errs.NotFound(c.IssueID, r.store.IDs())
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.ID == "" {
		c.ID = fmt.Sprintf("cm-%d", now.UnixNano())
	}
	if _, err := r.appendWAL(wal.OpCommentAdded, c.IssueID, c, now); err != nil {
		return err
	}
	r.comments[c.IssueID] = append(r.comments[c.IssueID], c)
	r.recordEvent(c.IssueID, model.EventCommentAdded, now, nil)
	return nil
}

func (r *Repo) recordEvent(issueID string, typ model.EventType, now time.Time, detail map[string]any) {
	_ = r.audit.Append(&model.Event{IssueID: issueID, Type: typ, Detail: detail, CreatedAt: now})
}

// recordFieldEvent records the audit event for one §3 field changing,
// using the dedicated event type when one exists (status, priority,
// assignee) and the generic "updated" type otherwise.
func (r *Repo) recordFieldEvent(issueID, field string, now time.Time) {
	typ := model.EventUpdated
	switch field {
	case "status":
		typ = model.EventStatusChanged
	case "priority":
		typ = model.EventPriorityChanged
	case "assignee":
		typ = model.EventAssigneeChanged
	}
	r.recordEvent(issueID, typ, now, map[string]any{"field": field})
}

// Audit exposes the audit log for queries and retention pruning.
func (r *Repo) Audit() *audit.Log { return r.audit }

// WAL exposes the write-ahead log, for the compactor.
func (r *Repo) WAL() *wal.Log { return r.wal }

// SnapshotPath returns the path the next compaction should write to.
func (r *Repo) SnapshotPath() string { return r.snapshotPath }

// PersistDependencies atomically rewrites the dependencies.jsonl file
// to match the in-memory edge set, called by the compactor.
func (r *Repo) PersistDependencies() error {
	return writeDependencies(r.depsPath, r.deps)
}

// PersistComments atomically rewrites the comments.jsonl file to match
// the in-memory comment set, called by the compactor.
func (r *Repo) PersistComments() error {
	all := make([]*model.Comment, 0)
	ids := make([]string, 0, len(r.comments))
	for id := range r.comments {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		all = append(all, r.comments[id]...)
	}
	return writeComments(r.commentsPath, all)
}

func readDependencies(path string) ([]model.Dependency, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeJSONLDependencies(data)
}

func decodeJSONLDependencies(data []byte) ([]model.Dependency, error) {
	var out []model.Dependency
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var dep model.Dependency
		if err := json.Unmarshal([]byte(line), &dep); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrCorruptSnapshot, err)
		}
		out = append(out, dep)
	}
	return out, nil
}

func writeDependencies(path string, deps []model.Dependency) error {
	return atomicWriteJSONL(path, len(deps), func(enc *json.Encoder) error {
		for _, d := range deps {
			if err := enc.Encode(d); err != nil {
				return err
			}
		}
		return nil
	})
}

func readComments(path string) ([]*model.Comment, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []*model.Comment
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var c model.Comment
		if err := json.Unmarshal([]byte(line), &c); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrCorruptSnapshot, err)
		}
		out = append(out, &c)
	}
	return out, nil
}

func writeComments(path string, comments []*model.Comment) error {
	return atomicWriteJSONL(path, len(comments), func(enc *json.Encoder) error {
		for _, c := range comments {
			if err := enc.Encode(c); err != nil {
				return err
			}
		}
		return nil
	})
}

func atomicWriteJSONL(path string, _ int, encode func(*json.Encoder) error) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".tmp.%d.%d", time.Now().UnixMilli(), os.Getpid()))

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrWriteError, err)
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	if err := encode(enc); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", errs.ErrWriteError, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", errs.ErrWriteError, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", errs.ErrWriteError, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", errs.ErrAtomicRenameFailed, err)
	}
	if dirF, err := os.Open(dir); err == nil {
		_ = dirF.Sync()
		_ = dirF.Close()
	}
	return nil
}

// Watch calls fn whenever the data directory's generation file changes,
// which happens after every compaction. It blocks until ctx is
// cancelled or the watch fails irrecoverably.
func Watch(ctx context.Context, dir string, fn func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	genPath := filepath.Join(dir, "generation")
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Name == genPath && (ev.Op&(fsnotify.Write|fsnotify.Create) != 0) {
				fn()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch error: %w", err)
		}
	}
}
