// Package audit records one immutable Event per mutation to an
// append-only JSONL file, independent of the main WAL, and exposes the
// event counts as OpenTelemetry metric instruments.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/beads-core/beads/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// FileName is the audit log's file name within the data directory.
const FileName = "events.jsonl"

// Log appends and queries Event records for one data directory.
type Log struct {
	path    string
	counter metric.Int64Counter
}

// Open binds a Log to dir, creating it lazily on first Append. meter may
// be nil, in which case a no-op meter is used and metrics are discarded.
func Open(dir string, meter metric.Meter) (*Log, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("beads")
	}
	counter, err := meter.Int64Counter("beads.events",
		metric.WithDescription("count of audit events recorded, by event type"))
	if err != nil {
		return nil, fmt.Errorf("create events counter: %w", err)
	}
	return &Log{path: filepath.Join(dir, FileName), counter: counter}, nil
}

// Append writes ev to the audit log, filling in ID/CreatedAt if unset, and
// increments the corresponding metric counter.
func (l *Log) Append(ev *model.Event) error {
	if !ev.Type.IsValid() {
		return fmt.Errorf("invalid event type %q", ev.Type)
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if ev.ID == "" {
		ev.ID = fmt.Sprintf("ev-%d", ev.CreatedAt.UnixNano())
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	if err := enc.Encode(ev); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("fsync audit log: %w", err)
	}

	l.counter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("event_type", string(ev.Type))))
	return nil
}

// All reads every event from the audit log in append order.
func (l *Log) All() ([]*model.Event, error) {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var events []*model.Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		var ev model.Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("parse audit event: %w", err)
		}
		events = append(events, &ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan audit log: %w", err)
	}
	return events, nil
}

// ForIssue returns events recorded against issueID, in append order.
func (l *Log) ForIssue(issueID string) ([]*model.Event, error) {
	all, err := l.All()
	if err != nil {
		return nil, err
	}
	var out []*model.Event
	for _, e := range all {
		if e.IssueID == issueID {
			out = append(out, e)
		}
	}
	return out, nil
}

// PruneResult summarizes a Prune call.
type PruneResult struct {
	Before int
	After  int
	Pruned int
}

// Prune rewrites the audit log keeping only events newer than cutoff.
func (l *Log) Prune(retention time.Duration, now time.Time) (*PruneResult, error) {
	all, err := l.All()
	if err != nil {
		return nil, err
	}
	cutoff := now.Add(-retention)

	kept := make([]*model.Event, 0, len(all))
	for _, e := range all {
		if e.CreatedAt.After(cutoff) {
			kept = append(kept, e)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].CreatedAt.Before(kept[j].CreatedAt) })

	tmp := l.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create pruned audit log: %w", err)
	}
	enc := json.NewEncoder(f)
	for _, e := range kept {
		if err := enc.Encode(e); err != nil {
			f.Close()
			os.Remove(tmp)
			return nil, fmt.Errorf("write pruned audit log: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return nil, fmt.Errorf("fsync pruned audit log: %w", err)
	}
	f.Close()
	if err := os.Rename(tmp, l.path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("rename pruned audit log: %w", err)
	}

	return &PruneResult{Before: len(all), After: len(kept), Pruned: len(all) - len(kept)}, nil
}
