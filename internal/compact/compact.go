// Package compact folds a data directory's write-ahead log into its
// snapshot: the WAL's records are already applied in the open Repo's
// in-memory store, so compaction is a matter of writing that store
// back out, backing up the old WAL, bumping the generation counter so
// readers notice the replacement, and removing the old WAL file.
package compact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/beads-core/beads/internal/model"
	"github.com/beads-core/beads/internal/repo"
	"github.com/beads-core/beads/internal/snapshot"
	"github.com/beads-core/beads/internal/wal"
)

const backupsDirName = "backups"

// Result summarizes one directory's compaction.
type Result struct {
	Dir        string
	IssueCount int
	BackupPath string
}

// Options bounds backup retention. A zero Options falls back to the
// repo's own configured defaults.
type Options struct {
	MaxBackupGenerations int
	BackupRetentionDays  int
}

func (o Options) withDefaults(r *repo.Repo) Options {
	if o.MaxBackupGenerations <= 0 {
		o.MaxBackupGenerations = r.Config().MaxBackupGenerations
	}
	if o.BackupRetentionDays <= 0 {
		o.BackupRetentionDays = r.Config().BackupRetentionDays
	}
	return o
}

// Compact rewrites r's data directory: expired tombstones are purged,
// the snapshot gets every remaining issue held in memory, a non-empty
// old WAL is copied into backups/, the generation counter advances to
// a new empty WAL, and the old WAL file is removed. The whole
// sequence runs under the WAL's exclusive lock so no concurrent
// Append can interleave with the rotation.
func Compact(r *repo.Repo, opts Options, now time.Time) (*Result, error) {
	opts = opts.withDefaults(r)

	lock := r.WAL().Lock()
	if err := lock.TryAcquire(); err != nil {
		if err := lock.AcquireTimeout(r.Config().LockTimeout); err != nil {
			return nil, fmt.Errorf("acquire compaction lock: %w", err)
		}
	}
	defer lock.Release()

	gen := r.WAL().Generation()
	oldWALPath := r.WAL().Path()

	purged := r.PurgeExpiredTombstones(now)

	issues := r.Store().All()
	if err := snapshot.Write(r.SnapshotPath(), issues); err != nil {
		return nil, fmt.Errorf("write snapshot: %w", err)
	}
	if err := r.PersistDependencies(); err != nil {
		return nil, fmt.Errorf("persist dependencies: %w", err)
	}
	if err := r.PersistComments(); err != nil {
		return nil, fmt.Errorf("persist comments: %w", err)
	}

	backupPath, err := backupWAL(r.Dir(), oldWALPath, now)
	if err != nil {
		return nil, fmt.Errorf("backup WAL: %w", err)
	}

	// Write the new generation file and an empty beads.wal.{gen+1} before
	// unlinking beads.wal.{gen}, so a crash mid-rotation always leaves a
	// readable WAL behind.
	if err := wal.Rotate(r.Dir(), gen); err != nil {
		return nil, fmt.Errorf("rotate WAL: %w", err)
	}
	if err := os.Remove(oldWALPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("unlink old WAL: %w", err)
	}
	if err := r.WAL().Reopen(); err != nil {
		return nil, fmt.Errorf("reopen WAL: %w", err)
	}
	r.Store().ClearDirty()

	if err := pruneBackups(r.Dir(), opts, now); err != nil {
		return nil, fmt.Errorf("prune backups: %w", err)
	}

	if err := r.Audit().Append(&model.Event{
		Type:      model.EventCompacted,
		CreatedAt: now,
		Detail:    map[string]any{"issue_count": len(issues), "purged_tombstones": purged},
	}); err != nil {
		return nil, fmt.Errorf("record compaction event: %w", err)
	}

	return &Result{Dir: r.Dir(), IssueCount: len(issues), BackupPath: backupPath}, nil
}

func backupWAL(dir, walPath string, now time.Time) (string, error) {
	data, err := os.ReadFile(walPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	if len(data) == 0 {
		return "", nil
	}

	backupsDir := filepath.Join(dir, backupsDirName)
	if err := os.MkdirAll(backupsDir, 0o755); err != nil {
		return "", err
	}
	backupPath := filepath.Join(backupsDir, fmt.Sprintf("wal-%s.log", now.UTC().Format("20060102T150405.000000000")))
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", err
	}
	return backupPath, nil
}

// pruneBackups removes backup files beyond MaxBackupGenerations or
// older than BackupRetentionDays, whichever criterion is stricter for
// a given file.
func pruneBackups(dir string, opts Options, now time.Time) error {
	backupsDir := filepath.Join(dir, backupsDirName)
	entries, err := os.ReadDir(backupsDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	type backup struct {
		path    string
		modTime time.Time
	}
	backups := make([]backup, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		backups = append(backups, backup{path: filepath.Join(backupsDir, e.Name()), modTime: info.ModTime()})
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].modTime.After(backups[j].modTime) })

	cutoff := now.AddDate(0, 0, -opts.BackupRetentionDays)
	for i, b := range backups {
		if i >= opts.MaxBackupGenerations || b.modTime.Before(cutoff) {
			if err := os.Remove(b.path); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
	}
	return nil
}

// BatchCompact runs Compact across every repo in repos concurrently,
// bounded by concurrency (4 when concurrency <= 0). If any compaction
// fails it returns the first error and no results; compactions already
// running are not cancelled and queued ones still run.
func BatchCompact(ctx context.Context, repos []*repo.Repo, opts Options, now time.Time, concurrency int) ([]*Result, error) {
	if concurrency <= 0 {
		concurrency = 4
	}
	results := make([]*Result, len(repos))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, r := range repos {
		i, r := i, r
		g.Go(func() error {
			res, err := Compact(r, opts, now)
			if err != nil {
				return fmt.Errorf("compact %s: %w", r.Dir(), err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
