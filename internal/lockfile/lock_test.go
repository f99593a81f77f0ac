package lockfile

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestLockTryAcquireExclusion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.lock")

	l1 := New(path)
	if err := l1.TryAcquire(); err != nil {
		t.Fatalf("first TryAcquire: %v", err)
	}

	l2 := New(path)
	if err := l2.TryAcquire(); err != ErrLockBusy {
		t.Fatalf("expected ErrLockBusy, got %v", err)
	}

	if err := l1.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	if err := l2.TryAcquire(); err != nil {
		t.Fatalf("second TryAcquire after release: %v", err)
	}
	l2.Release()
}

func TestLockAcquireTimeout(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.lock")

	holder := New(path)
	if err := holder.TryAcquire(); err != nil {
		t.Fatalf("holder TryAcquire: %v", err)
	}
	defer holder.Release()

	waiter := New(path)
	start := time.Now()
	err := waiter.AcquireTimeout(50 * time.Millisecond)
	elapsed := time.Since(start)

	if err != ErrLockTimeout {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	if elapsed < 40*time.Millisecond {
		t.Errorf("returned too quickly: %v", elapsed)
	}
}

func TestLockAcquireBlocksUntilReleased(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.lock")

	holder := New(path)
	if err := holder.TryAcquire(); err != nil {
		t.Fatalf("holder TryAcquire: %v", err)
	}

	var acquired int32
	waiter := New(path)
	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := waiter.Acquire(ctx); err != nil {
			t.Errorf("waiter Acquire: %v", err)
		}
		atomic.StoreInt32(&acquired, 1)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(&acquired) != 0 {
		t.Fatal("waiter acquired lock before release")
	}
	holder.Release()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never acquired lock")
	}
	waiter.Release()
}
