package fsx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ProjectLock serializes filesystem mutations (snapshots, auto-fixes) per
// project root with a non-blocking flock and a bounded retry window.
type ProjectLock struct {
	path string
	f    *os.File
}

// NewProjectLock returns a lock rooted at <projectRoot>/.ci-helper/mutate.lock.
func NewProjectLock(projectRoot string) *ProjectLock {
	return &ProjectLock{path: filepath.Join(projectRoot, ".ci-helper", "mutate.lock")}
}

// Acquire blocks (retrying on a short interval) until the lock is obtained
// or ctx/timeout expires, whichever first.
func (l *ProjectLock) Acquire(ctx context.Context, timeout time.Duration) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("fsx: create lock dir: %w", err)
	}
	deadline := time.Now().Add(timeout)
	for {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
		if err == nil {
			if flockErr := flockExclusiveNonBlocking(f); flockErr == nil {
				l.f = f
				return nil
			}
			f.Close()
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("fsx: timed out after %s waiting for project lock %s", timeout, l.path)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// Release releases the lock.
func (l *ProjectLock) Release() error {
	if l.f == nil {
		return nil
	}
	err := flockUnlock(l.f)
	closeErr := l.f.Close()
	l.f = nil
	if err != nil {
		return err
	}
	return closeErr
}
