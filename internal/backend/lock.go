package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"cargogpu/internal/paths"
)

const lockRetryInterval = 100 * time.Millisecond

// lockInstallDir takes an exclusive advisory lock for one install directory
// so concurrent installs of the same source build it only once. The returned
// function releases the lock.
func lockInstallDir(ctx context.Context, cache paths.Cache, installDir string) (func() error, error) {
	dir := cache.LocksDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create locks directory: %w", err)
	}

	fl := flock.New(filepath.Join(dir, lockName(installDir)))
	locked, err := fl.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire install lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to acquire install lock: %v", ctx.Err())
	}
	return fl.Unlock, nil
}

// lockName turns an install directory into a flat lock file name.
func lockName(installDir string) string {
	name := filepath.Base(installDir)
	name = strings.NewReplacer("/", "-", "\\", "-", ":", "-").Replace(name)
	return name + ".lock"
}
