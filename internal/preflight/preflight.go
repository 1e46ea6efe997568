// Package preflight verifies the environment before a run touches any page:
// directory permissions, available disk space, and the statistics provider.
package preflight

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"pagebind/internal/config"
	"pagebind/internal/imagestats"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// minFreeBytes is the floor below which the staging filesystem is considered
// too full to hold a run's staged output.
const minFreeBytes = 256 << 20

// RunAll executes every check that applies to the given configuration. The
// provider may be nil when only filesystem checks are wanted.
func RunAll(ctx context.Context, cfg *config.Config, provider imagestats.Provider) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckFreeSpace("Staging free space", cfg.Paths.StagingDir),
	}
	if provider != nil {
		results = append(results, CheckProvider(ctx, cfg.Pipeline.Provider, provider))
	}
	return results
}

// Passed reports whether every result succeeded.
func Passed(results []Result) bool {
	for _, result := range results {
		if !result.Passed {
			return false
		}
	}
	return true
}

// CheckDirectoryAccess verifies that the directory exists and is
// readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies the filesystem holding path has room for staged
// output.
func CheckFreeSpace(name, path string) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	if free < minFreeBytes {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%d MiB free, need at least %d MiB)",
			path, free>>20, int64(minFreeBytes)>>20)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d MiB free)", path, free>>20)}
}

// CheckProvider probes the configured statistics provider.
func CheckProvider(ctx context.Context, name string, provider imagestats.Provider) Result {
	label := fmt.Sprintf("Provider (%s)", name)

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := provider.Ping(checkCtx); err != nil {
		return Result{Name: label, Detail: err.Error()}
	}
	return Result{Name: label, Passed: true, Detail: "ready"}
}
