// Package runlock guards an output directory with a file lock so two
// concurrent runs cannot interleave writes into the same destination.
package runlock

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrHeld indicates another process already holds the lock for the same
// output directory.
var ErrHeld = errors.New("output directory is locked by another run")

// Lock is an advisory lock scoped to one output directory.
type Lock struct {
	path string
	lock *flock.Flock
}

// New builds a lock for outputDir. Lock files live in stagingDir, keyed by a
// digest of the absolute output path, so the output directory itself stays
// untouched until promotion.
func New(stagingDir, outputDir string) (*Lock, error) {
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	abs, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output path: %w", err)
	}
	digest := sha256.Sum256([]byte(abs))
	path := filepath.Join(stagingDir, "output-"+hex.EncodeToString(digest[:8])+".lock")
	return &Lock{path: path, lock: flock.New(path)}, nil
}

// Acquire takes the lock without blocking. ErrHeld is returned when another
// process owns it.
func (l *Lock) Acquire() error {
	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrHeld
	}
	return nil
}

// Release drops the lock. Safe to call when the lock was never acquired.
func (l *Lock) Release() error {
	return l.lock.Unlock()
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}
