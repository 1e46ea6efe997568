package runlock

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestAcquireRelease(t *testing.T) {
	staging := t.TempDir()
	output := filepath.Join(t.TempDir(), "out")

	lock, err := New(staging, output)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := lock.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := lock.Acquire(); err != nil {
		t.Fatalf("reacquire after release: %v", err)
	}
	_ = lock.Release()
}

func TestSameOutputSharesLockFile(t *testing.T) {
	staging := t.TempDir()
	output := filepath.Join(t.TempDir(), "out")

	a, err := New(staging, output)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b, err := New(staging, output)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Path() != b.Path() {
		t.Fatalf("lock paths differ: %s vs %s", a.Path(), b.Path())
	}

	c, err := New(staging, filepath.Join(t.TempDir(), "other"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Path() == a.Path() {
		t.Fatal("different outputs mapped to the same lock file")
	}
}

func TestSecondAcquireFailsWhileHeld(t *testing.T) {
	staging := t.TempDir()
	output := filepath.Join(t.TempDir(), "out")

	first, err := New(staging, output)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := first.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer first.Release()

	second, err := New(staging, output)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := second.Acquire(); !errors.Is(err, ErrHeld) {
		t.Fatalf("second Acquire = %v, want ErrHeld", err)
	}
}
