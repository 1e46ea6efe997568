package preflight

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"pagebind/internal/testsupport"
)

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("Staging directory", dir)
	if !result.Passed {
		t.Fatalf("writable directory failed: %+v", result)
	}

	missing := CheckDirectoryAccess("Staging directory", filepath.Join(dir, "nope"))
	if missing.Passed || !strings.Contains(missing.Detail, "does not exist") {
		t.Fatalf("missing directory passed: %+v", missing)
	}
}

func TestCheckProvider(t *testing.T) {
	provider := testsupport.NewFakeProvider()
	result := CheckProvider(context.Background(), "native", provider)
	if !result.Passed {
		t.Fatalf("healthy provider failed: %+v", result)
	}

	provider.PingErr = errors.New("magick binary not found")
	result = CheckProvider(context.Background(), "magick", provider)
	if result.Passed || !strings.Contains(result.Detail, "not found") {
		t.Fatalf("unhealthy provider passed: %+v", result)
	}
}

func TestRunAll(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	results := RunAll(context.Background(), cfg, testsupport.NewFakeProvider())
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}
	for _, result := range results[:2] {
		if !result.Passed {
			t.Fatalf("directory check failed in temp config: %+v", result)
		}
	}
	if !Passed(results[:2]) {
		t.Fatal("Passed reported failure for passing subset")
	}

	failing := append([]Result(nil), results...)
	failing = append(failing, Result{Name: "forced", Passed: false})
	if Passed(failing) {
		t.Fatal("Passed ignored a failing result")
	}
}
