package runlog

import (
	"context"
	"testing"
	"time"

	"pagebind/internal/testsupport"
)

func TestRecordAndRecent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	first := Record{
		RunID:           "run-a",
		SourceDir:       "/scans/vol1",
		OutputDir:       "/out/vol1",
		Status:          StatusCompleted,
		TotalPages:      12,
		BlankSkipped:    2,
		PairsMerged:     3,
		PairsSeparated:  2,
		OutputUnits:     8,
		SpreadDetection: true,
		Elapsed:         1500 * time.Millisecond,
	}
	if err := store.Record(ctx, first); err != nil {
		t.Fatalf("Record: %v", err)
	}
	second := Record{
		RunID:     "run-b",
		SourceDir: "/scans/vol2",
		OutputDir: "/out/vol2",
		Status:    StatusFailed,
		Error:     "output directory not empty",
	}
	if err := store.Record(ctx, second); err != nil {
		t.Fatalf("Record: %v", err)
	}

	records, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].RunID != "run-b" || records[1].RunID != "run-a" {
		t.Fatalf("unexpected order: %s, %s", records[0].RunID, records[1].RunID)
	}
	got := records[1]
	if got.Status != StatusCompleted || got.TotalPages != 12 || got.PairsMerged != 3 {
		t.Fatalf("round-tripped record mismatch: %+v", got)
	}
	if !got.SpreadDetection || got.Elapsed != 1500*time.Millisecond {
		t.Fatalf("round-tripped record mismatch: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("created_at not persisted")
	}
	if records[0].Error != "output directory not empty" {
		t.Fatalf("failure message lost: %+v", records[0])
	}
}

func TestRecentLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	for _, id := range []string{"r1", "r2", "r3"} {
		if err := store.Record(ctx, Record{RunID: id, Status: StatusCompleted}); err != nil {
			t.Fatalf("Record %s: %v", id, err)
		}
	}
	records, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 2 || records[0].RunID != "r3" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if err := store.Record(context.Background(), Record{RunID: "r1", Status: StatusCompleted}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(cfg)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer reopened.Close()
	records, err := reopened.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("history lost across reopen: %+v", records)
	}
}
