package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"pagebind/internal/assemble"
	"pagebind/internal/imagestats"
	"pagebind/internal/logging"
	"pagebind/internal/testsupport"
)

func writePages(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		testsupport.WritePage(t, dir, name, 40, 60, 128)
	}
}

func outputNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func TestRunMixedBlanksAndSpreads(t *testing.T) {
	source := t.TempDir()
	writePages(t, source,
		"p01.png", "p02.png", "p03.png", "p04.png",
		"p05.png", "p06.png", "p07.png", "p08.png",
	)

	provider := testsupport.NewFakeProvider()
	provider.PageStats["p02.png"] = imagestats.Stats{Mean: 65400, StdDev: 120}
	// Content pairs after the blank drops out: (p01 p03) (p04 p05) (p06 p07)
	// with p08 trailing.
	provider.PairScores[testsupport.PairKey("p01.png", "p03.png")] = 0.05
	provider.PairScores[testsupport.PairKey("p06.png", "p07.png")] = 0.2

	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.Workers = 3
	output := filepath.Join(t.TempDir(), "out")

	report, err := New(cfg, provider, logging.NewNop()).Run(context.Background(), source, output)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.RunID == "" {
		t.Fatal("report has no run id")
	}
	if report.TotalPages != 8 || report.BlankSkipped != 1 {
		t.Fatalf("page counts: %+v", report)
	}
	if report.PairsMerged != 2 || report.PairsSeparated != 1 || report.SingletonEmitted != 1 {
		t.Fatalf("pairing counts: %+v", report)
	}
	if report.PairFailures != 0 || report.OutputUnits != 5 {
		t.Fatalf("unit counts: %+v", report)
	}

	got := outputNames(t, output)
	want := []string{"page-001.png", "page-002.png", "page-003.png", "page-004.png", "page-005.png"}
	if len(got) != len(want) {
		t.Fatalf("output files = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("output files = %v, want %v", got, want)
		}
	}

	first, err := os.ReadFile(filepath.Join(output, "page-001.png"))
	if err != nil {
		t.Fatalf("read first unit: %v", err)
	}
	if string(first) != "merged:p01.png+p03.png" {
		t.Fatalf("first unit = %q, want merged p01+p03", first)
	}
}

func TestRunEmptySourceYieldsZeroReport(t *testing.T) {
	source := t.TempDir()
	if err := os.WriteFile(filepath.Join(source, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("seed source: %v", err)
	}
	output := filepath.Join(t.TempDir(), "out")

	report, err := New(testsupport.NewConfig(t), testsupport.NewFakeProvider(), logging.NewNop()).
		Run(context.Background(), source, output)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.TotalPages != 0 || report.OutputUnits != 0 || report.BlankSkipped != 0 {
		t.Fatalf("expected zero report, got %+v", report)
	}
	if _, statErr := os.Stat(output); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("output directory created for empty input: %v", statErr)
	}
}

func TestRunUnavailableProviderAbortsBeforeClassification(t *testing.T) {
	source := t.TempDir()
	writePages(t, source, "p01.png", "p02.png")

	provider := testsupport.NewFakeProvider()
	provider.PingErr = errors.New("magick binary not found")
	output := filepath.Join(t.TempDir(), "out")

	_, err := New(testsupport.NewConfig(t), provider, logging.NewNop()).
		Run(context.Background(), source, output)
	if !errors.Is(err, imagestats.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if len(provider.StatsCalls) != 0 {
		t.Fatalf("pages were classified despite unavailable provider: %v", provider.StatsCalls)
	}
	if _, statErr := os.Stat(output); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("output directory exists after aborted run: %v", statErr)
	}
}

func TestRunWithSpreadDetectionDisabled(t *testing.T) {
	source := t.TempDir()
	writePages(t, source, "p01.png", "p02.png", "p03.png", "p04.png", "p05.png")

	provider := testsupport.NewFakeProvider()
	provider.PageStats["p03.png"] = imagestats.Stats{Mean: 65400, StdDev: 90}
	// A tempting score that must never be consulted in this mode.
	provider.PairScores[testsupport.PairKey("p01.png", "p02.png")] = 0.01

	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.SpreadDetection = false
	output := filepath.Join(t.TempDir(), "out")

	report, err := New(cfg, provider, logging.NewNop()).Run(context.Background(), source, output)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.TotalPages != 5 || report.BlankSkipped != 1 || report.OutputUnits != 4 {
		t.Fatalf("report: %+v", report)
	}
	if report.PairsMerged != 0 || report.PairsSeparated != 0 || report.PairFailures != 0 {
		t.Fatalf("pairing counters should stay zero: %+v", report)
	}
	if len(provider.DissimilarityCalls) != 0 {
		t.Fatalf("pair evaluation ran in copy mode: %v", provider.DissimilarityCalls)
	}

	got := outputNames(t, output)
	if len(got) != 4 {
		t.Fatalf("output files = %v, want 4 copies", got)
	}
	src, err := os.ReadFile(filepath.Join(source, "p01.png"))
	if err != nil {
		t.Fatalf("read source: %v", err)
	}
	dst, err := os.ReadFile(filepath.Join(output, got[0]))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(src) != string(dst) {
		t.Fatal("copy mode re-encoded a page")
	}
}

func TestRunUnreadablePairStaysSeparate(t *testing.T) {
	source := t.TempDir()
	writePages(t, source, "p01.png", "p02.png")

	provider := testsupport.NewFakeProvider()
	provider.StatsErr["p01.png"] = imagestats.ErrUnreadableImage
	output := filepath.Join(t.TempDir(), "out")

	report, err := New(testsupport.NewConfig(t), provider, logging.NewNop()).
		Run(context.Background(), source, output)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Classification fails open to content, pair evaluation fails to
	// separate. Both pages must still reach the output.
	if report.BlankSkipped != 0 || report.PairFailures != 1 || report.PairsMerged != 0 {
		t.Fatalf("report: %+v", report)
	}
	if report.OutputUnits != 2 {
		t.Fatalf("output units = %d, want 2", report.OutputUnits)
	}
	got := outputNames(t, output)
	if len(got) != 2 {
		t.Fatalf("output files = %v", got)
	}
}

func TestRunWriteFailureReturnsNoPartialOutput(t *testing.T) {
	source := t.TempDir()
	writePages(t, source, "p01.png", "p02.png", "p03.png")

	output := t.TempDir()
	if err := os.WriteFile(filepath.Join(output, "keep.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("seed output: %v", err)
	}

	_, err := New(testsupport.NewConfig(t), testsupport.NewFakeProvider(), logging.NewNop()).
		Run(context.Background(), source, output)
	if !errors.Is(err, assemble.ErrWriteFailure) {
		t.Fatalf("err = %v, want ErrWriteFailure", err)
	}
	got := outputNames(t, output)
	if len(got) != 1 || got[0] != "keep.txt" {
		t.Fatalf("output directory was modified: %v", got)
	}
}

func TestRunCanceledContext(t *testing.T) {
	source := t.TempDir()
	writePages(t, source, "p01.png", "p02.png")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(testsupport.NewConfig(t), testsupport.NewFakeProvider(), logging.NewNop()).
		Run(ctx, source, filepath.Join(t.TempDir(), "out"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
