package assemble

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"pagebind/internal/catalog"
	"pagebind/internal/logging"
	"pagebind/internal/spread"
	"pagebind/internal/testsupport"
)

func pageFor(path string) catalog.Page {
	return catalog.Page{Path: path, OrderKey: filepath.Base(path), Flag: catalog.FlagContent}
}

func readDirNames(t *testing.T, dir string) []string {
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

func TestAssembleMergesAndNumbersUnits(t *testing.T) {
	srcDir := t.TempDir()
	pages := make([]catalog.Page, 0, 5)
	for _, name := range []string{"p1.png", "p2.png", "p3.png", "p4.png", "p5.png"} {
		pages = append(pages, pageFor(testsupport.WritePage(t, srcDir, name, 40, 60, 128)))
	}
	decisions := []spread.Decision{{Merge: true}, {Merge: false}}

	asm := New(testsupport.NewFakeProvider(), logging.NewNop())
	staging := filepath.Join(t.TempDir(), "staging")
	output := filepath.Join(t.TempDir(), "out")

	result, err := asm.Assemble(context.Background(), pages, decisions, staging, output)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if result.Merged != 1 || result.Separate != 2 || result.Singleton != 1 || result.PairFailures != 0 {
		t.Fatalf("unexpected counts: %+v", result)
	}

	want := []string{"page-001.png", "page-002.png", "page-003.png", "page-004.png"}
	got := readDirNames(t, output)
	if len(got) != len(want) {
		t.Fatalf("output files = %v, want %v", got, want)
	}
	for i, name := range want {
		if got[i] != name {
			t.Fatalf("output files = %v, want %v", got, want)
		}
	}

	mergedBody, err := os.ReadFile(filepath.Join(output, "page-001.png"))
	if err != nil {
		t.Fatalf("read merged unit: %v", err)
	}
	if string(mergedBody) != "merged:p1.png+p2.png" {
		t.Fatalf("merged unit body = %q", mergedBody)
	}

	srcBody, err := os.ReadFile(pages[2].Path)
	if err != nil {
		t.Fatalf("read source: %v", err)
	}
	copyBody, err := os.ReadFile(filepath.Join(output, "page-002.png"))
	if err != nil {
		t.Fatalf("read copied unit: %v", err)
	}
	if string(copyBody) != string(srcBody) {
		t.Fatal("separate unit is not a verbatim copy of its source")
	}

	if len(result.Units) != 4 {
		t.Fatalf("units = %d, want 4", len(result.Units))
	}
	if result.Units[0].Kind != KindMerged || result.Units[3].Kind != KindSingleton {
		t.Fatalf("unexpected unit kinds: %+v", result.Units)
	}
	for i, unit := range result.Units {
		if unit.Slot != i {
			t.Fatalf("unit %d has slot %d", i, unit.Slot)
		}
	}

	if _, err := os.Stat(staging); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("staging directory survived promotion: %v", err)
	}
}

func TestAssembleMergedExtensionFollowsLeftPage(t *testing.T) {
	cases := []struct {
		left, right string
		want        string
	}{
		{"a.jpg", "b.jpg", "page-001.jpg"},
		{"a.jpeg", "b.jpeg", "page-001.jpg"},
		{"a.webp", "b.webp", "page-001.png"},
	}
	for _, tc := range cases {
		pages := []catalog.Page{
			pageFor(filepath.Join("/pages", tc.left)),
			pageFor(filepath.Join("/pages", tc.right)),
		}
		asm := New(testsupport.NewFakeProvider(), logging.NewNop())
		output := filepath.Join(t.TempDir(), "out")

		result, err := asm.Assemble(context.Background(), pages, []spread.Decision{{Merge: true}},
			filepath.Join(t.TempDir(), "staging"), output)
		if err != nil {
			t.Fatalf("%s: Assemble: %v", tc.left, err)
		}
		if result.Units[0].Filename != tc.want {
			t.Fatalf("%s: merged filename = %s, want %s", tc.left, result.Units[0].Filename, tc.want)
		}
		if _, err := os.Stat(filepath.Join(output, tc.want)); err != nil {
			t.Fatalf("%s: merged file missing: %v", tc.left, err)
		}
	}
}

func TestAssembleDegradesFailedMergeToSeparateCopies(t *testing.T) {
	srcDir := t.TempDir()
	pages := []catalog.Page{
		pageFor(testsupport.WritePage(t, srcDir, "p1.png", 40, 60, 128)),
		pageFor(testsupport.WritePage(t, srcDir, "p2.png", 40, 60, 128)),
	}
	provider := testsupport.NewFakeProvider()
	provider.ConcatErr = errors.New("cannot decode left page")

	asm := New(provider, logging.NewNop())
	output := filepath.Join(t.TempDir(), "out")

	result, err := asm.Assemble(context.Background(), pages, []spread.Decision{{Merge: true}},
		filepath.Join(t.TempDir(), "staging"), output)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if result.PairFailures != 1 || result.Merged != 0 || result.Separate != 2 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	got := readDirNames(t, output)
	if len(got) != 2 || got[0] != "page-001.png" || got[1] != "page-002.png" {
		t.Fatalf("output files = %v", got)
	}
}

func TestAssembleWriteFailureLeavesNoOutput(t *testing.T) {
	pages := []catalog.Page{
		pageFor(filepath.Join(t.TempDir(), "missing.png")),
	}

	asm := New(testsupport.NewFakeProvider(), logging.NewNop())
	staging := filepath.Join(t.TempDir(), "staging")
	output := filepath.Join(t.TempDir(), "out")

	_, err := asm.Assemble(context.Background(), pages, nil, staging, output)
	if !errors.Is(err, ErrWriteFailure) {
		t.Fatalf("err = %v, want ErrWriteFailure", err)
	}
	if _, statErr := os.Stat(output); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("output directory exists after failed run: %v", statErr)
	}
	if _, statErr := os.Stat(staging); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("staging directory survived failed run: %v", statErr)
	}
}

func TestAssembleRefusesNonEmptyOutput(t *testing.T) {
	srcDir := t.TempDir()
	pages := []catalog.Page{
		pageFor(testsupport.WritePage(t, srcDir, "p1.png", 40, 60, 128)),
	}
	output := t.TempDir()
	if err := os.WriteFile(filepath.Join(output, "existing.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("seed output dir: %v", err)
	}

	asm := New(testsupport.NewFakeProvider(), logging.NewNop())
	_, err := asm.Assemble(context.Background(), pages, nil, filepath.Join(t.TempDir(), "staging"), output)
	if !errors.Is(err, ErrWriteFailure) {
		t.Fatalf("err = %v, want ErrWriteFailure", err)
	}
	if _, statErr := os.Stat(filepath.Join(output, "existing.txt")); statErr != nil {
		t.Fatalf("pre-existing output content was touched: %v", statErr)
	}
}

func TestCopyAllPreservesOrderAndBytes(t *testing.T) {
	srcDir := t.TempDir()
	pages := []catalog.Page{
		pageFor(testsupport.WritePage(t, srcDir, "cover.png", 40, 60, 10)),
		pageFor(testsupport.WritePage(t, srcDir, "page2.png", 40, 60, 90)),
		pageFor(testsupport.WritePage(t, srcDir, "page3.png", 40, 60, 200)),
	}

	asm := New(testsupport.NewFakeProvider(), logging.NewNop())
	output := filepath.Join(t.TempDir(), "out")

	result, err := asm.CopyAll(context.Background(), pages, filepath.Join(t.TempDir(), "staging"), output)
	if err != nil {
		t.Fatalf("CopyAll: %v", err)
	}
	if result.Separate != 3 || result.Merged != 0 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	got := readDirNames(t, output)
	want := []string{"page-001.png", "page-002.png", "page-003.png"}
	for i, name := range want {
		if got[i] != name {
			t.Fatalf("output files = %v, want %v", got, want)
		}
	}
	for i, page := range pages {
		src, err := os.ReadFile(page.Path)
		if err != nil {
			t.Fatalf("read source: %v", err)
		}
		dst, err := os.ReadFile(filepath.Join(output, want[i]))
		if err != nil {
			t.Fatalf("read output: %v", err)
		}
		if string(src) != string(dst) {
			t.Fatalf("%s is not a verbatim copy", want[i])
		}
	}
}

func TestSlotWidthTracksWorstCaseCount(t *testing.T) {
	cases := map[int]int{0: 3, 9: 3, 999: 3, 1000: 4, 12345: 5}
	for total, want := range cases {
		if got := slotWidth(total); got != want {
			t.Fatalf("slotWidth(%d) = %d, want %d", total, got, want)
		}
	}
}
