// Package assemble materializes the final output images: merged spreads,
// separate pages, and the trailing singleton. All writes land in a staging
// directory that is promoted to the output directory only when the whole set
// is complete.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"pagebind/internal/catalog"
	"pagebind/internal/fileutil"
	"pagebind/internal/imagestats"
	"pagebind/internal/logging"
	"pagebind/internal/spread"
)

// ErrWriteFailure marks an output directory that cannot be written. It is
// fatal: the run aborts with no partial output.
var ErrWriteFailure = errors.New("output write failure")

// Kind describes how an output unit was produced.
type Kind uint8

const (
	// KindMerged is a horizontal concatenation of a page pair.
	KindMerged Kind = iota
	// KindSeparate is a verbatim copy of one half of a non-merging pair.
	KindSeparate
	// KindSingleton is a verbatim copy of a trailing unpaired page.
	KindSingleton
)

// Unit is one output image bound to its source pages. Units are totally
// ordered by Slot, which mirrors catalog order of the underlying pages.
type Unit struct {
	Kind     Kind
	Slot     int
	Filename string
	Pages    []catalog.Page
}

// Result reports what one assembly pass produced.
type Result struct {
	Units        []Unit
	Merged       int
	Separate     int
	Singleton    int
	PairFailures int
}

// Assembler writes output units for a single run.
type Assembler struct {
	provider imagestats.Provider
	logger   *slog.Logger
}

// New constructs an assembler. A nil logger is replaced with a no-op logger.
func New(provider imagestats.Provider, logger *slog.Logger) *Assembler {
	return &Assembler{
		provider: provider,
		logger:   logging.NewComponentLogger(logger, "assembler"),
	}
}

// Assemble writes one output image per unit derived from the content pages
// and their merge decisions, then promotes the staged set to outputDir.
// decisions[i] applies to the pair (pages[2i], pages[2i+1]); a trailing
// unpaired page becomes a singleton.
//
// A pair whose merged image cannot be produced degrades to two separate
// copies and is counted in PairFailures. Directory-level failures return
// ErrWriteFailure (wrapped) and leave no output behind.
func (a *Assembler) Assemble(ctx context.Context, pages []catalog.Page, decisions []spread.Decision, stagingDir, outputDir string) (Result, error) {
	if len(pages)/2 != len(decisions) {
		return Result{}, fmt.Errorf("assemble: %d decisions for %d content pages", len(decisions), len(pages))
	}

	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("%w: create staging: %v", ErrWriteFailure, err)
	}
	defer func() {
		// No-op after a successful promotion; otherwise removes every staged
		// write so a failed run leaves nothing.
		_ = os.RemoveAll(stagingDir)
	}()

	// First materialize merged images under pair-indexed temporary names.
	// A failed merge flips that pair's decision to separate, so the final
	// slot numbering reflects what was actually written.
	effective := append([]spread.Decision(nil), decisions...)
	merged := make(map[int]string, len(decisions))
	failures := 0
	for i, decision := range effective {
		if !decision.Merge {
			continue
		}
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		left, right := pages[2*i], pages[2*i+1]
		tmp := filepath.Join(stagingDir, fmt.Sprintf("merge-%d%s", i, mergedExt(left)))
		if err := a.provider.ConcatHorizontal(ctx, left.Path, right.Path, tmp); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return Result{}, err
			}
			a.logger.Warn("merged image could not be written, keeping pages separate",
				logging.String("left", left.Name()),
				logging.String("right", right.Name()),
				logging.Error(err),
			)
			effective[i].Merge = false
			failures++
			_ = os.Remove(tmp)
			continue
		}
		merged[i] = tmp
	}

	result := Result{PairFailures: failures}
	width := slotWidth(len(pages))
	for _, unit := range planUnits(pages, effective, width) {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		dst := filepath.Join(stagingDir, unit.Filename)
		switch unit.Kind {
		case KindMerged:
			if err := os.Rename(merged[unit.pairIndex], dst); err != nil {
				return Result{}, fmt.Errorf("%w: place merged image: %v", ErrWriteFailure, err)
			}
			result.Merged++
		case KindSeparate, KindSingleton:
			if err := fileutil.CopyFileVerified(unit.Pages[0].Path, dst); err != nil {
				return Result{}, fmt.Errorf("%w: copy %s: %v", ErrWriteFailure, unit.Pages[0].Name(), err)
			}
			if unit.Kind == KindSingleton {
				result.Singleton++
			} else {
				result.Separate++
			}
		}
		result.Units = append(result.Units, unit.Unit)
	}

	if err := promote(stagingDir, outputDir); err != nil {
		return Result{}, err
	}
	a.logger.Info("output committed",
		logging.Int("units", len(result.Units)),
		logging.String("output_dir", outputDir),
	)
	return result, nil
}

// CopyAll writes one verbatim copy per page, preserving catalog order, with
// the same staging and promotion discipline as Assemble. It backs the mode
// where spread detection is disabled.
func (a *Assembler) CopyAll(ctx context.Context, pages []catalog.Page, stagingDir, outputDir string) (Result, error) {
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("%w: create staging: %v", ErrWriteFailure, err)
	}
	defer func() {
		_ = os.RemoveAll(stagingDir)
	}()

	var result Result
	width := slotWidth(len(pages))
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		unit := Unit{
			Kind:     KindSeparate,
			Slot:     i,
			Filename: slotName(i, width, strings.ToLower(filepath.Ext(page.Path))),
			Pages:    []catalog.Page{page},
		}
		if err := fileutil.CopyFileVerified(page.Path, filepath.Join(stagingDir, unit.Filename)); err != nil {
			return Result{}, fmt.Errorf("%w: copy %s: %v", ErrWriteFailure, page.Name(), err)
		}
		result.Separate++
		result.Units = append(result.Units, unit)
	}

	if err := promote(stagingDir, outputDir); err != nil {
		return Result{}, err
	}
	return result, nil
}

type plannedUnit struct {
	Unit
	pairIndex int
}

// planUnits assigns each output unit its final slot. Slots are a pure
// function of catalog position and the (effective) decision set, so the
// numbering is deterministic and gapless with no shared running counter.
func planUnits(pages []catalog.Page, decisions []spread.Decision, width int) []plannedUnit {
	units := make([]plannedUnit, 0, len(pages))
	slot := 0
	for i := 0; i < len(pages); i += 2 {
		if i+1 >= len(pages) {
			page := pages[i]
			units = append(units, plannedUnit{Unit: Unit{
				Kind:     KindSingleton,
				Slot:     slot,
				Filename: slotName(slot, width, strings.ToLower(filepath.Ext(page.Path))),
				Pages:    []catalog.Page{page},
			}})
			break
		}
		left, right := pages[i], pages[i+1]
		if decisions[i/2].Merge {
			units = append(units, plannedUnit{
				Unit: Unit{
					Kind:     KindMerged,
					Slot:     slot,
					Filename: slotName(slot, width, mergedExt(left)),
					Pages:    []catalog.Page{left, right},
				},
				pairIndex: i / 2,
			})
			slot++
			continue
		}
		for _, page := range []catalog.Page{left, right} {
			units = append(units, plannedUnit{Unit: Unit{
				Kind:     KindSeparate,
				Slot:     slot,
				Filename: slotName(slot, width, strings.ToLower(filepath.Ext(page.Path))),
				Pages:    []catalog.Page{page},
			}})
			slot++
		}
	}
	return units
}

// slotWidth sizes the zero-padded counter to the worst-case output count so
// lexical sort of filenames always reconstructs unit order.
func slotWidth(totalContentPages int) int {
	width := len(strconv.Itoa(totalContentPages))
	if width < 3 {
		width = 3
	}
	return width
}

func slotName(slot, width int, ext string) string {
	return fmt.Sprintf("page-%0*d%s", width, slot+1, ext)
}

// mergedExt picks the merged image format from the left page: JPEG stays
// JPEG, everything else (png, webp) is written as PNG so both providers can
// encode it.
func mergedExt(left catalog.Page) string {
	switch strings.ToLower(filepath.Ext(left.Path)) {
	case ".jpg", ".jpeg":
		return ".jpg"
	default:
		return ".png"
	}
}

// promote commits the staged output set. It prefers an atomic rename and
// falls back to a copy when staging and output live on different
// filesystems; in the fallback, a partially copied output directory is
// removed before the error is returned.
func promote(stagingDir, outputDir string) error {
	if info, err := os.Stat(outputDir); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%w: output path %s is not a directory", ErrWriteFailure, outputDir)
		}
		entries, err := os.ReadDir(outputDir)
		if err != nil {
			return fmt.Errorf("%w: inspect output: %v", ErrWriteFailure, err)
		}
		if len(entries) > 0 {
			return fmt.Errorf("%w: output directory %s is not empty", ErrWriteFailure, outputDir)
		}
		if err := os.Remove(outputDir); err != nil {
			return fmt.Errorf("%w: replace output: %v", ErrWriteFailure, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: inspect output: %v", ErrWriteFailure, err)
	}

	if err := os.Rename(stagingDir, outputDir); err == nil {
		return nil
	}

	// Cross-device staging: copy file by file, all or nothing.
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("%w: create output: %v", ErrWriteFailure, err)
	}
	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		return fmt.Errorf("%w: read staging: %v", ErrWriteFailure, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		src := filepath.Join(stagingDir, entry.Name())
		dst := filepath.Join(outputDir, entry.Name())
		if err := fileutil.CopyFile(src, dst); err != nil {
			_ = os.RemoveAll(outputDir)
			return fmt.Errorf("%w: promote %s: %v", ErrWriteFailure, entry.Name(), err)
		}
	}
	return nil
}
