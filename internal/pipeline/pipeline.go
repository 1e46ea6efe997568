// Package pipeline runs one preparation pass over a source directory:
// catalog, blank classification, spread pairing, and assembly into the
// output directory.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"pagebind/internal/assemble"
	"pagebind/internal/catalog"
	"pagebind/internal/classify"
	"pagebind/internal/config"
	"pagebind/internal/imagestats"
	"pagebind/internal/logging"
	"pagebind/internal/spread"
)

// Report summarizes one run. An empty source directory yields a report with
// every counter at zero and no output directory.
type Report struct {
	RunID            string
	SourceDir        string
	OutputDir        string
	TotalPages       int
	BlankSkipped     int
	PairsMerged      int
	PairsSeparated   int
	SingletonEmitted int
	PairFailures     int
	OutputUnits      int
	SpreadDetection  bool
	Elapsed          time.Duration
}

// Orchestrator wires the pipeline stages for a configured provider.
type Orchestrator struct {
	cfg      *config.Config
	provider imagestats.Provider
	logger   *slog.Logger
}

// New builds an orchestrator over cfg and provider. A nil logger disables
// logging.
func New(cfg *config.Config, provider imagestats.Provider, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{cfg: cfg, provider: provider, logger: logger}
}

// stages holds the per-run components, built from a run-scoped logger so
// every log line carries the run id.
type stages struct {
	catalog    *catalog.Catalog
	classifier *classify.Classifier
	analyzer   *spread.Analyzer
	assembler  *assemble.Assembler
	logger     *slog.Logger
}

func (o *Orchestrator) newStages(ctx context.Context) *stages {
	logger := logging.WithContext(ctx, o.logger)
	return &stages{
		catalog:    catalog.New(logger),
		classifier: classify.New(o.provider, logger),
		analyzer:   spread.New(o.provider, logger),
		assembler:  assemble.New(o.provider, logger),
		logger:     logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Run prepares sourceDir into outputDir and returns the run report.
//
// The provider is probed before any page is touched; an unavailable provider
// aborts the run with imagestats.ErrUnavailable. Classification completes
// for every page before the first pair is evaluated. Output is committed
// atomically by the assembler; any write failure surfaces as
// assemble.ErrWriteFailure with nothing left in outputDir.
func (o *Orchestrator) Run(ctx context.Context, sourceDir, outputDir string) (Report, error) {
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	st := o.newStages(ctx)
	start := time.Now()

	report := Report{
		RunID:           runID,
		SourceDir:       sourceDir,
		OutputDir:       outputDir,
		SpreadDetection: o.cfg.Pipeline.SpreadDetection,
	}

	if err := o.provider.Ping(ctx); err != nil {
		if !errors.Is(err, imagestats.ErrUnavailable) {
			err = fmt.Errorf("%w: %v", imagestats.ErrUnavailable, err)
		}
		return report, err
	}

	pages, err := st.catalog.Build(sourceDir)
	if err != nil {
		return report, fmt.Errorf("catalog %s: %w", sourceDir, err)
	}
	report.TotalPages = len(pages)
	if len(pages) == 0 {
		report.Elapsed = time.Since(start)
		st.logger.Info("no pages found, nothing to do", logging.String("source_dir", sourceDir))
		return report, nil
	}
	st.logger.Info("run started",
		logging.String("source_dir", sourceDir),
		logging.Int("pages", len(pages)),
		logging.Bool("spread_detection", o.cfg.Pipeline.SpreadDetection),
	)

	// Every page is classified before any pairing so blank removal cannot
	// shift pair boundaries mid-flight.
	content := make([]catalog.Page, 0, len(pages))
	for i := range pages {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		pages[i].Flag = st.classifier.Classify(ctx, pages[i])
		if pages[i].Flag == catalog.FlagContent {
			content = append(content, pages[i])
		}
	}
	report.BlankSkipped = len(pages) - len(content)

	stagingDir := filepath.Join(o.cfg.Paths.StagingDir, "run-"+runID)

	if !o.cfg.Pipeline.SpreadDetection {
		result, err := st.assembler.CopyAll(ctx, content, stagingDir, outputDir)
		if err != nil {
			return report, err
		}
		report.OutputUnits = len(result.Units)
		report.Elapsed = time.Since(start)
		st.logFinished(report)
		return report, nil
	}

	decisions, decisionFailures, err := o.decidePairs(ctx, st, content)
	if err != nil {
		return report, err
	}

	result, err := st.assembler.Assemble(ctx, content, decisions, stagingDir, outputDir)
	if err != nil {
		return report, err
	}
	report.PairsMerged = result.Merged
	report.PairsSeparated = len(decisions) - result.Merged
	report.SingletonEmitted = result.Singleton
	report.PairFailures = decisionFailures + result.PairFailures
	report.OutputUnits = len(result.Units)
	report.Elapsed = time.Since(start)
	st.logFinished(report)
	return report, nil
}

// decidePairs evaluates every adjacent content pair, fanning out across the
// configured worker count. Decisions land in a slice indexed by pair, so the
// result is identical regardless of evaluation order. A pair whose edge
// statistics cannot be read stays separate and is counted as a failure.
func (o *Orchestrator) decidePairs(ctx context.Context, st *stages, content []catalog.Page) ([]spread.Decision, int, error) {
	pairCount := len(content) / 2
	decisions := make([]spread.Decision, pairCount)
	if pairCount == 0 {
		return decisions, 0, nil
	}

	workers := o.cfg.Pipeline.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > pairCount {
		workers = pairCount
	}

	var (
		mu       sync.Mutex
		failures int
		runErr   error
	)
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				left, right := content[2*i], content[2*i+1]
				decision, err := st.analyzer.Decide(ctx, left, right)
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						mu.Lock()
						if runErr == nil {
							runErr = err
						}
						mu.Unlock()
						continue
					}
					st.logger.Warn("pair evaluation failed, keeping pages separate",
						logging.Int(logging.FieldPairIndex, i),
						logging.String("left", left.Name()),
						logging.String("right", right.Name()),
						logging.Error(err),
					)
					decision = spread.Decision{Merge: false, Reason: "edge statistics unavailable"}
					mu.Lock()
					failures++
					mu.Unlock()
				}
				decisions[i] = decision
			}
		}()
	}
	for i := 0; i < pairCount; i++ {
		if ctx.Err() != nil {
			break
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if runErr == nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}
	return decisions, failures, runErr
}

func (st *stages) logFinished(report Report) {
	st.logger.Info("run finished",
		logging.Int("pages", report.TotalPages),
		logging.Int("blank_skipped", report.BlankSkipped),
		logging.Int("pairs_merged", report.PairsMerged),
		logging.Int("pairs_separated", report.PairsSeparated),
		logging.Int("singletons", report.SingletonEmitted),
		logging.Int("pair_failures", report.PairFailures),
		logging.Int("output_units", report.OutputUnits),
		logging.Duration("elapsed", report.Elapsed.Round(time.Millisecond)),
	)
}
