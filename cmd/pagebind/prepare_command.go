package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pagebind/internal/logging"
	"pagebind/internal/pipeline"
	"pagebind/internal/runlock"
	"pagebind/internal/runlog"
)

func newPrepareCommand(ctx *commandContext) *cobra.Command {
	var noSpreads bool
	var workers int
	var providerName string

	cmd := &cobra.Command{
		Use:   "prepare SOURCE_DIR OUTPUT_DIR",
		Short: "Drop blank pages and join spreads from SOURCE_DIR into OUTPUT_DIR",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if noSpreads {
				cfg.Pipeline.SpreadDetection = false
			}
			if cmd.Flags().Changed("workers") {
				cfg.Pipeline.Workers = workers
			}
			if cmd.Flags().Changed("provider") {
				cfg.Pipeline.Provider = strings.ToLower(strings.TrimSpace(providerName))
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			sourceDir, err := expandArg(args[0])
			if err != nil {
				return err
			}
			outputDir, err := expandArg(args[1])
			if err != nil {
				return err
			}

			logger, err := logging.New(logging.Options{
				Level:       cfg.Logging.Level,
				Format:      cfg.Logging.Format,
				OutputPaths: []string{"stderr", cfg.LogFilePath()},
			})
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}

			provider, err := buildProvider(cfg)
			if err != nil {
				return err
			}

			lock, err := runlock.New(cfg.Paths.StagingDir, outputDir)
			if err != nil {
				return err
			}
			if err := lock.Acquire(); err != nil {
				if errors.Is(err, runlock.ErrHeld) {
					return fmt.Errorf("another pagebind run is already writing to %s", outputDir)
				}
				return err
			}
			defer func() { _ = lock.Release() }()

			store, err := runlog.Open(cfg)
			if err != nil {
				return fmt.Errorf("open run history: %w", err)
			}
			defer store.Close()

			report, runErr := pipeline.New(cfg, provider, logger).Run(cmd.Context(), sourceDir, outputDir)

			record := recordFromReport(report)
			if runErr != nil {
				record.Status = runlog.StatusFailed
				record.Error = runErr.Error()
			}
			if recordErr := store.Record(cmd.Context(), record); recordErr != nil {
				logger.Warn("run history not recorded", logging.Error(recordErr))
			}
			if runErr != nil {
				return runErr
			}

			printReport(cmd, report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noSpreads, "no-spreads", false, "Copy non-blank pages without spread detection")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent pair evaluations (default from config)")
	cmd.Flags().StringVar(&providerName, "provider", "", "Statistics provider: native or magick")
	return cmd
}

func recordFromReport(report pipeline.Report) runlog.Record {
	return runlog.Record{
		RunID:            report.RunID,
		SourceDir:        report.SourceDir,
		OutputDir:        report.OutputDir,
		Status:           runlog.StatusCompleted,
		TotalPages:       report.TotalPages,
		BlankSkipped:     report.BlankSkipped,
		PairsMerged:      report.PairsMerged,
		PairsSeparated:   report.PairsSeparated,
		SingletonEmitted: report.SingletonEmitted,
		PairFailures:     report.PairFailures,
		OutputUnits:      report.OutputUnits,
		SpreadDetection:  report.SpreadDetection,
		Elapsed:          report.Elapsed,
	}
}

func printReport(cmd *cobra.Command, report pipeline.Report) {
	out := cmd.OutOrStdout()

	if report.TotalPages == 0 {
		fmt.Fprintf(out, "No pages found in %s\n", report.SourceDir)
		return
	}

	rows := [][]string{
		{"Pages scanned", fmt.Sprintf("%d", report.TotalPages)},
		{"Blank skipped", fmt.Sprintf("%d", report.BlankSkipped)},
		{"Pairs merged", fmt.Sprintf("%d", report.PairsMerged)},
		{"Pairs separated", fmt.Sprintf("%d", report.PairsSeparated)},
		{"Singletons", fmt.Sprintf("%d", report.SingletonEmitted)},
		{"Pair failures", fmt.Sprintf("%d", report.PairFailures)},
		{"Output units", fmt.Sprintf("%d", report.OutputUnits)},
		{"Spread detection", yesNo(report.SpreadDetection)},
		{"Elapsed", report.Elapsed.Round(time.Millisecond).String()},
	}

	if isTerminal(out) {
		fmt.Fprintln(out, renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
	} else {
		for _, row := range rows {
			fmt.Fprintf(out, "%s: %s\n", row[0], row[1])
		}
	}
	fmt.Fprintf(out, "Output written to %s\n", report.OutputDir)
}
