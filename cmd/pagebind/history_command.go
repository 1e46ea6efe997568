package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pagebind/internal/runlog"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent preparation runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			store, err := runlog.Open(cfg)
			if err != nil {
				return fmt.Errorf("open run history: %w", err)
			}
			defer store.Close()

			records, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No runs recorded yet")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				detail := rec.Error
				if rec.Status == runlog.StatusCompleted {
					detail = fmt.Sprintf("%d units from %d pages", rec.OutputUnits, rec.TotalPages)
				}
				rows = append(rows, []string{
					rec.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					shortID(rec.RunID),
					rec.Status,
					fmt.Sprintf("%d", rec.PairsMerged),
					fmt.Sprintf("%d", rec.BlankSkipped),
					rec.Elapsed.Round(time.Millisecond).String(),
					detail,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"When", "Run", "Status", "Merged", "Blank", "Elapsed", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
