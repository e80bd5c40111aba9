package main

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/augurfin/expense-augur/internal/engine"
	"github.com/augurfin/expense-augur/internal/vendor"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func learnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "learn <report-id>",
		Short: "Learn vendor patterns from a recorded expense report",
		Long: `Fold one recorded expense report into the owner's vendor patterns.
Each line either creates a new pattern for its vendor or updates the
existing one with a recency-weighted amount average.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			owner, err := requireOwner()
			if err != nil {
				return err
			}

			reportID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid report ID %q: %w", args[0], err)
			}

			db, cleanup, err := getDatabase()
			if err != nil {
				return err
			}
			defer cleanup()

			learner := engine.NewLearner(db, vendor.NewNormalizer(db))
			learned, err := learner.LearnFromReport(ctx, owner, reportID)
			if err != nil {
				return fmt.Errorf("failed to learn from report %d: %w", reportID, err)
			}

			slog.Info("Learning complete", "report_id", reportID, "lines_learned", learned)
			return nil
		},
	}
}

func rebuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild all patterns from recorded report history",
		Long: `Delete the owner's learned patterns and replay every recorded expense
report in submission order. Use this after correcting report data.

Feedback counters are reset along with the patterns; predictions already
made are not touched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			yes, _ := cmd.Flags().GetBool("yes")

			owner, err := requireOwner()
			if err != nil {
				return err
			}

			if !yes {
				return fmt.Errorf("rebuild deletes all learned patterns for %s; re-run with --yes to proceed", owner)
			}

			db, cleanup, err := getDatabase()
			if err != nil {
				return err
			}
			defer cleanup()

			var bar *progressbar.ProgressBar
			progress := func(done, total int) {
				if bar == nil {
					bar = progressbar.Default(int64(total), "Replaying reports")
				}
				_ = bar.Set(done)
			}

			learner := engine.NewLearner(db, vendor.NewNormalizer(db))
			replayed, err := learner.RebuildAll(ctx, owner, progress)
			if err != nil {
				return fmt.Errorf("rebuild failed: %w", err)
			}

			slog.Info("Rebuild complete", "owner", owner, "reports_replayed", replayed)
			return nil
		},
	}

	cmd.Flags().Bool("yes", false, "Confirm deletion and replay")
	return cmd
}
