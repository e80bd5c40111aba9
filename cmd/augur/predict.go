package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/augurfin/expense-augur/internal/engine"
	"github.com/augurfin/expense-augur/internal/vendor"
	"github.com/spf13/cobra"
)

func predictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict [transaction-ids...]",
		Short: "Generate predictions for transactions without one",
		Long: `Score every imported transaction that has no prediction yet against the
owner's learned patterns. Transactions whose vendor matches no pattern,
or matches one still below the occurrence minimum, stay unpredicted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			owner, err := requireOwner()
			if err != nil {
				return err
			}

			cfg, err := engineConfig()
			if err != nil {
				return err
			}

			db, cleanup, err := getDatabase()
			if err != nil {
				return err
			}
			defer cleanup()

			generator := engine.NewGenerator(db, vendor.NewNormalizer(db),
				engine.NewStoredReceiptMatcher(db, owner), cfg)

			var created int
			if len(args) > 0 {
				created, err = generator.Generate(ctx, owner, args)
			} else {
				created, err = generator.GenerateAllPending(ctx, owner)
			}
			if err != nil {
				return fmt.Errorf("prediction generation failed: %w", err)
			}

			slog.Info("Prediction generation complete", "predictions_created", created)
			return nil
		},
	}

	return cmd
}

func upcomingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upcoming",
		Short: "Show transactions a new draft report would pre-select",
		Long: `Show the pending high-confidence predictions for a reporting period, in
the order a draft expense report would pre-select them.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			owner, err := requireOwner()
			if err != nil {
				return err
			}

			start, end, err := periodFromFlags(cmd)
			if err != nil {
				return err
			}

			db, cleanup, err := getDatabase()
			if err != nil {
				return err
			}
			defer cleanup()

			suggested, err := engine.NewPrePopulator(db).SuggestedTransactions(ctx, owner, start, end)
			if err != nil {
				return fmt.Errorf("failed to load suggestions: %w", err)
			}
			if len(suggested) == 0 {
				slog.Info("No suggested transactions for period",
					"from", start.Format("2006-01-02"),
					"to", end.Format("2006-01-02"))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "DATE\tMERCHANT\tAMOUNT\tSCORE\tRECEIPT\tPREDICTION")
			_, _ = fmt.Fprintln(w, "────\t────────\t──────\t─────\t───────\t──────────")
			for _, st := range suggested {
				receipt := ""
				if st.HasReceiptMatch {
					receipt = "yes"
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\t%s\n",
					st.Transaction.Date.Format("2006-01-02"),
					truncateString(st.Transaction.VendorText(), 30),
					st.Transaction.Amount.StringFixed(2),
					st.Prediction.Score,
					receipt,
					st.Prediction.ID)
			}
			return w.Flush()
		},
	}

	cmd.Flags().String("from", "", "Period start (YYYY-MM-DD, default: first of current month)")
	cmd.Flags().String("to", "", "Period end (YYYY-MM-DD, default: today)")
	return cmd
}

// periodFromFlags resolves --from/--to, defaulting to the current month so
// far.
func periodFromFlags(cmd *cobra.Command) (time.Time, time.Time, error) {
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := now

	if from, _ := cmd.Flags().GetString("from"); from != "" {
		parsed, err := time.Parse("2006-01-02", from)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from date %q: %w", from, err)
		}
		start = parsed
	}
	if to, _ := cmd.Flags().GetString("to"); to != "" {
		parsed, err := time.Parse("2006-01-02", to)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to date %q: %w", to, err)
		}
		// Include the whole end day
		end = parsed.Add(24*time.Hour - time.Nanosecond)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("period end %s is before start %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	return start, end, nil
}
