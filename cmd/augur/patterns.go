package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/augurfin/expense-augur/internal/engine"
	"github.com/augurfin/expense-augur/internal/model"
	"github.com/augurfin/expense-augur/internal/service"
	"github.com/spf13/cobra"
)

func patternsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "patterns",
		Aliases: []string{"pattern"},
		Short:   "Inspect and manage learned vendor patterns",
		Long: `Inspect the vendor spending patterns the engine has learned, and
suppress, re-enable, or delete them.`,
	}

	cmd.AddCommand(patternsListCmd())
	cmd.AddCommand(patternsShowCmd())
	cmd.AddCommand(patternsActionCmd("suppress", "Suppress patterns so they stop producing predictions", engine.PatternActionSuppress))
	cmd.AddCommand(patternsActionCmd("enable", "Re-enable suppressed patterns", engine.PatternActionEnable))
	cmd.AddCommand(patternsActionCmd("delete", "Delete patterns permanently", engine.PatternActionDelete))

	return cmd
}

func patternsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List learned vendor patterns",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			owner, err := requireOwner()
			if err != nil {
				return err
			}

			status, _ := cmd.Flags().GetString("status")
			category, _ := cmd.Flags().GetString("category")
			search, _ := cmd.Flags().GetString("search")
			sortBy, _ := cmd.Flags().GetString("sort")
			desc, _ := cmd.Flags().GetBool("desc")
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")

			db, cleanup, err := getDatabase()
			if err != nil {
				return err
			}
			defer cleanup()

			patterns, total, err := db.ListPatterns(ctx, owner, service.PatternFilter{
				Status:       service.PatternStatusFilter(status),
				Category:     category,
				VendorSearch: search,
				SortBy:       service.PatternSortKey(sortBy),
				SortDesc:     desc,
				Limit:        limit,
				Offset:       offset,
			})
			if err != nil {
				return fmt.Errorf("failed to list patterns: %w", err)
			}
			if len(patterns) == 0 {
				slog.Info("No patterns found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tVENDOR\tCATEGORY\tAVG AMOUNT\tSEEN\tACCURACY\tSTATUS")
			_, _ = fmt.Fprintln(w, "──\t──────\t────────\t──────────\t────\t────────\t──────")
			for i := range patterns {
				p := &patterns[i]
				accuracy := "-"
				if p.HasFeedback() {
					accuracy = fmt.Sprintf("%.0f%%", p.AccuracyRate()*100)
				}
				status := "active"
				if p.IsSuppressed {
					status = "suppressed"
				}
				_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
					p.ID,
					truncateString(p.DisplayName, 30),
					p.DefaultCategory,
					p.AverageAmount.StringFixed(2),
					p.OccurrenceCount,
					accuracy,
					status)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Printf("\nShowing %d of %d patterns\n", len(patterns), total)
			return nil
		},
	}

	cmd.Flags().String("status", "active", "Filter by status (all, active, suppressed)")
	cmd.Flags().StringP("category", "c", "", "Filter by default category")
	cmd.Flags().StringP("search", "s", "", "Search vendor names")
	cmd.Flags().String("sort", "name", "Sort by (accuracy, name, average_amount, occurrences)")
	cmd.Flags().Bool("desc", false, "Sort descending")
	cmd.Flags().Int("limit", 50, "Maximum patterns to show")
	cmd.Flags().Int("offset", 0, "Patterns to skip")
	return cmd
}

func patternsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <pattern-id>",
		Short: "Show one pattern in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid pattern ID %q: %w", args[0], err)
			}

			db, cleanup, err := getDatabase()
			if err != nil {
				return err
			}
			defer cleanup()

			p, err := db.GetPatternByID(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to load pattern: %w", err)
			}

			printPattern(p)
			return nil
		},
	}
}

func printPattern(p *model.ExpensePattern) {
	status := "active"
	if p.IsSuppressed {
		status = "suppressed"
	}

	fmt.Printf("Pattern %d: %s\n", p.ID, p.DisplayName)
	fmt.Printf("  Vendor key:      %s\n", p.VendorKey)
	fmt.Printf("  Status:          %s\n", status)
	fmt.Printf("  Category:        %s\n", p.DefaultCategory)
	fmt.Printf("  Department:      %s\n", p.DefaultDepartment)
	fmt.Printf("  Average amount:  %s (range %s - %s)\n",
		p.AverageAmount.StringFixed(2), p.MinAmount.StringFixed(2), p.MaxAmount.StringFixed(2))
	fmt.Printf("  Occurrences:     %d\n", p.OccurrenceCount)
	fmt.Printf("  Last seen:       %s\n", p.LastSeenAt.Format("2006-01-02"))
	if p.HasFeedback() {
		fmt.Printf("  Feedback:        %d confirmed, %d rejected (%.0f%% accuracy)\n",
			p.ConfirmCount, p.RejectCount, p.AccuracyRate()*100)
	} else {
		fmt.Printf("  Feedback:        none yet\n")
	}
	if p.RequiresReceiptMatch {
		fmt.Printf("  Receipt match:   required\n")
	}
}

func patternsActionCmd(name, short string, action engine.PatternAction) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <pattern-ids...>",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid pattern ID %q: %w", arg, err)
				}
				ids = append(ids, id)
			}

			db, cleanup, err := getDatabase()
			if err != nil {
				return err
			}
			defer cleanup()

			results, err := engine.NewPatternManager(db).Apply(ctx, action, ids)
			if err != nil {
				return err
			}

			succeeded := 0
			for _, r := range results {
				if r.Err != nil {
					slog.Warn("Pattern action failed", "action", name, "pattern_id", r.ID, "error", r.Err)
					continue
				}
				succeeded++
			}

			slog.Info("Pattern action complete", "action", name, "succeeded", succeeded, "failed", len(results)-succeeded)
			if succeeded < len(results) {
				return fmt.Errorf("%d of %d patterns failed", len(results)-succeeded, len(results))
			}
			return nil
		},
	}
}

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show prediction engine health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			owner, err := requireOwner()
			if err != nil {
				return err
			}

			db, cleanup, err := getDatabase()
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := db.GetDashboardStats(ctx, owner)
			if err != nil {
				return fmt.Errorf("failed to load dashboard stats: %w", err)
			}

			fmt.Printf("Prediction engine status for %s\n\n", owner)
			fmt.Printf("  Active patterns:      %d\n", stats.ActivePatterns)
			fmt.Printf("  Pending predictions:  %d high, %d medium, %d low\n",
				stats.PendingByLevel[model.ConfidenceHigh],
				stats.PendingByLevel[model.ConfidenceMedium],
				stats.PendingByLevel[model.ConfidenceLow])
			fmt.Printf("  Resolved:             %d confirmed, %d rejected\n",
				stats.ConfirmedTotal, stats.RejectedTotal)
			if stats.ConfirmedTotal+stats.RejectedTotal > 0 {
				fmt.Printf("  Overall accuracy:     %.0f%%\n", stats.OverallAccuracy*100)
			}
			return nil
		},
	}
}
