package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/augurfin/expense-augur/internal/engine"
	"github.com/augurfin/expense-augur/internal/service"
	"github.com/spf13/cobra"
)

func feedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Confirm or reject predictions",
		Long: `Confirm or reject pending predictions. Feedback feeds back into the
matched pattern's statistics; a pattern that keeps getting rejected is
automatically suppressed.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "confirm <prediction-ids...>",
		Short: "Confirm pending predictions as reimbursable",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeedbackBatch(cmd.Context(), args, func(p *engine.Processor, ctx context.Context, ids []string) ([]service.ItemResult, error) {
				return p.ConfirmBatch(ctx, ids)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reject <prediction-ids...>",
		Short: "Reject pending predictions as not reimbursable",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeedbackBatch(cmd.Context(), args, func(p *engine.Processor, ctx context.Context, ids []string) ([]service.ItemResult, error) {
				return p.RejectBatch(ctx, ids)
			})
		},
	})

	return cmd
}

func runFeedbackBatch(ctx context.Context, ids []string, action func(*engine.Processor, context.Context, []string) ([]service.ItemResult, error)) error {
	cfg, err := engineConfig()
	if err != nil {
		return err
	}

	db, cleanup, err := getDatabase()
	if err != nil {
		return err
	}
	defer cleanup()

	results, err := action(engine.NewProcessor(db, cfg), ctx, ids)
	if err != nil {
		return err
	}

	succeeded := 0
	for _, r := range results {
		if r.Err != nil {
			slog.Warn("Feedback failed for prediction", "prediction_id", r.ID, "error", r.Err)
			continue
		}
		succeeded++
	}

	slog.Info("Feedback applied", "succeeded", succeeded, "failed", len(results)-succeeded)
	if succeeded < len(results) {
		return fmt.Errorf("%d of %d predictions failed", len(results)-succeeded, len(results))
	}
	return nil
}

func markCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mark <transaction-id>",
		Short: "Manually mark a transaction reimbursable (or not)",
		Long: `Assert directly that a transaction is reimbursable, bypassing learned
patterns. The resulting prediction is a manual override: full confidence,
tied to no pattern, and never counted in pattern statistics.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			notReimbursable, _ := cmd.Flags().GetBool("not")

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

			if err := engine.NewProcessor(db, cfg).ManualMark(ctx, owner, args[0], !notReimbursable); err != nil {
				return fmt.Errorf("failed to mark transaction: %w", err)
			}

			slog.Info("Transaction marked", "transaction_id", args[0], "reimbursable", !notReimbursable)
			return nil
		},
	}

	cmd.Flags().Bool("not", false, "Mark as NOT reimbursable")
	return cmd
}

func unmarkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unmark <transaction-id>",
		Short: "Remove a manual override from a transaction",
		Long: `Remove a manual override so the transaction becomes eligible for pattern
prediction again on the next 'augur predict' run.`,
		Args: cobra.ExactArgs(1),
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

			if err := engine.NewProcessor(db, cfg).ClearManualOverride(ctx, owner, args[0]); err != nil {
				return fmt.Errorf("failed to clear override: %w", err)
			}

			slog.Info("Manual override cleared", "transaction_id", args[0])
			return nil
		},
	}
}
