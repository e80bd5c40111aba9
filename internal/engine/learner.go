package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/augurfin/expense-augur/internal/common"
	"github.com/augurfin/expense-augur/internal/model"
	"github.com/augurfin/expense-augur/internal/service"
	"github.com/shopspring/decimal"
)

// Learner ingests historical expense reports and maintains per-vendor
// spending patterns with decay-weighted statistics.
type Learner struct {
	store      service.Storage
	normalizer service.VendorNormalizer
	now        func() time.Time
}

// NewLearner creates a learner. The clock is injectable for tests.
func NewLearner(store service.Storage, normalizer service.VendorNormalizer) *Learner {
	return &Learner{
		store:      store,
		normalizer: normalizer,
		now:        time.Now,
	}
}

// WithClock overrides the learner's clock. Test hook.
func (l *Learner) WithClock(now func() time.Time) *Learner {
	l.now = now
	return l
}

// LearnFromReport updates or creates patterns from every line of one
// expense report and returns how many patterns were touched. The whole
// report is a single flush boundary: all pattern mutations commit together
// or not at all. A normalizer failure on one line skips that line only; a
// persistence failure aborts the batch.
func (l *Learner) LearnFromReport(ctx context.Context, ownerID string, reportID int64) (int, error) {
	report, err := l.store.GetReport(ctx, ownerID, reportID)
	if err != nil {
		return 0, fmt.Errorf("failed to load report %d: %w", reportID, err)
	}

	lines, err := l.store.GetReportLines(ctx, ownerID, reportID)
	if err != nil {
		return 0, fmt.Errorf("failed to load report lines: %w", err)
	}
	if len(lines) == 0 {
		return 0, nil
	}

	// Vendor keys are resolved before the batch transaction opens: alias
	// lookups run on the base connection, which the open transaction would
	// hold.
	type learnableLine struct {
		line      *model.ReportLine
		vendorKey string
	}
	learnable := make([]learnableLine, 0, len(lines))
	for i := range lines {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		line := &lines[i]
		vendorKey, err := l.normalizer.Normalize(ctx, ownerID, line.VendorText)
		if err != nil {
			// Collaborator failure is not fatal to the batch; the line is
			// simply not learnable.
			slog.Warn("Skipping unnormalizable report line",
				"report_id", reportID,
				"transaction_id", line.TransactionID,
				"error", err)
			continue
		}
		learnable = append(learnable, learnableLine{line: line, vendorKey: vendorKey})
	}
	if len(learnable) == 0 {
		return 0, nil
	}

	tx, err := l.store.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin learning batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	touched := 0
	for _, item := range learnable {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		if err := l.learnLine(ctx, tx, ownerID, item.vendorKey, item.line, report.ReportDate); err != nil {
			return 0, fmt.Errorf("failed to learn line for vendor %q: %w", item.vendorKey, err)
		}
		touched++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit learning batch: %w", err)
	}

	return touched, nil
}

// learnLine applies one report line to its pattern inside the batch
// transaction.
func (l *Learner) learnLine(ctx context.Context, tx service.Tx, ownerID, vendorKey string, line *model.ReportLine, reportDate time.Time) error {
	pattern, err := tx.GetPattern(ctx, ownerID, vendorKey)
	switch {
	case errors.Is(err, common.ErrNotFound):
		return tx.CreatePattern(ctx, newPattern(ownerID, vendorKey, line, reportDate))
	case err != nil:
		return err
	}

	applyObservation(pattern, line, reportDate, l.now())
	return tx.UpdatePattern(ctx, pattern)
}

// newPattern seeds a pattern from its first observed line.
func newPattern(ownerID, vendorKey string, line *model.ReportLine, reportDate time.Time) *model.ExpensePattern {
	return &model.ExpensePattern{
		OwnerID:           ownerID,
		VendorKey:         vendorKey,
		DisplayName:       line.VendorText,
		DefaultCategory:   line.CategoryCode,
		DefaultDepartment: line.DepartmentCode,
		AverageAmount:     line.Amount,
		MinAmount:         line.Amount,
		MaxAmount:         line.Amount,
		OccurrenceCount:   1,
		LastSeenAt:        reportDate,
	}
}

// applyObservation folds one observation into an existing pattern. Older
// reports contribute less to the running average: the previous average is
// discounted by the decay weight of the report's age, so a fresh
// observation dominates stale history.
func applyObservation(pattern *model.ExpensePattern, line *model.ReportLine, reportDate, now time.Time) {
	weight := DecayWeight(now.Sub(reportDate))

	w := decimal.NewFromFloat(weight)
	pattern.AverageAmount = pattern.AverageAmount.Mul(w).
		Add(line.Amount).
		Div(w.Add(decimal.NewFromInt(1))).
		Round(4)

	if line.Amount.LessThan(pattern.MinAmount) {
		pattern.MinAmount = line.Amount
	}
	if line.Amount.GreaterThan(pattern.MaxAmount) {
		pattern.MaxAmount = line.Amount
	}

	pattern.OccurrenceCount++
	// Last-seen reflects the freshest observation, not the report date.
	pattern.LastSeenAt = now

	if line.CategoryCode != "" {
		pattern.DefaultCategory = line.CategoryCode
	}
	if line.DepartmentCode != "" {
		pattern.DefaultDepartment = line.DepartmentCode
	}
}

// RebuildAll deletes every pattern the owner has and replays all of their
// reports in creation order. This is the only supported correction
// mechanism for drift or double-counted history. The progress callback, if
// non-nil, is invoked after each replayed report.
func (l *Learner) RebuildAll(ctx context.Context, ownerID string, progress func(done, total int)) (int, error) {
	deleted, err := l.store.DeletePatternsForOwner(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear patterns: %w", err)
	}

	reportIDs, err := l.store.GetReportIDs(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to list reports: %w", err)
	}

	slog.Info("Rebuilding expense patterns",
		"owner_id", ownerID,
		"cleared_patterns", deleted,
		"reports", len(reportIDs))

	touched := 0
	for i, reportID := range reportIDs {
		if err := ctx.Err(); err != nil {
			return touched, err
		}

		n, err := l.LearnFromReport(ctx, ownerID, reportID)
		if err != nil {
			return touched, fmt.Errorf("rebuild failed at report %d: %w", reportID, err)
		}
		touched += n

		if progress != nil {
			progress(i+1, len(reportIDs))
		}
	}

	return touched, nil
}
