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
	"github.com/google/uuid"
)

// Processor applies user feedback to predictions, folds it back into
// pattern statistics, and runs the auto-suppression rule.
type Processor struct {
	store service.Storage
	now   func() time.Time
	cfg   Config
	retry service.RetryOptions
}

// NewProcessor creates a feedback processor.
func NewProcessor(store service.Storage, cfg Config) *Processor {
	return &Processor{
		store: store,
		cfg:   cfg,
		now:   time.Now,
		retry: service.RetryOptions{MaxAttempts: 5},
	}
}

// WithClock overrides the processor's clock. Test hook.
func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	return p
}

// Confirm resolves a pending prediction as confirmed, increments the
// pattern's confirm count, and appends an audit record.
func (p *Processor) Confirm(ctx context.Context, predictionID string) error {
	return p.resolve(ctx, predictionID, model.PredictionConfirmed)
}

// Reject resolves a pending prediction as rejected, increments the
// pattern's reject count, evaluates auto-suppression, and appends an
// audit record.
func (p *Processor) Reject(ctx context.Context, predictionID string) error {
	return p.resolve(ctx, predictionID, model.PredictionRejected)
}

// inTx runs fn inside one storage transaction. Everything fn writes
// becomes visible together or not at all.
func (p *Processor) inTx(ctx context.Context, fn func(tx service.Tx) error) error {
	tx, err := p.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin feedback transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// resolve applies one feedback item: the prediction flip, the pattern
// counters, and the audit row commit as a single transaction. A lost
// optimistic-concurrency race on the pattern rolls the whole item back and
// replays it.
func (p *Processor) resolve(ctx context.Context, predictionID string, status model.PredictionStatus) error {
	return common.WithRetry(ctx, func() error {
		return p.inTx(ctx, func(tx service.Tx) error {
			prediction, err := tx.GetPrediction(ctx, predictionID)
			if err != nil {
				return err
			}
			if prediction.IsResolved() {
				return fmt.Errorf("%w: prediction %q is already %s",
					common.ErrValidation, predictionID, prediction.Status)
			}

			resolvedAt := p.now()
			prediction.Status = status
			prediction.ResolvedAt = &resolvedAt
			if err := tx.UpdatePrediction(ctx, prediction); err != nil {
				return err
			}

			if prediction.PatternID != nil {
				if err := p.applyFeedbackToPattern(ctx, tx, *prediction.PatternID, status); err != nil {
					return err
				}
			}

			return p.recordFeedback(ctx, tx, prediction, status)
		})
	}, p.retry)
}

// applyFeedbackToPattern updates pattern feedback counters inside the
// item's transaction.
func (p *Processor) applyFeedbackToPattern(ctx context.Context, tx service.Tx, patternID int64, status model.PredictionStatus) error {
	pattern, err := tx.GetPatternByID(ctx, patternID)
	if err != nil {
		return err
	}

	switch status {
	case model.PredictionConfirmed:
		pattern.ConfirmCount++
	case model.PredictionRejected:
		pattern.RejectCount++
		p.evaluateSuppression(pattern)
	default:
		return fmt.Errorf("%w: cannot apply status %q to pattern", common.ErrValidation, status)
	}

	return tx.UpdatePattern(ctx, pattern)
}

// evaluateSuppression retires a pattern whose feedback shows it is
// unreliable. Suppression is one-way: only an explicit user action
// re-enables the pattern.
func (p *Processor) evaluateSuppression(pattern *model.ExpensePattern) {
	if pattern.IsSuppressed {
		return
	}
	if pattern.RejectCount <= p.cfg.SuppressMinRejects {
		return
	}
	if pattern.AccuracyRate() >= p.cfg.SuppressMaxConfirmRate {
		return
	}

	pattern.IsSuppressed = true
	slog.Info("Auto-suppressed unreliable pattern",
		"pattern_id", pattern.ID,
		"vendor_key", pattern.VendorKey,
		"confirm_count", pattern.ConfirmCount,
		"reject_count", pattern.RejectCount)
}

func (p *Processor) recordFeedback(ctx context.Context, tx service.Tx, prediction *model.TransactionPrediction, status model.PredictionStatus) error {
	feedbackType := model.FeedbackConfirmed
	if status == model.PredictionRejected {
		feedbackType = model.FeedbackRejected
	}

	return tx.SaveFeedback(ctx, &model.PredictionFeedback{
		ID:           uuid.NewString(),
		PredictionID: prediction.ID,
		OwnerID:      prediction.OwnerID,
		Type:         feedbackType,
	})
}

// ManualMark asserts reimbursability for a transaction directly, bypassing
// pattern evidence. An existing prediction is converted into a resolved
// manual override; otherwise a new override prediction is created. The
// result always carries score 1.0, level High, and no pattern reference.
func (p *Processor) ManualMark(ctx context.Context, ownerID, transactionID string, reimbursable bool) error {
	status := model.PredictionConfirmed
	if !reimbursable {
		status = model.PredictionRejected
	}
	resolvedAt := p.now()

	return p.inTx(ctx, func(tx service.Tx) error {
		prediction, err := tx.GetPredictionByTransaction(ctx, ownerID, transactionID)
		switch {
		case errors.Is(err, common.ErrNotFound):
			prediction = &model.TransactionPrediction{
				ID:               uuid.NewString(),
				TransactionID:    transactionID,
				OwnerID:          ownerID,
				Score:            1.0,
				Level:            model.ConfidenceHigh,
				Status:           status,
				IsManualOverride: true,
				ResolvedAt:       &resolvedAt,
			}
			if err := tx.CreatePrediction(ctx, prediction); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			prediction.PatternID = nil
			prediction.Score = 1.0
			prediction.Level = model.ConfidenceHigh
			prediction.Status = status
			prediction.IsManualOverride = true
			prediction.ResolvedAt = &resolvedAt
			if err := tx.UpdatePrediction(ctx, prediction); err != nil {
				return err
			}
		}

		return p.recordFeedback(ctx, tx, prediction, status)
	})
}

// ClearManualOverride deletes the manual-override prediction for a
// transaction, making it eligible for re-prediction on the next generation
// cycle. Fails when no override exists.
func (p *Processor) ClearManualOverride(ctx context.Context, ownerID, transactionID string) error {
	return p.inTx(ctx, func(tx service.Tx) error {
		prediction, err := tx.GetPredictionByTransaction(ctx, ownerID, transactionID)
		if err != nil {
			return err
		}
		if !prediction.IsManualOverride {
			return fmt.Errorf("%w: manual override for transaction %q", common.ErrNotFound, transactionID)
		}

		return tx.DeletePrediction(ctx, prediction.ID)
	})
}

// ConfirmBatch confirms predictions one at a time, continuing past item
// failures. Each item's outcome is reported independently.
func (p *Processor) ConfirmBatch(ctx context.Context, predictionIDs []string) ([]service.ItemResult, error) {
	return p.resolveBatch(ctx, predictionIDs, p.Confirm)
}

// RejectBatch rejects predictions one at a time, continuing past item
// failures.
func (p *Processor) RejectBatch(ctx context.Context, predictionIDs []string) ([]service.ItemResult, error) {
	return p.resolveBatch(ctx, predictionIDs, p.Reject)
}

func (p *Processor) resolveBatch(ctx context.Context, predictionIDs []string, action func(context.Context, string) error) ([]service.ItemResult, error) {
	results := make([]service.ItemResult, 0, len(predictionIDs))
	for _, id := range predictionIDs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, service.ItemResult{ID: id, Err: action(ctx, id)})
	}
	return results, nil
}
