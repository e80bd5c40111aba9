package engine

import (
	"context"
	"time"

	"github.com/augurfin/expense-augur/internal/model"
	"github.com/augurfin/expense-augur/internal/service"
)

// PrePopulator exposes predictions to the draft-building collaborator.
// It only ever surfaces pending high-confidence pattern predictions;
// the draft builder decides what to do with receipt-matched transactions.
type PrePopulator struct {
	store service.Storage
}

// NewPrePopulator creates a draft pre-populator backed by store.
func NewPrePopulator(store service.Storage) *PrePopulator {
	return &PrePopulator{store: store}
}

// SuggestedTransactions returns the transactions in [start, end] that a new
// draft report should pre-select, ordered by descending confidence score.
// Suppressed-pattern predictions, manual overrides, and anything below the
// High band are excluded at the query.
func (pp *PrePopulator) SuggestedTransactions(ctx context.Context, ownerID string, start, end time.Time) ([]service.PredictedTransaction, error) {
	return pp.store.GetPredictedTransactionsForPeriod(ctx, ownerID, start, end)
}

// AnnotateTransactions returns the prediction summary for each of the given
// transactions that has one, keyed by transaction ID. Transactions with no
// prediction are simply absent from the result.
func (pp *PrePopulator) AnnotateTransactions(ctx context.Context, ownerID string, transactionIDs []string) (map[string]model.PredictionSummary, error) {
	if len(transactionIDs) == 0 {
		return map[string]model.PredictionSummary{}, nil
	}
	return pp.store.GetPredictionsForTransactions(ctx, ownerID, transactionIDs)
}
