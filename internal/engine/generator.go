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

// Generator matches unscored transactions against active patterns and
// creates pending predictions.
type Generator struct {
	store      service.Storage
	normalizer service.VendorNormalizer
	receipts   service.ReceiptMatcher
	now        func() time.Time
	cfg        Config
}

// NewGenerator creates a prediction generator.
func NewGenerator(store service.Storage, normalizer service.VendorNormalizer, receipts service.ReceiptMatcher, cfg Config) *Generator {
	return &Generator{
		store:      store,
		normalizer: normalizer,
		receipts:   receipts,
		cfg:        cfg,
		now:        time.Now,
	}
}

// WithClock overrides the generator's clock. Test hook.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate creates pending predictions for the given transactions and
// returns how many were created. Patterns are loaded once per batch.
// Matching is exact on the normalized vendor key; there is no fuzzy
// matching. All created predictions commit together.
func (g *Generator) Generate(ctx context.Context, ownerID string, transactionIDs []string) (int, error) {
	if len(transactionIDs) == 0 {
		return 0, nil
	}

	patterns, err := g.store.GetActivePatterns(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to load active patterns: %w", err)
	}

	byKey := make(map[string]*model.ExpensePattern, len(patterns))
	for i := range patterns {
		byKey[patterns[i].VendorKey] = &patterns[i]
	}

	txns, err := g.store.GetTransactionsByIDs(ctx, ownerID, transactionIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to load transactions: %w", err)
	}

	// Collaborator lookups (normalizer, receipt matcher) run on the base
	// connection, so they all happen before the batch transaction opens.
	type candidate struct {
		txn     *model.Transaction
		pattern *model.ExpensePattern
	}
	candidates := make([]candidate, 0, len(txns))
	for i := range txns {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		txn := &txns[i]
		pattern, ok := g.matchPattern(ctx, txn, byKey)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{txn: txn, pattern: pattern})
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	tx, err := g.store.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin prediction batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := g.now()
	created := 0
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		ok, err := g.createPrediction(ctx, tx, c.txn, c.pattern, now)
		if err != nil {
			return 0, err
		}
		if ok {
			created++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prediction batch: %w", err)
	}

	return created, nil
}

// matchPattern resolves one transaction to an eligible pattern, applying
// the occurrence and receipt gates. Collaborator failures skip the
// transaction rather than failing the batch.
func (g *Generator) matchPattern(ctx context.Context, txn *model.Transaction, byKey map[string]*model.ExpensePattern) (*model.ExpensePattern, bool) {
	vendorKey, err := g.normalizer.Normalize(ctx, txn.OwnerID, txn.VendorText())
	if err != nil {
		slog.Warn("Skipping transaction with unnormalizable vendor",
			"transaction_id", txn.ID,
			"error", err)
		return nil, false
	}

	pattern, ok := byKey[vendorKey]
	if !ok {
		return nil, false
	}
	if pattern.OccurrenceCount < g.cfg.MinOccurrences {
		return nil, false
	}

	if pattern.RequiresReceiptMatch {
		matched, err := g.receipts.HasConfirmedReceiptMatch(ctx, txn.ID)
		if err != nil {
			// Collaborator failure: treat the transaction as unmatched.
			slog.Warn("Receipt match lookup failed, treating as unmatched",
				"transaction_id", txn.ID,
				"error", err)
			return nil, false
		}
		if !matched {
			return nil, false
		}
	}

	return pattern, true
}

// createPrediction writes one pending prediction inside the batch
// transaction, returning true if one was created.
func (g *Generator) createPrediction(ctx context.Context, tx service.Tx, txn *model.Transaction, pattern *model.ExpensePattern, now time.Time) (bool, error) {
	_, err := tx.GetPredictionByTransaction(ctx, txn.OwnerID, txn.ID)
	if err == nil {
		// Already predicted; only one active prediction per transaction.
		return false, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return false, err
	}

	score := g.cfg.Score(pattern, txn.Amount, now)
	prediction := &model.TransactionPrediction{
		ID:            uuid.NewString(),
		PatternID:     &pattern.ID,
		TransactionID: txn.ID,
		OwnerID:       txn.OwnerID,
		Score:         score,
		Level:         g.cfg.LevelFor(score),
		Status:        model.PredictionPending,
	}

	if err := tx.CreatePrediction(ctx, prediction); err != nil {
		return false, fmt.Errorf("failed to create prediction for transaction %q: %w", txn.ID, err)
	}

	return true, nil
}

// GenerateAllPending predicts every owner transaction that has no
// prediction at all.
func (g *Generator) GenerateAllPending(ctx context.Context, ownerID string) (int, error) {
	ids, err := g.store.GetUnpredictedTransactionIDs(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to find unpredicted transactions: %w", err)
	}
	return g.Generate(ctx, ownerID, ids)
}

// StoredReceiptMatcher answers receipt-match lookups from the transaction
// substrate. Stands in for the external receipt-processing collaborator.
type StoredReceiptMatcher struct {
	store   service.Storage
	ownerID string
}

// NewStoredReceiptMatcher creates a receipt matcher scoped to one owner.
func NewStoredReceiptMatcher(store service.Storage, ownerID string) *StoredReceiptMatcher {
	return &StoredReceiptMatcher{store: store, ownerID: ownerID}
}

// HasConfirmedReceiptMatch reports whether the transaction carries a
// confirmed receipt match.
func (m *StoredReceiptMatcher) HasConfirmedReceiptMatch(ctx context.Context, transactionID string) (bool, error) {
	txn, err := m.store.GetTransactionByID(ctx, m.ownerID, transactionID)
	if err != nil {
		return false, err
	}
	return txn.HasReceiptMatch, nil
}
