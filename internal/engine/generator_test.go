package engine

import (
	"context"
	"testing"
	"time"

	"github.com/augurfin/expense-augur/internal/model"
	"github.com/augurfin/expense-augur/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPattern(t *testing.T, db *storage.SQLiteStorage, pattern *model.ExpensePattern) *model.ExpensePattern {
	t.Helper()
	if pattern.AverageAmount.IsZero() {
		pattern.AverageAmount = decimal.NewFromInt(20)
		pattern.MinAmount = pattern.AverageAmount
		pattern.MaxAmount = pattern.AverageAmount
	}
	require.NoError(t, db.CreatePattern(context.Background(), pattern))
	return pattern
}

func TestGeneratorCreatesPendingPrediction(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	seedPattern(t, db, &model.ExpensePattern{
		OwnerID:         testOwner,
		VendorKey:       "LYFT",
		DisplayName:     "Lyft",
		OccurrenceCount: 5,
		LastSeenAt:      now.AddDate(0, -1, 0),
	})
	txn := seedTransaction(t, db, "tx-1", "Lyft", "21.00", now)

	generator := NewGenerator(db, newTestNormalizer(db), NewStoredReceiptMatcher(db, testOwner), DefaultConfig()).
		WithClock(fixedClock(now))
	created, err := generator.Generate(ctx, testOwner, []string{txn.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	prediction, err := db.GetPredictionByTransaction(ctx, testOwner, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PredictionPending, prediction.Status)
	assert.False(t, prediction.IsManualOverride)
	require.NotNil(t, prediction.PatternID)
	assert.Greater(t, prediction.Score, 0.0)
	assert.Nil(t, prediction.ResolvedAt)
}

func TestGeneratorSkipsBelowOccurrenceMinimum(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	seedPattern(t, db, &model.ExpensePattern{
		OwnerID:         testOwner,
		VendorKey:       "LYFT",
		DisplayName:     "Lyft",
		OccurrenceCount: 1,
		LastSeenAt:      now,
	})
	txn := seedTransaction(t, db, "tx-1", "Lyft", "21.00", now)

	generator := NewGenerator(db, newTestNormalizer(db), NewStoredReceiptMatcher(db, testOwner), DefaultConfig())
	created, err := generator.Generate(ctx, testOwner, []string{txn.ID})
	require.NoError(t, err)
	assert.Equal(t, 0, created, "single-occurrence patterns must not predict")
}

func TestGeneratorSkipsSuppressedPatterns(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	seedPattern(t, db, &model.ExpensePattern{
		OwnerID:         testOwner,
		VendorKey:       "LYFT",
		DisplayName:     "Lyft",
		OccurrenceCount: 10,
		LastSeenAt:      now,
		IsSuppressed:    true,
	})
	txn := seedTransaction(t, db, "tx-1", "Lyft", "21.00", now)

	generator := NewGenerator(db, newTestNormalizer(db), NewStoredReceiptMatcher(db, testOwner), DefaultConfig())
	created, err := generator.Generate(ctx, testOwner, []string{txn.ID})
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestGeneratorSkipsAlreadyPredicted(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	seedPattern(t, db, &model.ExpensePattern{
		OwnerID:         testOwner,
		VendorKey:       "LYFT",
		DisplayName:     "Lyft",
		OccurrenceCount: 5,
		LastSeenAt:      now,
	})
	txn := seedTransaction(t, db, "tx-1", "Lyft", "21.00", now)

	generator := NewGenerator(db, newTestNormalizer(db), NewStoredReceiptMatcher(db, testOwner), DefaultConfig())
	created, err := generator.Generate(ctx, testOwner, []string{txn.ID})
	require.NoError(t, err)
	require.Equal(t, 1, created)

	created, err = generator.Generate(ctx, testOwner, []string{txn.ID})
	require.NoError(t, err)
	assert.Equal(t, 0, created, "only one prediction per transaction")
}

func TestGeneratorReceiptGate(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	seedPattern(t, db, &model.ExpensePattern{
		OwnerID:              testOwner,
		VendorKey:            "HILTON",
		DisplayName:          "Hilton",
		OccurrenceCount:      5,
		LastSeenAt:           now,
		RequiresReceiptMatch: true,
	})
	unmatched := seedTransaction(t, db, "tx-1", "Hilton", "250.00", now)
	matched := seedTransaction(t, db, "tx-2", "Hilton", "250.00", now.AddDate(0, 0, 1))
	require.NoError(t, db.SetReceiptMatched(ctx, testOwner, matched.ID, true))

	generator := NewGenerator(db, newTestNormalizer(db), NewStoredReceiptMatcher(db, testOwner), DefaultConfig())
	created, err := generator.Generate(ctx, testOwner, []string{unmatched.ID, matched.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	_, err = db.GetPredictionByTransaction(ctx, testOwner, unmatched.ID)
	assert.Error(t, err, "unmatched transaction must stay unpredicted")
	_, err = db.GetPredictionByTransaction(ctx, testOwner, matched.ID)
	assert.NoError(t, err)
}

func TestGenerateCompletesUnderRequestDeadline(t *testing.T) {
	db := newTestStorage(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// A receipt-gated pattern forces both collaborator lookups (normalizer
	// and receipt matcher) against the same single-connection store that
	// holds the batch transaction.
	seedPattern(t, db, &model.ExpensePattern{
		OwnerID:              testOwner,
		VendorKey:            "HILTON",
		DisplayName:          "Hilton",
		OccurrenceCount:      5,
		LastSeenAt:           now,
		RequiresReceiptMatch: true,
	})
	txn := seedTransaction(t, db, "tx-1", "Hilton", "250.00", now)
	require.NoError(t, db.SetReceiptMatched(ctx, testOwner, txn.ID, true))

	generator := NewGenerator(db, newTestNormalizer(db), NewStoredReceiptMatcher(db, testOwner), DefaultConfig()).
		WithClock(fixedClock(now))
	created, err := generator.Generate(ctx, testOwner, []string{txn.ID})
	require.NoError(t, err, "collaborator lookups must not wait behind the open prediction batch")
	assert.Equal(t, 1, created)
}

func TestGenerateAllPending(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	seedPattern(t, db, &model.ExpensePattern{
		OwnerID:         testOwner,
		VendorKey:       "LYFT",
		DisplayName:     "Lyft",
		OccurrenceCount: 5,
		LastSeenAt:      now,
	})
	seedTransaction(t, db, "tx-1", "Lyft", "21.00", now)
	seedTransaction(t, db, "tx-2", "Lyft", "19.00", now.AddDate(0, 0, 1))
	seedTransaction(t, db, "tx-3", "Unknown Diner", "55.00", now)

	generator := NewGenerator(db, newTestNormalizer(db), NewStoredReceiptMatcher(db, testOwner), DefaultConfig())
	created, err := generator.GenerateAllPending(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	// A second sweep finds nothing new to do.
	created, err = generator.GenerateAllPending(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}
