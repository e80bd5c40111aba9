package engine

import (
	"context"
	"testing"
	"time"

	"github.com/augurfin/expense-augur/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternManagerApply(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	first := seedPattern(t, db, &model.ExpensePattern{
		OwnerID:         testOwner,
		VendorKey:       "LYFT",
		DisplayName:     "Lyft",
		OccurrenceCount: 5,
		LastSeenAt:      now,
	})
	second := seedPattern(t, db, &model.ExpensePattern{
		OwnerID:         testOwner,
		VendorKey:       "AWS",
		DisplayName:     "AWS",
		OccurrenceCount: 5,
		LastSeenAt:      now,
	})

	manager := NewPatternManager(db)

	results, err := manager.Apply(ctx, PatternActionSuppress, []int64{first.ID, second.ID})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}

	suppressed, err := db.GetPatternByID(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, suppressed.IsSuppressed)

	results, err = manager.Apply(ctx, PatternActionEnable, []int64{first.ID})
	require.NoError(t, err)
	assert.NoError(t, results[0].Err)

	enabled, err := db.GetPatternByID(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, enabled.IsSuppressed)

	results, err = manager.Apply(ctx, PatternActionDelete, []int64{second.ID})
	require.NoError(t, err)
	assert.NoError(t, results[0].Err)

	_, err = db.GetPatternByID(ctx, second.ID)
	assert.Error(t, err)
}

func TestPatternManagerContinuesPastMissingIDs(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	pattern := seedPattern(t, db, &model.ExpensePattern{
		OwnerID:         testOwner,
		VendorKey:       "LYFT",
		DisplayName:     "Lyft",
		OccurrenceCount: 5,
		LastSeenAt:      now,
	})

	results, err := NewPatternManager(db).Apply(ctx, PatternActionSuppress, []int64{9999, pattern.ID})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.NoError(t, results[1].Err)

	updated, err := db.GetPatternByID(ctx, pattern.ID)
	require.NoError(t, err)
	assert.True(t, updated.IsSuppressed)
}

func TestPatternManagerRejectsUnknownAction(t *testing.T) {
	db := newTestStorage(t)

	_, err := NewPatternManager(db).Apply(context.Background(), PatternAction("explode"), []int64{1})
	assert.Error(t, err)
}
