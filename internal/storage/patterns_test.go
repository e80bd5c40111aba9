package storage

import (
	"context"
	"testing"

	"github.com/augurfin/expense-augur/internal/common"
	"github.com/augurfin/expense-augur/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternCRUD(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()

	pattern := testPattern("LYFT")
	require.NoError(t, db.CreatePattern(ctx, pattern))
	assert.NotZero(t, pattern.ID)
	assert.Equal(t, int64(1), pattern.Version)

	fetched, err := db.GetPattern(ctx, testOwner, "LYFT")
	require.NoError(t, err)
	assert.Equal(t, pattern.ID, fetched.ID)
	assert.True(t, fetched.AverageAmount.Equal(decimal.NewFromInt(20)))

	fetched.OccurrenceCount = 4
	require.NoError(t, db.UpdatePattern(ctx, fetched))
	assert.Equal(t, int64(2), fetched.Version)

	byID, err := db.GetPatternByID(ctx, pattern.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, byID.OccurrenceCount)

	require.NoError(t, db.DeletePattern(ctx, pattern.ID))
	_, err = db.GetPattern(ctx, testOwner, "LYFT")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestPatternUniquePerOwnerVendor(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, db.CreatePattern(ctx, testPattern("LYFT")))
	err := db.CreatePattern(ctx, testPattern("LYFT"))
	assert.ErrorIs(t, err, common.ErrDuplicateEntry)

	// Same vendor under a different owner is a separate pattern.
	other := testPattern("LYFT")
	other.OwnerID = "owner-2"
	assert.NoError(t, db.CreatePattern(ctx, other))
}

func TestPatternConcurrentUpdateDetected(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()

	pattern := testPattern("LYFT")
	require.NoError(t, db.CreatePattern(ctx, pattern))

	first, err := db.GetPatternByID(ctx, pattern.ID)
	require.NoError(t, err)
	second, err := db.GetPatternByID(ctx, pattern.ID)
	require.NoError(t, err)

	first.ConfirmCount = 1
	require.NoError(t, db.UpdatePattern(ctx, first))

	second.RejectCount = 1
	err = db.UpdatePattern(ctx, second)
	assert.ErrorIs(t, err, common.ErrConcurrentUpdate,
		"stale version must not silently overwrite")

	// Re-read and retry succeeds, preserving the first writer's change.
	fresh, err := db.GetPatternByID(ctx, pattern.ID)
	require.NoError(t, err)
	fresh.RejectCount = 1
	require.NoError(t, db.UpdatePattern(ctx, fresh))

	final, err := db.GetPatternByID(ctx, pattern.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, final.ConfirmCount)
	assert.Equal(t, 1, final.RejectCount)
}

func TestDeletePatternsForOwner(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, db.CreatePattern(ctx, testPattern("LYFT")))
	require.NoError(t, db.CreatePattern(ctx, testPattern("AWS")))
	other := testPattern("LYFT")
	other.OwnerID = "owner-2"
	require.NoError(t, db.CreatePattern(ctx, other))

	deleted, err := db.DeletePatternsForOwner(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, err = db.GetPattern(ctx, "owner-2", "LYFT")
	assert.NoError(t, err, "other owners' patterns untouched")
}

func TestGetActivePatternsExcludesSuppressed(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()

	active := testPattern("LYFT")
	require.NoError(t, db.CreatePattern(ctx, active))
	suppressed := testPattern("VENDING")
	suppressed.IsSuppressed = true
	require.NoError(t, db.CreatePattern(ctx, suppressed))

	patterns, err := db.GetActivePatterns(ctx, testOwner)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "LYFT", patterns[0].VendorKey)
}

func TestListPatterns(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()

	lyft := testPattern("LYFT")
	lyft.DisplayName = "Lyft"
	lyft.ConfirmCount = 9
	lyft.RejectCount = 1
	lyft.AverageAmount = decimal.NewFromInt(20)
	require.NoError(t, db.CreatePattern(ctx, lyft))

	aws := testPattern("AWS")
	aws.DisplayName = "Amazon Web Services"
	aws.DefaultCategory = "INFRA"
	aws.ConfirmCount = 1
	aws.RejectCount = 9
	aws.AverageAmount = decimal.NewFromInt(300)
	require.NoError(t, db.CreatePattern(ctx, aws))

	vending := testPattern("VENDING")
	vending.DisplayName = "Vending"
	vending.IsSuppressed = true
	require.NoError(t, db.CreatePattern(ctx, vending))

	t.Run("status filter", func(t *testing.T) {
		patterns, total, err := db.ListPatterns(ctx, testOwner, service.PatternFilter{
			Status: service.PatternStatusSuppressed,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, patterns, 1)
		assert.Equal(t, "VENDING", patterns[0].VendorKey)
	})

	t.Run("category filter", func(t *testing.T) {
		patterns, total, err := db.ListPatterns(ctx, testOwner, service.PatternFilter{
			Status:   service.PatternStatusAll,
			Category: "INFRA",
		})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, patterns, 1)
		assert.Equal(t, "AWS", patterns[0].VendorKey)
	})

	t.Run("vendor search", func(t *testing.T) {
		patterns, _, err := db.ListPatterns(ctx, testOwner, service.PatternFilter{
			Status:       service.PatternStatusAll,
			VendorSearch: "amazon",
		})
		require.NoError(t, err)
		require.Len(t, patterns, 1)
		assert.Equal(t, "AWS", patterns[0].VendorKey)
	})

	t.Run("sort by accuracy descending", func(t *testing.T) {
		patterns, _, err := db.ListPatterns(ctx, testOwner, service.PatternFilter{
			Status:   service.PatternStatusActive,
			SortBy:   service.SortByAccuracy,
			SortDesc: true,
		})
		require.NoError(t, err)
		require.Len(t, patterns, 2)
		assert.Equal(t, "LYFT", patterns[0].VendorKey, "90%% accuracy sorts before 10%%")
	})

	t.Run("sort by average amount", func(t *testing.T) {
		patterns, _, err := db.ListPatterns(ctx, testOwner, service.PatternFilter{
			Status: service.PatternStatusAll,
			SortBy: service.SortByAverageAmount,
		})
		require.NoError(t, err)
		require.Len(t, patterns, 3)
		assert.Equal(t, "LYFT", patterns[0].VendorKey)
		assert.Equal(t, "AWS", patterns[2].VendorKey)
	})

	t.Run("paging", func(t *testing.T) {
		page, total, err := db.ListPatterns(ctx, testOwner, service.PatternFilter{
			Status: service.PatternStatusAll,
			SortBy: service.SortByName,
			Limit:  2,
		})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Len(t, page, 2)

		rest, _, err := db.ListPatterns(ctx, testOwner, service.PatternFilter{
			Status: service.PatternStatusAll,
			SortBy: service.SortByName,
			Limit:  2,
			Offset: 2,
		})
		require.NoError(t, err)
		assert.Len(t, rest, 1)
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		_, _, err := db.ListPatterns(ctx, testOwner, service.PatternFilter{Status: "bogus"})
		assert.ErrorIs(t, err, common.ErrValidation)
	})

	t.Run("unknown sort key rejected", func(t *testing.T) {
		_, _, err := db.ListPatterns(ctx, testOwner, service.PatternFilter{SortBy: "bogus"})
		assert.ErrorIs(t, err, common.ErrValidation)
	})
}

func TestSetPatternSuppressedBypassesVersionCheck(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()

	pattern := testPattern("LYFT")
	require.NoError(t, db.CreatePattern(ctx, pattern))

	require.NoError(t, db.SetPatternSuppressed(ctx, pattern.ID, true))

	updated, err := db.GetPatternByID(ctx, pattern.ID)
	require.NoError(t, err)
	assert.True(t, updated.IsSuppressed)
	assert.Equal(t, pattern.Version+1, updated.Version, "suppression still bumps the version")

	assert.ErrorIs(t, db.SetPatternSuppressed(ctx, 9999, true), common.ErrNotFound)
}
