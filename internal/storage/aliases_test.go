package storage

import (
	"context"
	"testing"

	"github.com/augurfin/expense-augur/internal/common"
	"github.com/augurfin/expense-augur/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVendorAliasRoundTrip(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, db.SaveVendorAlias(ctx, &model.VendorAlias{
		OwnerID:   testOwner,
		Alias:     "  lyft *ride thu  ",
		VendorKey: "lyft",
	}))

	// Lookup is case-insensitive because both sides are uppercased.
	alias, err := db.GetVendorAlias(ctx, testOwner, "LYFT *RIDE THU")
	require.NoError(t, err)
	assert.Equal(t, "LYFT", alias.VendorKey)

	alias, err = db.GetVendorAlias(ctx, testOwner, "lyft *ride thu")
	require.NoError(t, err)
	assert.Equal(t, "LYFT", alias.VendorKey)
}

func TestVendorAliasUpsert(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, db.SaveVendorAlias(ctx, &model.VendorAlias{
		OwnerID: testOwner, Alias: "LYFT *RIDE", VendorKey: "LYFT",
	}))
	require.NoError(t, db.SaveVendorAlias(ctx, &model.VendorAlias{
		OwnerID: testOwner, Alias: "LYFT *RIDE", VendorKey: "RIDESHARE",
	}))

	alias, err := db.GetVendorAlias(ctx, testOwner, "LYFT *RIDE")
	require.NoError(t, err)
	assert.Equal(t, "RIDESHARE", alias.VendorKey, "second save overwrites the mapping")

	all, err := db.GetAllVendorAliases(ctx, testOwner)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestVendorAliasNotFound(t *testing.T) {
	db := newTestStorage(t)

	_, err := db.GetVendorAlias(context.Background(), testOwner, "NOPE")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestVendorAliasesScopedByOwner(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, db.SaveVendorAlias(ctx, &model.VendorAlias{
		OwnerID: testOwner, Alias: "LYFT *RIDE", VendorKey: "LYFT",
	}))

	_, err := db.GetVendorAlias(ctx, "owner-2", "LYFT *RIDE")
	assert.ErrorIs(t, err, common.ErrNotFound)
}
