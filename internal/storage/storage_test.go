package storage

import (
	"context"
	"testing"
	"time"

	"github.com/augurfin/expense-augur/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testOwner = "owner-1"

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	db, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testPattern(vendorKey string) *model.ExpensePattern {
	return &model.ExpensePattern{
		OwnerID:         testOwner,
		VendorKey:       vendorKey,
		DisplayName:     vendorKey,
		DefaultCategory: "TRAVEL",
		AverageAmount:   decimal.NewFromInt(20),
		MinAmount:       decimal.NewFromInt(15),
		MaxAmount:       decimal.NewFromInt(25),
		OccurrenceCount: 3,
		LastSeenAt:      time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

func testTransaction(id, merchant, amount string, date time.Time) model.Transaction {
	txn := model.Transaction{
		ID:           id,
		OwnerID:      testOwner,
		Date:         date,
		Description:  merchant,
		MerchantName: merchant,
		Amount:       decimal.RequireFromString(amount),
	}
	txn.Hash = txn.GenerateHash()
	return txn
}
