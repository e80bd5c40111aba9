package engine

import (
	"context"
	"testing"
	"time"

	"github.com/augurfin/expense-augur/internal/model"
	"github.com/augurfin/expense-augur/internal/service"
	"github.com/augurfin/expense-augur/internal/storage"
	"github.com/augurfin/expense-augur/internal/vendor"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testOwner = "owner-1"

func newTestStorage(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestNormalizer(db *storage.SQLiteStorage) service.VendorNormalizer {
	return vendor.NewNormalizer(db)
}

func seedTransaction(t *testing.T, db *storage.SQLiteStorage, id, merchant, amount string, date time.Time) model.Transaction {
	t.Helper()
	txn := model.Transaction{
		ID:           id,
		OwnerID:      testOwner,
		Date:         date,
		Description:  merchant,
		MerchantName: merchant,
		Amount:       decimal.RequireFromString(amount),
	}
	txn.Hash = txn.GenerateHash()
	require.NoError(t, db.SaveTransactions(context.Background(), []model.Transaction{txn}))
	return txn
}

func seedReport(t *testing.T, db *storage.SQLiteStorage, date time.Time, lines []model.ReportLine) int64 {
	t.Helper()
	report := &model.ExpenseReport{OwnerID: testOwner, ReportDate: date}
	require.NoError(t, db.SaveReport(context.Background(), report, lines))
	return report.ID
}

func reportLine(vendor, amount, category, department string) model.ReportLine {
	return model.ReportLine{
		VendorText:     vendor,
		Amount:         decimal.RequireFromString(amount),
		CategoryCode:   category,
		DepartmentCode: department,
	}
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
