package storage

import (
	"context"
	"testing"
	"time"

	"github.com/augurfin/expense-augur/internal/common"
	"github.com/augurfin/expense-augur/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveTransactionsDeduplicatesByHash(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	txn := testTransaction("tx-1", "Lyft", "21.00", now)
	require.NoError(t, db.SaveTransactions(ctx, []model.Transaction{txn}))

	// Same hash again, under a different ID: ignored.
	dupe := txn
	dupe.ID = "tx-1-reimport"
	require.NoError(t, db.SaveTransactions(ctx, []model.Transaction{dupe}))

	_, err := db.GetTransactionByID(ctx, testOwner, "tx-1")
	assert.NoError(t, err)
	_, err = db.GetTransactionByID(ctx, testOwner, "tx-1-reimport")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestGetTransactionsByIDsSkipsMissing(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, db.SaveTransactions(ctx, []model.Transaction{
		testTransaction("tx-1", "Lyft", "21.00", now),
		testTransaction("tx-2", "AWS", "300.00", now.AddDate(0, 0, -1)),
	}))

	txns, err := db.GetTransactionsByIDs(ctx, testOwner, []string{"tx-1", "tx-2", "tx-missing"})
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "tx-2", txns[0].ID, "ordered by date ascending")
	assert.True(t, txns[1].Amount.Equal(decimal.RequireFromString("21.00")))
}

func TestGetUnpredictedTransactionIDs(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, db.SaveTransactions(ctx, []model.Transaction{
		testTransaction("tx-1", "Lyft", "21.00", now),
		testTransaction("tx-2", "AWS", "300.00", now),
	}))

	pattern := testPattern("LYFT")
	require.NoError(t, db.CreatePattern(ctx, pattern))
	require.NoError(t, db.CreatePrediction(ctx, newPendingPrediction("tx-1", pattern.ID)))

	ids, err := db.GetUnpredictedTransactionIDs(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, []string{"tx-2"}, ids)
}

func TestSetReceiptMatched(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, db.SaveTransactions(ctx, []model.Transaction{
		testTransaction("tx-1", "Hilton", "250.00", now),
	}))

	require.NoError(t, db.SetReceiptMatched(ctx, testOwner, "tx-1", true))
	txn, err := db.GetTransactionByID(ctx, testOwner, "tx-1")
	require.NoError(t, err)
	assert.True(t, txn.HasReceiptMatch)

	assert.ErrorIs(t, db.SetReceiptMatched(ctx, testOwner, "tx-missing", true), common.ErrNotFound)
}

func TestSaveAndLoadReport(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()
	reportDate := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	report := &model.ExpenseReport{OwnerID: testOwner, ReportDate: reportDate}
	lines := []model.ReportLine{
		{VendorText: "Lyft", Amount: decimal.RequireFromString("23.50"), CategoryCode: "TRAVEL", DepartmentCode: "ENG"},
		{VendorText: "AWS", Amount: decimal.RequireFromString("300.00"), CategoryCode: "INFRA"},
	}
	require.NoError(t, db.SaveReport(ctx, report, lines))
	assert.NotZero(t, report.ID)

	loaded, err := db.GetReport(ctx, testOwner, report.ID)
	require.NoError(t, err)
	assert.Equal(t, reportDate.Format("2006-01-02"), loaded.ReportDate.Format("2006-01-02"))

	loadedLines, err := db.GetReportLines(ctx, testOwner, report.ID)
	require.NoError(t, err)
	require.Len(t, loadedLines, 2)
	assert.Equal(t, "Lyft", loadedLines[0].VendorText)
	assert.True(t, loadedLines[1].Amount.Equal(decimal.RequireFromString("300.00")))

	_, err = db.GetReport(ctx, "owner-2", report.ID)
	assert.ErrorIs(t, err, common.ErrNotFound, "reports are owner-scoped")
}

func TestSaveReportRejectsEmptyLines(t *testing.T) {
	db := newTestStorage(t)

	report := &model.ExpenseReport{OwnerID: testOwner, ReportDate: time.Now()}
	assert.Error(t, db.SaveReport(context.Background(), report, nil))
}

func TestGetReportIDsInCreationOrder(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()

	var want []int64
	for i := 0; i < 3; i++ {
		report := &model.ExpenseReport{
			OwnerID:    testOwner,
			ReportDate: time.Date(2026, time.Month(3-i), 1, 0, 0, 0, 0, time.UTC),
		}
		require.NoError(t, db.SaveReport(ctx, report, []model.ReportLine{
			{VendorText: "Lyft", Amount: decimal.NewFromInt(20)},
		}))
		want = append(want, report.ID)
	}

	ids, err := db.GetReportIDs(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, want, ids, "creation order, not report-date order")
}
