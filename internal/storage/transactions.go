package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/augurfin/expense-augur/internal/common"
	"github.com/augurfin/expense-augur/internal/model"
)

const transactionColumns = `id, owner_id, date, description, merchant_name, amount,
	category_hint, department, hash, has_receipt_match, created_at`

// scanTransaction scans one transaction row.
func scanTransaction(row interface{ Scan(...any) error }) (*model.Transaction, error) {
	var txn model.Transaction
	var amount string

	err := row.Scan(
		&txn.ID, &txn.OwnerID, &txn.Date, &txn.Description, &txn.MerchantName,
		&amount, &txn.CategoryHint, &txn.Department, &txn.Hash,
		&txn.HasReceiptMatch, &txn.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if txn.Amount, err = scanDecimal(amount); err != nil {
		return nil, err
	}

	return &txn, nil
}

// SaveTransactions inserts transactions, skipping duplicates by hash.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransactions(transactions); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO transactions (
			id, owner_id, date, description, merchant_name, amount,
			category_hint, department, hash, has_receipt_match
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range transactions {
		txn := &transactions[i]
		if txn.Hash == "" {
			txn.Hash = txn.GenerateHash()
		}
		if _, err := stmt.ExecContext(ctx,
			txn.ID, txn.OwnerID, txn.Date, txn.Description, txn.MerchantName,
			txn.Amount.String(), txn.CategoryHint, txn.Department,
			txn.Hash, txn.HasReceiptMatch,
		); err != nil {
			return fmt.Errorf("failed to save transaction %q: %w", txn.ID, err)
		}
	}

	return tx.Commit()
}

// GetTransactionByID retrieves one transaction for an owner.
func (s *SQLiteStorage) GetTransactionByID(ctx context.Context, ownerID, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE owner_id = ? AND id = ?`, transactionColumns)

	txn, err := scanTransaction(s.db.QueryRowContext(ctx, query, ownerID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction %q", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// GetTransactionsByIDs retrieves the given transactions, silently skipping
// IDs that do not exist. Bulk flows treat missing rows as expected.
func (s *SQLiteStorage) GetTransactionsByIDs(ctx context.Context, ownerID string, ids []string) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(ids)+1)
	args = append(args, ownerID)
	for _, id := range ids {
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM transactions
		WHERE owner_id = ? AND id IN (%s)
		ORDER BY date ASC
	`, transactionColumns, placeholders)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txns []model.Transaction
	for rows.Next() {
		txn, scanErr := scanTransaction(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", scanErr)
		}
		txns = append(txns, *txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return txns, nil
}

// GetUnpredictedTransactionIDs returns the IDs of an owner's transactions
// that have no prediction at all, oldest first.
func (s *SQLiteStorage) GetUnpredictedTransactionIDs(ctx context.Context, ownerID string) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id FROM transactions t
		LEFT JOIN transaction_predictions p
			ON p.transaction_id = t.id AND p.owner_id = t.owner_id
		WHERE t.owner_id = ? AND p.id IS NULL
		ORDER BY t.date ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get unpredicted transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan transaction ID: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction IDs: %w", err)
	}

	return ids, nil
}

// SetReceiptMatched records the receipt-match collaborator's confirmation
// for a transaction.
func (s *SQLiteStorage) SetReceiptMatched(ctx context.Context, ownerID, transactionID string, matched bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET has_receipt_match = ?
		WHERE owner_id = ? AND id = ?
	`, matched, ownerID, transactionID)
	if err != nil {
		return fmt.Errorf("failed to set receipt match: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: transaction %q", common.ErrNotFound, transactionID)
	}

	return nil
}

// SaveReport persists an expense report and its lines atomically.
func (s *SQLiteStorage) SaveReport(ctx context.Context, report *model.ExpenseReport, lines []model.ReportLine) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if report == nil {
		return fmt.Errorf("%w: report", ErrNilParameter)
	}
	if err := validateString(report.OwnerID, "ownerID"); err != nil {
		return err
	}
	if len(lines) == 0 {
		return fmt.Errorf("%w: lines", ErrEmptySlice)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if report.ReportDate.IsZero() {
		report.ReportDate = time.Now()
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO expense_reports (owner_id, report_date) VALUES (?, ?)
	`, report.OwnerID, report.ReportDate)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get report ID: %w", err)
	}
	report.ID = id

	for i := range lines {
		line := &lines[i]
		line.ReportID = id
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO report_lines (
				report_id, transaction_id, vendor_text, amount, category_code, department_code
			) VALUES (?, ?, ?, ?, ?, ?)
		`, line.ReportID, line.TransactionID, line.VendorText,
			line.Amount.String(), line.CategoryCode, line.DepartmentCode); err != nil {
			return fmt.Errorf("failed to save report line %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit report: %w", err)
	}

	report.CreatedAt = time.Now()

	return nil
}

// GetReport retrieves one expense report header.
func (s *SQLiteStorage) GetReport(ctx context.Context, ownerID string, reportID int64) (*model.ExpenseReport, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return nil, err
	}

	var report model.ExpenseReport
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, report_date, created_at
		FROM expense_reports
		WHERE owner_id = ? AND id = ?
	`, ownerID, reportID).Scan(&report.ID, &report.OwnerID, &report.ReportDate, &report.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: report %d", common.ErrNotFound, reportID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	return &report, nil
}

// GetReportLines retrieves the lines of one report in insertion order.
func (s *SQLiteStorage) GetReportLines(ctx context.Context, ownerID string, reportID int64) ([]model.ReportLine, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT l.report_id, l.transaction_id, l.vendor_text, l.amount,
			l.category_code, l.department_code
		FROM report_lines l
		JOIN expense_reports r ON r.id = l.report_id
		WHERE r.owner_id = ? AND l.report_id = ?
		ORDER BY l.rowid ASC
	`, ownerID, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to get report lines: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var lines []model.ReportLine
	for rows.Next() {
		var line model.ReportLine
		var amount string
		if err := rows.Scan(&line.ReportID, &line.TransactionID, &line.VendorText,
			&amount, &line.CategoryCode, &line.DepartmentCode); err != nil {
			return nil, fmt.Errorf("failed to scan report line: %w", err)
		}
		if line.Amount, err = scanDecimal(amount); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating report lines: %w", err)
	}

	return lines, nil
}

// GetReportIDs returns all of an owner's report IDs in creation order.
// Rebuilds replay reports in exactly this order.
func (s *SQLiteStorage) GetReportIDs(ctx context.Context, ownerID string) ([]int64, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM expense_reports WHERE owner_id = ? ORDER BY id ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get report IDs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan report ID: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating report IDs: %w", err)
	}

	return ids, nil
}
