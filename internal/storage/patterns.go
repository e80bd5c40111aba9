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
	"github.com/augurfin/expense-augur/internal/service"
)

const patternColumns = `id, owner_id, vendor_key, display_name, default_category,
	default_department, average_amount, min_amount, max_amount,
	occurrence_count, last_seen_at, confirm_count, reject_count,
	is_suppressed, requires_receipt_match, version, created_at, updated_at`

// scanPattern scans one expense pattern row.
func scanPattern(row interface{ Scan(...any) error }) (*model.ExpensePattern, error) {
	var pattern model.ExpensePattern
	var avg, minAmt, maxAmt string

	err := row.Scan(
		&pattern.ID, &pattern.OwnerID, &pattern.VendorKey, &pattern.DisplayName,
		&pattern.DefaultCategory, &pattern.DefaultDepartment,
		&avg, &minAmt, &maxAmt,
		&pattern.OccurrenceCount, &pattern.LastSeenAt,
		&pattern.ConfirmCount, &pattern.RejectCount,
		&pattern.IsSuppressed, &pattern.RequiresReceiptMatch,
		&pattern.Version, &pattern.CreatedAt, &pattern.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if pattern.AverageAmount, err = scanDecimal(avg); err != nil {
		return nil, err
	}
	if pattern.MinAmount, err = scanDecimal(minAmt); err != nil {
		return nil, err
	}
	if pattern.MaxAmount, err = scanDecimal(maxAmt); err != nil {
		return nil, err
	}

	return &pattern, nil
}

func getPatternTx(ctx context.Context, q queryable, ownerID, vendorKey string) (*model.ExpensePattern, error) {
	query := fmt.Sprintf(`SELECT %s FROM expense_patterns WHERE owner_id = ? AND vendor_key = ?`, patternColumns)

	pattern, err := scanPattern(q.QueryRowContext(ctx, query, ownerID, vendorKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: pattern for vendor %q", common.ErrNotFound, vendorKey)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pattern: %w", err)
	}
	return pattern, nil
}

func createPatternTx(ctx context.Context, q queryable, pattern *model.ExpensePattern) error {
	query := `
		INSERT INTO expense_patterns (
			owner_id, vendor_key, display_name, default_category, default_department,
			average_amount, min_amount, max_amount, occurrence_count, last_seen_at,
			confirm_count, reject_count, is_suppressed, requires_receipt_match, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
	`

	result, err := q.ExecContext(ctx, query,
		pattern.OwnerID, pattern.VendorKey, pattern.DisplayName,
		pattern.DefaultCategory, pattern.DefaultDepartment,
		pattern.AverageAmount.String(), pattern.MinAmount.String(), pattern.MaxAmount.String(),
		pattern.OccurrenceCount, pattern.LastSeenAt,
		pattern.ConfirmCount, pattern.RejectCount,
		pattern.IsSuppressed, pattern.RequiresReceiptMatch,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: pattern for vendor %q", common.ErrDuplicateEntry, pattern.VendorKey)
		}
		return fmt.Errorf("failed to create pattern: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get pattern ID: %w", err)
	}

	pattern.ID = id
	pattern.Version = 1
	pattern.CreatedAt = time.Now()
	pattern.UpdatedAt = time.Now()

	return nil
}

// updatePatternTx applies an optimistic-concurrency update: the row is only
// written if its version still matches the one the caller read. A lost race
// surfaces as ErrConcurrentUpdate so the caller can re-read and retry.
func updatePatternTx(ctx context.Context, q queryable, pattern *model.ExpensePattern) error {
	query := `
		UPDATE expense_patterns SET
			display_name = ?, default_category = ?, default_department = ?,
			average_amount = ?, min_amount = ?, max_amount = ?,
			occurrence_count = ?, last_seen_at = ?,
			confirm_count = ?, reject_count = ?,
			is_suppressed = ?, requires_receipt_match = ?,
			version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?
	`

	result, err := q.ExecContext(ctx, query,
		pattern.DisplayName, pattern.DefaultCategory, pattern.DefaultDepartment,
		pattern.AverageAmount.String(), pattern.MinAmount.String(), pattern.MaxAmount.String(),
		pattern.OccurrenceCount, pattern.LastSeenAt,
		pattern.ConfirmCount, pattern.RejectCount,
		pattern.IsSuppressed, pattern.RequiresReceiptMatch,
		pattern.ID, pattern.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update pattern: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Distinguish a stale version from a missing row.
		var exists bool
		checkErr := q.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM expense_patterns WHERE id = ?)", pattern.ID).Scan(&exists)
		if checkErr != nil {
			return fmt.Errorf("failed to check pattern existence: %w", checkErr)
		}
		if !exists {
			return fmt.Errorf("%w: pattern %d", common.ErrNotFound, pattern.ID)
		}
		return fmt.Errorf("%w: pattern %d", common.ErrConcurrentUpdate, pattern.ID)
	}

	pattern.Version++
	pattern.UpdatedAt = time.Now()

	return nil
}

// GetPattern retrieves the pattern for an (owner, vendor key) pair.
func (s *SQLiteStorage) GetPattern(ctx context.Context, ownerID, vendorKey string) (*model.ExpensePattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return nil, err
	}
	if err := validateString(vendorKey, "vendorKey"); err != nil {
		return nil, err
	}
	return getPatternTx(ctx, s.db, ownerID, vendorKey)
}

func getPatternByIDTx(ctx context.Context, q queryable, id int64) (*model.ExpensePattern, error) {
	query := fmt.Sprintf(`SELECT %s FROM expense_patterns WHERE id = ?`, patternColumns)

	pattern, err := scanPattern(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: pattern %d", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pattern: %w", err)
	}
	return pattern, nil
}

// GetPatternByID retrieves a pattern by its row ID.
func (s *SQLiteStorage) GetPatternByID(ctx context.Context, id int64) (*model.ExpensePattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return getPatternByIDTx(ctx, s.db, id)
}

// CreatePattern inserts a new expense pattern.
func (s *SQLiteStorage) CreatePattern(ctx context.Context, pattern *model.ExpensePattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePattern(pattern); err != nil {
		return err
	}
	return createPatternTx(ctx, s.db, pattern)
}

// UpdatePattern updates an existing pattern with an optimistic version check.
func (s *SQLiteStorage) UpdatePattern(ctx context.Context, pattern *model.ExpensePattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePattern(pattern); err != nil {
		return err
	}
	return updatePatternTx(ctx, s.db, pattern)
}

// DeletePattern deletes a pattern by ID.
func (s *SQLiteStorage) DeletePattern(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM expense_patterns WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete pattern: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: pattern %d", common.ErrNotFound, id)
	}

	return nil
}

// DeletePatternsForOwner deletes all patterns belonging to an owner and
// returns how many were removed. Used by the rebuild path.
func (s *SQLiteStorage) DeletePatternsForOwner(ctx context.Context, ownerID string) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM expense_patterns WHERE owner_id = ?", ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete patterns: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// GetActivePatterns retrieves all non-suppressed patterns for an owner.
func (s *SQLiteStorage) GetActivePatterns(ctx context.Context, ownerID string) ([]model.ExpensePattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM expense_patterns
		WHERE owner_id = ? AND is_suppressed = 0
		ORDER BY id ASC
	`, patternColumns)

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var patterns []model.ExpensePattern
	for rows.Next() {
		pattern, scanErr := scanPattern(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", scanErr)
		}
		patterns = append(patterns, *pattern)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating patterns: %w", err)
	}

	return patterns, nil
}

// patternSortColumns maps sort keys to SQL expressions. Accuracy is
// computed in SQL so paging and sorting stay consistent.
var patternSortColumns = map[service.PatternSortKey]string{
	service.SortByAccuracy:      "CASE WHEN confirm_count + reject_count = 0 THEN 0 ELSE CAST(confirm_count AS REAL) / (confirm_count + reject_count) END",
	service.SortByName:          "display_name COLLATE NOCASE",
	service.SortByAverageAmount: "CAST(average_amount AS REAL)",
	service.SortByOccurrences:   "occurrence_count",
}

// ListPatterns returns a filtered, sorted page of patterns plus the total
// count matching the filter.
func (s *SQLiteStorage) ListPatterns(ctx context.Context, ownerID string, filter service.PatternFilter) ([]model.ExpensePattern, int, error) {
	if err := validateContext(ctx); err != nil {
		return nil, 0, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return nil, 0, err
	}

	where := []string{"owner_id = ?"}
	args := []any{ownerID}

	switch filter.Status {
	case service.PatternStatusActive:
		where = append(where, "is_suppressed = 0")
	case service.PatternStatusSuppressed:
		where = append(where, "is_suppressed = 1")
	case service.PatternStatusAll, "":
		// No status constraint
	default:
		return nil, 0, fmt.Errorf("%w: unknown status filter %q", common.ErrValidation, filter.Status)
	}

	if filter.Category != "" {
		where = append(where, "default_category = ?")
		args = append(args, filter.Category)
	}
	if filter.VendorSearch != "" {
		where = append(where, "(display_name LIKE ? OR vendor_key LIKE ?)")
		search := "%" + filter.VendorSearch + "%"
		args = append(args, search, search)
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM expense_patterns WHERE " + whereClause
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count patterns: %w", err)
	}

	sortKey := filter.SortBy
	if sortKey == "" {
		sortKey = service.SortByName
	}
	sortExpr, ok := patternSortColumns[sortKey]
	if !ok {
		return nil, 0, fmt.Errorf("%w: unknown sort key %q", common.ErrValidation, filter.SortBy)
	}
	order := "ASC"
	if filter.SortDesc {
		order = "DESC"
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT %s FROM expense_patterns
		WHERE %s
		ORDER BY %s %s, id ASC
		LIMIT ? OFFSET ?
	`, patternColumns, whereClause, sortExpr, order)
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var patterns []model.ExpensePattern
	for rows.Next() {
		pattern, scanErr := scanPattern(rows)
		if scanErr != nil {
			return nil, 0, fmt.Errorf("failed to scan pattern: %w", scanErr)
		}
		patterns = append(patterns, *pattern)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating patterns: %w", err)
	}

	return patterns, total, nil
}

// SetPatternSuppressed flips the suppression flag directly, bypassing the
// version check: explicit user intent always wins over concurrent engine
// updates.
func (s *SQLiteStorage) SetPatternSuppressed(ctx context.Context, id int64, suppressed bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE expense_patterns
		SET is_suppressed = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, suppressed, id)
	if err != nil {
		return fmt.Errorf("failed to set pattern suppression: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: pattern %d", common.ErrNotFound, id)
	}

	return nil
}
