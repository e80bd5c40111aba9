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

const predictionColumns = `id, pattern_id, transaction_id, owner_id, score, level,
	status, is_manual_override, created_at, resolved_at`

// scanPrediction scans one prediction row.
func scanPrediction(row interface{ Scan(...any) error }) (*model.TransactionPrediction, error) {
	var prediction model.TransactionPrediction
	var patternID sql.NullInt64
	var resolvedAt sql.NullTime

	err := row.Scan(
		&prediction.ID, &patternID, &prediction.TransactionID, &prediction.OwnerID,
		&prediction.Score, &prediction.Level, &prediction.Status,
		&prediction.IsManualOverride, &prediction.CreatedAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	if patternID.Valid {
		prediction.PatternID = &patternID.Int64
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		prediction.ResolvedAt = &t
	}

	return &prediction, nil
}

func patternIDToNull(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func resolvedToNull(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func createPredictionTx(ctx context.Context, q queryable, prediction *model.TransactionPrediction) error {
	query := `
		INSERT INTO transaction_predictions (
			id, pattern_id, transaction_id, owner_id, score, level,
			status, is_manual_override, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.ExecContext(ctx, query,
		prediction.ID, patternIDToNull(prediction.PatternID),
		prediction.TransactionID, prediction.OwnerID,
		prediction.Score, prediction.Level, prediction.Status,
		prediction.IsManualOverride, resolvedToNull(prediction.ResolvedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: prediction for transaction %q", common.ErrDuplicateEntry, prediction.TransactionID)
		}
		return fmt.Errorf("failed to create prediction: %w", err)
	}

	prediction.CreatedAt = time.Now()

	return nil
}

func getPredictionByTransactionTx(ctx context.Context, q queryable, ownerID, transactionID string) (*model.TransactionPrediction, error) {
	query := fmt.Sprintf(`SELECT %s FROM transaction_predictions WHERE owner_id = ? AND transaction_id = ?`, predictionColumns)

	prediction, err := scanPrediction(q.QueryRowContext(ctx, query, ownerID, transactionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: prediction for transaction %q", common.ErrNotFound, transactionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	return prediction, nil
}

// CreatePrediction inserts a new prediction.
func (s *SQLiteStorage) CreatePrediction(ctx context.Context, prediction *model.TransactionPrediction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePrediction(prediction); err != nil {
		return err
	}
	return createPredictionTx(ctx, s.db, prediction)
}

func getPredictionTx(ctx context.Context, q queryable, id string) (*model.TransactionPrediction, error) {
	query := fmt.Sprintf(`SELECT %s FROM transaction_predictions WHERE id = ?`, predictionColumns)

	prediction, err := scanPrediction(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: prediction %q", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	return prediction, nil
}

// GetPrediction retrieves a prediction by ID.
func (s *SQLiteStorage) GetPrediction(ctx context.Context, id string) (*model.TransactionPrediction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return getPredictionTx(ctx, s.db, id)
}

// GetPredictionByTransaction retrieves the prediction for a transaction, if any.
func (s *SQLiteStorage) GetPredictionByTransaction(ctx context.Context, ownerID, transactionID string) (*model.TransactionPrediction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return nil, err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return nil, err
	}
	return getPredictionByTransactionTx(ctx, s.db, ownerID, transactionID)
}

func updatePredictionTx(ctx context.Context, q queryable, prediction *model.TransactionPrediction) error {
	query := `
		UPDATE transaction_predictions SET
			pattern_id = ?, score = ?, level = ?, status = ?,
			is_manual_override = ?, resolved_at = ?
		WHERE id = ?
	`

	result, err := q.ExecContext(ctx, query,
		patternIDToNull(prediction.PatternID), prediction.Score,
		prediction.Level, prediction.Status,
		prediction.IsManualOverride, resolvedToNull(prediction.ResolvedAt),
		prediction.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update prediction: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: prediction %q", common.ErrNotFound, prediction.ID)
	}

	return nil
}

// UpdatePrediction updates a prediction's status, score, and resolution.
func (s *SQLiteStorage) UpdatePrediction(ctx context.Context, prediction *model.TransactionPrediction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePrediction(prediction); err != nil {
		return err
	}
	return updatePredictionTx(ctx, s.db, prediction)
}

func deletePredictionTx(ctx context.Context, q queryable, id string) error {
	result, err := q.ExecContext(ctx, "DELETE FROM transaction_predictions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete prediction: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: prediction %q", common.ErrNotFound, id)
	}

	return nil
}

// DeletePrediction removes a prediction. Used when clearing manual overrides.
func (s *SQLiteStorage) DeletePrediction(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	return deletePredictionTx(ctx, s.db, id)
}

// GetPredictionsForTransactions returns a summary per transaction ID for
// list enrichment. Transactions with no prediction are simply absent from
// the map.
func (s *SQLiteStorage) GetPredictionsForTransactions(ctx context.Context, ownerID string, transactionIDs []string) (map[string]model.PredictionSummary, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return nil, err
	}

	summaries := make(map[string]model.PredictionSummary, len(transactionIDs))
	if len(transactionIDs) == 0 {
		return summaries, nil
	}

	placeholders := strings.Repeat("?,", len(transactionIDs))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(transactionIDs)+1)
	args = append(args, ownerID)
	for _, id := range transactionIDs {
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		SELECT transaction_id, id, status, level, score, is_manual_override
		FROM transaction_predictions
		WHERE owner_id = ? AND transaction_id IN (%s)
	`, placeholders)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction summaries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var txnID string
		var summary model.PredictionSummary
		if err := rows.Scan(&txnID, &summary.PredictionID, &summary.Status,
			&summary.Level, &summary.Score, &summary.IsManualOverride); err != nil {
			return nil, fmt.Errorf("failed to scan prediction summary: %w", err)
		}
		summaries[txnID] = summary
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prediction summaries: %w", err)
	}

	return summaries, nil
}

// GetPredictedTransactionsForPeriod returns the pending, high-confidence,
// pattern-based predictions whose transactions fall inside [start, end],
// excluding suppressed patterns, ordered by descending score. Only these
// are strong enough evidence for unattended draft selection.
func (s *SQLiteStorage) GetPredictedTransactionsForPeriod(ctx context.Context, ownerID string, start, end time.Time) ([]service.PredictedTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %v is before start %v", ErrInvalidDateRange, end, start)
	}

	query := `
		SELECT p.id, p.pattern_id, p.transaction_id, p.owner_id, p.score, p.level,
			p.status, p.is_manual_override, p.created_at, p.resolved_at,
			t.id, t.owner_id, t.date, t.description, t.merchant_name, t.amount,
			t.category_hint, t.department, t.hash, t.has_receipt_match, t.created_at
		FROM transaction_predictions p
		JOIN transactions t ON t.id = p.transaction_id AND t.owner_id = p.owner_id
		JOIN expense_patterns ep ON ep.id = p.pattern_id
		WHERE p.owner_id = ?
			AND p.status = ?
			AND p.level = ?
			AND p.pattern_id IS NOT NULL
			AND p.is_manual_override = 0
			AND ep.is_suppressed = 0
			AND t.date >= ? AND t.date <= ?
		ORDER BY p.score DESC, t.date ASC
	`

	rows, err := s.db.QueryContext(ctx, query,
		ownerID, model.PredictionPending, model.ConfidenceHigh, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get predicted transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []service.PredictedTransaction
	for rows.Next() {
		var item service.PredictedTransaction
		var patternID sql.NullInt64
		var resolvedAt sql.NullTime
		var amount string

		err := rows.Scan(
			&item.Prediction.ID, &patternID, &item.Prediction.TransactionID,
			&item.Prediction.OwnerID, &item.Prediction.Score, &item.Prediction.Level,
			&item.Prediction.Status, &item.Prediction.IsManualOverride,
			&item.Prediction.CreatedAt, &resolvedAt,
			&item.Transaction.ID, &item.Transaction.OwnerID, &item.Transaction.Date,
			&item.Transaction.Description, &item.Transaction.MerchantName, &amount,
			&item.Transaction.CategoryHint, &item.Transaction.Department,
			&item.Transaction.Hash, &item.Transaction.HasReceiptMatch,
			&item.Transaction.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan predicted transaction: %w", err)
		}

		if patternID.Valid {
			item.Prediction.PatternID = &patternID.Int64
		}
		if resolvedAt.Valid {
			t := resolvedAt.Time
			item.Prediction.ResolvedAt = &t
		}
		if item.Transaction.Amount, err = scanDecimal(amount); err != nil {
			return nil, err
		}
		item.HasReceiptMatch = item.Transaction.HasReceiptMatch

		results = append(results, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating predicted transactions: %w", err)
	}

	return results, nil
}

func saveFeedbackTx(ctx context.Context, q queryable, feedback *model.PredictionFeedback) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO prediction_feedback (id, prediction_id, owner_id, feedback_type)
		VALUES (?, ?, ?, ?)
	`, feedback.ID, feedback.PredictionID, feedback.OwnerID, feedback.Type)
	if err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}

	feedback.CreatedAt = time.Now()

	return nil
}

// SaveFeedback appends one feedback audit record. Feedback is append-only.
func (s *SQLiteStorage) SaveFeedback(ctx context.Context, feedback *model.PredictionFeedback) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateFeedback(feedback); err != nil {
		return err
	}
	return saveFeedbackTx(ctx, s.db, feedback)
}

// GetFeedbackForPrediction returns the audit trail for one prediction,
// oldest first.
func (s *SQLiteStorage) GetFeedbackForPrediction(ctx context.Context, predictionID string) ([]model.PredictionFeedback, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(predictionID, "predictionID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, prediction_id, owner_id, feedback_type, created_at
		FROM prediction_feedback
		WHERE prediction_id = ?
		ORDER BY created_at ASC, id ASC
	`, predictionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.PredictionFeedback
	for rows.Next() {
		var entry model.PredictionFeedback
		if err := rows.Scan(&entry.ID, &entry.PredictionID, &entry.OwnerID,
			&entry.Type, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feedback: %w", err)
	}

	return entries, nil
}

// GetDashboardStats aggregates pending counts by level, active pattern
// count, and overall accuracy across resolved predictions.
func (s *SQLiteStorage) GetDashboardStats(ctx context.Context, ownerID string) (*service.DashboardStats, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return nil, err
	}

	stats := &service.DashboardStats{
		PendingByLevel: make(map[model.ConfidenceLevel]int),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT level, COUNT(*)
		FROM transaction_predictions
		WHERE owner_id = ? AND status = ?
		GROUP BY level
	`, ownerID, model.PredictionPending)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var level model.ConfidenceLevel
		var count int
		if err := rows.Scan(&level, &count); err != nil {
			return nil, fmt.Errorf("failed to scan pending count: %w", err)
		}
		stats.PendingByLevel[level] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending counts: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM expense_patterns
		WHERE owner_id = ? AND is_suppressed = 0
	`, ownerID).Scan(&stats.ActivePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to count active patterns: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM transaction_predictions
		WHERE owner_id = ?
	`, model.PredictionConfirmed, model.PredictionRejected, ownerID).
		Scan(&stats.ConfirmedTotal, &stats.RejectedTotal)
	if err != nil {
		return nil, fmt.Errorf("failed to count resolved predictions: %w", err)
	}

	if resolved := stats.ConfirmedTotal + stats.RejectedTotal; resolved > 0 {
		stats.OverallAccuracy = float64(stats.ConfirmedTotal) / float64(resolved)
	}

	return stats, nil
}
