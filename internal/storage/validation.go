// Package storage provides the data persistence layer for the expense-augur application.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/augurfin/expense-augur/internal/model"
)

// Validation errors.
var (
	ErrNilContext       = errors.New("context cannot be nil")
	ErrEmptyString      = errors.New("string parameter cannot be empty")
	ErrNilParameter     = errors.New("parameter cannot be nil")
	ErrEmptySlice       = errors.New("slice cannot be empty")
	ErrInvalidDateRange = errors.New("start date must be before end date")
	ErrInvalidPattern   = errors.New("invalid expense pattern")
	ErrInvalidTxn       = errors.New("invalid transaction")
	ErrInvalidPredict   = errors.New("invalid prediction")
	ErrInvalidFeedback  = errors.New("invalid feedback")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateTransactions validates a slice of transactions.
func validateTransactions(transactions []model.Transaction) error {
	if transactions == nil {
		return fmt.Errorf("%w: transactions", ErrNilParameter)
	}
	if len(transactions) == 0 {
		return fmt.Errorf("%w: transactions", ErrEmptySlice)
	}

	for i, txn := range transactions {
		if err := validateTransaction(&txn); err != nil {
			return fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}
	return nil
}

// validateTransaction validates a single transaction.
func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidTxn)
	}
	if txn.OwnerID == "" {
		return fmt.Errorf("%w: missing owner ID", ErrInvalidTxn)
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTxn)
	}
	if txn.Description == "" {
		return fmt.Errorf("%w: missing description", ErrInvalidTxn)
	}
	return nil
}

// validatePattern validates an expense pattern.
func validatePattern(pattern *model.ExpensePattern) error {
	if pattern == nil {
		return fmt.Errorf("%w: pattern", ErrNilParameter)
	}
	if strings.TrimSpace(pattern.OwnerID) == "" {
		return fmt.Errorf("%w: missing owner ID", ErrInvalidPattern)
	}
	if strings.TrimSpace(pattern.VendorKey) == "" {
		return fmt.Errorf("%w: missing vendor key", ErrInvalidPattern)
	}
	if pattern.OccurrenceCount < 1 {
		return fmt.Errorf("%w: occurrence count must be at least 1", ErrInvalidPattern)
	}
	if pattern.ConfirmCount < 0 || pattern.RejectCount < 0 {
		return fmt.Errorf("%w: feedback counts cannot be negative", ErrInvalidPattern)
	}
	if pattern.MinAmount.GreaterThan(pattern.MaxAmount) {
		return fmt.Errorf("%w: min amount exceeds max amount", ErrInvalidPattern)
	}
	return nil
}

// validatePrediction validates a transaction prediction.
func validatePrediction(prediction *model.TransactionPrediction) error {
	if prediction == nil {
		return fmt.Errorf("%w: prediction", ErrNilParameter)
	}
	if prediction.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidPredict)
	}
	if prediction.TransactionID == "" {
		return fmt.Errorf("%w: missing transaction ID", ErrInvalidPredict)
	}
	if prediction.OwnerID == "" {
		return fmt.Errorf("%w: missing owner ID", ErrInvalidPredict)
	}
	if prediction.Score < 0 || prediction.Score > 1 {
		return fmt.Errorf("%w: score must be between 0 and 1", ErrInvalidPredict)
	}

	switch prediction.Status {
	case model.PredictionPending,
		model.PredictionConfirmed,
		model.PredictionRejected,
		model.PredictionIgnored:
		// Valid status
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidPredict, prediction.Status)
	}

	switch prediction.Level {
	case model.ConfidenceLow, model.ConfidenceMedium, model.ConfidenceHigh:
		// Valid level
	default:
		return fmt.Errorf("%w: unknown confidence level %q", ErrInvalidPredict, prediction.Level)
	}

	// Manual overrides never reference a pattern; pattern-based predictions
	// always do.
	if prediction.IsManualOverride && prediction.PatternID != nil {
		return fmt.Errorf("%w: manual override cannot reference a pattern", ErrInvalidPredict)
	}
	if !prediction.IsManualOverride && prediction.PatternID == nil {
		return fmt.Errorf("%w: pattern-based prediction requires a pattern ID", ErrInvalidPredict)
	}

	return nil
}

// validateFeedback validates a feedback record.
func validateFeedback(feedback *model.PredictionFeedback) error {
	if feedback == nil {
		return fmt.Errorf("%w: feedback", ErrNilParameter)
	}
	if feedback.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidFeedback)
	}
	if feedback.PredictionID == "" {
		return fmt.Errorf("%w: missing prediction ID", ErrInvalidFeedback)
	}
	if feedback.Type != model.FeedbackConfirmed && feedback.Type != model.FeedbackRejected {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidFeedback, feedback.Type)
	}
	return nil
}

// validateAlias validates a vendor alias.
func validateAlias(alias *model.VendorAlias) error {
	if alias == nil {
		return fmt.Errorf("%w: alias", ErrNilParameter)
	}
	if strings.TrimSpace(alias.OwnerID) == "" {
		return fmt.Errorf("%w: ownerID", ErrEmptyString)
	}
	if strings.TrimSpace(alias.Alias) == "" {
		return fmt.Errorf("%w: alias", ErrEmptyString)
	}
	if strings.TrimSpace(alias.VendorKey) == "" {
		return fmt.Errorf("%w: vendorKey", ErrEmptyString)
	}
	return nil
}
