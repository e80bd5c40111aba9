// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/augurfin/expense-augur/internal/model"
)

// PatternStatusFilter selects which patterns a listing returns.
type PatternStatusFilter string

// Pattern status filter constants.
const (
	PatternStatusAll        PatternStatusFilter = "all"
	PatternStatusActive     PatternStatusFilter = "active"
	PatternStatusSuppressed PatternStatusFilter = "suppressed"
)

// PatternSortKey identifies a sortable column for pattern listings.
type PatternSortKey string

// Pattern sort key constants.
const (
	SortByAccuracy      PatternSortKey = "accuracy"
	SortByName          PatternSortKey = "name"
	SortByAverageAmount PatternSortKey = "average_amount"
	SortByOccurrences   PatternSortKey = "occurrences"
)

// PatternFilter defines filtering and paging options for pattern listings.
type PatternFilter struct {
	Status       PatternStatusFilter
	Category     string
	VendorSearch string
	SortBy       PatternSortKey
	SortDesc     bool
	Limit        int
	Offset       int
}

// PredictedTransaction pairs a pending prediction with its transaction for
// draft pre-population. HasReceiptMatch lets the consuming draft builder
// decide precedence between receipt-backed and prediction-backed selection.
type PredictedTransaction struct {
	Transaction     model.Transaction
	Prediction      model.TransactionPrediction
	HasReceiptMatch bool
}

// DashboardStats aggregates engine health for the management surface.
type DashboardStats struct {
	PendingByLevel  map[model.ConfidenceLevel]int
	ActivePatterns  int
	ConfirmedTotal  int
	RejectedTotal   int
	OverallAccuracy float64
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Transaction substrate
	SaveTransactions(ctx context.Context, transactions []model.Transaction) error
	GetTransactionByID(ctx context.Context, ownerID, id string) (*model.Transaction, error)
	GetTransactionsByIDs(ctx context.Context, ownerID string, ids []string) ([]model.Transaction, error)
	GetUnpredictedTransactionIDs(ctx context.Context, ownerID string) ([]string, error)
	SetReceiptMatched(ctx context.Context, ownerID, transactionID string, matched bool) error

	// Expense reports
	SaveReport(ctx context.Context, report *model.ExpenseReport, lines []model.ReportLine) error
	GetReport(ctx context.Context, ownerID string, reportID int64) (*model.ExpenseReport, error)
	GetReportLines(ctx context.Context, ownerID string, reportID int64) ([]model.ReportLine, error)
	GetReportIDs(ctx context.Context, ownerID string) ([]int64, error)

	// Vendor aliases
	SaveVendorAlias(ctx context.Context, alias *model.VendorAlias) error
	GetVendorAlias(ctx context.Context, ownerID, alias string) (*model.VendorAlias, error)
	GetAllVendorAliases(ctx context.Context, ownerID string) ([]model.VendorAlias, error)

	// Expense patterns
	GetPattern(ctx context.Context, ownerID, vendorKey string) (*model.ExpensePattern, error)
	GetPatternByID(ctx context.Context, id int64) (*model.ExpensePattern, error)
	CreatePattern(ctx context.Context, pattern *model.ExpensePattern) error
	UpdatePattern(ctx context.Context, pattern *model.ExpensePattern) error
	DeletePattern(ctx context.Context, id int64) error
	DeletePatternsForOwner(ctx context.Context, ownerID string) (int64, error)
	GetActivePatterns(ctx context.Context, ownerID string) ([]model.ExpensePattern, error)
	ListPatterns(ctx context.Context, ownerID string, filter PatternFilter) ([]model.ExpensePattern, int, error)
	SetPatternSuppressed(ctx context.Context, id int64, suppressed bool) error

	// Predictions
	CreatePrediction(ctx context.Context, prediction *model.TransactionPrediction) error
	GetPrediction(ctx context.Context, id string) (*model.TransactionPrediction, error)
	GetPredictionByTransaction(ctx context.Context, ownerID, transactionID string) (*model.TransactionPrediction, error)
	UpdatePrediction(ctx context.Context, prediction *model.TransactionPrediction) error
	DeletePrediction(ctx context.Context, id string) error
	GetPredictionsForTransactions(ctx context.Context, ownerID string, transactionIDs []string) (map[string]model.PredictionSummary, error)
	GetPredictedTransactionsForPeriod(ctx context.Context, ownerID string, start, end time.Time) ([]PredictedTransaction, error)

	// Feedback audit log
	SaveFeedback(ctx context.Context, feedback *model.PredictionFeedback) error
	GetFeedbackForPrediction(ctx context.Context, predictionID string) ([]model.PredictionFeedback, error)

	// Aggregates
	GetDashboardStats(ctx context.Context, ownerID string) (*DashboardStats, error)

	// Database management
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Tx, error)
	Close() error
}

// Tx scopes the mutations of one engine batch or one feedback item to a
// single commit. Work that fails mid-way rolls back; nothing from it
// becomes visible.
type Tx interface {
	Commit() error
	Rollback() error

	GetPattern(ctx context.Context, ownerID, vendorKey string) (*model.ExpensePattern, error)
	GetPatternByID(ctx context.Context, id int64) (*model.ExpensePattern, error)
	CreatePattern(ctx context.Context, pattern *model.ExpensePattern) error
	UpdatePattern(ctx context.Context, pattern *model.ExpensePattern) error
	CreatePrediction(ctx context.Context, prediction *model.TransactionPrediction) error
	GetPrediction(ctx context.Context, id string) (*model.TransactionPrediction, error)
	GetPredictionByTransaction(ctx context.Context, ownerID, transactionID string) (*model.TransactionPrediction, error)
	UpdatePrediction(ctx context.Context, prediction *model.TransactionPrediction) error
	DeletePrediction(ctx context.Context, id string) error
	SaveFeedback(ctx context.Context, feedback *model.PredictionFeedback) error
}

// VendorNormalizer maps raw vendor text to a canonical vendor key.
type VendorNormalizer interface {
	Normalize(ctx context.Context, ownerID, rawVendorText string) (string, error)
}

// ReceiptMatcher reports whether a transaction has a confirmed receipt
// match. Implemented by the receipt-processing collaborator.
type ReceiptMatcher interface {
	HasConfirmedReceiptMatch(ctx context.Context, transactionID string) (bool, error)
}

// ItemResult reports the outcome of one item in a bulk operation. Bulk
// operations continue past individual failures; each item is independently
// meaningful to the user.
type ItemResult struct {
	Err error
	ID  string
}

// PatternActionResult reports the outcome of one pattern in a bulk pattern
// action.
type PatternActionResult struct {
	Err error
	ID  int64
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
