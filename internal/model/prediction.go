package model

import "time"

// PredictionStatus tracks where a prediction is in its lifecycle.
type PredictionStatus string

// Prediction status constants.
const (
	PredictionPending   PredictionStatus = "PENDING"
	PredictionConfirmed PredictionStatus = "CONFIRMED"
	PredictionRejected  PredictionStatus = "REJECTED"
	// PredictionIgnored is assigned by external timeout policy, never by the
	// engine itself.
	PredictionIgnored PredictionStatus = "IGNORED"
)

// ConfidenceLevel is the discrete banding of a confidence score.
type ConfidenceLevel string

// Confidence level constants.
const (
	ConfidenceLow    ConfidenceLevel = "LOW"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceHigh   ConfidenceLevel = "HIGH"
)

// TransactionPrediction records that the engine (or the user, via a manual
// override) believes a transaction is a recurring reimbursable expense.
// PatternID is nil exactly when IsManualOverride is true.
type TransactionPrediction struct {
	CreatedAt        time.Time        `json:"created_at"`
	ResolvedAt       *time.Time       `json:"resolved_at,omitempty"`
	PatternID        *int64           `json:"pattern_id,omitempty"`
	ID               string           `json:"id"`
	TransactionID    string           `json:"transaction_id"`
	OwnerID          string           `json:"owner_id"`
	Status           PredictionStatus `json:"status"`
	Level            ConfidenceLevel  `json:"level"`
	Score            float64          `json:"score"`
	IsManualOverride bool             `json:"is_manual_override"`
}

// IsResolved reports whether the prediction has left the Pending state.
func (p *TransactionPrediction) IsResolved() bool {
	return p.Status != PredictionPending
}

// FeedbackType indicates the direction of a user's feedback.
type FeedbackType string

// Feedback type constants.
const (
	FeedbackConfirmed FeedbackType = "CONFIRMED"
	FeedbackRejected  FeedbackType = "REJECTED"
)

// PredictionFeedback is an append-only audit record of a user action on a
// prediction. Rows are never mutated or deleted.
type PredictionFeedback struct {
	CreatedAt    time.Time    `json:"created_at"`
	ID           string       `json:"id"`
	PredictionID string       `json:"prediction_id"`
	OwnerID      string       `json:"owner_id"`
	Type         FeedbackType `json:"type"`
}

// PredictionSummary is the compact view handed to the report collaborator
// for transaction list enrichment.
type PredictionSummary struct {
	PredictionID     string           `json:"prediction_id"`
	Status           PredictionStatus `json:"status"`
	Level            ConfidenceLevel  `json:"level"`
	Score            float64          `json:"score"`
	IsManualOverride bool             `json:"is_manual_override"`
}
