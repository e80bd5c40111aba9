// Package model defines the core domain models used throughout the application.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExpensePattern is the learned spending profile for one vendor and one owner.
// Exactly one pattern exists per (owner, vendor key) pair.
type ExpensePattern struct {
	LastSeenAt           time.Time       `json:"last_seen_at"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
	OwnerID              string          `json:"owner_id"`
	VendorKey            string          `json:"vendor_key"`
	DisplayName          string          `json:"display_name"`
	DefaultCategory      string          `json:"default_category"`
	DefaultDepartment    string          `json:"default_department"`
	AverageAmount        decimal.Decimal `json:"average_amount"`
	MinAmount            decimal.Decimal `json:"min_amount"`
	MaxAmount            decimal.Decimal `json:"max_amount"`
	ID                   int64           `json:"id"`
	Version              int64           `json:"version"`
	OccurrenceCount      int             `json:"occurrence_count"`
	ConfirmCount         int             `json:"confirm_count"`
	RejectCount          int             `json:"reject_count"`
	IsSuppressed         bool            `json:"is_suppressed"`
	RequiresReceiptMatch bool            `json:"requires_receipt_match"`
}

// AccuracyRate returns the confirmed fraction of all feedback the pattern
// has received, or 0 when no feedback exists.
func (p *ExpensePattern) AccuracyRate() float64 {
	total := p.ConfirmCount + p.RejectCount
	if total == 0 {
		return 0
	}
	return float64(p.ConfirmCount) / float64(total)
}

// HasFeedback reports whether any confirm or reject has been recorded.
func (p *ExpensePattern) HasFeedback() bool {
	return p.ConfirmCount+p.RejectCount > 0
}
