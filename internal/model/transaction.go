package model

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction represents a single financial transaction from any source.
type Transaction struct {
	Date         time.Time       `json:"date"`
	CreatedAt    time.Time       `json:"created_at"`
	ID           string          `json:"id"`
	OwnerID      string          `json:"owner_id"`
	Description  string          `json:"description"`   // Raw transaction description
	MerchantName string          `json:"merchant_name"` // Cleaned merchant name, may be empty
	CategoryHint string          `json:"category_hint"`
	Department   string          `json:"department"`
	Hash         string          `json:"hash"`
	Amount       decimal.Decimal `json:"amount"`

	// HasReceiptMatch is set once a receipt has been independently matched
	// to this transaction and confirmed by the user.
	HasReceiptMatch bool `json:"has_receipt_match"`
}

// VendorText returns the text the engine should normalize for this
// transaction: the cleaned merchant name when present, else the raw
// description.
func (t *Transaction) VendorText() string {
	if t.MerchantName != "" {
		return t.MerchantName
	}
	return t.Description
}

// GenerateHash creates a unique hash for duplicate detection.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%s:%s:%s",
		t.OwnerID,
		t.Date.Format("2006-01-02"),
		t.Amount.StringFixed(2),
		t.MerchantName,
		t.Description)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// ExpenseReport groups the lines of one submitted expense report. Reports
// are the unit of learning and the replay set for a full rebuild.
type ExpenseReport struct {
	ReportDate time.Time `json:"report_date"`
	CreatedAt  time.Time `json:"created_at"`
	OwnerID    string    `json:"owner_id"`
	ID         int64     `json:"id"`
}

// ReportLine is one learnable line of an expense report.
type ReportLine struct {
	TransactionID  string          `json:"transaction_id"`
	VendorText     string          `json:"vendor_text"`
	CategoryCode   string          `json:"category_code"`
	DepartmentCode string          `json:"department_code"`
	Amount         decimal.Decimal `json:"amount"`
	ReportID       int64           `json:"report_id"`
}
