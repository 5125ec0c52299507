package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	MatchedByAuto   = "auto"
	MatchedByManual = "manual"
)

// PaymentMatch links one bank transaction to one order and carries the legacy
// copy of the check state (BankTransaction fields are the newer, authoritative
// location; readers must prefer them and fall back here).
//
// Invariants: a transaction is claimed by at most one match; CheckIssued and
// CheckSkipped are mutually exclusive and sticky once set.
type PaymentMatch struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID           string    `gorm:"index" json:"order_id"`
	BankTransactionID uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"bank_transaction_id"`

	MatchConfidence float64   `json:"match_confidence"`
	VerifiedAt      time.Time `json:"verified_at"`
	MatchedBy       string    `json:"matched_by"`

	OrderAmount       decimal.Decimal `gorm:"type:numeric(14,2)" json:"order_amount"`
	TransactionAmount decimal.Decimal `gorm:"type:numeric(14,2)" json:"transaction_amount"`
	AmountDifference  decimal.Decimal `gorm:"type:numeric(14,2)" json:"amount_difference"`
	DaysDifference    int             `json:"days_difference"`
	Notes             string          `json:"notes"`

	CheckIssued     bool       `json:"check_issued"`
	CheckIssuedAt   *time.Time `json:"check_issued_at,omitempty"`
	CheckReceiptID  *string    `json:"check_receipt_id,omitempty"`
	CheckFiscalCode *string    `json:"check_fiscal_code,omitempty"`
	CheckReceiptURL *string    `json:"check_receipt_url,omitempty"`
	CheckSkipped    bool       `json:"check_skipped"`
	CheckSkipReason *string    `json:"check_skip_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
