package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	TypeIncome  = "income"
	TypeExpense = "expense"
)

// BankTransaction is one ingested bank ledger entry. Rows are append-only:
// ingestion creates them once per ExternalID, the matcher and the issuance
// orchestrator mutate the match/check fields later, nothing deletes them.
type BankTransaction struct {
	ID                  uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ExternalID          string          `gorm:"uniqueIndex" json:"external_id"`
	TransactionAt       time.Time       `gorm:"column:transaction_at;index" json:"transaction_at"`
	Amount              decimal.Decimal `gorm:"type:numeric(14,2);index" json:"amount"`
	Currency            string          `gorm:"default:UAH" json:"currency"`
	Type                string          `gorm:"index" json:"type"`
	CounterpartyAccount string          `json:"counterparty_account"`
	CounterpartyName    string          `json:"counterparty_name"`
	Description         string          `json:"description"`
	RawData             datatypes.JSON  `json:"raw_data,omitempty"`

	// Set by the matcher.
	MatchedOrderID *string `gorm:"index" json:"matched_order_id,omitempty"`

	// Authoritative check state; PaymentMatch carries the legacy copy.
	CheckReceiptID  *string    `json:"check_receipt_id,omitempty"`
	CheckIssuedAt   *time.Time `json:"check_issued_at,omitempty"`
	CheckSkipReason *string    `json:"check_skip_reason,omitempty"`

	Status    string    `gorm:"index;default:needs_check" json:"status"`
	SyncedAt  time.Time `json:"synced_at"`
	CreatedAt time.Time `json:"created_at"`
}
