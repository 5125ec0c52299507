package payments

import (
	"time"

	"fiscal-reconciliation-backend/internal/models"
)

// CheckState is the merged view of a payment's check fields. The transaction
// row is the authoritative source; the match row only backfills data written
// before the dual-write existed. Every read path goes through Resolve so the
// preference order lives in exactly one place.
type CheckState struct {
	Issued     bool
	ReceiptID  string
	FiscalCode string
	ReceiptURL string
	IssuedAt   *time.Time
	Skipped    bool
	SkipReason string
}

func Resolve(tx *models.BankTransaction, match *models.PaymentMatch) CheckState {
	var state CheckState

	if tx != nil {
		if tx.CheckReceiptID != nil && *tx.CheckReceiptID != "" {
			state.Issued = true
			state.ReceiptID = *tx.CheckReceiptID
			state.IssuedAt = tx.CheckIssuedAt
		} else if tx.CheckIssuedAt != nil {
			state.Issued = true
			state.IssuedAt = tx.CheckIssuedAt
		}
		if tx.CheckSkipReason != nil && *tx.CheckSkipReason != "" {
			state.Skipped = true
			state.SkipReason = *tx.CheckSkipReason
		}
	}

	if match == nil {
		return state
	}

	// Fallback: legacy rows carry check state only on the match.
	if !state.Issued && match.CheckIssued {
		state.Issued = true
		state.IssuedAt = match.CheckIssuedAt
		if match.CheckReceiptID != nil {
			state.ReceiptID = *match.CheckReceiptID
		}
	}
	if state.Issued {
		if state.FiscalCode == "" && match.CheckFiscalCode != nil {
			state.FiscalCode = *match.CheckFiscalCode
		}
		if state.ReceiptURL == "" && match.CheckReceiptURL != nil {
			state.ReceiptURL = *match.CheckReceiptURL
		}
	}
	if !state.Skipped && match.CheckSkipped {
		state.Skipped = true
		if match.CheckSkipReason != nil {
			state.SkipReason = *match.CheckSkipReason
		}
	}
	return state
}
