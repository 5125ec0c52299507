package payments

import (
	"fmt"

	"fiscal-reconciliation-backend/internal/models"
)

const (
	StatusCheckIssued  = "check_issued"
	StatusNovaPoshta   = "nova_poshta"
	StatusExcludedCode = "excluded_code"
	StatusSkipped      = "skipped"
	StatusMatchedOrder = "matched_order"
	StatusNeedsCheck   = "needs_check"
)

// Rules is externally-configured classification data: the Nova Poshta
// settlement account and the set of excluded 4-digit payment codes.
type Rules struct {
	NovaPoshtaAccount string
	ExcludedCodes     map[string]struct{}
}

type Classification struct {
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	CanIssueCheck bool   `json:"can_issue_check"`
}

// paymentCodeOffset locates the 4-digit payment code inside a national
// account number. Fixed-offset extraction assumes the IBAN-like format used
// by the upstream bank; other formats will not yield a code at all.
const (
	paymentCodeOffset = 15
	paymentCodeLen    = 4
)

// PaymentCode extracts the 4-digit code from a counterparty account, or ""
// when the account is too short to carry one.
func PaymentCode(account string) string {
	if len(account) < paymentCodeOffset+paymentCodeLen {
		return ""
	}
	return account[paymentCodeOffset : paymentCodeOffset+paymentCodeLen]
}

// Classify maps a transaction (and its match, if any) to a payment status.
// The priority order is load-bearing: a Nova Poshta transaction that is also
// matched to an order must still report nova_poshta, never matched_order.
func Classify(tx *models.BankTransaction, match *models.PaymentMatch, rules Rules) Classification {
	state := Resolve(tx, match)

	if state.Issued {
		return Classification{
			Status: StatusCheckIssued,
			Reason: fmt.Sprintf("receipt %s already issued", state.ReceiptID),
		}
	}

	if rules.NovaPoshtaAccount != "" && tx.CounterpartyAccount == rules.NovaPoshtaAccount {
		return Classification{
			Status: StatusNovaPoshta,
			Reason: "Nova Poshta settlement account",
		}
	}

	if code := PaymentCode(tx.CounterpartyAccount); code != "" {
		if _, excluded := rules.ExcludedCodes[code]; excluded {
			return Classification{
				Status: StatusExcludedCode,
				Reason: fmt.Sprintf("payment code %s is excluded", code),
			}
		}
	}

	if state.Skipped {
		return Classification{
			Status: StatusSkipped,
			Reason: state.SkipReason,
		}
	}

	if tx.MatchedOrderID != nil && *tx.MatchedOrderID != "" {
		return Classification{
			Status:        StatusMatchedOrder,
			Reason:        fmt.Sprintf("matched to order %s", *tx.MatchedOrderID),
			CanIssueCheck: true,
		}
	}

	return Classification{
		Status:        StatusNeedsCheck,
		CanIssueCheck: true,
	}
}
