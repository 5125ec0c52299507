package issuance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fiscal-reconciliation-backend/internal/models"
	"fiscal-reconciliation-backend/internal/services/distribution"
	"fiscal-reconciliation-backend/internal/services/fiscal"
	"fiscal-reconciliation-backend/internal/services/payments"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.BankTransaction, error)
	SetCheckIssued(ctx context.Context, txID uuid.UUID, receiptID string, issuedAt time.Time) error
	SetCheckSkipped(ctx context.Context, txID uuid.UUID, reason string) error
}

type MatchStore interface {
	FindByTransactionID(ctx context.Context, txID uuid.UUID) (*models.PaymentMatch, error)
	Create(ctx context.Context, match *models.PaymentMatch) error
	MarkIssued(ctx context.Context, id uuid.UUID, receiptID, fiscalCode, receiptURL string, issuedAt time.Time) error
	MarkSkipped(ctx context.Context, id uuid.UUID, reason string) error
}

type FiscalGateway interface {
	Authenticate(ctx context.Context) (string, error)
	EnsureShiftOpen(ctx context.Context, token string) (*fiscal.Shift, error)
	CreateReceipt(ctx context.Context, token string, request fiscal.ReceiptRequest) (*fiscal.Receipt, error)
}

type Distributor interface {
	Distribute(totalMinor int64) ([]distribution.Item, error)
}

// OrderContext carries optional order data for the receipt body.
type OrderContext struct {
	OrderID   string `json:"order_id,omitempty"`
	OrderName string `json:"order_name,omitempty"`
	Waybill   string `json:"waybill,omitempty"`
}

// Result is the structured outcome of one issuance attempt. Single-entity
// operations report through it instead of raw errors so callers can render
// the precise reason to an operator.
type Result struct {
	Success       bool   `json:"success"`
	ReceiptID     string `json:"receipt_id,omitempty"`
	FiscalCode    string `json:"fiscal_code,omitempty"`
	ReceiptURL    string `json:"receipt_url,omitempty"`
	Skipped       bool   `json:"skipped,omitempty"`
	SkippedReason string `json:"skipped_reason,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Service is the issuance orchestrator. It walks a strict gate sequence per
// transaction: validate, check terminal state, distribute, issue, dual-write.
// Nothing is persisted before the external call succeeds, so a retried
// invocation always restarts safely from the idempotency checkpoint.
type Service struct {
	txs     TransactionStore
	matches MatchStore
	fiscal  FiscalGateway
	dist    Distributor
	rules   payments.Rules
	log     *slog.Logger
}

func NewService(txs TransactionStore, matches MatchStore, gateway FiscalGateway, dist Distributor, rules payments.Rules, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{txs: txs, matches: matches, fiscal: gateway, dist: dist, rules: rules, log: log}
}

func (s *Service) IssueCheck(ctx context.Context, txID uuid.UUID, amount decimal.Decimal, orderCtx *OrderContext) Result {
	if !amount.IsPositive() {
		return Result{Error: fmt.Sprintf("Invalid amount: %s", amount)}
	}

	tx, err := s.txs.GetByID(ctx, txID)
	if err != nil {
		return Result{Error: fmt.Sprintf("transaction %s not found: %v", txID, err)}
	}

	// Exclusion gates come before any match or external work.
	if reason := s.exclusionReason(tx); reason != "" {
		return s.skip(ctx, tx, reason)
	}

	match, err := s.loadOrCreateMatch(ctx, tx, amount, orderCtx)
	if err != nil {
		return Result{Error: fmt.Sprintf("failed to load payment match: %v", err)}
	}

	// Idempotency checkpoint: repeated invocations return the first receipt.
	state := payments.Resolve(tx, match)
	if state.Issued {
		return Result{
			Success:    true,
			ReceiptID:  state.ReceiptID,
			FiscalCode: state.FiscalCode,
			ReceiptURL: state.ReceiptURL,
		}
	}
	if state.Skipped {
		return Result{Skipped: true, SkippedReason: state.SkipReason}
	}

	totalMinor := amount.Shift(2).Round(0).IntPart()
	items, err := s.dist.Distribute(totalMinor)
	if err != nil {
		s.log.Error("amount distribution failed", "transaction_id", tx.ID, "amount", amount, "error", err)
		return Result{Error: fmt.Sprintf("amount distribution failed: %v", err)}
	}
	var sum int64
	for _, item := range items {
		sum += item.PriceMinor
	}
	if diff := sum - totalMinor; diff > 1 || diff < -1 {
		// Invariant violation in this engine, not bad external data.
		s.log.Error("distributed total mismatch", "transaction_id", tx.ID, "want", totalMinor, "got", sum)
		return Result{Error: fmt.Sprintf("distributed total %d does not match amount %d", sum, totalMinor)}
	}

	request := buildReceipt(items, totalMinor, orderCtx)

	token, err := s.fiscal.Authenticate(ctx)
	if err != nil {
		return Result{Error: err.Error()}
	}
	if _, err := s.fiscal.EnsureShiftOpen(ctx, token); err != nil {
		return Result{Error: err.Error()}
	}
	receipt, err := s.fiscal.CreateReceipt(ctx, token, request)
	if err != nil {
		return Result{Error: err.Error()}
	}

	// Dual write. Both writes are attempted even if one fails; a logged
	// inconsistency beats a silently lost receipt reference.
	issuedAt := time.Now()
	if err := s.matches.MarkIssued(ctx, match.ID, receipt.ID, receipt.FiscalCode, receipt.ReceiptURL, issuedAt); err != nil {
		s.log.Error("failed to mark match issued", "match_id", match.ID, "receipt_id", receipt.ID, "error", err)
	}
	if err := s.txs.SetCheckIssued(ctx, tx.ID, receipt.ID, issuedAt); err != nil {
		s.log.Error("failed to mirror receipt onto transaction", "transaction_id", tx.ID, "receipt_id", receipt.ID, "error", err)
	}

	return Result{
		Success:    true,
		ReceiptID:  receipt.ID,
		FiscalCode: receipt.FiscalCode,
		ReceiptURL: receipt.ReceiptURL,
	}
}

// Skip marks a transaction as deliberately checkless with a persisted,
// human-readable reason. Used by the manual skip action.
func (s *Service) Skip(ctx context.Context, txID uuid.UUID, reason string) Result {
	tx, err := s.txs.GetByID(ctx, txID)
	if err != nil {
		return Result{Error: fmt.Sprintf("transaction %s not found: %v", txID, err)}
	}
	return s.skip(ctx, tx, reason)
}

func (s *Service) exclusionReason(tx *models.BankTransaction) string {
	if s.rules.NovaPoshtaAccount != "" && tx.CounterpartyAccount == s.rules.NovaPoshtaAccount {
		return "Nova Poshta settlement account"
	}
	if code := payments.PaymentCode(tx.CounterpartyAccount); code != "" {
		if _, excluded := s.rules.ExcludedCodes[code]; excluded {
			return fmt.Sprintf("payment code %s is excluded", code)
		}
	}
	return ""
}

// skip persists the reason on both records. The repository guards keep
// terminal states sticky, so re-skipping an issued transaction is a no-op.
func (s *Service) skip(ctx context.Context, tx *models.BankTransaction, reason string) Result {
	state := payments.Resolve(tx, nil)
	if state.Issued {
		return Result{Success: true, ReceiptID: state.ReceiptID}
	}

	if err := s.txs.SetCheckSkipped(ctx, tx.ID, reason); err != nil {
		s.log.Error("failed to persist skip on transaction", "transaction_id", tx.ID, "error", err)
	}
	if match, err := s.matches.FindByTransactionID(ctx, tx.ID); err == nil {
		if err := s.matches.MarkSkipped(ctx, match.ID, reason); err != nil {
			s.log.Error("failed to persist skip on match", "match_id", match.ID, "error", err)
		}
	}
	return Result{Skipped: true, SkippedReason: reason}
}

// loadOrCreateMatch returns the transaction's match, creating a synthetic
// manual one when issuance was requested for an unmatched transaction.
func (s *Service) loadOrCreateMatch(ctx context.Context, tx *models.BankTransaction, amount decimal.Decimal, orderCtx *OrderContext) (*models.PaymentMatch, error) {
	match, err := s.matches.FindByTransactionID(ctx, tx.ID)
	if err == nil {
		return match, nil
	}

	orderID := ""
	if orderCtx != nil {
		orderID = orderCtx.OrderID
	}
	now := time.Now()
	match = &models.PaymentMatch{
		ID:                uuid.New(),
		OrderID:           orderID,
		BankTransactionID: tx.ID,
		MatchConfidence:   100,
		VerifiedAt:        now,
		MatchedBy:         models.MatchedByManual,
		OrderAmount:       amount,
		TransactionAmount: tx.Amount,
		AmountDifference:  tx.Amount.Sub(amount).Abs(),
		Notes:             "created by manual issuance",
		CreatedAt:         now,
	}
	if err := s.matches.Create(ctx, match); err != nil {
		return nil, err
	}
	return match, nil
}

// buildReceipt turns distributed prices into the registrar's goods shape:
// 4-digit zero-padded codes, minor-unit prices, quantity in thousandths.
func buildReceipt(items []distribution.Item, totalMinor int64, orderCtx *OrderContext) fiscal.ReceiptRequest {
	goods := make([]fiscal.GoodEntry, 0, len(items))
	for i, item := range items {
		name := fmt.Sprintf("Item %d", i+1)
		if orderCtx != nil && orderCtx.OrderName != "" {
			name = fmt.Sprintf("Order %s, item %d", orderCtx.OrderName, i+1)
		}
		goods = append(goods, fiscal.GoodEntry{
			Good: fiscal.Good{
				Code:  fmt.Sprintf("%04d", i+1),
				Name:  name,
				Price: item.PriceMinor,
			},
			Quantity: fiscal.QuantityPerUnit,
		})
	}

	if orderCtx != nil && orderCtx.Waybill != "" {
		return fiscal.NewWaybillSale(goods, totalMinor, orderCtx.Waybill)
	}
	return fiscal.NewCashlessSale(goods, totalMinor)
}
