package matching

import (
	"context"
	"log/slog"
	"math"
	"time"

	"fiscal-reconciliation-backend/internal/models"
	"fiscal-reconciliation-backend/internal/services/orders"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionStore interface {
	ListUnmatchedIncome(ctx context.Context, since time.Time) ([]models.BankTransaction, error)
	SetMatchedOrder(ctx context.Context, txID uuid.UUID, orderID string) error
}

type MatchStore interface {
	ExistsForOrder(ctx context.Context, orderID string) (bool, error)
	Create(ctx context.Context, match *models.PaymentMatch) error
}

// Engine pairs orders with unmatched income transactions by amount and date
// proximity. A transaction claimed once in a run is never claimed again
// (first-claimed-wins); that check, not locking, is what upholds the
// at-most-one-match-per-transaction invariant under concurrent runs.
type Engine struct {
	txs     TransactionStore
	matches MatchStore
	epsilon decimal.Decimal
	window  time.Duration
	log     *slog.Logger
}

func NewEngine(txs TransactionStore, matches MatchStore, epsilon decimal.Decimal, windowDays int, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		txs:     txs,
		matches: matches,
		epsilon: epsilon,
		window:  time.Duration(windowDays) * 24 * time.Hour,
		log:     log,
	}
}

// Match runs one pass over the given orders against the given candidate
// transactions. One order's failure never aborts its siblings; errors are
// logged and the pass continues.
func (e *Engine) Match(ctx context.Context, orderList []orders.Order, transactions []models.BankTransaction) ([]models.PaymentMatch, error) {
	claimed := make(map[uuid.UUID]bool)
	var created []models.PaymentMatch

	for _, order := range orderList {
		exists, err := e.matches.ExistsForOrder(ctx, order.ID)
		if err != nil {
			e.log.Error("match lookup failed", "order_id", order.ID, "error", err)
			continue
		}
		if exists {
			continue
		}

		for i := range transactions {
			tx := &transactions[i]
			if claimed[tx.ID] || tx.Type != models.TypeIncome {
				continue
			}
			if tx.MatchedOrderID != nil && *tx.MatchedOrderID != "" {
				continue
			}

			amountDiff := tx.Amount.Sub(order.TotalAmount).Abs()
			if amountDiff.GreaterThanOrEqual(e.epsilon) {
				continue
			}
			dateDiff := tx.TransactionAt.Sub(order.CreatedAt)
			if dateDiff < 0 {
				dateDiff = -dateDiff
			}
			if dateDiff >= e.window {
				continue
			}

			daysDiff := int(dateDiff.Hours() / 24)
			match := models.PaymentMatch{
				ID:                uuid.New(),
				OrderID:           order.ID,
				BankTransactionID: tx.ID,
				MatchConfidence:   confidence(order.TotalAmount, amountDiff, daysDiff),
				VerifiedAt:        time.Now(),
				MatchedBy:         models.MatchedByAuto,
				OrderAmount:       order.TotalAmount,
				TransactionAmount: tx.Amount,
				AmountDifference:  amountDiff,
				DaysDifference:    daysDiff,
				CreatedAt:         time.Now(),
			}

			if err := e.matches.Create(ctx, &match); err != nil {
				e.log.Error("failed to persist match", "order_id", order.ID, "transaction_id", tx.ID, "error", err)
				continue
			}
			claimed[tx.ID] = true

			// Dual write: the transaction row carries the claim too.
			if err := e.txs.SetMatchedOrder(ctx, tx.ID, order.ID); err != nil {
				e.log.Error("failed to mark transaction matched", "transaction_id", tx.ID, "error", err)
			}

			created = append(created, match)
		}
	}
	return created, nil
}

// Candidates loads the matcher's transaction pool for the given lookback.
func (e *Engine) Candidates(ctx context.Context, daysBack int) ([]models.BankTransaction, error) {
	since := time.Now().AddDate(0, 0, -daysBack)
	return e.txs.ListUnmatchedIncome(ctx, since)
}

// confidence starts at 100 and is penalized by the amount difference as a
// fraction of the order amount and by each day of date difference beyond the
// first, clamped to [50, 100]. The clamp means "matched very weakly" reads
// the same as a flat 50; preserved as observed upstream.
func confidence(orderAmount, amountDiff decimal.Decimal, daysDiff int) float64 {
	score := 100.0

	if orderAmount.IsPositive() {
		frac, _ := amountDiff.Div(orderAmount).Float64()
		score -= frac * 100
	}
	if daysDiff > 1 {
		score -= float64(daysDiff-1) * 5
	}

	return math.Min(100, math.Max(50, score))
}
