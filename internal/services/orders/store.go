package orders

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order is the slice of the order store's data the reconciliation engine
// actually consumes.
type Order struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Filter struct {
	CreatedAfter    time.Time
	FinancialStatus string
}

type NoteUpdate struct {
	Note       string `json:"note"`
	MarkAsPaid bool   `json:"mark_as_paid,omitempty"`
}

// Store is the order-store collaborator. The engine never talks to the shop
// platform directly.
type Store interface {
	FindOrders(ctx context.Context, filter Filter) ([]Order, error)
	UpdateOrderNote(ctx context.Context, orderID, shopID string, update NoteUpdate) error
}
