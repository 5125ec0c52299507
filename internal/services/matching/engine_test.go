package matching

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiscal-reconciliation-backend/internal/models"
	"fiscal-reconciliation-backend/internal/services/orders"
)

type fakeTxStore struct {
	claims map[uuid.UUID]string
}

func newFakeTxStore() *fakeTxStore {
	return &fakeTxStore{claims: make(map[uuid.UUID]string)}
}

func (f *fakeTxStore) ListUnmatchedIncome(context.Context, time.Time) ([]models.BankTransaction, error) {
	return nil, nil
}

func (f *fakeTxStore) SetMatchedOrder(_ context.Context, txID uuid.UUID, orderID string) error {
	if _, ok := f.claims[txID]; !ok {
		f.claims[txID] = orderID
	}
	return nil
}

type fakeMatchStore struct {
	matchedOrders map[string]bool
	created       []models.PaymentMatch
}

func newFakeMatchStore() *fakeMatchStore {
	return &fakeMatchStore{matchedOrders: make(map[string]bool)}
}

func (f *fakeMatchStore) ExistsForOrder(_ context.Context, orderID string) (bool, error) {
	return f.matchedOrders[orderID], nil
}

func (f *fakeMatchStore) Create(_ context.Context, match *models.PaymentMatch) error {
	f.matchedOrders[match.OrderID] = true
	f.created = append(f.created, *match)
	return nil
}

func newTestEngine(txs *fakeTxStore, matches *fakeMatchStore) *Engine {
	return NewEngine(txs, matches, decimal.NewFromFloat(0.01), 7, slog.Default())
}

func incomeTx(amount string, at time.Time) models.BankTransaction {
	return models.BankTransaction{
		ID:            uuid.New(),
		Type:          models.TypeIncome,
		Amount:        decimal.RequireFromString(amount),
		TransactionAt: at,
	}
}

func TestMatch_PairsOrderWithTransaction(t *testing.T) {
	txs := newFakeTxStore()
	matches := newFakeMatchStore()
	engine := newTestEngine(txs, matches)

	now := time.Now()
	tx := incomeTx("1450.50", now)
	order := orders.Order{
		ID:          "order-1",
		TotalAmount: decimal.RequireFromString("1450.50"),
		CreatedAt:   now.Add(-24 * time.Hour),
	}

	created, err := engine.Match(context.Background(), []orders.Order{order}, []models.BankTransaction{tx})
	require.NoError(t, err)
	require.Len(t, created, 1)

	assert.Equal(t, "order-1", created[0].OrderID)
	assert.Equal(t, tx.ID, created[0].BankTransactionID)
	assert.Equal(t, models.MatchedByAuto, created[0].MatchedBy)
	assert.Equal(t, "order-1", txs.claims[tx.ID], "dual write onto the transaction")
}

func TestMatch_AtMostOneMatchPerTransaction(t *testing.T) {
	txs := newFakeTxStore()
	matches := newFakeMatchStore()
	engine := newTestEngine(txs, matches)

	now := time.Now()
	tx := incomeTx("300.00", now)

	// Both orders satisfy the same single transaction.
	two := []orders.Order{
		{ID: "order-a", TotalAmount: decimal.RequireFromString("300.00"), CreatedAt: now},
		{ID: "order-b", TotalAmount: decimal.RequireFromString("300.00"), CreatedAt: now},
	}

	created, err := engine.Match(context.Background(), two, []models.BankTransaction{tx})
	require.NoError(t, err)
	require.Len(t, created, 1, "first-claimed-wins")
	assert.Equal(t, "order-a", created[0].OrderID)
}

func TestMatch_FiltersCandidates(t *testing.T) {
	now := time.Now()
	matchedOrder := "already-matched"

	tests := []struct {
		name string
		tx   models.BankTransaction
	}{
		{"amount outside epsilon", incomeTx("300.50", now)},
		{"date outside window", incomeTx("300.00", now.Add(-8 * 24 * time.Hour))},
		{
			"expense transaction",
			models.BankTransaction{
				ID:            uuid.New(),
				Type:          models.TypeExpense,
				Amount:        decimal.RequireFromString("300.00"),
				TransactionAt: now,
			},
		},
		{
			"already claimed transaction",
			models.BankTransaction{
				ID:             uuid.New(),
				Type:           models.TypeIncome,
				Amount:         decimal.RequireFromString("300.00"),
				TransactionAt:  now,
				MatchedOrderID: &matchedOrder,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine(newFakeTxStore(), newFakeMatchStore())
			order := orders.Order{ID: "order-1", TotalAmount: decimal.RequireFromString("300.00"), CreatedAt: now}

			created, err := engine.Match(context.Background(), []orders.Order{order}, []models.BankTransaction{tt.tx})
			require.NoError(t, err)
			assert.Empty(t, created)
		})
	}
}

func TestMatch_SkipsAlreadyMatchedOrders(t *testing.T) {
	txs := newFakeTxStore()
	matches := newFakeMatchStore()
	matches.matchedOrders["order-1"] = true
	engine := newTestEngine(txs, matches)

	now := time.Now()
	order := orders.Order{ID: "order-1", TotalAmount: decimal.RequireFromString("100.00"), CreatedAt: now}

	created, err := engine.Match(context.Background(), []orders.Order{order}, []models.BankTransaction{incomeTx("100.00", now)})
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestConfidence(t *testing.T) {
	amount := decimal.RequireFromString("100.00")

	tests := []struct {
		name       string
		amountDiff string
		daysDiff   int
		want       float64
	}{
		{"perfect match", "0", 0, 100},
		{"one day is free", "0", 1, 100},
		{"each extra day costs five", "0", 3, 90},
		{"amount difference penalized proportionally", "2.00", 0, 98},
		{"clamped to fifty", "0", 30, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := confidence(amount, decimal.RequireFromString(tt.amountDiff), tt.daysDiff)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}
