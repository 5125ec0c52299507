package issuance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiscal-reconciliation-backend/internal/models"
	"fiscal-reconciliation-backend/internal/services/distribution"
	"fiscal-reconciliation-backend/internal/services/fiscal"
	"fiscal-reconciliation-backend/internal/services/payments"
)

type fakeTxStore struct {
	txs      map[uuid.UUID]*models.BankTransaction
	getCalls int
	issued   map[uuid.UUID]string
	skipped  map[uuid.UUID]string
}

func newFakeTxStore(txs ...*models.BankTransaction) *fakeTxStore {
	store := &fakeTxStore{
		txs:     make(map[uuid.UUID]*models.BankTransaction),
		issued:  make(map[uuid.UUID]string),
		skipped: make(map[uuid.UUID]string),
	}
	for _, tx := range txs {
		store.txs[tx.ID] = tx
	}
	return store
}

func (f *fakeTxStore) GetByID(_ context.Context, id uuid.UUID) (*models.BankTransaction, error) {
	f.getCalls++
	tx, ok := f.txs[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	return tx, nil
}

func (f *fakeTxStore) SetCheckIssued(_ context.Context, txID uuid.UUID, receiptID string, _ time.Time) error {
	f.issued[txID] = receiptID
	return nil
}

func (f *fakeTxStore) SetCheckSkipped(_ context.Context, txID uuid.UUID, reason string) error {
	f.skipped[txID] = reason
	return nil
}

type fakeMatchStore struct {
	byTx    map[uuid.UUID]*models.PaymentMatch
	issued  map[uuid.UUID]string
	skipped map[uuid.UUID]string
}

func newFakeMatchStore(matches ...*models.PaymentMatch) *fakeMatchStore {
	store := &fakeMatchStore{
		byTx:    make(map[uuid.UUID]*models.PaymentMatch),
		issued:  make(map[uuid.UUID]string),
		skipped: make(map[uuid.UUID]string),
	}
	for _, m := range matches {
		store.byTx[m.BankTransactionID] = m
	}
	return store
}

func (f *fakeMatchStore) FindByTransactionID(_ context.Context, txID uuid.UUID) (*models.PaymentMatch, error) {
	match, ok := f.byTx[txID]
	if !ok {
		return nil, errors.New("record not found")
	}
	return match, nil
}

func (f *fakeMatchStore) Create(_ context.Context, match *models.PaymentMatch) error {
	f.byTx[match.BankTransactionID] = match
	return nil
}

func (f *fakeMatchStore) MarkIssued(_ context.Context, id uuid.UUID, receiptID, _, _ string, _ time.Time) error {
	f.issued[id] = receiptID
	return nil
}

func (f *fakeMatchStore) MarkSkipped(_ context.Context, id uuid.UUID, reason string) error {
	f.skipped[id] = reason
	return nil
}

type fakeFiscal struct {
	receiptCalls int
	failReceipt  bool
	receipt      fiscal.Receipt
}

func (f *fakeFiscal) Authenticate(context.Context) (string, error) {
	return "token", nil
}

func (f *fakeFiscal) EnsureShiftOpen(context.Context, string) (*fiscal.Shift, error) {
	return &fiscal.Shift{ID: "shift-1"}, nil
}

func (f *fakeFiscal) CreateReceipt(_ context.Context, _ string, _ fiscal.ReceiptRequest) (*fiscal.Receipt, error) {
	f.receiptCalls++
	if f.failReceipt {
		return nil, errors.New("registrar unavailable")
	}
	receipt := f.receipt
	if receipt.ID == "" {
		receipt.ID = fmt.Sprintf("rcpt-%d", f.receiptCalls)
	}
	return &receipt, nil
}

var excludedAccount = "UA" + strings.Repeat("3", 13) + "2902" + "00001234"

func testRules() payments.Rules {
	return payments.Rules{
		NovaPoshtaAccount: "UA113005280000026001000000001",
		ExcludedCodes:     map[string]struct{}{"2902": {}},
	}
}

func newTestService(txs *fakeTxStore, matches *fakeMatchStore, gateway *fakeFiscal) *Service {
	dist := distribution.New(1000, 100, 800, rand.New(rand.NewSource(1)))
	return NewService(txs, matches, gateway, dist, testRules(), slog.Default())
}

func needsCheckTx(amount string) *models.BankTransaction {
	return &models.BankTransaction{
		ID:     uuid.New(),
		Type:   models.TypeIncome,
		Amount: decimal.RequireFromString(amount),
		Status: "needs_check",
	}
}

func TestIssueCheck_RejectsNonPositiveAmount(t *testing.T) {
	txs := newFakeTxStore()
	gateway := &fakeFiscal{}
	svc := newTestService(txs, newFakeMatchStore(), gateway)

	result := svc.IssueCheck(context.Background(), uuid.New(), decimal.Zero, nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "Invalid amount")
	assert.Zero(t, txs.getCalls, "rejected before any store access")
	assert.Zero(t, gateway.receiptCalls)
}

func TestIssueCheck_TransactionNotFound(t *testing.T) {
	svc := newTestService(newFakeTxStore(), newFakeMatchStore(), &fakeFiscal{})

	result := svc.IssueCheck(context.Background(), uuid.New(), decimal.NewFromInt(100), nil)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not found")
}

func TestIssueCheck_ExcludedCodeSkipsWithoutFiscalCall(t *testing.T) {
	tx := needsCheckTx("500.00")
	tx.CounterpartyAccount = excludedAccount

	txs := newFakeTxStore(tx)
	matches := newFakeMatchStore()
	gateway := &fakeFiscal{}
	svc := newTestService(txs, matches, gateway)

	result := svc.IssueCheck(context.Background(), tx.ID, tx.Amount, nil)

	assert.False(t, result.Success)
	assert.True(t, result.Skipped)
	assert.Contains(t, result.SkippedReason, "2902")
	assert.Zero(t, gateway.receiptCalls, "fiscal client never called")
	assert.Contains(t, txs.skipped[tx.ID], "2902", "skip reason persisted on transaction")
}

func TestIssueCheck_NovaPoshtaSkips(t *testing.T) {
	tx := needsCheckTx("500.00")
	tx.CounterpartyAccount = testRules().NovaPoshtaAccount

	txs := newFakeTxStore(tx)
	match := &models.PaymentMatch{ID: uuid.New(), BankTransactionID: tx.ID}
	matches := newFakeMatchStore(match)
	gateway := &fakeFiscal{}
	svc := newTestService(txs, matches, gateway)

	result := svc.IssueCheck(context.Background(), tx.ID, tx.Amount, nil)

	assert.True(t, result.Skipped)
	assert.Contains(t, result.SkippedReason, "Nova Poshta")
	assert.Zero(t, gateway.receiptCalls)
	assert.NotEmpty(t, txs.skipped[tx.ID])
	assert.NotEmpty(t, matches.skipped[match.ID], "skip dual-written to the match")
}

func TestIssueCheck_SuccessDualWrites(t *testing.T) {
	tx := needsCheckTx("1450.50")
	txs := newFakeTxStore(tx)
	matches := newFakeMatchStore()
	gateway := &fakeFiscal{receipt: fiscal.Receipt{ID: "rcpt-7", FiscalCode: "fc-7", ReceiptURL: "https://r/7"}}
	svc := newTestService(txs, matches, gateway)

	result := svc.IssueCheck(context.Background(), tx.ID, tx.Amount, &OrderContext{OrderID: "order-1", OrderName: "1001"})

	require.True(t, result.Success)
	assert.Equal(t, "rcpt-7", result.ReceiptID)
	assert.Equal(t, "fc-7", result.FiscalCode)
	assert.Equal(t, 1, gateway.receiptCalls)

	// Synthetic manual match created and marked issued.
	match := matches.byTx[tx.ID]
	require.NotNil(t, match)
	assert.Equal(t, models.MatchedByManual, match.MatchedBy)
	assert.Equal(t, "rcpt-7", matches.issued[match.ID])
	assert.Equal(t, "rcpt-7", txs.issued[tx.ID], "receipt mirrored onto the transaction")
}

func TestIssueCheck_IdempotentOnSecondCall(t *testing.T) {
	tx := needsCheckTx("1450.50")
	txs := newFakeTxStore(tx)
	matches := newFakeMatchStore()
	gateway := &fakeFiscal{}
	svc := newTestService(txs, matches, gateway)

	first := svc.IssueCheck(context.Background(), tx.ID, tx.Amount, nil)
	require.True(t, first.Success)

	// Simulate the dual write landing on the persisted transaction.
	receiptID := first.ReceiptID
	tx.CheckReceiptID = &receiptID

	second := svc.IssueCheck(context.Background(), tx.ID, tx.Amount, nil)
	require.True(t, second.Success)
	assert.Equal(t, first.ReceiptID, second.ReceiptID)
	assert.Equal(t, 1, gateway.receiptCalls, "at most one external receipt creation")
}

func TestIssueCheck_LegacyMatchStateBlocksReissue(t *testing.T) {
	tx := needsCheckTx("200.00")
	receiptID := "rcpt-legacy"
	match := &models.PaymentMatch{
		ID:                uuid.New(),
		BankTransactionID: tx.ID,
		CheckIssued:       true,
		CheckReceiptID:    &receiptID,
	}

	gateway := &fakeFiscal{}
	svc := newTestService(newFakeTxStore(tx), newFakeMatchStore(match), gateway)

	result := svc.IssueCheck(context.Background(), tx.ID, tx.Amount, nil)
	require.True(t, result.Success)
	assert.Equal(t, "rcpt-legacy", result.ReceiptID)
	assert.Zero(t, gateway.receiptCalls)
}

func TestIssueCheck_FiscalFailureLeavesStateUntouched(t *testing.T) {
	tx := needsCheckTx("1450.50")
	txs := newFakeTxStore(tx)
	matches := newFakeMatchStore()
	gateway := &fakeFiscal{failReceipt: true}
	svc := newTestService(txs, matches, gateway)

	result := svc.IssueCheck(context.Background(), tx.ID, tx.Amount, nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "registrar unavailable")
	assert.Empty(t, txs.issued)
	assert.Empty(t, matches.issued)

	// A retry after the outage succeeds from the idempotency checkpoint.
	gateway.failReceipt = false
	retry := svc.IssueCheck(context.Background(), tx.ID, tx.Amount, nil)
	assert.True(t, retry.Success)
}

func TestIssueCheck_StickySkipBlocksIssuance(t *testing.T) {
	tx := needsCheckTx("100.00")
	reason := "operator skipped"
	tx.CheckSkipReason = &reason

	gateway := &fakeFiscal{}
	svc := newTestService(newFakeTxStore(tx), newFakeMatchStore(), gateway)

	result := svc.IssueCheck(context.Background(), tx.ID, tx.Amount, nil)
	assert.False(t, result.Success)
	assert.True(t, result.Skipped)
	assert.Equal(t, reason, result.SkippedReason)
	assert.Zero(t, gateway.receiptCalls)
}

func TestSkip_PersistsReason(t *testing.T) {
	tx := needsCheckTx("100.00")
	txs := newFakeTxStore(tx)
	svc := newTestService(txs, newFakeMatchStore(), &fakeFiscal{})

	result := svc.Skip(context.Background(), tx.ID, "cash payment, no check needed")
	assert.True(t, result.Skipped)
	assert.Equal(t, "cash payment, no check needed", txs.skipped[tx.ID])
}
