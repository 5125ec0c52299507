package repository

import (
	"context"
	"errors"
	"time"

	"fiscal-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("record not found")

type BankTransactionRepository struct {
	db *gorm.DB
}

func NewBankTransactionRepository(db *gorm.DB) *BankTransactionRepository {
	return &BankTransactionRepository{db: db}
}

func (r *BankTransactionRepository) DB() *gorm.DB {
	return r.db
}

func (r *BankTransactionRepository) Create(ctx context.Context, tx *models.BankTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *BankTransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.BankTransaction, error) {
	var tx models.BankTransaction
	err := r.db.WithContext(ctx).First(&tx, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *BankTransactionRepository) ExistsByExternalID(ctx context.Context, externalID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.BankTransaction{}).
		Where("external_id = ?", externalID).
		Count(&count).Error
	return count > 0, err
}

// ListUnmatchedIncome returns income transactions with no claimed order and no
// terminal check state, newest first. Used as the matcher's candidate pool.
func (r *BankTransactionRepository) ListUnmatchedIncome(ctx context.Context, since time.Time) ([]models.BankTransaction, error) {
	var txs []models.BankTransaction
	err := r.db.WithContext(ctx).
		Where("type = ?", models.TypeIncome).
		Where("matched_order_id IS NULL").
		Where("check_receipt_id IS NULL").
		Where("transaction_at >= ?", since).
		Order("transaction_at DESC").
		Find(&txs).Error
	return txs, err
}

// List pages transactions by cursor (id ascending) with an optional status filter.
func (r *BankTransactionRepository) List(ctx context.Context, status, cursor string, limit int) ([]models.BankTransaction, string, bool, error) {
	var txs []models.BankTransaction
	query := r.db.WithContext(ctx).
		Order("id ASC").
		Limit(limit + 1)

	if status != "" && status != "all" {
		query = query.Where("status = ?", status)
	}
	if cursor != "" {
		query = query.Where("id > ?", cursor)
	}

	if err := query.Find(&txs).Error; err != nil {
		return nil, "", false, err
	}

	hasMore := false
	var nextCursor string
	if len(txs) > limit {
		hasMore = true
		nextCursor = txs[limit-1].ID.String()
		txs = txs[:limit]
	}
	return txs, nextCursor, hasMore, nil
}

func (r *BankTransactionRepository) SetMatchedOrder(ctx context.Context, txID uuid.UUID, orderID string) error {
	return r.db.WithContext(ctx).Model(&models.BankTransaction{}).
		Where("id = ? AND matched_order_id IS NULL", txID).
		Updates(map[string]interface{}{
			"matched_order_id": orderID,
			"status":           "matched_order",
		}).Error
}

// SetCheckIssued mirrors the receipt reference onto the transaction. The guard
// keeps the field sticky: an already-issued transaction is never overwritten.
func (r *BankTransactionRepository) SetCheckIssued(ctx context.Context, txID uuid.UUID, receiptID string, issuedAt time.Time) error {
	return r.db.WithContext(ctx).Model(&models.BankTransaction{}).
		Where("id = ? AND check_receipt_id IS NULL", txID).
		Updates(map[string]interface{}{
			"check_receipt_id": receiptID,
			"check_issued_at":  issuedAt,
			"status":           "check_issued",
		}).Error
}

func (r *BankTransactionRepository) SetCheckSkipped(ctx context.Context, txID uuid.UUID, reason string) error {
	return r.db.WithContext(ctx).Model(&models.BankTransaction{}).
		Where("id = ? AND check_receipt_id IS NULL AND check_skip_reason IS NULL", txID).
		Updates(map[string]interface{}{
			"check_skip_reason": reason,
			"status":            "skipped",
		}).Error
}
