package repository

import (
	"context"
	"errors"
	"time"

	"fiscal-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PaymentMatchRepository struct {
	db *gorm.DB
}

func NewPaymentMatchRepository(db *gorm.DB) *PaymentMatchRepository {
	return &PaymentMatchRepository{db: db}
}

func (r *PaymentMatchRepository) Create(ctx context.Context, match *models.PaymentMatch) error {
	return r.db.WithContext(ctx).Create(match).Error
}

func (r *PaymentMatchRepository) FindByTransactionID(ctx context.Context, txID uuid.UUID) (*models.PaymentMatch, error) {
	var match models.PaymentMatch
	err := r.db.WithContext(ctx).First(&match, "bank_transaction_id = ?", txID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &match, nil
}

// ExistsForOrder reports whether the order is already claimed by a live match.
// An existing match means the order was already verified against a payment.
func (r *PaymentMatchRepository) ExistsForOrder(ctx context.Context, orderID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PaymentMatch{}).
		Where("order_id = ?", orderID).
		Count(&count).Error
	return count > 0, err
}

// MarkIssued writes the terminal issued state. Sticky: rows that already
// carry a terminal flag are left untouched.
func (r *PaymentMatchRepository) MarkIssued(ctx context.Context, id uuid.UUID, receiptID, fiscalCode, receiptURL string, issuedAt time.Time) error {
	updates := map[string]interface{}{
		"check_issued":     true,
		"check_issued_at":  issuedAt,
		"check_receipt_id": receiptID,
	}
	if fiscalCode != "" {
		updates["check_fiscal_code"] = fiscalCode
	}
	if receiptURL != "" {
		updates["check_receipt_url"] = receiptURL
	}
	return r.db.WithContext(ctx).Model(&models.PaymentMatch{}).
		Where("id = ? AND check_issued = ? AND check_skipped = ?", id, false, false).
		Updates(updates).Error
}

func (r *PaymentMatchRepository) MarkSkipped(ctx context.Context, id uuid.UUID, reason string) error {
	return r.db.WithContext(ctx).Model(&models.PaymentMatch{}).
		Where("id = ? AND check_issued = ? AND check_skipped = ?", id, false, false).
		Updates(map[string]interface{}{
			"check_skipped":     true,
			"check_skip_reason": reason,
		}).Error
}
