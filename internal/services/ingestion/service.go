package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"fiscal-reconciliation-backend/internal/models"
	"fiscal-reconciliation-backend/internal/services/bankfeed"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionStore interface {
	ExistsByExternalID(ctx context.Context, externalID string) (bool, error)
	Create(ctx context.Context, tx *models.BankTransaction) error
}

// Service normalizes raw bank feed records into BankTransaction rows.
// Ingestion is append-only and deduplicated on ExternalID; one bad record
// never aborts the batch.
type Service struct {
	txs       TransactionStore
	maxAmount decimal.Decimal
	log       *slog.Logger
	synthSeq  atomic.Uint64
}

func NewService(txs TransactionStore, maxAmount decimal.Decimal, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{txs: txs, maxAmount: maxAmount, log: log}
}

type Summary struct {
	Created    int      `json:"created"`
	Duplicates int      `json:"duplicates"`
	Errors     []string `json:"errors"`
}

func (s *Service) Ingest(ctx context.Context, source string, raw []bankfeed.RawTransaction) Summary {
	var summary Summary

	for i, record := range raw {
		externalID := s.externalID(source, record)
		if externalID == "" {
			summary.Errors = append(summary.Errors, fmt.Sprintf("record %d: empty external id", i))
			continue
		}

		tx, err := s.normalize(externalID, record)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("record %d (%s): %v", i, externalID, err))
			continue
		}

		exists, err := s.txs.ExistsByExternalID(ctx, externalID)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("record %d (%s): duplicate probe failed: %v", i, externalID, err))
			continue
		}
		if exists {
			summary.Duplicates++
			continue
		}

		if err := s.txs.Create(ctx, tx); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("record %d (%s): insert failed: %v", i, externalID, err))
			continue
		}
		summary.Created++
	}

	s.log.Info("ingestion batch finished",
		"source", source,
		"created", summary.Created,
		"duplicates", summary.Duplicates,
		"errors", len(summary.Errors))
	return summary
}

// externalID prefers the bank-provided id, then the reference, and only then
// synthesizes a token. Synthesis is logged as a warning because it means the
// upstream feed lost its identifiers.
func (s *Service) externalID(source string, record bankfeed.RawTransaction) string {
	if id := strings.TrimSpace(record.ID); id != "" {
		return id
	}
	if ref := strings.TrimSpace(record.Reference); ref != "" {
		return ref
	}

	synthesized := fmt.Sprintf("%s_%d_%04x_%d",
		source, time.Now().Unix(), rand.Intn(0x10000), s.synthSeq.Add(1))
	s.log.Warn("synthesized external id for bank record, upstream lost its identifier",
		"source", source, "external_id", synthesized, "description", record.Description)
	return synthesized
}

func (s *Service) normalize(externalID string, record bankfeed.RawTransaction) (*models.BankTransaction, error) {
	transactionAt, err := parseDateTime(record.Date, record.Time)
	if err != nil {
		return nil, err
	}

	if record.Amount.IsNegative() {
		return nil, fmt.Errorf("negative amount %s", record.Amount)
	}
	if record.Amount.GreaterThan(s.maxAmount) {
		return nil, fmt.Errorf("amount %s exceeds maximum %s", record.Amount, s.maxAmount)
	}
	if record.Amount.IsZero() {
		s.log.Info("keeping zero-amount transaction", "external_id", externalID)
	}

	if record.Type != models.TypeIncome && record.Type != models.TypeExpense {
		return nil, fmt.Errorf("unknown type %q", record.Type)
	}

	currency := record.Currency
	if currency == "" {
		currency = "UAH"
	}

	rawData, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshaling raw payload: %w", err)
	}

	now := time.Now()
	return &models.BankTransaction{
		ID:                  uuid.New(),
		ExternalID:          externalID,
		TransactionAt:       transactionAt,
		Amount:              record.Amount,
		Currency:            currency,
		Type:                record.Type,
		CounterpartyAccount: strings.TrimSpace(record.Account),
		CounterpartyName:    strings.TrimSpace(record.Counterparty),
		Description:         record.Description,
		RawData:             rawData,
		Status:              "needs_check",
		SyncedAt:            now,
		CreatedAt:           now,
	}, nil
}

// parseDateTime parses the feed's DD-MM-YYYY date and optional HH:MM time.
// time.Parse already enforces calendar and clock ranges.
func parseDateTime(date, clock string) (time.Time, error) {
	day, err := time.Parse("02-01-2006", strings.TrimSpace(date))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}

	clock = strings.TrimSpace(clock)
	if clock == "" {
		return day, nil
	}
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", clock, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC), nil
}
