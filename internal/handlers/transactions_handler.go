package handlers

import (
	"net/http"

	"fiscal-reconciliation-backend/internal/models"
	"fiscal-reconciliation-backend/internal/repository"
	"fiscal-reconciliation-backend/internal/services/bankfeed"
	"fiscal-reconciliation-backend/internal/services/ingestion"
	"fiscal-reconciliation-backend/internal/services/payments"

	"github.com/gin-gonic/gin"
)

type TransactionHandler struct {
	ingester *ingestion.Service
	feed     bankfeed.Client
	source   string
	txRepo   *repository.BankTransactionRepository
	matches  *repository.PaymentMatchRepository
	rules    payments.Rules
}

func NewTransactionHandler(
	ingester *ingestion.Service,
	feed bankfeed.Client,
	source string,
	txRepo *repository.BankTransactionRepository,
	matches *repository.PaymentMatchRepository,
	rules payments.Rules,
) *TransactionHandler {
	return &TransactionHandler{
		ingester: ingester,
		feed:     feed,
		source:   source,
		txRepo:   txRepo,
		matches:  matches,
		rules:    rules,
	}
}

type syncRequest struct {
	DaysBack int `json:"days_back"`
}

// Sync pulls the bank feed and runs the batch through ingestion.
func (h *TransactionHandler) Sync(c *gin.Context) {
	var req syncRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid payload"})
		return
	}
	if req.DaysBack <= 0 {
		req.DaysBack = 7
	}

	result, err := h.feed.FetchTransactions(c.Request.Context(), req.DaysBack)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
		return
	}

	summary := h.ingester.Ingest(c.Request.Context(), h.source, result.Transactions)
	c.JSON(http.StatusOK, gin.H{"success": true, "summary": summary})
}

type ingestRequest struct {
	Source       string                    `json:"source,omitempty"`
	Transactions []bankfeed.RawTransaction `json:"transactions"`
}

// Ingest accepts a raw batch directly, bypassing the feed collaborator.
func (h *TransactionHandler) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid payload"})
		return
	}
	source := req.Source
	if source == "" {
		source = h.source
	}

	summary := h.ingester.Ingest(c.Request.Context(), source, req.Transactions)
	c.JSON(http.StatusOK, gin.H{"success": true, "summary": summary})
}

type transactionView struct {
	models.BankTransaction
	Classification payments.Classification `json:"classification"`
}

// List pages stored transactions with each row decorated by the classifier.
func (h *TransactionHandler) List(c *gin.Context) {
	status := c.Query("status")
	cursor := c.Query("cursor")
	limit := 50

	txs, nextCursor, hasMore, err := h.txRepo.List(c.Request.Context(), status, cursor, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	items := make([]transactionView, 0, len(txs))
	for i := range txs {
		tx := txs[i]
		match, err := h.matches.FindByTransactionID(c.Request.Context(), tx.ID)
		if err != nil {
			match = nil
		}
		items = append(items, transactionView{
			BankTransaction: tx,
			Classification:  payments.Classify(&tx, match, h.rules),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"next_cursor": nextCursor,
		"has_more":    hasMore,
	})
}
