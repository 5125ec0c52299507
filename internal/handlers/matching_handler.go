package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"fiscal-reconciliation-backend/internal/models"
	"fiscal-reconciliation-backend/internal/services/matching"
	"fiscal-reconciliation-backend/internal/services/orders"

	"github.com/gin-gonic/gin"
)

// noteGroupSize bounds concurrent order-store calls so one matcher run does
// not trip the platform's rate limits.
const noteGroupSize = 5

type MatchingHandler struct {
	engine *matching.Engine
	orders orders.Store
	shopID string
	log    *slog.Logger
}

func NewMatchingHandler(engine *matching.Engine, store orders.Store, shopID string, log *slog.Logger) *MatchingHandler {
	if log == nil {
		log = slog.Default()
	}
	return &MatchingHandler{engine: engine, orders: store, shopID: shopID, log: log}
}

type runMatchingRequest struct {
	DaysBack int `json:"days_back"`
}

// Run fetches recent paid orders, matches them against unmatched income
// transactions, and annotates matched orders. Order-note failures are
// collected, never fatal: each order is an independent unit of work.
func (h *MatchingHandler) Run(c *gin.Context) {
	var req runMatchingRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid payload"})
		return
	}
	if req.DaysBack <= 0 {
		req.DaysBack = 7
	}

	ctx := c.Request.Context()
	orderList, err := h.orders.FindOrders(ctx, orders.Filter{
		CreatedAfter:    time.Now().AddDate(0, 0, -req.DaysBack),
		FinancialStatus: "paid",
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
		return
	}

	candidates, err := h.engine.Candidates(ctx, req.DaysBack)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	matches, err := h.engine.Match(ctx, orderList, candidates)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	noteErrors := h.annotateOrders(ctx, matches)

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"orders":      len(orderList),
		"candidates":  len(candidates),
		"matches":     matches,
		"note_errors": noteErrors,
	})
}

// annotateOrders writes a verification note per matched order, in small
// concurrent groups with all-settled semantics.
func (h *MatchingHandler) annotateOrders(ctx context.Context, matches []models.PaymentMatch) []string {
	var (
		mu     sync.Mutex
		errs   []string
		wg     sync.WaitGroup
		tokens = make(chan struct{}, noteGroupSize)
	)

	for _, match := range matches {
		wg.Add(1)
		go func(m models.PaymentMatch) {
			defer wg.Done()
			tokens <- struct{}{}
			defer func() { <-tokens }()

			note := fmt.Sprintf("Payment verified: transaction %s, confidence %.0f%%",
				m.BankTransactionID, m.MatchConfidence)
			err := h.orders.UpdateOrderNote(ctx, m.OrderID, h.shopID, orders.NoteUpdate{
				Note:       note,
				MarkAsPaid: true,
			})
			if err != nil {
				h.log.Error("order note update failed", "order_id", m.OrderID, "error", err)
				mu.Lock()
				errs = append(errs, fmt.Sprintf("order %s: %v", m.OrderID, err))
				mu.Unlock()
			}
		}(match)
	}
	wg.Wait()
	return errs
}
