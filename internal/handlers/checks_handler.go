package handlers

import (
	"net/http"

	"fiscal-reconciliation-backend/internal/services/issuance"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CheckHandler struct {
	issuer *issuance.Service
}

func NewCheckHandler(issuer *issuance.Service) *CheckHandler {
	return &CheckHandler{issuer: issuer}
}

type issueCheckRequest struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	OrderID       string          `json:"order_id,omitempty"`
	OrderName     string          `json:"order_name,omitempty"`
	Waybill       string          `json:"waybill,omitempty"`
}

// IssueCheck runs one issuance attempt. The orchestrator reports failures as
// structured results, so this handler only distinguishes HTTP status codes.
func (h *CheckHandler) IssueCheck(c *gin.Context) {
	var req issueCheckRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid payload"})
		return
	}

	txID, err := uuid.Parse(req.TransactionID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid transaction ID"})
		return
	}

	var orderCtx *issuance.OrderContext
	if req.OrderID != "" || req.OrderName != "" || req.Waybill != "" {
		orderCtx = &issuance.OrderContext{
			OrderID:   req.OrderID,
			OrderName: req.OrderName,
			Waybill:   req.Waybill,
		}
	}

	result := h.issuer.IssueCheck(c.Request.Context(), txID, req.Amount, orderCtx)
	c.JSON(statusFor(result), result)
}

type skipCheckRequest struct {
	TransactionID string `json:"transaction_id"`
	Reason        string `json:"reason"`
}

func (h *CheckHandler) SkipCheck(c *gin.Context) {
	var req skipCheckRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid payload"})
		return
	}
	if req.Reason == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "reason is required"})
		return
	}

	txID, err := uuid.Parse(req.TransactionID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid transaction ID"})
		return
	}

	result := h.issuer.Skip(c.Request.Context(), txID, req.Reason)
	c.JSON(statusFor(result), result)
}

func statusFor(result issuance.Result) int {
	if result.Error != "" {
		return http.StatusUnprocessableEntity
	}
	return http.StatusOK
}
