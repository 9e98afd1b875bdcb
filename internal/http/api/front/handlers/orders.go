package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CreditLedger/internal/billing"
)

// OrderFrontHandler handles order creation for accounts.
type OrderFrontHandler struct {
	orders *billing.OrderService
}

// NewOrderFrontHandler constructs an OrderFrontHandler.
func NewOrderFrontHandler(orders *billing.OrderService) *OrderFrontHandler {
	return &OrderFrontHandler{orders: orders}
}

// createOrderRequest defines the request body for creating orders.
// Amount is in whole currency units.
type createOrderRequest struct {
	PlanID  string `json:"plan_id"`
	Credits *int64 `json:"credits"`
	Amount  *int64 `json:"amount"`
}

// Create validates the order and opens a payment at the processor.
func (h *OrderFrontHandler) Create(c *gin.Context) {
	accountID := getAccountID(c)
	if accountID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body createOrderRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.Amount == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount is required"})
		return
	}

	result, errCreate := h.orders.CreateOrder(c.Request.Context(), billing.OrderRequest{
		AccountID:      accountID,
		PlanID:         strings.TrimSpace(body.PlanID),
		CreditQuantity: body.Credits,
		AmountUnits:    *body.Amount,
	})
	if errCreate != nil {
		switch {
		case errors.Is(errCreate, billing.ErrInvalidPlan):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plan"})
		case errors.Is(errCreate, billing.ErrAmountMismatch):
			c.JSON(http.StatusBadRequest, gin.H{"error": "amount does not match plan pricing"})
		case errors.Is(errCreate, billing.ErrGatewayUnavailable):
			c.JSON(http.StatusBadGateway, gin.H{"error": "payment gateway unavailable"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create order failed"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"order_id":       result.OrderRef,
		"transaction_id": result.TransactionID,
		"plan_id":        result.PlanID,
		"amount":         result.AmountMinor,
		"amount_units":   result.AmountUnits,
		"currency":       result.Currency,
		"credits":        result.CreditsRequested,
	})
}
