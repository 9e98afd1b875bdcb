package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CreditLedger/internal/billing"
	"github.com/router-for-me/CreditLedger/internal/models"
	"github.com/router-for-me/CreditLedger/internal/store"
)

// AccountFrontHandler serves the caller's account, credits and payment history.
type AccountFrontHandler struct {
	accounts *billing.AccountService
	now      func() time.Time
}

// NewAccountFrontHandler constructs an AccountFrontHandler.
func NewAccountFrontHandler(accounts *billing.AccountService, now func() time.Time) *AccountFrontHandler {
	if now == nil {
		now = time.Now
	}
	return &AccountFrontHandler{accounts: accounts, now: now}
}

// Get returns the account summary.
func (h *AccountFrontHandler) Get(c *gin.Context) {
	summary, ok := h.loadSummary(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, FormatSummary(summary))
}

// Credits returns the credit balance only.
func (h *AccountFrontHandler) Credits(c *gin.Context) {
	summary, ok := h.loadSummary(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"credits": summary.CreditBalance})
}

// History lists successful transactions, newest first.
func (h *AccountFrontHandler) History(c *gin.Context) {
	accountID := getAccountID(c)
	if accountID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	limit := 0
	if limitQ := strings.TrimSpace(c.Query("limit")); limitQ != "" {
		if v, errParse := strconv.Atoi(limitQ); errParse == nil {
			limit = v
		}
	}

	rows, errList := h.accounts.History(c.Request.Context(), accountID, limit)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list transactions failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, FormatTransaction(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"transactions": out})
}

func (h *AccountFrontHandler) loadSummary(c *gin.Context) (billing.AccountSummary, bool) {
	accountID := getAccountID(c)
	if accountID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return billing.AccountSummary{}, false
	}
	summary, errSummary := h.accounts.Summary(c.Request.Context(), accountID, h.now().UTC())
	if errSummary != nil {
		if errors.Is(errSummary, store.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return billing.AccountSummary{}, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query account failed"})
		return billing.AccountSummary{}, false
	}
	return summary, true
}

// FormatSummary converts an account summary to a response payload.
func FormatSummary(summary billing.AccountSummary) gin.H {
	return gin.H{
		"id":              summary.AccountID,
		"name":            summary.Name,
		"email":           summary.Email,
		"credits":         summary.CreditBalance,
		"active_plan_id":  summary.ActivePlanID,
		"plan_expires_at": summary.PlanExpiresAt,
		"plan_expired":    summary.Expired,
	}
}

// FormatTransaction converts a ledger entry to a response payload.
func FormatTransaction(txn *models.Transaction) gin.H {
	paymentRef := ""
	if txn.ExternalPaymentRef != nil {
		paymentRef = *txn.ExternalPaymentRef
	}
	return gin.H{
		"id":           txn.ID,
		"account_id":   txn.AccountID,
		"order_id":     txn.ExternalOrderRef,
		"payment_id":   paymentRef,
		"plan_id":      txn.PlanID,
		"amount_units": txn.AmountUnits,
		"currency":     txn.Currency,
		"credits":      txn.CreditsRequested,
		"status":       txn.Status,
		"receipt":      txn.Receipt,
		"created_at":   txn.CreatedAt,
		"updated_at":   txn.UpdatedAt,
	}
}
