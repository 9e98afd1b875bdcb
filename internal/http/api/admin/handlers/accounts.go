package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CreditLedger/internal/store"
)

// AccountHandler serves account entitlements for operators.
type AccountHandler struct {
	ledger *store.Ledger
}

// NewAccountHandler constructs an AccountHandler.
func NewAccountHandler(ledger *store.Ledger) *AccountHandler {
	return &AccountHandler{ledger: ledger}
}

// Get returns an account by ID.
func (h *AccountHandler) Get(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	account, errFind := h.ledger.GetAccount(c.Request.Context(), id)
	if errFind != nil {
		if errors.Is(errFind, store.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query account failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":              account.ID,
		"name":            account.Name,
		"email":           account.Email,
		"credit_balance":  account.CreditBalance,
		"active_plan_id":  account.ActivePlanID,
		"plan_expires_at": account.PlanExpiresAt,
		"created_at":      account.CreatedAt,
		"updated_at":      account.UpdatedAt,
	})
}
