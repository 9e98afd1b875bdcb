package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CreditLedger/internal/models"
	"github.com/router-for-me/CreditLedger/internal/store"
)

// TransactionHandler serves read-only ledger views for operators.
type TransactionHandler struct {
	ledger *store.Ledger
}

// NewTransactionHandler constructs a TransactionHandler.
func NewTransactionHandler(ledger *store.Ledger) *TransactionHandler {
	return &TransactionHandler{ledger: ledger}
}

const (
	maxTransactionPageSize = 100
	// maxTransactionPage keeps (page-1)*page_size well inside int32.
	maxTransactionPage = math.MaxInt32 / maxTransactionPageSize
)

// transactionListQuery defines filters for the ledger list view.
type transactionListQuery struct {
	Page      int    `form:"page,default=1"`       // Page number.
	PageSize  int    `form:"page_size,default=20"` // Page size.
	Status    string `form:"status"`               // Status filter.
	AccountID string `form:"account_id"`           // Account filter.
}

// List returns ledger entries with paging and filters, newest first.
func (h *TransactionHandler) List(c *gin.Context) {
	var q transactionListQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Page > maxTransactionPage {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
		return
	}
	if q.PageSize < 1 || q.PageSize > maxTransactionPageSize {
		q.PageSize = 20
	}

	filter := store.TransactionFilter{
		Offset: (q.Page - 1) * q.PageSize,
		Limit:  q.PageSize,
	}
	if statusQ := strings.ToLower(strings.TrimSpace(q.Status)); statusQ != "" {
		status := models.TransactionStatus(statusQ)
		if status != models.TransactionStatusPending && !status.IsTerminal() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		filter.Status = status
	}
	if accountQ := strings.TrimSpace(q.AccountID); accountQ != "" {
		parsed, errParse := strconv.ParseUint(accountQ, 10, 64)
		if errParse != nil || parsed == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account_id"})
			return
		}
		filter.AccountID = parsed
	}

	rows, total, errList := h.ledger.ListTransactions(c.Request.Context(), filter)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list transactions failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatTransaction(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"transactions": out,
		"total":        total,
		"page":         q.Page,
		"page_size":    q.PageSize,
	})
}

// Get returns one ledger entry with its notification history.
func (h *TransactionHandler) Get(c *gin.Context) {
	orderRef := strings.TrimSpace(c.Param("order_ref"))
	if orderRef == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order_ref"})
		return
	}

	txn, errFind := h.ledger.FindTransactionByOrderRef(c.Request.Context(), orderRef)
	if errFind != nil {
		if errors.Is(errFind, store.ErrTransactionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query transaction failed"})
		return
	}
	events, errEvents := h.ledger.ListEvents(c.Request.Context(), orderRef)
	if errEvents != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list events failed"})
		return
	}

	eventsOut := make([]gin.H, 0, len(events))
	for _, event := range events {
		eventsOut = append(eventsOut, gin.H{
			"id":          event.ID,
			"event":       event.Event,
			"payment_id":  event.ExternalPaymentRef,
			"outcome":     event.Outcome,
			"result":      event.Result,
			"payload":     event.Payload,
			"received_at": event.ReceivedAt,
		})
	}

	out := formatTransaction(&txn)
	out["events"] = eventsOut
	c.JSON(http.StatusOK, out)
}

// formatTransaction converts a ledger entry to a response payload.
func formatTransaction(txn *models.Transaction) gin.H {
	var paymentRef any
	if txn.ExternalPaymentRef != nil {
		paymentRef = *txn.ExternalPaymentRef
	}
	return gin.H{
		"id":                txn.ID,
		"account_id":        txn.AccountID,
		"order_id":          txn.ExternalOrderRef,
		"payment_id":        paymentRef,
		"plan_id":           txn.PlanID,
		"amount_units":      txn.AmountUnits,
		"currency":          txn.Currency,
		"credits_requested": txn.CreditsRequested,
		"receipt":           txn.Receipt,
		"status":            txn.Status,
		"created_at":        txn.CreatedAt,
		"updated_at":        txn.UpdatedAt,
	}
}
