package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CreditLedger/internal/billing"
	log "github.com/sirupsen/logrus"
)

const (
	defaultSignatureHeader = "X-Razorpay-Signature"
	maxNotificationBytes   = 1 << 20
)

// WebhookHandler receives payment processor notifications.
type WebhookHandler struct {
	notifications   *billing.NotificationService
	signatureHeader string
}

// NewWebhookHandler constructs a WebhookHandler reading the signature from signatureHeader.
func NewWebhookHandler(notifications *billing.NotificationService, signatureHeader string) *WebhookHandler {
	signatureHeader = strings.TrimSpace(signatureHeader)
	if signatureHeader == "" {
		signatureHeader = defaultSignatureHeader
	}
	return &WebhookHandler{notifications: notifications, signatureHeader: signatureHeader}
}

// Receive verifies the raw body against its signature before decoding anything.
func (h *WebhookHandler) Receive(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxNotificationBytes)
	raw, errRead := io.ReadAll(c.Request.Body)
	if errRead != nil {
		var maxErr *http.MaxBytesError
		if errors.As(errRead, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body failed"})
		return
	}

	result, errIngest := h.notifications.Ingest(c.Request.Context(), raw, c.GetHeader(h.signatureHeader))
	if errIngest != nil {
		switch {
		case errors.Is(errIngest, billing.ErrInvalidSignature):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid notification"})
		case errors.Is(errIngest, billing.ErrUnknownTransaction):
			c.JSON(http.StatusNotFound, gin.H{"error": "invalid notification"})
		case errors.Is(errIngest, billing.ErrInvalidNotification):
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed notification"})
		case errors.Is(errIngest, billing.ErrStorageConflict):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "notification failed"})
		}
		return
	}

	if result.Status == billing.IngestDuplicate {
		log.WithFields(log.Fields{"event": result.Event, "order_ref": result.OrderRef}).Info("webhook: duplicate notification acknowledged")
	}
	c.JSON(http.StatusOK, gin.H{"status": string(result.Status)})
}
