// Package billing validates orders and reconciles payment notifications
// into account entitlements.
package billing

import (
	"errors"

	"github.com/router-for-me/CreditLedger/internal/webhook"
)

var (
	// ErrInvalidPlan reports an order naming a plan outside the catalog.
	ErrInvalidPlan = errors.New("invalid plan")
	// ErrAmountMismatch reports an order whose amount does not match catalog pricing.
	ErrAmountMismatch = errors.New("amount does not match plan pricing")
	// ErrGatewayUnavailable reports that the processor could not create the order.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrInvalidSignature reports a notification that failed authentication.
	ErrInvalidSignature = webhook.ErrInvalidSignature
	// ErrInvalidNotification reports an authenticated notification that cannot be applied.
	ErrInvalidNotification = errors.New("invalid notification")
	// ErrUnknownTransaction reports a notification for an order this service never created.
	ErrUnknownTransaction = errors.New("unknown transaction")
	// ErrStorageConflict reports a concurrency conflict that persisted through every retry.
	ErrStorageConflict = errors.New("storage conflict")
)
