package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/router-for-me/CreditLedger/internal/metrics"
	"github.com/router-for-me/CreditLedger/internal/models"
	"github.com/router-for-me/CreditLedger/internal/store"
	"github.com/router-for-me/CreditLedger/internal/webhook"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// IngestStatus is the outcome reported to the processor for a notification.
type IngestStatus string

// IngestStatus values.
const (
	IngestApplied   IngestStatus = "applied"
	IngestDuplicate IngestStatus = "duplicate"
	IngestIgnored   IngestStatus = "ignored"
	// IngestAttemptFailed acknowledges a declined attempt; the order stays pending.
	IngestAttemptFailed IngestStatus = "attempt_failed"
)

// IngestResult describes a handled notification.
type IngestResult struct {
	Status   IngestStatus
	Event    string
	OrderRef string
}

// NotificationService authenticates raw processor notifications and applies them.
type NotificationService struct {
	verifier   *webhook.Verifier
	reconciler *Reconciler
	ledger     *store.Ledger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewNotificationService constructs a NotificationService. A nil clock defaults to time.Now.
func NewNotificationService(verifier *webhook.Verifier, reconciler *Reconciler, ledger *store.Ledger, m *metrics.Metrics, now func() time.Time) *NotificationService {
	if now == nil {
		now = time.Now
	}
	return &NotificationService{
		verifier:   verifier,
		reconciler: reconciler,
		ledger:     ledger,
		metrics:    m,
		now:        now,
	}
}

// Ingest verifies signature over raw before anything else is read.
// Once verified, processing is detached from ctx cancellation so a client
// disconnect cannot leave a half-applied notification.
func (s *NotificationService) Ingest(ctx context.Context, raw []byte, signature string) (IngestResult, error) {
	if errVerify := s.verifier.Verify(raw, signature); errVerify != nil {
		s.metrics.ObserveNotification(metrics.NotificationInvalidSignature)
		log.WithField("body_bytes", len(raw)).Warn("billing: rejected notification with invalid signature")
		return IngestResult{}, ErrInvalidSignature
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithoutCancel(ctx)

	event, errParse := webhook.Parse(raw)
	if errParse != nil {
		s.metrics.ObserveNotification(metrics.NotificationMalformed)
		log.WithError(errParse).Warn("billing: verified notification could not be parsed")
		return IngestResult{}, fmt.Errorf("%w: %w", ErrInvalidNotification, errParse)
	}

	if event.Outcome == webhook.OutcomeNone {
		s.metrics.ObserveNotification(metrics.NotificationIgnored)
		log.WithFields(log.Fields{"event": event.Name, "order_ref": event.OrderRef}).Debug("billing: notification ignored")
		s.recordEvent(ctx, event, raw, models.PaymentEventIgnored)
		return IngestResult{Status: IngestIgnored, Event: event.Name, OrderRef: event.OrderRef}, nil
	}

	if event.Outcome == webhook.OutcomeAttemptFailed {
		return s.recordAttemptFailed(ctx, event, raw)
	}

	applied, errApply := s.reconciler.ApplyNotification(ctx, Notification{
		OrderRef:    event.OrderRef,
		PaymentRef:  event.PaymentRef,
		Outcome:     event.Outcome,
		NotesPlanID: event.PlanID,
	})
	if errApply != nil {
		switch {
		case errors.Is(errApply, ErrUnknownTransaction):
			s.metrics.ObserveNotification(metrics.NotificationUnknownTransaction)
			log.WithFields(log.Fields{
				"anomaly":     "unknown_transaction",
				"event":       event.Name,
				"order_ref":   event.OrderRef,
				"payment_ref": event.PaymentRef,
			}).Warn("billing: notification references an unknown order")
			s.recordEvent(ctx, event, raw, models.PaymentEventUnknownTransaction)
		case errors.Is(errApply, ErrInvalidNotification):
			s.metrics.ObserveNotification(metrics.NotificationMalformed)
		case errors.Is(errApply, ErrStorageConflict):
			s.metrics.ObserveNotification(metrics.NotificationStorageConflict)
			log.WithError(errApply).WithField("order_ref", event.OrderRef).Error("billing: notification not applied after retries")
		default:
			s.metrics.ObserveNotification(metrics.NotificationError)
			log.WithError(errApply).WithField("order_ref", event.OrderRef).Error("billing: apply notification")
		}
		return IngestResult{}, errApply
	}

	result := IngestResult{Status: IngestApplied, Event: event.Name, OrderRef: event.OrderRef}
	eventResult := models.PaymentEventApplied
	switch {
	case applied.Status != ApplyDuplicate:
		s.metrics.ObserveNotification(metrics.NotificationApplied)
	case settledConflict(event, applied.Transaction):
		// The processor reports money taken that this ledger will not grant.
		result.Status = IngestDuplicate
		eventResult = models.PaymentEventSettledConflict
		s.metrics.ObserveNotification(metrics.NotificationSettledConflict)
		fields := log.Fields{
			"anomaly":     "settled_conflict",
			"event":       event.Name,
			"order_ref":   event.OrderRef,
			"payment_ref": event.PaymentRef,
			"status":      applied.Transaction.Status,
		}
		if applied.Transaction.ExternalPaymentRef != nil {
			fields["settled_payment_ref"] = *applied.Transaction.ExternalPaymentRef
		}
		log.WithFields(fields).Error("billing: capture received for an order already settled differently")
	default:
		result.Status = IngestDuplicate
		eventResult = models.PaymentEventDuplicate
		s.metrics.ObserveNotification(metrics.NotificationDuplicate)
	}
	s.recordEvent(ctx, event, raw, eventResult)
	return result, nil
}

// recordAttemptFailed audits a declined attempt without settling the order.
func (s *NotificationService) recordAttemptFailed(ctx context.Context, event webhook.Event, raw []byte) (IngestResult, error) {
	if _, errFind := s.ledger.FindTransactionByOrderRef(ctx, event.OrderRef); errFind != nil {
		if errors.Is(errFind, store.ErrTransactionNotFound) {
			s.metrics.ObserveNotification(metrics.NotificationUnknownTransaction)
			log.WithFields(log.Fields{
				"anomaly":     "unknown_transaction",
				"event":       event.Name,
				"order_ref":   event.OrderRef,
				"payment_ref": event.PaymentRef,
			}).Warn("billing: notification references an unknown order")
			s.recordEvent(ctx, event, raw, models.PaymentEventUnknownTransaction)
			return IngestResult{}, ErrUnknownTransaction
		}
		s.metrics.ObserveNotification(metrics.NotificationError)
		log.WithError(errFind).WithField("order_ref", event.OrderRef).Error("billing: look up failed attempt order")
		return IngestResult{}, errFind
	}
	s.metrics.ObserveNotification(metrics.NotificationAttemptFailed)
	log.WithFields(log.Fields{
		"event":       event.Name,
		"order_ref":   event.OrderRef,
		"payment_ref": event.PaymentRef,
	}).Info("billing: payment attempt failed, order stays pending")
	s.recordEvent(ctx, event, raw, models.PaymentEventAttemptFailed)
	return IngestResult{Status: IngestAttemptFailed, Event: event.Name, OrderRef: event.OrderRef}, nil
}

// settledConflict reports a capture that lost to a different settlement.
func settledConflict(event webhook.Event, txn models.Transaction) bool {
	if event.Outcome != webhook.OutcomeSuccess {
		return false
	}
	switch txn.Status {
	case models.TransactionStatusFailed:
		return true
	case models.TransactionStatusSuccess:
		return txn.ExternalPaymentRef != nil && *txn.ExternalPaymentRef != "" && *txn.ExternalPaymentRef != event.PaymentRef
	default:
		return false
	}
}

// recordEvent appends to the audit trail. Failures are logged only; the
// ledger outcome has already been committed.
func (s *NotificationService) recordEvent(ctx context.Context, event webhook.Event, raw []byte, result models.PaymentEventResult) {
	if s.ledger == nil {
		return
	}
	payload := datatypes.JSON(raw)
	if !json.Valid(raw) {
		payload = datatypes.JSON("{}")
	}
	record := models.PaymentEvent{
		Event:              event.Name,
		ExternalOrderRef:   event.OrderRef,
		ExternalPaymentRef: event.PaymentRef,
		Outcome:            string(event.Outcome),
		Result:             result,
		Payload:            payload,
		ReceivedAt:         s.now().UTC(),
	}
	if errRecord := s.ledger.RecordEvent(ctx, &record); errRecord != nil {
		log.WithError(errRecord).WithFields(log.Fields{
			"event":     event.Name,
			"order_ref": event.OrderRef,
		}).Warn("billing: record payment event")
	}
}
