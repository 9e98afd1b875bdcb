package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/router-for-me/CreditLedger/internal/gateway"
	"github.com/router-for-me/CreditLedger/internal/metrics"
	"github.com/router-for-me/CreditLedger/internal/models"
	"github.com/router-for-me/CreditLedger/internal/store"
	log "github.com/sirupsen/logrus"
)

// IntentCreator creates payment intents at the processor.
type IntentCreator interface {
	CreateIntent(ctx context.Context, req gateway.IntentRequest) (gateway.Intent, error)
}

// OrderResult is returned to the client after an order is recorded.
type OrderResult struct {
	TransactionID    uint64
	OrderRef         string
	PlanID           string
	AmountUnits      int64
	AmountMinor      int64
	Currency         string
	CreditsRequested int64
}

// OrderService validates orders, creates processor intents and records pending ledger entries.
type OrderService struct {
	validator *Validator
	gateway   IntentCreator
	ledger    *store.Ledger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewOrderService constructs an OrderService. A nil clock defaults to time.Now.
func NewOrderService(validator *Validator, gw IntentCreator, ledger *store.Ledger, m *metrics.Metrics, now func() time.Time) *OrderService {
	if now == nil {
		now = time.Now
	}
	return &OrderService{
		validator: validator,
		gateway:   gw,
		ledger:    ledger,
		metrics:   m,
		now:       now,
	}
}

// CreateOrder validates req, creates the processor order and records exactly one pending transaction.
// Validation and gateway failures leave no ledger row behind.
func (s *OrderService) CreateOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	order, errValidate := s.validator.Validate(req)
	if errValidate != nil {
		s.metrics.ObserveOrder(orderFailureResult(errValidate))
		return OrderResult{}, errValidate
	}

	now := s.now().UTC()
	receipt := fmt.Sprintf("rcpt_%d", now.UnixMilli())
	planID := order.Plan.ID()

	intent, errIntent := s.gateway.CreateIntent(ctx, gateway.IntentRequest{
		AmountUnits: order.AmountUnits,
		Currency:    order.Currency,
		Receipt:     receipt,
		Notes: map[string]string{
			"planId":    planID,
			"credits":   strconv.FormatInt(order.CreditsRequested, 10),
			"accountId": strconv.FormatUint(order.AccountID, 10),
		},
	})
	if errIntent != nil {
		s.metrics.ObserveOrder(metrics.OrderGatewayUnavailable)
		log.WithError(errIntent).WithField("account_id", order.AccountID).Warn("billing: gateway order creation failed")
		return OrderResult{}, fmt.Errorf("%w: %w", ErrGatewayUnavailable, errIntent)
	}

	txn := models.Transaction{
		AccountID:        order.AccountID,
		AmountUnits:      order.AmountUnits,
		Currency:         order.Currency,
		CreditsRequested: order.CreditsRequested,
		PlanID:           planID,
		ExternalOrderRef: intent.OrderRef,
		Receipt:          receipt,
		Status:           models.TransactionStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if errCreate := s.ledger.CreateTransaction(ctx, &txn); errCreate != nil {
		s.metrics.ObserveOrder(metrics.OrderLedgerFailed)
		s.metrics.ObserveOrphanedIntent()
		log.WithError(errCreate).WithFields(log.Fields{
			"anomaly":      "orphaned_intent",
			"order_ref":    intent.OrderRef,
			"account_id":   order.AccountID,
			"amount_units": order.AmountUnits,
			"plan_id":      planID,
		}).Error("billing: gateway order created but ledger write failed")
		return OrderResult{}, fmt.Errorf("billing: record order %s: %w", intent.OrderRef, errCreate)
	}

	s.metrics.ObserveOrder(metrics.OrderCreated)
	log.WithFields(log.Fields{
		"order_ref":  intent.OrderRef,
		"account_id": order.AccountID,
		"plan_id":    planID,
		"amount":     order.AmountUnits,
	}).Info("billing: order created")

	amountMinor := intent.AmountMinor
	if amountMinor == 0 {
		amountMinor, _ = gateway.ToMinorUnits(order.AmountUnits)
	}
	return OrderResult{
		TransactionID:    txn.ID,
		OrderRef:         intent.OrderRef,
		PlanID:           planID,
		AmountUnits:      order.AmountUnits,
		AmountMinor:      amountMinor,
		Currency:         intent.Currency,
		CreditsRequested: order.CreditsRequested,
	}, nil
}

func orderFailureResult(err error) string {
	if errors.Is(err, ErrInvalidPlan) {
		return metrics.OrderInvalidPlan
	}
	return metrics.OrderAmountMismatch
}
