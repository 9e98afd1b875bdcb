package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/router-for-me/CreditLedger/internal/catalog"
	"github.com/router-for-me/CreditLedger/internal/gateway"
	"github.com/router-for-me/CreditLedger/internal/metrics"
	"github.com/router-for-me/CreditLedger/internal/models"
	"github.com/router-for-me/CreditLedger/internal/store"
)

func TestCreateOrder_RecordsPendingTransaction(t *testing.T) {
	conn := openTestDB(t)
	ledger := store.NewLedger(conn)
	seedAccount(t, ledger, models.Account{ID: 42, CreditBalance: 2})
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	gw := &stubGateway{orderRef: "order_abc"}
	svc := NewOrderService(NewValidator(catalog.Default()), gw, ledger, metrics.New(prometheus.NewRegistry()), fixedClock(now))

	result, err := svc.CreateOrder(context.Background(), OrderRequest{AccountID: 42, PlanID: "premium", AmountUnits: 149})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if result.OrderRef != "order_abc" || result.AmountMinor != 14900 || result.CreditsRequested != 100 {
		t.Fatalf("unexpected result: %+v", result)
	}

	if len(gw.requests) != 1 {
		t.Fatalf("expected 1 gateway call, got %d", len(gw.requests))
	}
	req := gw.requests[0]
	if req.AmountUnits != 149 || req.Currency != "INR" {
		t.Fatalf("unexpected gateway request: %+v", req)
	}
	if req.Notes["planId"] != "premium" || req.Notes["credits"] != "100" || req.Notes["accountId"] != "42" {
		t.Fatalf("unexpected notes: %+v", req.Notes)
	}
	if req.Receipt != "rcpt_1772357400000" {
		t.Fatalf("unexpected receipt %q", req.Receipt)
	}

	txn, err := ledger.FindTransactionByOrderRef(context.Background(), "order_abc")
	if err != nil {
		t.Fatalf("find transaction: %v", err)
	}
	if txn.Status != models.TransactionStatusPending || txn.AccountID != 42 || txn.PlanID != "premium" {
		t.Fatalf("unexpected transaction: %+v", txn)
	}
	if txn.AmountUnits != 149 || txn.CreditsRequested != 100 {
		t.Fatalf("unexpected amounts: %+v", txn)
	}
}

func TestCreateOrder_RejectsBeforeGateway(t *testing.T) {
	conn := openTestDB(t)
	ledger := store.NewLedger(conn)
	gw := &stubGateway{orderRef: "order_never"}
	svc := NewOrderService(NewValidator(nil), gw, ledger, nil, nil)

	_, err := svc.CreateOrder(context.Background(), OrderRequest{AccountID: 1, PlanID: "premium", AmountUnits: 1})
	if !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}
	_, err = svc.CreateOrder(context.Background(), OrderRequest{AccountID: 1, PlanID: "platinum", AmountUnits: 149})
	if !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan, got %v", err)
	}
	// 10 * 5534023222112865485 wraps to 2 in int64 arithmetic.
	_, err = svc.CreateOrder(context.Background(), OrderRequest{AccountID: 1, PlanID: "payg", CreditQuantity: int64Ptr(5534023222112865485), AmountUnits: 2})
	if !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch for a wrapping quantity, got %v", err)
	}
	if len(gw.requests) != 0 {
		t.Fatalf("gateway must not be called for invalid orders, got %d calls", len(gw.requests))
	}
	if n := countTransactions(t, conn); n != 0 {
		t.Fatalf("expected no transactions, got %d", n)
	}
}

func TestCreateOrder_GatewayFailureWritesNothing(t *testing.T) {
	conn := openTestDB(t)
	ledger := store.NewLedger(conn)
	gw := &stubGateway{err: gateway.ErrUnavailable}
	svc := NewOrderService(NewValidator(nil), gw, ledger, nil, nil)

	_, err := svc.CreateOrder(context.Background(), OrderRequest{AccountID: 1, CreditQuantity: int64Ptr(2), AmountUnits: 20})
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
	if !errors.Is(err, gateway.ErrUnavailable) {
		t.Fatalf("expected wrapped gateway error, got %v", err)
	}
	if n := countTransactions(t, conn); n != 0 {
		t.Fatalf("expected no transactions, got %d", n)
	}
}

func TestCreateOrder_LedgerFailureAfterIntent(t *testing.T) {
	conn := openTestDB(t)
	ledger := store.NewLedger(conn)
	seedAccount(t, ledger, models.Account{ID: 1})
	seedPending(t, ledger, models.Transaction{AccountID: 1, AmountUnits: 20, CreditsRequested: 2, PlanID: "payg", ExternalOrderRef: "order_dup"})

	// The gateway hands back an order ref that already exists, so the insert fails.
	gw := &stubGateway{orderRef: "order_dup"}
	svc := NewOrderService(NewValidator(nil), gw, ledger, nil, nil)

	_, err := svc.CreateOrder(context.Background(), OrderRequest{AccountID: 1, CreditQuantity: int64Ptr(2), AmountUnits: 20})
	if err == nil {
		t.Fatalf("expected ledger failure")
	}
	if errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("ledger failure must not be reported as gateway failure: %v", err)
	}
	if len(gw.requests) != 1 {
		t.Fatalf("expected gateway call, got %d", len(gw.requests))
	}
	if n := countTransactions(t, conn); n != 1 {
		t.Fatalf("expected only the seeded transaction, got %d", n)
	}
}
