package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/router-for-me/CreditLedger/internal/models"
	"github.com/router-for-me/CreditLedger/internal/store"
)

func TestAccountService_ProvisionSummaryHistory(t *testing.T) {
	conn := openTestDB(t)
	ledger := store.NewLedger(conn)
	svc := NewAccountService(ledger, 2)
	ctx := context.Background()

	account, err := svc.Provision(ctx, 21, "Meera", "meera@example.com")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if account.CreditBalance != 2 {
		t.Fatalf("expected initial credits 2, got %d", account.CreditBalance)
	}
	if _, err = svc.Provision(ctx, 21, "Meera", "meera@example.com"); err != nil {
		t.Fatalf("provision again: %v", err)
	}
	if _, err = svc.Provision(ctx, 0, "", ""); err == nil {
		t.Fatalf("expected error for missing id")
	}

	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	expired := now.Add(-time.Hour)
	premium := "premium"
	seedAccount(t, ledger, models.Account{ID: 22, CreditBalance: 5, ActivePlanID: &premium, PlanExpiresAt: &expired})

	summary, err := svc.Summary(ctx, 21, now)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.CreditBalance != 2 || summary.ActivePlanID != "" || summary.Expired {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	lapsed, _ := svc.Summary(ctx, 22, now)
	if !lapsed.Expired || lapsed.ActivePlanID != "premium" {
		t.Fatalf("expected expired premium summary, got %+v", lapsed)
	}
	if _, err = svc.Summary(ctx, 404, now); !errors.Is(err, store.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}

	older := seedPending(t, ledger, models.Transaction{AccountID: 21, AmountUnits: 10, CreditsRequested: 1, PlanID: "payg", ExternalOrderRef: "order_h1", CreatedAt: now.Add(-2 * time.Hour)})
	newer := seedPending(t, ledger, models.Transaction{AccountID: 21, AmountUnits: 149, CreditsRequested: 100, PlanID: "premium", ExternalOrderRef: "order_h2", CreatedAt: now.Add(-time.Hour)})
	seedPending(t, ledger, models.Transaction{AccountID: 21, AmountUnits: 20, CreditsRequested: 2, PlanID: "payg", ExternalOrderRef: "order_h3", CreatedAt: now})
	for _, txn := range []models.Transaction{older, newer} {
		if _, errMove := ledger.Transition(ctx, txn.ID, models.TransactionStatusSuccess, "pay_"+txn.ExternalOrderRef, "", now); errMove != nil {
			t.Fatalf("transition: %v", errMove)
		}
	}

	history, err := svc.History(ctx, 21, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 successful transactions, got %d", len(history))
	}
	if history[0].ExternalOrderRef != "order_h2" || history[1].ExternalOrderRef != "order_h1" {
		t.Fatalf("expected newest first, got %s then %s", history[0].ExternalOrderRef, history[1].ExternalOrderRef)
	}
}
