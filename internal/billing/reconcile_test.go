package billing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/router-for-me/CreditLedger/internal/catalog"
	"github.com/router-for-me/CreditLedger/internal/models"
	"github.com/router-for-me/CreditLedger/internal/store"
	"github.com/router-for-me/CreditLedger/internal/webhook"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func TestApplyNotification_SubscriptionThenDuplicate(t *testing.T) {
	conn := openTestDB(t)
	ledger := store.NewLedger(conn)
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	seedAccount(t, ledger, models.Account{ID: 5, CreditBalance: 2})
	seedPending(t, ledger, models.Transaction{AccountID: 5, AmountUnits: 149, CreditsRequested: 100, PlanID: "premium", ExternalOrderRef: "order_1"})

	r := NewReconciler(conn, catalog.Default(), nil, fixedClock(now))
	n := Notification{OrderRef: "order_1", PaymentRef: "pay_1", Outcome: webhook.OutcomeSuccess}

	first, err := r.ApplyNotification(context.Background(), n)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if first.Status != ApplyApplied || first.Account == nil {
		t.Fatalf("expected applied with account, got %+v", first)
	}
	if first.Transaction.Status != models.TransactionStatusSuccess {
		t.Fatalf("expected success status, got %s", first.Transaction.Status)
	}

	account, err := ledger.GetAccount(context.Background(), 5)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if account.CreditBalance != 102 {
		t.Fatalf("expected balance 102, got %d", account.CreditBalance)
	}
	if account.ActivePlanID == nil || *account.ActivePlanID != "premium" {
		t.Fatalf("expected premium plan, got %v", account.ActivePlanID)
	}
	wantExpiry := now.Add(30 * 24 * time.Hour)
	if account.PlanExpiresAt == nil || !account.PlanExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expected expiry %v, got %v", wantExpiry, account.PlanExpiresAt)
	}

	txn, err := ledger.FindTransactionByOrderRef(context.Background(), "order_1")
	if err != nil {
		t.Fatalf("find transaction: %v", err)
	}
	if txn.ExternalPaymentRef == nil || *txn.ExternalPaymentRef != "pay_1" {
		t.Fatalf("expected payment ref pay_1, got %v", txn.ExternalPaymentRef)
	}

	second, err := r.ApplyNotification(context.Background(), n)
	if err != nil {
		t.Fatalf("apply duplicate: %v", err)
	}
	if second.Status != ApplyDuplicate || second.Account != nil {
		t.Fatalf("expected duplicate without account change, got %+v", second)
	}
	again, _ := ledger.GetAccount(context.Background(), 5)
	if again.CreditBalance != 102 || !again.PlanExpiresAt.Equal(wantExpiry) {
		t.Fatalf("duplicate changed account: %+v", again)
	}
}

func TestApplyNotification_ExtendsUnexpiredSubscription(t *testing.T) {
	conn := openTestDB(t)
	ledger := store.NewLedger(conn)
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	current := now.Add(10 * 24 * time.Hour)
	premium := "premium"
	seedAccount(t, ledger, models.Account{ID: 9, CreditBalance: 40, ActivePlanID: &premium, PlanExpiresAt: &current})
	seedPending(t, ledger, models.Transaction{AccountID: 9, AmountUnits: 149, CreditsRequested: 100, PlanID: "premium", ExternalOrderRef: "order_renew"})

	r := NewReconciler(conn, nil, nil, fixedClock(now))
	if _, err := r.ApplyNotification(context.Background(), Notification{OrderRef: "order_renew", PaymentRef: "pay_r", Outcome: webhook.OutcomeSuccess}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	account, _ := ledger.GetAccount(context.Background(), 9)
	want := now.Add(40 * 24 * time.Hour)
	if account.PlanExpiresAt == nil || !account.PlanExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, account.PlanExpiresAt)
	}
	if account.CreditBalance != 140 {
		t.Fatalf("expected balance 140, got %d", account.CreditBalance)
	}
}

func TestApplyNotification_ExpiredSubscriptionStartsFromNow(t *testing.T) {
	conn := openTestDB(t)
	ledger := store.NewLedger(conn)
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	lapsed := now.Add(-5 * 24 * time.Hour)
	premium := "premium"
	seedAccount(t, ledger, models.Account{ID: 9, ActivePlanID: &premium, PlanExpiresAt: &lapsed})
	seedPending(t, ledger, models.Transaction{AccountID: 9, AmountUnits: 399, CreditsRequested: 500, PlanID: "business", ExternalOrderRef: "order_b"})

	r := NewReconciler(conn, nil, nil, fixedClock(now))
	if _, err := r.ApplyNotification(context.Background(), Notification{OrderRef: "order_b", PaymentRef: "pay_b", Outcome: webhook.OutcomeSuccess}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	account, _ := ledger.GetAccount(context.Background(), 9)
	want := now.Add(30 * 24 * time.Hour)
	if account.PlanExpiresAt == nil || !account.PlanExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, account.PlanExpiresAt)
	}
	if account.ActivePlanID == nil || *account.ActivePlanID != "business" || account.CreditBalance != 500 {
		t.Fatalf("unexpected account: %+v", account)
	}
}

func TestApplyNotification_PayAsYouGo(t *testing.T) {
	conn := openTestDB(t)
	ledger := store.NewLedger(conn)
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	seedAccount(t, ledger, models.Account{ID: 3, CreditBalance: 2})
	seedPending(t, ledger, models.Transaction{AccountID: 3, AmountUnits: 70, CreditsRequested: 7, PlanID: "payg", ExternalOrderRef: "order_p"})

	r := NewReconciler(conn, nil, nil, fixedClock(now))
	if _, err := r.ApplyNotification(context.Background(), Notification{OrderRef: "order_p", PaymentRef: "pay_p", Outcome: webhook.OutcomeSuccess}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	account, _ := ledger.GetAccount(context.Background(), 3)
	if account.CreditBalance != 9 {
		t.Fatalf("expected balance 9, got %d", account.CreditBalance)
	}
	if account.ActivePlanID == nil || *account.ActivePlanID != "payg" || account.PlanExpiresAt != nil {
		t.Fatalf("unexpected entitlement: %+v", account)
	}
}

func TestApplyNotification_FailedOutcomeLeavesAccount(t *testing.T) {
	conn := openTestDB(t)
	ledger := store.NewLedger(conn)
	seedAccount(t, ledger, models.Account{ID: 4, CreditBalance: 2})
	seedPending(t, ledger, models.Transaction{AccountID: 4, AmountUnits: 149, CreditsRequested: 100, PlanID: "premium", ExternalOrderRef: "order_f"})

	r := NewReconciler(conn, nil, nil, nil)
	result, err := r.ApplyNotification(context.Background(), Notification{OrderRef: "order_f", PaymentRef: "pay_f", Outcome: webhook.OutcomeFailed})
	if err != nil {
		t.Fatalf("apply failed outcome: %v", err)
	}
	if result.Status != ApplyApplied || result.Transaction.Status != models.TransactionStatusFailed || result.Account != nil {
		t.Fatalf("unexpected result: %+v", result)
	}

	// A late success for a failed order is a duplicate.
	late, err := r.ApplyNotification(context.Background(), Notification{OrderRef: "order_f", PaymentRef: "pay_f2", Outcome: webhook.OutcomeSuccess})
	if err != nil {
		t.Fatalf("apply late success: %v", err)
	}
	if late.Status != ApplyDuplicate {
		t.Fatalf("expected duplicate, got %s", late.Status)
	}

	account, _ := ledger.GetAccount(context.Background(), 4)
	if account.CreditBalance != 2 || account.ActivePlanID != nil {
		t.Fatalf("failed payment changed account: %+v", account)
	}
}

func TestApplyNotification_UnknownAndInvalid(t *testing.T) {
	conn := openTestDB(t)
	r := NewReconciler(conn, nil, nil, nil)

	_, err := r.ApplyNotification(context.Background(), Notification{OrderRef: "order_missing", PaymentRef: "pay", Outcome: webhook.OutcomeSuccess})
	if !errors.Is(err, ErrUnknownTransaction) {
		t.Fatalf("expected ErrUnknownTransaction, got %v", err)
	}
	_, err = r.ApplyNotification(context.Background(), Notification{OrderRef: "order_x", Outcome: webhook.OutcomeSuccess})
	if !errors.Is(err, ErrInvalidNotification) {
		t.Fatalf("expected ErrInvalidNotification for missing payment ref, got %v", err)
	}
	_, err = r.ApplyNotification(context.Background(), Notification{PaymentRef: "pay", Outcome: webhook.OutcomeFailed})
	if !errors.Is(err, ErrInvalidNotification) {
		t.Fatalf("expected ErrInvalidNotification for missing order ref, got %v", err)
	}
	_, err = r.ApplyNotification(context.Background(), Notification{OrderRef: "order_x", PaymentRef: "pay", Outcome: webhook.OutcomeNone})
	if !errors.Is(err, ErrInvalidNotification) {
		t.Fatalf("expected ErrInvalidNotification for empty outcome, got %v", err)
	}
}

func TestApplyNotification_StalePlanFallsBack(t *testing.T) {
	conn := openTestDB(t)
	ledger := store.NewLedger(conn)
	seedAccount(t, ledger, models.Account{ID: 6})
	seedPending(t, ledger, models.Transaction{AccountID: 6, AmountUnits: 99, CreditsRequested: 25, PlanID: "legacy", ExternalOrderRef: "order_legacy"})
	seedPending(t, ledger, models.Transaction{AccountID: 6, AmountUnits: 149, CreditsRequested: 100, ExternalOrderRef: "order_noplan"})

	r := NewReconciler(conn, nil, nil, nil)
	if _, err := r.ApplyNotification(context.Background(), Notification{OrderRef: "order_legacy", PaymentRef: "pay_l", Outcome: webhook.OutcomeSuccess}); err != nil {
		t.Fatalf("apply legacy: %v", err)
	}
	account, _ := ledger.GetAccount(context.Background(), 6)
	if account.CreditBalance != 25 || account.ActivePlanID == nil || *account.ActivePlanID != "payg" {
		t.Fatalf("expected payg grant of 25, got %+v", account)
	}

	if _, err := r.ApplyNotification(context.Background(), Notification{OrderRef: "order_noplan", PaymentRef: "pay_n", Outcome: webhook.OutcomeSuccess, NotesPlanID: "premium"}); err != nil {
		t.Fatalf("apply noplan: %v", err)
	}
	account, _ = ledger.GetAccount(context.Background(), 6)
	if account.CreditBalance != 125 || *account.ActivePlanID != "premium" || account.PlanExpiresAt == nil {
		t.Fatalf("expected premium grant from notes, got %+v", account)
	}
	txn, _ := ledger.FindTransactionByOrderRef(context.Background(), "order_noplan")
	if txn.PlanID != "premium" {
		t.Fatalf("expected plan recorded from notes, got %q", txn.PlanID)
	}
}

func TestApplyNotification_ConcurrentDeliveriesGrantOnce(t *testing.T) {
	conn := openTestDB(t)
	ledger := store.NewLedger(conn)
	seedAccount(t, ledger, models.Account{ID: 8, CreditBalance: 2})
	seedPending(t, ledger, models.Transaction{AccountID: 8, AmountUnits: 149, CreditsRequested: 100, PlanID: "premium", ExternalOrderRef: "order_race"})

	r := NewReconciler(conn, nil, nil, nil)
	const deliveries = 8
	statuses := make([]ApplyStatus, deliveries)
	var g errgroup.Group
	for i := 0; i < deliveries; i++ {
		i := i
		g.Go(func() error {
			result, err := r.ApplyNotification(context.Background(), Notification{OrderRef: "order_race", PaymentRef: "pay_race", Outcome: webhook.OutcomeSuccess})
			if err != nil {
				return err
			}
			statuses[i] = result.Status
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent apply: %v", err)
	}

	applied := 0
	for _, status := range statuses {
		if status == ApplyApplied {
			applied++
		}
	}
	if applied != 1 {
		t.Fatalf("expected exactly one applied delivery, got %d (%v)", applied, statuses)
	}
	account, _ := ledger.GetAccount(context.Background(), 8)
	if account.CreditBalance != 102 {
		t.Fatalf("expected balance 102, got %d", account.CreditBalance)
	}
}

func TestApplyNotification_ConcurrentSettlementsForOneAccountAddUp(t *testing.T) {
	conn := openTestDB(t)
	ledger := store.NewLedger(conn)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	current := now.Add(10 * 24 * time.Hour)
	seedAccount(t, ledger, models.Account{ID: 9, CreditBalance: 2, PlanExpiresAt: &current})

	type order struct {
		ref     string
		plan    string
		price   int64
		credits int64
	}
	var orders []order
	for i := 0; i < 3; i++ {
		orders = append(orders,
			order{ref: fmt.Sprintf("order_prem_%d", i), plan: "premium", price: 149, credits: 100},
			order{ref: fmt.Sprintf("order_biz_%d", i), plan: "business", price: 399, credits: 500},
		)
	}
	for _, o := range orders {
		seedPending(t, ledger, models.Transaction{AccountID: 9, AmountUnits: o.price, CreditsRequested: o.credits, PlanID: o.plan, ExternalOrderRef: o.ref})
	}

	r := NewReconciler(conn, catalog.Default(), nil, fixedClock(now))
	var g errgroup.Group
	for _, o := range orders {
		o := o
		g.Go(func() error {
			result, err := r.ApplyNotification(context.Background(), Notification{OrderRef: o.ref, PaymentRef: "pay_" + o.ref, Outcome: webhook.OutcomeSuccess})
			if err != nil {
				return err
			}
			if result.Status != ApplyApplied {
				return fmt.Errorf("expected applied for %s, got %s", o.ref, result.Status)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent settlements: %v", err)
	}

	account, err := ledger.GetAccount(context.Background(), 9)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if want := int64(2 + 3*100 + 3*500); account.CreditBalance != want {
		t.Fatalf("expected balance %d, got %d", want, account.CreditBalance)
	}
	// Every grant extends from the previous expiry: 10 days left plus six 30-day periods.
	if want := current.Add(6 * 30 * 24 * time.Hour); account.PlanExpiresAt == nil || !account.PlanExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, account.PlanExpiresAt)
	}
	if account.ActivePlanID == nil || (*account.ActivePlanID != "premium" && *account.ActivePlanID != "business") {
		t.Fatalf("unexpected active plan %v", account.ActivePlanID)
	}
}

func TestApplyNotification_SettledBetweenReadAndTransition(t *testing.T) {
	conn := openTestDB(t)
	ledger := store.NewLedger(conn)
	now := time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC)
	seedAccount(t, ledger, models.Account{ID: 10, CreditBalance: 2})
	txn := seedPending(t, ledger, models.Transaction{AccountID: 10, AmountUnits: 149, CreditsRequested: 100, PlanID: "premium", ExternalOrderRef: "order_swap"})

	// Another settlement lands after the reconciler has read the pending row
	// but before its status update runs.
	fired := false
	errRegister := conn.Callback().Update().Before("gorm:update").Register("billing_test:settle_first", func(tx *gorm.DB) {
		if fired || tx.Statement.Table != "transactions" {
			return
		}
		fired = true
		if errExec := tx.Session(&gorm.Session{NewDB: true}).
			Exec("UPDATE transactions SET status = ?, external_payment_ref = ? WHERE id = ?", models.TransactionStatusSuccess, "pay_other", txn.ID).Error; errExec != nil {
			_ = tx.AddError(errExec)
		}
	})
	if errRegister != nil {
		t.Fatalf("register callback: %v", errRegister)
	}

	r := NewReconciler(conn, catalog.Default(), nil, fixedClock(now))
	result, err := r.ApplyNotification(context.Background(), Notification{OrderRef: "order_swap", PaymentRef: "pay_mine", Outcome: webhook.OutcomeSuccess})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !fired {
		t.Fatalf("expected the concurrent settlement to run")
	}
	if result.Status != ApplyDuplicate {
		t.Fatalf("expected duplicate after losing the compare-and-swap, got %s", result.Status)
	}
	if result.Transaction.ExternalPaymentRef == nil || *result.Transaction.ExternalPaymentRef != "pay_other" {
		t.Fatalf("expected the reloaded winning settlement, got %+v", result.Transaction)
	}
	account, _ := ledger.GetAccount(context.Background(), 10)
	if account.CreditBalance != 2 || account.ActivePlanID != nil {
		t.Fatalf("losing settlement must not grant, got %+v", account)
	}
}
