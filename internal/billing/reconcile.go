package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/CreditLedger/internal/catalog"
	"github.com/router-for-me/CreditLedger/internal/db"
	"github.com/router-for-me/CreditLedger/internal/metrics"
	"github.com/router-for-me/CreditLedger/internal/models"
	"github.com/router-for-me/CreditLedger/internal/store"
	"github.com/router-for-me/CreditLedger/internal/webhook"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	defaultMaxAttempts  = 5
	defaultRetryBackoff = 20 * time.Millisecond
)

// Notification is an authenticated payment outcome for one order.
type Notification struct {
	OrderRef    string
	PaymentRef  string
	Outcome     webhook.Outcome
	NotesPlanID string
}

// ApplyStatus describes what ApplyNotification did.
type ApplyStatus string

// ApplyStatus values.
const (
	ApplyApplied   ApplyStatus = "applied"
	ApplyDuplicate ApplyStatus = "duplicate"
)

// ApplyResult reports the transaction and account state after ApplyNotification.
// Account is nil unless a success outcome changed it.
type ApplyResult struct {
	Status      ApplyStatus
	Transaction models.Transaction
	Account     *models.Account
}

// Reconciler applies payment notifications to the ledger and account entitlements exactly once.
type Reconciler struct {
	db          *gorm.DB
	ledger      *store.Ledger
	catalog     *catalog.Catalog
	metrics     *metrics.Metrics
	now         func() time.Time
	maxAttempts int
	backoff     time.Duration
}

// NewReconciler constructs a Reconciler. A nil clock defaults to time.Now.
func NewReconciler(conn *gorm.DB, c *catalog.Catalog, m *metrics.Metrics, now func() time.Time) *Reconciler {
	if c == nil {
		c = catalog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		db:          conn,
		ledger:      store.NewLedger(conn),
		catalog:     c,
		metrics:     m,
		now:         now,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultRetryBackoff,
	}
}

// ApplyNotification settles the transaction for n.OrderRef.
//
// A transaction that is already terminal yields ApplyDuplicate without touching the
// account. The status transition and the account mutation commit together.
// Storage conflicts are retried a bounded number of times before ErrStorageConflict.
func (r *Reconciler) ApplyNotification(ctx context.Context, n Notification) (ApplyResult, error) {
	n.OrderRef = strings.TrimSpace(n.OrderRef)
	n.PaymentRef = strings.TrimSpace(n.PaymentRef)
	if n.OrderRef == "" {
		return ApplyResult{}, fmt.Errorf("%w: missing order reference", ErrInvalidNotification)
	}
	switch n.Outcome {
	case webhook.OutcomeSuccess:
		if n.PaymentRef == "" {
			return ApplyResult{}, fmt.Errorf("%w: success without payment reference", ErrInvalidNotification)
		}
	case webhook.OutcomeFailed:
	default:
		return ApplyResult{}, fmt.Errorf("%w: unsupported outcome %q", ErrInvalidNotification, n.Outcome)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for attempt := 1; ; attempt++ {
		result, errApply := r.applyOnce(ctx, n)
		if errApply == nil {
			return result, nil
		}
		if !db.IsConflict(errApply) {
			return ApplyResult{}, errApply
		}
		if attempt >= r.maxAttempts {
			return ApplyResult{}, fmt.Errorf("%w: %s after %d attempts: %w", ErrStorageConflict, n.OrderRef, attempt, errApply)
		}
		r.metrics.ObserveConflictRetry()
		log.WithError(errApply).WithFields(log.Fields{
			"order_ref": n.OrderRef,
			"attempt":   attempt,
		}).Warn("billing: storage conflict, retrying notification")

		timer := time.NewTimer(time.Duration(attempt) * r.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ApplyResult{}, fmt.Errorf("%w: %w", ErrStorageConflict, ctx.Err())
		case <-timer.C:
		}
	}
}

func (r *Reconciler) applyOnce(ctx context.Context, n Notification) (ApplyResult, error) {
	var result ApplyResult
	errTx := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ledger := r.ledger.WithTx(tx)

		txn, errFind := ledger.FindTransactionByOrderRef(ctx, n.OrderRef)
		if errFind != nil {
			if errors.Is(errFind, store.ErrTransactionNotFound) {
				return ErrUnknownTransaction
			}
			return errFind
		}
		if txn.Status.IsTerminal() {
			result = ApplyResult{Status: ApplyDuplicate, Transaction: txn}
			return nil
		}

		now := r.now().UTC()
		plan, fallbackPlanID := r.resolvePlan(txn, n)
		target := models.TransactionStatusFailed
		if n.Outcome == webhook.OutcomeSuccess {
			target = models.TransactionStatusSuccess
		}

		moved, errMove := ledger.Transition(ctx, txn.ID, target, n.PaymentRef, fallbackPlanID, now)
		if errMove != nil {
			return errMove
		}
		if !moved {
			// Settled by a concurrent caller between the read and the update.
			latest, errReload := ledger.FindTransactionByOrderRef(ctx, n.OrderRef)
			if errReload != nil {
				return errReload
			}
			result = ApplyResult{Status: ApplyDuplicate, Transaction: latest}
			return nil
		}

		txn.Status = target
		txn.UpdatedAt = now
		if n.PaymentRef != "" {
			paymentRef := n.PaymentRef
			txn.ExternalPaymentRef = &paymentRef
		}
		if fallbackPlanID != "" {
			txn.PlanID = fallbackPlanID
		}
		result = ApplyResult{Status: ApplyApplied, Transaction: txn}
		if target != models.TransactionStatusSuccess {
			return nil
		}

		account, errLock := ledger.LockAccount(ctx, txn.AccountID)
		if errLock != nil {
			return fmt.Errorf("billing: load account %d: %w", txn.AccountID, errLock)
		}
		next := account
		if errGrant := next.ApplyDelta(grantFor(plan, txn.CreditsRequested, account, now)); errGrant != nil {
			return fmt.Errorf("billing: grant account %d: %w", txn.AccountID, errGrant)
		}
		if errSave := ledger.SaveEntitlement(ctx, account, next, now); errSave != nil {
			return errSave
		}
		result.Account = &next
		return nil
	})
	if errTx != nil {
		return ApplyResult{}, errTx
	}

	if result.Status == ApplyApplied {
		fields := log.Fields{
			"order_ref":  result.Transaction.ExternalOrderRef,
			"account_id": result.Transaction.AccountID,
			"status":     result.Transaction.Status,
			"plan_id":    result.Transaction.PlanID,
		}
		if result.Account != nil {
			fields["credit_balance"] = result.Account.CreditBalance
		}
		log.WithFields(fields).Info("billing: notification applied")
	}
	return result, nil
}

// resolvePlan picks the plan to grant for txn. It returns the fallback plan ID
// when the transaction itself carried none and the notification notes did.
// Plans missing from the catalog are granted as pay-as-you-go.
func (r *Reconciler) resolvePlan(txn models.Transaction, n Notification) (catalog.Plan, string) {
	planID := strings.TrimSpace(txn.PlanID)
	fallbackPlanID := ""
	if planID == "" {
		if notesPlanID := strings.TrimSpace(n.NotesPlanID); notesPlanID != "" {
			log.WithFields(log.Fields{
				"order_ref": txn.ExternalOrderRef,
				"plan_id":   notesPlanID,
			}).Warn("billing: transaction has no plan, using notification notes")
			planID = notesPlanID
			fallbackPlanID = notesPlanID
		} else {
			planID = catalog.PlanIDPayAsYouGo
		}
	}

	plan, ok := r.catalog.Lookup(planID)
	if !ok {
		log.WithFields(log.Fields{
			"order_ref": txn.ExternalOrderRef,
			"plan_id":   planID,
			"credits":   txn.CreditsRequested,
		}).Warn("billing: plan not in catalog, granting credits as pay-as-you-go")
		return r.catalog.PayAsYouGo(), fallbackPlanID
	}
	return plan, fallbackPlanID
}
