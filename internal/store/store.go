package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/router-for-me/CreditLedger/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrAccountNotFound indicates no account row exists for the ID.
	ErrAccountNotFound = errors.New("account not found")
	// ErrTransactionNotFound indicates no transaction row exists for the order reference.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Ledger persists transactions, accounts and payment events via GORM.
type Ledger struct {
	db *gorm.DB
}

// NewLedger constructs a Ledger.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// WithTx returns a Ledger bound to an open transaction.
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	return &Ledger{db: tx}
}

// DB returns the underlying handle.
func (l *Ledger) DB() *gorm.DB {
	if l == nil {
		return nil
	}
	return l.db
}

func (l *Ledger) conn(ctx context.Context) (*gorm.DB, error) {
	if l == nil || l.db == nil {
		return nil, fmt.Errorf("ledger store: not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return l.db.WithContext(ctx), nil
}

// EnsureAccount inserts the account when missing and returns the stored row.
// An existing row is returned unchanged.
func (l *Ledger) EnsureAccount(ctx context.Context, account models.Account) (models.Account, error) {
	db, err := l.conn(ctx)
	if err != nil {
		return models.Account{}, err
	}
	if account.ID == 0 {
		return models.Account{}, fmt.Errorf("ledger store: missing account id")
	}
	if account.CreditBalance < 0 {
		account.CreditBalance = 0
	}
	if errCreate := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&account).Error; errCreate != nil {
		return models.Account{}, fmt.Errorf("ledger store: ensure account: %w", errCreate)
	}
	return l.GetAccount(ctx, account.ID)
}

// GetAccount loads an account by ID.
func (l *Ledger) GetAccount(ctx context.Context, id uint64) (models.Account, error) {
	db, err := l.conn(ctx)
	if err != nil {
		return models.Account{}, err
	}
	var account models.Account
	if errFind := db.Where("id = ?", id).Take(&account).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.Account{}, ErrAccountNotFound
		}
		return models.Account{}, fmt.Errorf("ledger store: get account: %w", errFind)
	}
	return account, nil
}

// LockAccount loads an account holding a row lock until the transaction ends.
func (l *Ledger) LockAccount(ctx context.Context, id uint64) (models.Account, error) {
	db, err := l.conn(ctx)
	if err != nil {
		return models.Account{}, err
	}
	var account models.Account
	if errFind := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&account).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.Account{}, ErrAccountNotFound
		}
		return models.Account{}, fmt.Errorf("ledger store: lock account: %w", errFind)
	}
	return account, nil
}

// SaveEntitlement writes the entitlement fields of next, adding the credit
// difference to the stored balance rather than overwriting it.
func (l *Ledger) SaveEntitlement(ctx context.Context, prev, next models.Account, now time.Time) error {
	db, err := l.conn(ctx)
	if err != nil {
		return err
	}
	delta := next.CreditBalance - prev.CreditBalance
	if delta < 0 {
		return fmt.Errorf("ledger store: negative credit delta %d for account %d", delta, next.ID)
	}
	if next.CreditBalance < prev.CreditBalance || prev.CreditBalance > math.MaxInt64-delta {
		return fmt.Errorf("ledger store: account %d: %w", next.ID, models.ErrBalanceOverflow)
	}
	res := db.Model(&models.Account{}).
		Where("id = ?", next.ID).
		Updates(map[string]any{
			"credit_balance":  gorm.Expr("credit_balance + ?", delta),
			"active_plan_id":  next.ActivePlanID,
			"plan_expires_at": next.PlanExpiresAt,
			"updated_at":      now.UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("ledger store: save entitlement: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return ErrAccountNotFound
	}
	return nil
}

// CreateTransaction inserts a ledger entry.
func (l *Ledger) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	db, err := l.conn(ctx)
	if err != nil {
		return err
	}
	if txn == nil {
		return fmt.Errorf("ledger store: transaction is nil")
	}
	if strings.TrimSpace(txn.ExternalOrderRef) == "" {
		return fmt.Errorf("ledger store: missing external order ref")
	}
	if errCreate := db.Create(txn).Error; errCreate != nil {
		return fmt.Errorf("ledger store: create transaction: %w", errCreate)
	}
	return nil
}

// FindTransactionByOrderRef loads a ledger entry by its processor order reference.
func (l *Ledger) FindTransactionByOrderRef(ctx context.Context, orderRef string) (models.Transaction, error) {
	db, err := l.conn(ctx)
	if err != nil {
		return models.Transaction{}, err
	}
	var txn models.Transaction
	if errFind := db.Where("external_order_ref = ?", strings.TrimSpace(orderRef)).Take(&txn).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.Transaction{}, ErrTransactionNotFound
		}
		return models.Transaction{}, fmt.Errorf("ledger store: find transaction: %w", errFind)
	}
	return txn, nil
}

// Transition moves a pending transaction to a terminal status.
// It reports false when the row was no longer pending, which means another
// caller already settled it.
func (l *Ledger) Transition(ctx context.Context, id uint64, to models.TransactionStatus, paymentRef, planID string, now time.Time) (bool, error) {
	db, err := l.conn(ctx)
	if err != nil {
		return false, err
	}
	if !to.IsTerminal() {
		return false, fmt.Errorf("ledger store: invalid target status %q", to)
	}
	updates := map[string]any{
		"status":     to,
		"updated_at": now.UTC(),
	}
	if paymentRef = strings.TrimSpace(paymentRef); paymentRef != "" {
		updates["external_payment_ref"] = paymentRef
	}
	if planID != "" {
		updates["plan_id"] = planID
	}
	res := db.Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, models.TransactionStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("ledger store: transition transaction: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// TransactionFilter narrows ListTransactions.
type TransactionFilter struct {
	AccountID uint64
	Status    models.TransactionStatus
	Offset    int
	Limit     int
}

// ListTransactions returns matching ledger entries newest first plus the total count.
func (l *Ledger) ListTransactions(ctx context.Context, filter TransactionFilter) ([]models.Transaction, int64, error) {
	db, err := l.conn(ctx)
	if err != nil {
		return nil, 0, err
	}
	q := db.Model(&models.Transaction{})
	if filter.AccountID != 0 {
		q = q.Where("account_id = ?", filter.AccountID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		return nil, 0, fmt.Errorf("ledger store: count transactions: %w", errCount)
	}

	q = q.Order("created_at DESC, id DESC")
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var rows []models.Transaction
	if errFind := q.Find(&rows).Error; errFind != nil {
		return nil, 0, fmt.Errorf("ledger store: list transactions: %w", errFind)
	}
	return rows, total, nil
}

// CountPendingBefore counts pending transactions created before cutoff.
func (l *Ledger) CountPendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	db, err := l.conn(ctx)
	if err != nil {
		return 0, err
	}
	var count int64
	if errCount := db.Model(&models.Transaction{}).
		Where("status = ? AND created_at < ?", models.TransactionStatusPending, cutoff.UTC()).
		Count(&count).Error; errCount != nil {
		return 0, fmt.Errorf("ledger store: count pending: %w", errCount)
	}
	return count, nil
}

// RecordEvent appends a verified notification to the audit trail.
func (l *Ledger) RecordEvent(ctx context.Context, event *models.PaymentEvent) error {
	db, err := l.conn(ctx)
	if err != nil {
		return err
	}
	if event == nil {
		return fmt.Errorf("ledger store: event is nil")
	}
	if errCreate := db.Create(event).Error; errCreate != nil {
		return fmt.Errorf("ledger store: record event: %w", errCreate)
	}
	return nil
}

// ListEvents returns notifications recorded for an order, oldest first.
func (l *Ledger) ListEvents(ctx context.Context, orderRef string) ([]models.PaymentEvent, error) {
	db, err := l.conn(ctx)
	if err != nil {
		return nil, err
	}
	var events []models.PaymentEvent
	if errFind := db.Where("external_order_ref = ?", strings.TrimSpace(orderRef)).
		Order("received_at ASC, id ASC").
		Find(&events).Error; errFind != nil {
		return nil, fmt.Errorf("ledger store: list events: %w", errFind)
	}
	return events, nil
}
