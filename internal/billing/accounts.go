package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/router-for-me/CreditLedger/internal/models"
	"github.com/router-for-me/CreditLedger/internal/store"
)

const maxHistoryLimit = 100

// AccountSummary is the entitlement view of an account.
type AccountSummary struct {
	AccountID     uint64
	Name          string
	Email         string
	CreditBalance int64
	ActivePlanID  string
	PlanExpiresAt *time.Time
	Expired       bool
}

// AccountService provisions accounts and reads their entitlements.
type AccountService struct {
	ledger         *store.Ledger
	initialCredits int64
}

// NewAccountService constructs an AccountService granting initialCredits on first sight of an account.
func NewAccountService(ledger *store.Ledger, initialCredits int64) *AccountService {
	if initialCredits < 0 {
		initialCredits = 0
	}
	return &AccountService{ledger: ledger, initialCredits: initialCredits}
}

// Provision creates the account when it does not exist yet. Existing accounts are returned unchanged.
func (s *AccountService) Provision(ctx context.Context, id uint64, name, email string) (models.Account, error) {
	if id == 0 {
		return models.Account{}, fmt.Errorf("billing: provision account: missing id")
	}
	return s.ledger.EnsureAccount(ctx, models.Account{
		ID:            id,
		Name:          name,
		Email:         email,
		CreditBalance: s.initialCredits,
	})
}

// Summary returns the balance and plan of an account as of now.
func (s *AccountService) Summary(ctx context.Context, id uint64, now time.Time) (AccountSummary, error) {
	account, err := s.ledger.GetAccount(ctx, id)
	if err != nil {
		return AccountSummary{}, err
	}
	return summarize(account, now), nil
}

// History lists successful transactions of an account, newest first.
func (s *AccountService) History(ctx context.Context, id uint64, limit int) ([]models.Transaction, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	txns, _, err := s.ledger.ListTransactions(ctx, store.TransactionFilter{
		AccountID: id,
		Status:    models.TransactionStatusSuccess,
		Limit:     limit,
	})
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func summarize(account models.Account, now time.Time) AccountSummary {
	summary := AccountSummary{
		AccountID:     account.ID,
		Name:          account.Name,
		Email:         account.Email,
		CreditBalance: account.CurrentBalance(),
		PlanExpiresAt: account.PlanExpiresAt,
	}
	if account.ActivePlanID != nil {
		summary.ActivePlanID = *account.ActivePlanID
	}
	if account.PlanExpiresAt != nil && !account.PlanExpiresAt.After(now) {
		summary.Expired = true
	}
	return summary
}
