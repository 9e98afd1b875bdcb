package billing

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/router-for-me/CreditLedger/internal/db"
	"github.com/router-for-me/CreditLedger/internal/gateway"
	"github.com/router-for-me/CreditLedger/internal/models"
	"github.com/router-for-me/CreditLedger/internal/store"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "billing-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func fixedClock(now time.Time) func() time.Time {
	return func() time.Time { return now }
}

func seedAccount(t *testing.T, ledger *store.Ledger, account models.Account) models.Account {
	t.Helper()
	stored, err := ledger.EnsureAccount(context.Background(), account)
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return stored
}

func seedPending(t *testing.T, ledger *store.Ledger, txn models.Transaction) models.Transaction {
	t.Helper()
	txn.Status = models.TransactionStatusPending
	if txn.Currency == "" {
		txn.Currency = "INR"
	}
	if txn.Receipt == "" {
		txn.Receipt = "rcpt_test"
	}
	if err := ledger.CreateTransaction(context.Background(), &txn); err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
	return txn
}

type stubGateway struct {
	mu       sync.Mutex
	orderRef string
	err      error
	requests []gateway.IntentRequest
}

func (g *stubGateway) CreateIntent(_ context.Context, req gateway.IntentRequest) (gateway.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return gateway.Intent{}, g.err
	}
	amountMinor, err := gateway.ToMinorUnits(req.AmountUnits)
	if err != nil {
		return gateway.Intent{}, err
	}
	return gateway.Intent{
		OrderRef:    g.orderRef,
		AmountUnits: req.AmountUnits,
		AmountMinor: amountMinor,
		Currency:    req.Currency,
	}, nil
}

func countTransactions(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var count int64
	if err := conn.Model(&models.Transaction{}).Count(&count).Error; err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	return count
}
