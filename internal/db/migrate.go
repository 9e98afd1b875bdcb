package db

import (
	"fmt"

	"github.com/router-for-me/CreditLedger/internal/models"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite:
		return migrateSQLite(conn)
	case DialectPostgres, "":
		return migratePostgres(conn)
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}
}

func autoMigrate(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(
		&models.Account{},
		&models.Transaction{},
		&models.PaymentEvent{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	return nil
}

// migratePostgres applies PostgreSQL-specific constraints and indexes.
func migratePostgres(conn *gorm.DB) error {
	if errAuto := autoMigrate(conn); errAuto != nil {
		return errAuto
	}
	if errCheck := conn.Exec(`
		DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM pg_constraint WHERE conname = 'chk_accounts_credit_balance'
			) THEN
				ALTER TABLE accounts
				ADD CONSTRAINT chk_accounts_credit_balance CHECK (credit_balance >= 0);
			END IF;
		END $$;
	`).Error; errCheck != nil {
		return fmt.Errorf("db: add credit balance check: %w", errCheck)
	}
	if errStatusCheck := conn.Exec(`
		DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM pg_constraint WHERE conname = 'chk_transactions_status'
			) THEN
				ALTER TABLE transactions
				ADD CONSTRAINT chk_transactions_status CHECK (status IN ('pending', 'success', 'failed'));
			END IF;
		END $$;
	`).Error; errStatusCheck != nil {
		return fmt.Errorf("db: add transaction status check: %w", errStatusCheck)
	}
	if errIndex := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_transactions_account_status_created
		ON transactions (account_id, status, created_at DESC)
	`).Error; errIndex != nil {
		return fmt.Errorf("db: create transaction history index: %w", errIndex)
	}
	return nil
}

// migrateSQLite applies SQLite schema updates and indexes.
func migrateSQLite(conn *gorm.DB) error {
	if errAuto := autoMigrate(conn); errAuto != nil {
		return errAuto
	}
	if errIndex := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_transactions_account_status_created
		ON transactions (account_id, status, created_at)
	`).Error; errIndex != nil {
		return fmt.Errorf("db: create transaction history index: %w", errIndex)
	}
	return nil
}
