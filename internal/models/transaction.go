package models

import "time"

// TransactionStatus represents the lifecycle state of a payment transaction.
type TransactionStatus string

// TransactionStatus constants define the ledger states.
const (
	// TransactionStatusPending marks an order awaiting its payment notification.
	TransactionStatusPending TransactionStatus = "pending"
	// TransactionStatusSuccess marks a captured payment.
	TransactionStatusSuccess TransactionStatus = "success"
	// TransactionStatusFailed marks a failed payment.
	TransactionStatusFailed TransactionStatus = "failed"
)

// IsTerminal reports whether the status can no longer change.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusSuccess || s == TransactionStatusFailed
}

// Transaction is one ledger entry recording a payment intent and its outcome.
type Transaction struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	AccountID uint64  `gorm:"not null;index"`       // Owning account ID.
	Account   Account `gorm:"foreignKey:AccountID"` // Owning account record.

	AmountUnits      int64  `gorm:"not null"`                 // Charged amount in major currency units.
	Currency         string `gorm:"type:varchar(8);not null"` // ISO currency code.
	CreditsRequested int64  `gorm:"not null;default:0"`       // Credits granted on success.
	PlanID           string `gorm:"type:varchar(32)"`         // Plan identifier at order time.

	ExternalOrderRef   string  `gorm:"type:varchar(64);not null;uniqueIndex"` // Processor order reference.
	ExternalPaymentRef *string `gorm:"type:varchar(64)"`                      // Processor payment reference.
	Receipt            string  `gorm:"type:varchar(64)"`                      // Receipt sent to the processor.

	Status TransactionStatus `gorm:"type:varchar(16);not null;default:'pending';index"` // Lifecycle state.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`       // Last update timestamp.
}
