package models

import (
	"time"

	"gorm.io/datatypes"
)

// PaymentEventResult records how a verified notification was handled.
type PaymentEventResult string

// PaymentEventResult constants.
const (
	PaymentEventApplied            PaymentEventResult = "applied"
	PaymentEventDuplicate          PaymentEventResult = "duplicate"
	PaymentEventIgnored            PaymentEventResult = "ignored"
	PaymentEventUnknownTransaction PaymentEventResult = "unknown_transaction"
	PaymentEventAttemptFailed      PaymentEventResult = "attempt_failed"
	// PaymentEventSettledConflict marks a capture for an order that was
	// already settled differently: failed, or captured by another payment.
	PaymentEventSettledConflict PaymentEventResult = "settled_conflict"
)

// PaymentEvent is an append-only record of a verified processor notification.
type PaymentEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Event              string             `gorm:"type:varchar(64);not null"`        // Processor event name.
	ExternalOrderRef   string             `gorm:"type:varchar(64);index"`           // Referenced order.
	ExternalPaymentRef string             `gorm:"type:varchar(64)"`                 // Referenced payment.
	Outcome            string             `gorm:"type:varchar(16)"`                 // Parsed outcome.
	Result             PaymentEventResult `gorm:"type:varchar(32);not null"`        // Processing result.
	Payload            datatypes.JSON     `gorm:"type:jsonb;not null;default:'{}'"` // Raw notification body.

	ReceivedAt time.Time `gorm:"not null;index"` // Receive timestamp.
}
