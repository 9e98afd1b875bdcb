package models

import (
	"errors"
	"math"
	"time"
)

// ErrBalanceOverflow reports a credit grant that would exceed the balance range.
var ErrBalanceOverflow = errors.New("credit balance overflow")

// Account holds the credit balance and subscription entitlement of one account.
type Account struct {
	ID uint64 `gorm:"primaryKey;autoIncrement:false"` // Account ID issued by the identity provider.

	Name  string `gorm:"type:text"` // Display name.
	Email string `gorm:"type:text"` // Contact email.

	CreditBalance int64      `gorm:"not null;default:0"` // Consumable credits, never negative.
	ActivePlanID  *string    `gorm:"type:varchar(32)"`   // Active plan identifier.
	PlanExpiresAt *time.Time `gorm:""`                   // Subscription expiry, nil for pay-as-you-go.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// CurrentBalance returns the account credit balance.
func (a *Account) CurrentBalance() int64 {
	if a == nil {
		return 0
	}
	return a.CreditBalance
}

// EntitlementDelta describes one change to an account entitlement.
// Nil plan or expiry pointers keep the current value unless the matching Clear flag is set.
type EntitlementDelta struct {
	Credits     int64
	PlanID      *string
	ExpiresAt   *time.Time
	ClearExpiry bool
}

// ApplyDelta applies an entitlement delta. Negative credit deltas are ignored.
// A grant that would overflow the balance leaves the account untouched.
func (a *Account) ApplyDelta(delta EntitlementDelta) error {
	if a == nil {
		return nil
	}
	if delta.Credits > 0 {
		if a.CreditBalance > math.MaxInt64-delta.Credits {
			return ErrBalanceOverflow
		}
		a.CreditBalance += delta.Credits
	}
	if delta.PlanID != nil {
		planID := *delta.PlanID
		a.ActivePlanID = &planID
	}
	switch {
	case delta.ClearExpiry:
		a.PlanExpiresAt = nil
	case delta.ExpiresAt != nil:
		expiresAt := delta.ExpiresAt.UTC()
		a.PlanExpiresAt = &expiresAt
	}
	return nil
}
