// Package gateway creates payment intents (orders) at the payment processor.
package gateway

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// minorUnitsPerUnit converts major currency units to the processor's minor units.
const minorUnitsPerUnit = 100

var (
	// ErrUnavailable reports that the processor could not create the intent.
	ErrUnavailable = errors.New("gateway unavailable")
	// ErrAmountOutOfRange reports an amount that cannot be expressed in minor units.
	ErrAmountOutOfRange = errors.New("gateway: amount out of range")
)

// IntentRequest describes an order to create at the processor.
type IntentRequest struct {
	AmountUnits int64
	Currency    string
	Receipt     string
	Notes       map[string]string
}

// Intent is the processor's view of a created order.
type Intent struct {
	OrderRef    string
	AmountUnits int64
	AmountMinor int64
	Currency    string
}

// ToMinorUnits converts whole currency units to minor units.
func ToMinorUnits(units int64) (int64, error) {
	if units <= 0 || units > math.MaxInt64/minorUnitsPerUnit {
		return 0, fmt.Errorf("%w: %d", ErrAmountOutOfRange, units)
	}
	return units * minorUnitsPerUnit, nil
}

func normalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}
