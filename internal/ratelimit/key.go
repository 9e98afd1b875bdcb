package ratelimit

import "fmt"

// OrderKey builds the limiter key for order creation by one account.
func OrderKey(accountID uint64) string {
	if accountID == 0 {
		return ""
	}
	return fmt.Sprintf("orders:acct:%d", accountID)
}
