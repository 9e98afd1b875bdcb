// Package catalog defines the compiled-in plan catalog.
//
// A Plan is a closed variant: every plan is either a Subscription or the
// PayAsYouGo pricing rule. Consumers switch over the concrete types.
package catalog

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Currency is the single currency every plan is priced in.
const Currency = "INR"

// Well-known plan identifiers.
const (
	PlanIDFree       = "free"
	PlanIDPayAsYouGo = "payg"
	PlanIDPremium    = "premium"
	PlanIDBusiness   = "business"
)

// Plan is implemented only by Subscription and PayAsYouGo.
type Plan interface {
	ID() string
	isPlan()
}

// Subscription is a fixed-price bundle of credits valid for a number of days.
type Subscription struct {
	PlanID       string
	PriceUnits   int64
	CreditGrant  int64
	ValidityDays int
}

// ID returns the plan identifier.
func (s Subscription) ID() string { return s.PlanID }

// Validity returns the validity window as a duration.
func (s Subscription) Validity() time.Duration {
	return time.Duration(s.ValidityDays) * 24 * time.Hour
}

func (Subscription) isPlan() {}

// MaxCreditQuantity bounds a single pay-as-you-go purchase.
const MaxCreditQuantity int64 = 1_000_000

// PayAsYouGo prices credits individually at UnitPrice each.
type PayAsYouGo struct {
	UnitPrice int64
}

// ID returns the pay-as-you-go identifier.
func (PayAsYouGo) ID() string { return PlanIDPayAsYouGo }

// Price returns the amount owed for quantity credits. ok is false when the
// quantity is outside 1..MaxCreditQuantity or the product does not fit int64.
func (p PayAsYouGo) Price(quantity int64) (amount int64, ok bool) {
	if quantity <= 0 || quantity > MaxCreditQuantity || p.UnitPrice <= 0 {
		return 0, false
	}
	if quantity > math.MaxInt64/p.UnitPrice {
		return 0, false
	}
	return quantity * p.UnitPrice, true
}

func (PayAsYouGo) isPlan() {}

// Catalog is an immutable plan lookup table.
type Catalog struct {
	plans map[string]Plan
	payg  PayAsYouGo
}

// New builds a catalog from subscriptions and the pay-as-you-go rule.
func New(payg PayAsYouGo, subscriptions ...Subscription) *Catalog {
	plans := make(map[string]Plan, len(subscriptions)+1)
	for _, sub := range subscriptions {
		plans[normalizeID(sub.PlanID)] = sub
	}
	plans[PlanIDPayAsYouGo] = payg
	return &Catalog{plans: plans, payg: payg}
}

// Default returns the production catalog.
func Default() *Catalog {
	return New(
		PayAsYouGo{UnitPrice: 10},
		Subscription{PlanID: PlanIDPremium, PriceUnits: 149, CreditGrant: 100, ValidityDays: 30},
		Subscription{PlanID: PlanIDBusiness, PriceUnits: 399, CreditGrant: 500, ValidityDays: 30},
	)
}

// Lookup resolves a plan identifier.
func (c *Catalog) Lookup(planID string) (Plan, bool) {
	if c == nil {
		return nil, false
	}
	plan, ok := c.plans[normalizeID(planID)]
	return plan, ok
}

// PayAsYouGo returns the pay-as-you-go pricing rule.
func (c *Catalog) PayAsYouGo() PayAsYouGo {
	if c == nil {
		return PayAsYouGo{}
	}
	return c.payg
}

// Subscriptions returns subscription plans ordered by price.
func (c *Catalog) Subscriptions() []Subscription {
	if c == nil {
		return nil
	}
	out := make([]Subscription, 0, len(c.plans))
	for _, plan := range c.plans {
		if sub, ok := plan.(Subscription); ok {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PriceUnits == out[j].PriceUnits {
			return out[i].PlanID < out[j].PlanID
		}
		return out[i].PriceUnits < out[j].PriceUnits
	})
	return out
}

func normalizeID(planID string) string {
	return strings.ToLower(strings.TrimSpace(planID))
}
