package billing

import (
	"fmt"
	"strings"

	"github.com/router-for-me/CreditLedger/internal/catalog"
)

// OrderRequest is a client order before validation.
type OrderRequest struct {
	AccountID      uint64
	PlanID         string
	CreditQuantity *int64
	AmountUnits    int64
}

// ValidatedOrder is an order whose price matches the catalog.
type ValidatedOrder struct {
	AccountID        uint64
	Plan             catalog.Plan
	AmountUnits      int64
	CreditsRequested int64
	Currency         string
}

// Validator checks orders against catalog pricing.
type Validator struct {
	catalog *catalog.Catalog
}

// NewValidator constructs a Validator.
func NewValidator(c *catalog.Catalog) *Validator {
	if c == nil {
		c = catalog.Default()
	}
	return &Validator{catalog: c}
}

// Validate applies the pricing rules in order; the first failure wins.
// An empty plan ID is priced as pay-as-you-go.
func (v *Validator) Validate(req OrderRequest) (ValidatedOrder, error) {
	planID := strings.TrimSpace(req.PlanID)
	if planID == "" {
		planID = catalog.PlanIDPayAsYouGo
	}
	plan, ok := v.catalog.Lookup(planID)
	if !ok {
		return ValidatedOrder{}, fmt.Errorf("%w: %q", ErrInvalidPlan, planID)
	}

	order := ValidatedOrder{
		AccountID:   req.AccountID,
		Plan:        plan,
		AmountUnits: req.AmountUnits,
		Currency:    catalog.Currency,
	}

	switch p := plan.(type) {
	case catalog.PayAsYouGo:
		if req.CreditQuantity == nil || *req.CreditQuantity <= 0 {
			return ValidatedOrder{}, fmt.Errorf("%w: credit quantity must be a positive integer", ErrAmountMismatch)
		}
		quantity := *req.CreditQuantity
		expected, ok := p.Price(quantity)
		if !ok {
			return ValidatedOrder{}, fmt.Errorf("%w: credit quantity %d exceeds the purchase limit of %d", ErrAmountMismatch, quantity, catalog.MaxCreditQuantity)
		}
		if req.AmountUnits != expected {
			return ValidatedOrder{}, fmt.Errorf("%w: %d credits cost %d, got %d", ErrAmountMismatch, quantity, expected, req.AmountUnits)
		}
		order.CreditsRequested = quantity
	case catalog.Subscription:
		if req.AmountUnits != p.PriceUnits {
			return ValidatedOrder{}, fmt.Errorf("%w: %s costs %d, got %d", ErrAmountMismatch, p.PlanID, p.PriceUnits, req.AmountUnits)
		}
		order.CreditsRequested = p.CreditGrant
	default:
		return ValidatedOrder{}, fmt.Errorf("%w: unsupported plan kind %T", ErrInvalidPlan, plan)
	}
	return order, nil
}
