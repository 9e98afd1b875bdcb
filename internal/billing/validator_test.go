package billing

import (
	"errors"
	"math"
	"testing"

	"github.com/router-for-me/CreditLedger/internal/catalog"
)

func int64Ptr(v int64) *int64 { return &v }

func TestValidate_PricingRules(t *testing.T) {
	v := NewValidator(catalog.Default())

	cases := []struct {
		name        string
		req         OrderRequest
		wantErr     error
		wantPlan    string
		wantCredits int64
	}{
		{name: "payg exact", req: OrderRequest{PlanID: "payg", CreditQuantity: int64Ptr(5), AmountUnits: 50}, wantPlan: "payg", wantCredits: 5},
		{name: "payg implied", req: OrderRequest{CreditQuantity: int64Ptr(3), AmountUnits: 30}, wantPlan: "payg", wantCredits: 3},
		{name: "payg underpriced", req: OrderRequest{PlanID: "payg", CreditQuantity: int64Ptr(5), AmountUnits: 49}, wantErr: ErrAmountMismatch},
		{name: "payg zero quantity", req: OrderRequest{PlanID: "payg", CreditQuantity: int64Ptr(0), AmountUnits: 0}, wantErr: ErrAmountMismatch},
		{name: "payg negative quantity", req: OrderRequest{PlanID: "payg", CreditQuantity: int64Ptr(-2), AmountUnits: -20}, wantErr: ErrAmountMismatch},
		{name: "payg wrapping quantity", req: OrderRequest{PlanID: "payg", CreditQuantity: int64Ptr(5534023222112865485), AmountUnits: 2}, wantErr: ErrAmountMismatch},
		{name: "payg max int quantity", req: OrderRequest{PlanID: "payg", CreditQuantity: int64Ptr(math.MaxInt64), AmountUnits: -10}, wantErr: ErrAmountMismatch},
		{name: "payg over purchase limit", req: OrderRequest{PlanID: "payg", CreditQuantity: int64Ptr(catalog.MaxCreditQuantity + 1), AmountUnits: (catalog.MaxCreditQuantity + 1) * 10}, wantErr: ErrAmountMismatch},
		{name: "payg at purchase limit", req: OrderRequest{PlanID: "payg", CreditQuantity: int64Ptr(catalog.MaxCreditQuantity), AmountUnits: catalog.MaxCreditQuantity * 10}, wantPlan: "payg", wantCredits: catalog.MaxCreditQuantity},
		{name: "payg missing quantity", req: OrderRequest{PlanID: "payg", AmountUnits: 10}, wantErr: ErrAmountMismatch},
		{name: "premium exact", req: OrderRequest{PlanID: "premium", AmountUnits: 149}, wantPlan: "premium", wantCredits: 100},
		{name: "premium mixed case", req: OrderRequest{PlanID: " Premium ", AmountUnits: 149}, wantPlan: "premium", wantCredits: 100},
		{name: "premium quantity ignored", req: OrderRequest{PlanID: "premium", CreditQuantity: int64Ptr(999), AmountUnits: 149}, wantPlan: "premium", wantCredits: 100},
		{name: "premium overpaid", req: OrderRequest{PlanID: "premium", AmountUnits: 150}, wantErr: ErrAmountMismatch},
		{name: "business exact", req: OrderRequest{PlanID: "business", AmountUnits: 399}, wantPlan: "business", wantCredits: 500},
		{name: "business at premium price", req: OrderRequest{PlanID: "business", AmountUnits: 149}, wantErr: ErrAmountMismatch},
		{name: "unknown plan", req: OrderRequest{PlanID: "gold", AmountUnits: 149}, wantErr: ErrInvalidPlan},
		{name: "free is not purchasable", req: OrderRequest{PlanID: "free", AmountUnits: 0}, wantErr: ErrInvalidPlan},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order, err := v.Validate(tc.req)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if order.Plan.ID() != tc.wantPlan {
				t.Fatalf("expected plan %q, got %q", tc.wantPlan, order.Plan.ID())
			}
			if order.CreditsRequested != tc.wantCredits {
				t.Fatalf("expected %d credits, got %d", tc.wantCredits, order.CreditsRequested)
			}
			if order.Currency != catalog.Currency {
				t.Fatalf("expected currency %s, got %s", catalog.Currency, order.Currency)
			}
		})
	}
}
