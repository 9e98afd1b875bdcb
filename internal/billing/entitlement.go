package billing

import (
	"time"

	"github.com/router-for-me/CreditLedger/internal/catalog"
	"github.com/router-for-me/CreditLedger/internal/models"
)

// grantFor derives the entitlement change for a successful transaction.
//
// Subscriptions add their credit grant and extend expiry from the later of
// now and the current unexpired expiry. Pay-as-you-go adds the purchased
// credits and clears expiry.
func grantFor(plan catalog.Plan, creditsRequested int64, account models.Account, now time.Time) models.EntitlementDelta {
	switch p := plan.(type) {
	case catalog.Subscription:
		base := now
		if account.PlanExpiresAt != nil && account.PlanExpiresAt.After(now) {
			base = *account.PlanExpiresAt
		}
		expiresAt := base.Add(p.Validity())
		planID := p.PlanID
		return models.EntitlementDelta{
			Credits:   p.CreditGrant,
			PlanID:    &planID,
			ExpiresAt: &expiresAt,
		}
	case catalog.PayAsYouGo:
		planID := catalog.PlanIDPayAsYouGo
		return models.EntitlementDelta{
			Credits:     creditsRequested,
			PlanID:      &planID,
			ClearExpiry: true,
		}
	default:
		return models.EntitlementDelta{}
	}
}
