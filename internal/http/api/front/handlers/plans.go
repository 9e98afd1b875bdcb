package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CreditLedger/internal/catalog"
)

// PlanFrontHandler serves the plan catalog.
type PlanFrontHandler struct {
	catalog *catalog.Catalog
}

// NewPlanFrontHandler constructs a PlanFrontHandler.
func NewPlanFrontHandler(c *catalog.Catalog) *PlanFrontHandler {
	if c == nil {
		c = catalog.Default()
	}
	return &PlanFrontHandler{catalog: c}
}

// List returns subscription plans ordered by price and the pay-as-you-go rule.
func (h *PlanFrontHandler) List(c *gin.Context) {
	subs := h.catalog.Subscriptions()
	out := make([]gin.H, 0, len(subs))
	for _, plan := range subs {
		out = append(out, gin.H{
			"id":            plan.PlanID,
			"price":         plan.PriceUnits,
			"credits":       plan.CreditGrant,
			"validity_days": plan.ValidityDays,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"currency": catalog.Currency,
		"plans":    out,
		"payg": gin.H{
			"id":         catalog.PlanIDPayAsYouGo,
			"unit_price": h.catalog.PayAsYouGo().UnitPrice,
		},
	})
}
