package handlers

import "github.com/gin-gonic/gin"

// Context keys set by the front authentication middleware.
const (
	ContextAccountID    = "accountID"
	ContextAccountName  = "accountName"
	ContextAccountEmail = "accountEmail"
)

func getAccountID(c *gin.Context) uint64 {
	v, ok := c.Get(ContextAccountID)
	if !ok {
		return 0
	}
	id, _ := v.(uint64)
	return id
}
