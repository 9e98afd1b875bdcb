// Package front registers the account-facing API and the processor notification endpoint.
package front

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CreditLedger/internal/billing"
	"github.com/router-for-me/CreditLedger/internal/catalog"
	"github.com/router-for-me/CreditLedger/internal/config"
	"github.com/router-for-me/CreditLedger/internal/http/api/front/handlers"
	"github.com/router-for-me/CreditLedger/internal/metrics"
	"github.com/router-for-me/CreditLedger/internal/ratelimit"
	"github.com/router-for-me/CreditLedger/internal/security"
	log "github.com/sirupsen/logrus"
)

// Deps carries the services the front routes call into.
type Deps struct {
	JWT             config.JWTConfig
	Catalog         *catalog.Catalog
	Orders          *billing.OrderService
	Notifications   *billing.NotificationService
	Accounts        *billing.AccountService
	Limiter         *ratelimit.Manager
	Metrics         *metrics.Metrics
	SignatureHeader string
}

// RegisterFrontRoutes registers account-facing routes under /v1.
func RegisterFrontRoutes(r *gin.Engine, deps Deps) {
	orderHandler := handlers.NewOrderFrontHandler(deps.Orders)
	webhookHandler := handlers.NewWebhookHandler(deps.Notifications, deps.SignatureHeader)
	accountHandler := handlers.NewAccountFrontHandler(deps.Accounts, nil)
	planHandler := handlers.NewPlanFrontHandler(deps.Catalog)

	v1 := r.Group("/v1")
	v1.GET("/plans", planHandler.List)
	// Authenticated by the processor signature, not a bearer token.
	v1.POST("/payments/webhook", webhookHandler.Receive)

	authed := v1.Group("")
	authed.Use(accountAuthMiddleware(deps.JWT, deps.Accounts))
	{
		authed.POST("/payments/orders", orderRateLimitMiddleware(deps.Limiter, deps.Metrics), orderHandler.Create)
		authed.GET("/payments/history", accountHandler.History)
		authed.GET("/account", accountHandler.Get)
		authed.GET("/account/credits", accountHandler.Credits)
	}
}

// accountAuthMiddleware validates bearer JWTs and provisions the account on first sight.
func accountAuthMiddleware(jwtCfg config.JWTConfig, accounts *billing.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := bearerClaims(c, jwtCfg.Secret)
		if !ok {
			return
		}

		accountID := claims.AccountID()
		if _, errProvision := accounts.Provision(c.Request.Context(), accountID, claims.Name, claims.Email); errProvision != nil {
			log.WithError(errProvision).WithField("account_id", accountID).Error("front: provision account failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "load account failed"})
			return
		}

		c.Set(handlers.ContextAccountID, accountID)
		c.Set(handlers.ContextAccountName, claims.Name)
		c.Set(handlers.ContextAccountEmail, claims.Email)
		c.Next()
	}
}

// bearerClaims parses the Authorization header, aborting the request on failure.
func bearerClaims(c *gin.Context, secret string) (*security.Claims, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
		return nil, false
	}

	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
		return nil, false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
		return nil, false
	}

	claims, errJWT := security.ParseToken(secret, token)
	if errJWT != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return nil, false
	}
	return claims, true
}

// orderRateLimitMiddleware throttles order creation per account.
// Limiter failures let the request through.
func orderRateLimitMiddleware(limiter *ratelimit.Manager, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		accountID, _ := c.Get(handlers.ContextAccountID)
		id, _ := accountID.(uint64)
		key := ratelimit.OrderKey(id)

		result, errAllow := limiter.Allow(c.Request.Context(), key)
		if errAllow != nil {
			log.WithError(errAllow).WithField("key", key).Warn("front: rate limit check failed")
			c.Next()
			return
		}
		if !result.Allowed {
			m.ObserveOrder(metrics.OrderRateLimited)
			retryAfter := result.RetryAfter(limiter.Now())
			c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many orders, try again later"})
			return
		}
		c.Next()
	}
}
