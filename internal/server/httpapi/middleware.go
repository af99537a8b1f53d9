package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/veilpay/veilpay/internal/server/auth"
	"github.com/veilpay/veilpay/internal/server/ratelimit"
)

const claimsKey = "claims"

// RequireToken validates the bearer token and stores the claims in the
// request context for handlers downstream.
func RequireToken(authSvc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := authSvc.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireOrganization rejects tokens that are not bound to an
// organization; admin-only routes use it on top of RequireToken.
func RequireOrganization() gin.HandlerFunc {
	return func(c *gin.Context) {
		if mustClaims(c).OrganizationID == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "organization admin required"})
			return
		}
		c.Next()
	}
}

func mustClaims(c *gin.Context) *auth.Claims {
	return c.MustGet(claimsKey).(*auth.Claims)
}

// RateLimit budgets requests per caller. Authenticated requests are
// keyed by wallet, anonymous ones by client address.
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if claims, ok := c.Get(claimsKey); ok {
			key = claims.(*auth.Claims).Wallet
		}

		if !limiter.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
