package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/veilpay/veilpay/internal/server/ratelimit"
)

// NewRouter wires the handler onto a gin engine. Challenge issuance and
// verification are unauthenticated; everything else requires a wallet
// token, and payroll and roster management additionally require the
// token to carry an organization binding.
func NewRouter(h *Handler, limiter *ratelimit.Limiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RateLimit(limiter))

	api := r.Group("/api/v1")

	api.POST("/auth/challenge", h.Challenge)
	api.POST("/auth/verify", h.Verify)
	api.POST("/organizations", h.CreateOrganization)

	authed := api.Group("", RequireToken(h.Auth))
	authed.POST("/register", h.Register)
	authed.GET("/balance", h.Balance)
	authed.POST("/withdrawals", h.Withdraw)

	admin := authed.Group("", RequireOrganization())
	admin.POST("/employees", h.InviteEmployee)
	admin.POST("/payrolls", h.CreatePayroll)
	admin.GET("/payrolls", h.ListPayrolls)
	admin.GET("/payrolls/:id", h.GetPayroll)
	admin.POST("/payrolls/:id/prepare", h.PreparePayroll)
	admin.POST("/payrolls/:id/execute", h.ExecutePayroll)
	admin.POST("/payrolls/:id/finalize", h.FinalizePayroll)

	return r
}
