// Package httpapi exposes the engine over a JSON HTTP surface: wallet
// challenge auth, organization and roster management, the payroll state
// machine, and employee withdrawals.
package httpapi

import (
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/veilpay/veilpay/internal/common"
	"github.com/veilpay/veilpay/internal/logging"
	"github.com/veilpay/veilpay/internal/server/audit"
	"github.com/veilpay/veilpay/internal/server/auth"
	"github.com/veilpay/veilpay/internal/server/payroll"
	"github.com/veilpay/veilpay/internal/server/repositories/repomanager"
	"github.com/veilpay/veilpay/internal/server/roster"
	"github.com/veilpay/veilpay/internal/server/withdrawals"
)

type Handler struct {
	Auth        *auth.Service
	Roster      *roster.Service
	Payroll     *payroll.Service
	Withdrawals *withdrawals.Service
	Repos       repomanager.RepositoryManager
	Audit       *audit.Log
	Logger      logging.Logger
}

// writeError maps service errors onto HTTP statuses. Crypto failures are
// reported as a generic 500 without detail so ciphertext handling never
// leaks whether a key or a payload was at fault.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, common.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, common.ErrDecryption), errors.Is(err, common.ErrInvalidKey):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *Handler) Challenge(c *gin.Context) {
	var input struct {
		Wallet string `json:"wallet" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ch, err := h.Auth.GenerateChallenge(c.Request.Context(), input.Wallet)
	if err != nil {
		writeError(c, err)
		return
	}

	h.Audit.Record("auth.challenge", input.Wallet, "", "issued")
	c.JSON(http.StatusOK, gin.H{
		"nonce":      ch.Nonce,
		"message":    ch.Message,
		"expires_at": ch.ExpiresAt.Format(time.RFC3339),
	})
}

func (h *Handler) Verify(c *gin.Context) {
	var input struct {
		Wallet    string `json:"wallet" binding:"required"`
		Nonce     string `json:"nonce" binding:"required"`
		Message   string `json:"message" binding:"required"`
		Signature string `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sig, err := base64.StdEncoding.DecodeString(input.Signature)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature is not valid base64"})
		return
	}

	if !h.Auth.VerifySignature(c.Request.Context(), input.Wallet, sig, input.Message, input.Nonce) {
		h.Audit.Record("auth.verify", input.Wallet, "", "rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "signature verification failed"})
		return
	}

	token, err := h.Auth.CreateToken(c.Request.Context(), input.Wallet)
	if err != nil {
		writeError(c, err)
		return
	}

	h.Audit.Record("auth.verify", input.Wallet, "", "ok")
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *Handler) CreateOrganization(c *gin.Context) {
	var input struct {
		Name        string `json:"name" binding:"required"`
		AdminWallet string `json:"admin_wallet" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	org, err := h.Roster.CreateOrganization(c.Request.Context(), input.Name, input.AdminWallet)
	if err != nil {
		writeError(c, err)
		return
	}

	h.Audit.Record("org.create", input.AdminWallet, org.ID, "ok")
	c.JSON(http.StatusCreated, gin.H{"id": org.ID, "name": org.Name})
}

func (h *Handler) InviteEmployee(c *gin.Context) {
	claims := mustClaims(c)

	var input struct {
		Name   string `json:"name" binding:"required"`
		Salary string `json:"salary" binding:"required"`
		Wallet string `json:"wallet" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	emp, err := h.Roster.Invite(c.Request.Context(), claims.OrganizationID, input.Name, input.Salary, input.Wallet)
	if err != nil {
		writeError(c, err)
		return
	}

	h.Audit.Record("roster.invite", claims.Wallet, emp.ID, "ok")
	c.JSON(http.StatusCreated, gin.H{"id": emp.ID, "status": string(emp.Status)})
}

// Register completes an invitation. It is wallet-authenticated rather
// than admin-authenticated: the employee proves control of the invited
// wallet by signing the challenge, then supplies the separate derivation
// signature that seeds the stealth keypair.
func (h *Handler) Register(c *gin.Context) {
	claims := mustClaims(c)

	var input struct {
		OrganizationID      string `json:"organization_id" binding:"required"`
		DerivationSignature string `json:"derivation_signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sig, err := base64.StdEncoding.DecodeString(input.DerivationSignature)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "derivation signature is not valid base64"})
		return
	}

	emp, err := h.Roster.AcceptInvite(c.Request.Context(), input.OrganizationID, claims.Wallet, sig)
	if err != nil {
		writeError(c, err)
		return
	}

	h.Audit.Record("roster.register", claims.Wallet, emp.ID, "ok")
	c.JSON(http.StatusOK, gin.H{
		"id":             emp.ID,
		"status":         string(emp.Status),
		"stealth_wallet": emp.StealthWallet,
	})
}

func (h *Handler) CreatePayroll(c *gin.Context) {
	claims := mustClaims(c)

	var input struct {
		ScheduledFor *time.Time `json:"scheduled_for"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, report, err := h.Payroll.Create(c.Request.Context(), claims.OrganizationID, input.ScheduledFor)
	if err != nil {
		var elig *common.EligibilityError
		if errors.As(err, &elig) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":                "no eligible employees",
				"pending_registration": elig.PendingRegistration,
			})
			return
		}
		writeError(c, err)
		return
	}

	h.Audit.Record("payroll.create", claims.Wallet, p.ID, "ok")
	c.JSON(http.StatusCreated, gin.H{
		"id":                   p.ID,
		"status":               string(p.Status),
		"eligible":             report.Eligible,
		"pending_registration": report.PendingRegistration,
	})
}

// loadOwnedPayroll resolves the payroll from the URL and checks it
// belongs to the caller's organization. Foreign payrolls read as not
// found rather than forbidden.
func (h *Handler) loadOwnedPayroll(c *gin.Context) (string, bool) {
	claims := mustClaims(c)
	id := c.Param("id")

	p, err := h.Repos.Payrolls().GetPayroll(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return "", false
	}
	if p.OrganizationID != claims.OrganizationID {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return "", false
	}
	return id, true
}

func (h *Handler) PreparePayroll(c *gin.Context) {
	claims := mustClaims(c)
	id, ok := h.loadOwnedPayroll(c)
	if !ok {
		return
	}

	instructions, err := h.Payroll.Prepare(c.Request.Context(), id)
	if err != nil {
		h.Audit.Record("payroll.prepare", claims.Wallet, id, "failed")
		writeError(c, err)
		return
	}

	h.Audit.Record("payroll.prepare", claims.Wallet, id, "ok")
	c.JSON(http.StatusOK, gin.H{"status": "PROCESSING", "payments": len(instructions)})
}

func (h *Handler) ExecutePayroll(c *gin.Context) {
	claims := mustClaims(c)
	id, ok := h.loadOwnedPayroll(c)
	if !ok {
		return
	}

	var input struct {
		TreasuryWallet string `json:"treasury_wallet" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcomes, err := h.Payroll.Execute(c.Request.Context(), id, input.TreasuryWallet)
	if err != nil {
		h.Audit.Record("payroll.execute", claims.Wallet, id, "failed")
		writeError(c, err)
		return
	}

	results := make([]gin.H, 0, len(outcomes))
	for _, o := range outcomes {
		r := gin.H{"payment_id": o.PaymentID}
		if o.Err != "" {
			r["error"] = o.Err
		} else {
			r["tx_signature"] = o.TxSignature
		}
		results = append(results, r)
	}

	h.Audit.Record("payroll.execute", claims.Wallet, id, "ok")
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *Handler) FinalizePayroll(c *gin.Context) {
	claims := mustClaims(c)
	id, ok := h.loadOwnedPayroll(c)
	if !ok {
		return
	}

	var input struct {
		Outcomes []struct {
			PaymentID   string `json:"payment_id" binding:"required"`
			TxSignature string `json:"tx_signature"`
			Error       string `json:"error"`
		} `json:"outcomes" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcomes := make([]payroll.Outcome, 0, len(input.Outcomes))
	for _, o := range input.Outcomes {
		outcomes = append(outcomes, payroll.Outcome{
			PaymentID:   o.PaymentID,
			TxSignature: o.TxSignature,
			Err:         o.Error,
		})
	}

	p, err := h.Payroll.Finalize(c.Request.Context(), id, outcomes)
	if err != nil {
		h.Audit.Record("payroll.finalize", claims.Wallet, id, "failed")
		writeError(c, err)
		return
	}

	h.Audit.Record("payroll.finalize", claims.Wallet, id, string(p.Status))
	c.JSON(http.StatusOK, gin.H{"id": p.ID, "status": string(p.Status)})
}

func (h *Handler) GetPayroll(c *gin.Context) {
	claims := mustClaims(c)
	id := c.Param("id")

	p, err := h.Repos.Payrolls().GetPayroll(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if p.OrganizationID != claims.OrganizationID {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	payments, err := h.Repos.Payrolls().ListPayments(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	statuses := make([]gin.H, 0, len(payments))
	for _, pm := range payments {
		s := gin.H{"id": pm.ID, "status": string(pm.Status)}
		if pm.TxSignature != "" {
			s["tx_signature"] = pm.TxSignature
		}
		statuses = append(statuses, s)
	}

	out := gin.H{
		"id":       p.ID,
		"status":   string(p.Status),
		"payments": statuses,
	}
	if p.ScheduledFor != nil {
		out["scheduled_for"] = p.ScheduledFor.Format(time.RFC3339)
	}
	if p.CompletedAt != nil {
		out["completed_at"] = p.CompletedAt.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) ListPayrolls(c *gin.Context) {
	claims := mustClaims(c)

	list, err := h.Repos.Payrolls().ListByOrganization(c.Request.Context(), claims.OrganizationID)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]gin.H, 0, len(list))
	for _, p := range list {
		out = append(out, gin.H{"id": p.ID, "status": string(p.Status)})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Balance(c *gin.Context) {
	claims := mustClaims(c)
	orgID := c.Query("organization_id")
	if orgID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "organization_id is required"})
		return
	}

	balance, err := h.Withdrawals.Balance(c.Request.Context(), orgID, claims.Wallet)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

func (h *Handler) Withdraw(c *gin.Context) {
	claims := mustClaims(c)

	var input struct {
		OrganizationID      string `json:"organization_id" binding:"required"`
		Destination         string `json:"destination" binding:"required"`
		Amount              string `json:"amount" binding:"required"`
		DerivationSignature string `json:"derivation_signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sig, err := base64.StdEncoding.DecodeString(input.DerivationSignature)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "derivation signature is not valid base64"})
		return
	}

	txSig, err := h.Withdrawals.Withdraw(c.Request.Context(), input.OrganizationID, claims.Wallet,
		input.Destination, input.Amount, sig)
	if err != nil {
		h.Audit.Record("withdrawal", claims.Wallet, input.OrganizationID, "failed")
		writeError(c, err)
		return
	}

	h.Audit.Record("withdrawal", claims.Wallet, input.OrganizationID, "ok")
	c.JSON(http.StatusOK, gin.H{"tx_signature": txSig})
}
