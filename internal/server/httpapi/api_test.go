package httpapi

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/btcsuite/btcutil/base58"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilpay/veilpay/internal/logging"
	"github.com/veilpay/veilpay/internal/server/audit"
	"github.com/veilpay/veilpay/internal/server/auth"
	"github.com/veilpay/veilpay/internal/server/payroll"
	"github.com/veilpay/veilpay/internal/server/ratelimit"
	"github.com/veilpay/veilpay/internal/server/relay"
	"github.com/veilpay/veilpay/internal/server/repositories/repomanager"
	"github.com/veilpay/veilpay/internal/server/roster"
	"github.com/veilpay/veilpay/internal/server/scheduler"
	"github.com/veilpay/veilpay/internal/server/withdrawals"
	"github.com/veilpay/veilpay/internal/stealth"
)

type testWallet struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newTestWallet(t *testing.T) *testWallet {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return &testWallet{pub: pub, priv: priv}
}

func (w *testWallet) address() string {
	return base58.Encode(w.pub)
}

func (w *testWallet) sign(msg []byte) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(w.priv, msg))
}

type fixture struct {
	router *gin.Engine
	repos  repomanager.RepositoryManager
}

type stubRelay struct{ sig int }

func (r *stubRelay) UploadProof(ctx context.Context, sender, token, amount, nonce string) (string, error) {
	return "proof-ref", nil
}

func (r *stubRelay) Transfer(ctx context.Context, req *relay.TransferRequest) (*relay.TransferResult, error) {
	r.sig++
	return &relay.TransferResult{Success: true, TxSignature: fmt.Sprintf("sig-%d", r.sig)}, nil
}

type stubChain struct{}

func (stubChain) Balance(ctx context.Context, wallet, token string) (string, error) {
	return "1000", nil
}

func (stubChain) IsConfirmed(ctx context.Context, txSignature string) (bool, error) {
	return true, nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repos := repomanager.NewInMemoryRepositoryManager()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	masterKey := make([]byte, 32)
	salt := []byte("test-salt")
	secret := []byte("test-secret")

	authSvc := auth.NewService(repos.Challenges(), repos.Organizations(), logger,
		secret, 15*time.Minute, 5*time.Minute)
	rosterSvc := roster.NewService(repos, logger, masterKey, salt)
	relayClient := &stubRelay{}
	payrollSvc := payroll.NewService(repos, relayClient, logger, masterKey, "", scheduler.Fast)
	withdrawalSvc := withdrawals.NewService(repos, relayClient, stubChain{}, logger, salt, "")

	h := &Handler{
		Auth:        authSvc,
		Roster:      rosterSvc,
		Payroll:     payrollSvc,
		Withdrawals: withdrawalSvc,
		Repos:       repos,
		Audit:       audit.NewLog(100, time.Hour),
		Logger:      logger,
	}

	return &fixture{
		router: NewRouter(h, ratelimit.New(1000, time.Minute, 100)),
		repos:  repos,
	}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

// login runs the challenge/verify flow and returns the issued token.
func (f *fixture) login(t *testing.T, w *testWallet) string {
	t.Helper()

	resp := f.do(t, http.MethodPost, "/api/v1/auth/challenge", "", gin.H{"wallet": w.address()})
	require.Equal(t, http.StatusOK, resp.Code)
	ch := decode(t, resp)
	message := ch["message"].(string)
	nonce := ch["nonce"].(string)

	resp = f.do(t, http.MethodPost, "/api/v1/auth/verify", "", gin.H{
		"wallet":    w.address(),
		"nonce":     nonce,
		"message":   message,
		"signature": w.sign([]byte(message)),
	})
	require.Equal(t, http.StatusOK, resp.Code)
	return decode(t, resp)["token"].(string)
}

func TestAuth_ChallengeVerifyFlow(t *testing.T) {
	f := newFixture(t)
	w := newTestWallet(t)

	token := f.login(t, w)
	assert.NotEmpty(t, token)
}

func TestAuth_BadSignatureRejected(t *testing.T) {
	f := newFixture(t)
	w := newTestWallet(t)

	resp := f.do(t, http.MethodPost, "/api/v1/auth/challenge", "", gin.H{"wallet": w.address()})
	require.Equal(t, http.StatusOK, resp.Code)
	ch := decode(t, resp)

	other := newTestWallet(t)
	resp = f.do(t, http.MethodPost, "/api/v1/auth/verify", "", gin.H{
		"wallet":    w.address(),
		"nonce":     ch["nonce"],
		"message":   ch["message"],
		"signature": other.sign([]byte(ch["message"].(string))),
	})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/v1/payrolls", "", gin.H{})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = f.do(t, http.MethodPost, "/api/v1/withdrawals", "", gin.H{})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAdminRoutes_RequireOrganization(t *testing.T) {
	f := newFixture(t)
	w := newTestWallet(t)
	token := f.login(t, w)

	resp := f.do(t, http.MethodPost, "/api/v1/payrolls", token, gin.H{})
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

// adminFixture creates an organization and logs its admin in.
func adminFixture(t *testing.T) (*fixture, *testWallet, string, string) {
	t.Helper()
	f := newFixture(t)
	admin := newTestWallet(t)

	resp := f.do(t, http.MethodPost, "/api/v1/organizations", "", gin.H{
		"name":         "Acme",
		"admin_wallet": admin.address(),
	})
	require.Equal(t, http.StatusCreated, resp.Code)
	orgID := decode(t, resp)["id"].(string)

	token := f.login(t, admin)
	return f, admin, token, orgID
}

func TestInviteAndRegister(t *testing.T) {
	f, _, adminToken, orgID := adminFixture(t)
	employee := newTestWallet(t)

	resp := f.do(t, http.MethodPost, "/api/v1/employees", adminToken, gin.H{
		"name":   "Alice",
		"salary": "5000",
		"wallet": employee.address(),
	})
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, "INVITED", decode(t, resp)["status"])

	empToken := f.login(t, employee)
	derivation := stealth.DerivationMessage(employee.address(), orgID)
	resp = f.do(t, http.MethodPost, "/api/v1/register", empToken, gin.H{
		"organization_id":      orgID,
		"derivation_signature": employee.sign(derivation),
	})
	require.Equal(t, http.StatusOK, resp.Code)
	body := decode(t, resp)
	assert.Equal(t, "ACTIVE", body["status"])
	assert.NotEmpty(t, body["stealth_wallet"])
}

func TestPayrollLifecycleOverHTTP(t *testing.T) {
	f, _, adminToken, orgID := adminFixture(t)

	// register one employee so the payroll has an eligible payment
	employee := newTestWallet(t)
	resp := f.do(t, http.MethodPost, "/api/v1/employees", adminToken, gin.H{
		"name":   "Alice",
		"salary": "5000",
		"wallet": employee.address(),
	})
	require.Equal(t, http.StatusCreated, resp.Code)

	empToken := f.login(t, employee)
	derivation := stealth.DerivationMessage(employee.address(), orgID)
	resp = f.do(t, http.MethodPost, "/api/v1/register", empToken, gin.H{
		"organization_id":      orgID,
		"derivation_signature": employee.sign(derivation),
	})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = f.do(t, http.MethodPost, "/api/v1/payrolls", adminToken, gin.H{})
	require.Equal(t, http.StatusCreated, resp.Code)
	payrollID := decode(t, resp)["id"].(string)

	resp = f.do(t, http.MethodPost, "/api/v1/payrolls/"+payrollID+"/prepare", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, float64(1), decode(t, resp)["payments"])

	resp = f.do(t, http.MethodPost, "/api/v1/payrolls/"+payrollID+"/execute", adminToken, gin.H{
		"treasury_wallet": "treasury",
	})
	require.Equal(t, http.StatusOK, resp.Code)
	results := decode(t, resp)["results"].([]any)
	require.Len(t, results, 1)
	first := results[0].(map[string]any)
	txSig := first["tx_signature"].(string)
	paymentID := first["payment_id"].(string)

	resp = f.do(t, http.MethodPost, "/api/v1/payrolls/"+payrollID+"/finalize", adminToken, gin.H{
		"outcomes": []gin.H{{"payment_id": paymentID, "tx_signature": txSig}},
	})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "COMPLETED", decode(t, resp)["status"])

	resp = f.do(t, http.MethodGet, "/api/v1/payrolls/"+payrollID, adminToken, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "COMPLETED", decode(t, resp)["status"])
}

func TestCreatePayroll_NoEligibleEmployees(t *testing.T) {
	f, _, adminToken, _ := adminFixture(t)
	employee := newTestWallet(t)

	// invited but never registered
	resp := f.do(t, http.MethodPost, "/api/v1/employees", adminToken, gin.H{
		"name":   "Bob",
		"salary": "4000",
		"wallet": employee.address(),
	})
	require.Equal(t, http.StatusCreated, resp.Code)

	resp = f.do(t, http.MethodPost, "/api/v1/payrolls", adminToken, gin.H{})
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Equal(t, float64(1), decode(t, resp)["pending_registration"])
}

func TestGetPayroll_ForeignOrganizationHidden(t *testing.T) {
	f, _, adminToken, orgID := adminFixture(t)

	// second organization with its own admin
	other := newTestWallet(t)
	resp := f.do(t, http.MethodPost, "/api/v1/organizations", "", gin.H{
		"name":         "Rival",
		"admin_wallet": other.address(),
	})
	require.Equal(t, http.StatusCreated, resp.Code)
	otherToken := f.login(t, other)

	// payroll in the first org
	employee := newTestWallet(t)
	resp = f.do(t, http.MethodPost, "/api/v1/employees", adminToken, gin.H{
		"name": "Alice", "salary": "5000", "wallet": employee.address(),
	})
	require.Equal(t, http.StatusCreated, resp.Code)
	empToken := f.login(t, employee)
	resp = f.do(t, http.MethodPost, "/api/v1/register", empToken, gin.H{
		"organization_id":      orgID,
		"derivation_signature": employee.sign(stealth.DerivationMessage(employee.address(), orgID)),
	})
	require.Equal(t, http.StatusOK, resp.Code)
	resp = f.do(t, http.MethodPost, "/api/v1/payrolls", adminToken, gin.H{})
	require.Equal(t, http.StatusCreated, resp.Code)
	payrollID := decode(t, resp)["id"].(string)

	resp = f.do(t, http.MethodGet, "/api/v1/payrolls/"+payrollID, otherToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestWithdrawOverHTTP(t *testing.T) {
	f, _, adminToken, orgID := adminFixture(t)
	employee := newTestWallet(t)

	resp := f.do(t, http.MethodPost, "/api/v1/employees", adminToken, gin.H{
		"name": "Alice", "salary": "5000", "wallet": employee.address(),
	})
	require.Equal(t, http.StatusCreated, resp.Code)

	empToken := f.login(t, employee)
	derivation := stealth.DerivationMessage(employee.address(), orgID)
	resp = f.do(t, http.MethodPost, "/api/v1/register", empToken, gin.H{
		"organization_id":      orgID,
		"derivation_signature": employee.sign(derivation),
	})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = f.do(t, http.MethodGet, "/api/v1/balance?organization_id="+orgID, empToken, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "1000", decode(t, resp)["balance"])

	resp = f.do(t, http.MethodPost, "/api/v1/withdrawals", empToken, gin.H{
		"organization_id":      orgID,
		"destination":          newTestWallet(t).address(),
		"amount":               "100",
		"derivation_signature": employee.sign(derivation),
	})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.NotEmpty(t, decode(t, resp)["tx_signature"])
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repos := repomanager.NewInMemoryRepositoryManager()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	authSvc := auth.NewService(repos.Challenges(), repos.Organizations(), logger,
		[]byte("secret"), time.Minute, time.Minute)

	h := &Handler{Auth: authSvc, Repos: repos, Audit: audit.NewLog(10, time.Hour), Logger: logger}
	router := NewRouter(h, ratelimit.New(2, time.Minute, 10))

	f := &fixture{router: router, repos: repos}
	w := newTestWallet(t)

	for i := 0; i < 2; i++ {
		resp := f.do(t, http.MethodPost, "/api/v1/auth/challenge", "", gin.H{"wallet": w.address()})
		require.Equal(t, http.StatusOK, resp.Code)
	}
	resp := f.do(t, http.MethodPost, "/api/v1/auth/challenge", "", gin.H{"wallet": w.address()})
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
}
