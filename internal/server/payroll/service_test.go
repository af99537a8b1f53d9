package payroll

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilpay/veilpay/internal/common"
	"github.com/veilpay/veilpay/internal/cryptox"
	"github.com/veilpay/veilpay/internal/logging"
	"github.com/veilpay/veilpay/internal/server/models"
	"github.com/veilpay/veilpay/internal/server/relay"
	"github.com/veilpay/veilpay/internal/server/repositories/repomanager"
	"github.com/veilpay/veilpay/internal/server/scheduler"
)

// fakeRelay succeeds by default and can be told to fail specific
// recipients.
type fakeRelay struct {
	mu          sync.Mutex
	failFor     map[string]bool
	transfers   int
	fixedSig    string
	nextSig     int
	uploadProof func() error
}

func (f *fakeRelay) UploadProof(_ context.Context, _, _, _, _ string) (string, error) {
	if f.uploadProof != nil {
		if err := f.uploadProof(); err != nil {
			return "", err
		}
	}
	return "proof-ref", nil
}

func (f *fakeRelay) Transfer(_ context.Context, req *relay.TransferRequest) (*relay.TransferResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers++
	if f.failFor[req.RecipientWallet] {
		return &relay.TransferResult{Success: false, Err: "insufficient balance"}, nil
	}
	if f.fixedSig != "" {
		return &relay.TransferResult{Success: true, TxSignature: f.fixedSig}, nil
	}
	f.nextSig++
	return &relay.TransferResult{Success: true, TxSignature: fmt.Sprintf("sig-%d", f.nextSig)}, nil
}

type fixture struct {
	svc       *Service
	repos     repomanager.RepositoryManager
	relay     *fakeRelay
	masterKey []byte
	orgID     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repos := repomanager.NewInMemoryRepositoryManager()
	fr := &fakeRelay{failFor: make(map[string]bool)}
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(io.Discard, nil)))
	masterKey := cryptox.GenerateKey()

	svc := NewService(repos, fr, logger, masterKey, "USDC", scheduler.Config{})

	orgKey := cryptox.GenerateKey()
	wrapped, err := cryptox.WrapOrgKey(orgKey, masterKey)
	require.NoError(t, err)
	org, err := repos.Organizations().Create(context.Background(), &models.Organization{
		Name:          "Acme",
		AdminWallet:   "admin-wallet",
		WrappedOrgKey: wrapped,
	})
	require.NoError(t, err)

	return &fixture{svc: svc, repos: repos, relay: fr, masterKey: masterKey, orgID: org.ID}
}

func (f *fixture) orgKey(t *testing.T) []byte {
	t.Helper()
	org, err := f.repos.Organizations().GetByID(context.Background(), f.orgID)
	require.NoError(t, err)
	key, err := cryptox.UnwrapOrgKey(org.WrappedOrgKey, f.masterKey)
	require.NoError(t, err)
	return key
}

func (f *fixture) addEmployee(t *testing.T, name, salary, stealthWallet string, status models.EmployeeStatus) *models.Employee {
	t.Helper()
	key := f.orgKey(t)

	nameCt, err := cryptox.EncryptField(name, key)
	require.NoError(t, err)
	salaryCt, err := cryptox.EncryptField(salary, key)
	require.NoError(t, err)
	walletCt, err := cryptox.EncryptField("personal-"+name, key)
	require.NoError(t, err)

	e, err := f.repos.Employees().Create(context.Background(), &models.Employee{
		OrganizationID: f.orgID,
		Name:           nameCt,
		Salary:         salaryCt,
		Wallet:         walletCt,
		WalletHash:     cryptox.HashWallet("personal-"+name, []byte("salt")),
		StealthWallet:  stealthWallet,
		Status:         status,
	})
	require.NoError(t, err)
	return e
}

func TestCreate_EligibilityReport(t *testing.T) {
	f := newFixture(t)
	f.addEmployee(t, "alice", "5000.00", "stealth-a", models.EmployeeActive)
	f.addEmployee(t, "bob", "4200.00", "stealth-b", models.EmployeeActive)
	f.addEmployee(t, "carol", "6100.00", "stealth-c", models.EmployeeActive)
	f.addEmployee(t, "dave", "3000.00", "", models.EmployeeInvited)

	p, report, err := f.svc.Create(context.Background(), f.orgID, nil)
	require.NoError(t, err)

	assert.Equal(t, models.PayrollPending, p.Status)
	assert.Equal(t, 3, report.Eligible)
	assert.Equal(t, 1, report.PendingRegistration)

	payments, err := f.repos.Payrolls().ListPayments(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 3)
}

func TestCreate_NoEligibleEmployees(t *testing.T) {
	f := newFixture(t)
	f.addEmployee(t, "dave", "3000.00", "", models.EmployeeInvited)
	f.addEmployee(t, "erin", "3000.00", "", models.EmployeeInvited)

	_, _, err := f.svc.Create(context.Background(), f.orgID, nil)

	var eligErr *common.EligibilityError
	require.ErrorAs(t, err, &eligErr)
	assert.Equal(t, 2, eligErr.PendingRegistration)
}

func TestCreate_FutureDateIsScheduled(t *testing.T) {
	f := newFixture(t)
	f.addEmployee(t, "alice", "5000.00", "stealth-a", models.EmployeeActive)

	future := time.Now().Add(24 * time.Hour)
	p, _, err := f.svc.Create(context.Background(), f.orgID, &future)
	require.NoError(t, err)
	assert.Equal(t, models.PayrollScheduled, p.Status)
}

func TestPrepare_DecryptsInstructions(t *testing.T) {
	f := newFixture(t)
	f.addEmployee(t, "alice", "5000.00", "stealth-a", models.EmployeeActive)
	f.addEmployee(t, "bob", "4200.00", "stealth-b", models.EmployeeActive)

	p, _, err := f.svc.Create(context.Background(), f.orgID, nil)
	require.NoError(t, err)

	instructions, err := f.svc.Prepare(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, instructions, 2)

	amounts := map[string]string{}
	for _, ins := range instructions {
		amounts[ins.RecipientWallet] = ins.Amount
	}
	assert.Equal(t, "5000.00", amounts["stealth-a"])
	assert.Equal(t, "4200.00", amounts["stealth-b"])

	got, err := f.repos.Payrolls().GetPayroll(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayrollProcessing, got.Status)
}

func TestPrepare_RejectsReentry(t *testing.T) {
	f := newFixture(t)
	f.addEmployee(t, "alice", "5000.00", "stealth-a", models.EmployeeActive)

	p, _, err := f.svc.Create(context.Background(), f.orgID, nil)
	require.NoError(t, err)

	_, err = f.svc.Prepare(context.Background(), p.ID)
	require.NoError(t, err)

	_, err = f.svc.Prepare(context.Background(), p.ID)
	assert.ErrorIs(t, err, common.ErrInvalidState)
}

func TestExecute_TransfersEachInstructionOnce(t *testing.T) {
	f := newFixture(t)
	f.addEmployee(t, "alice", "5000.00", "stealth-a", models.EmployeeActive)
	f.addEmployee(t, "bob", "4200.00", "stealth-b", models.EmployeeActive)

	p, _, err := f.svc.Create(context.Background(), f.orgID, nil)
	require.NoError(t, err)
	_, err = f.svc.Prepare(context.Background(), p.ID)
	require.NoError(t, err)

	outcomes, err := f.svc.Execute(context.Background(), p.ID, "treasury")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, 2, f.relay.transfers)
	for _, o := range outcomes {
		assert.Empty(t, o.Err)
		assert.NotEmpty(t, o.TxSignature)
	}
}

func TestExecute_RequiresProcessing(t *testing.T) {
	f := newFixture(t)
	f.addEmployee(t, "alice", "5000.00", "stealth-a", models.EmployeeActive)

	p, _, err := f.svc.Create(context.Background(), f.orgID, nil)
	require.NoError(t, err)

	_, err = f.svc.Execute(context.Background(), p.ID, "treasury")
	assert.ErrorIs(t, err, common.ErrInvalidState)
}

func TestExecute_FailureDoesNotAbortSiblings(t *testing.T) {
	f := newFixture(t)
	f.addEmployee(t, "alice", "5000.00", "stealth-a", models.EmployeeActive)
	f.addEmployee(t, "bob", "4200.00", "stealth-b", models.EmployeeActive)
	f.addEmployee(t, "carol", "6100.00", "stealth-c", models.EmployeeActive)
	f.relay.failFor["stealth-b"] = true

	p, _, err := f.svc.Create(context.Background(), f.orgID, nil)
	require.NoError(t, err)
	_, err = f.svc.Prepare(context.Background(), p.ID)
	require.NoError(t, err)

	outcomes, err := f.svc.Execute(context.Background(), p.ID, "treasury")
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	failed := 0
	for _, o := range outcomes {
		if o.Err != "" {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 3, f.relay.transfers)
}

func TestFinalize_PartialFailure(t *testing.T) {
	f := newFixture(t)
	f.addEmployee(t, "alice", "5000.00", "stealth-a", models.EmployeeActive)
	f.addEmployee(t, "bob", "4200.00", "stealth-b", models.EmployeeActive)
	f.addEmployee(t, "carol", "6100.00", "stealth-c", models.EmployeeActive)

	p, _, err := f.svc.Create(context.Background(), f.orgID, nil)
	require.NoError(t, err)
	instructions, err := f.svc.Prepare(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, instructions, 3)

	outcomes := []Outcome{
		{PaymentID: instructions[0].PaymentID, TxSignature: "sig-1"},
		{PaymentID: instructions[1].PaymentID, TxSignature: "sig-2"},
		{PaymentID: instructions[2].PaymentID, Err: "relay timeout"},
	}

	final, err := f.svc.Finalize(context.Background(), p.ID, outcomes)
	require.NoError(t, err)
	assert.Equal(t, models.PayrollFailed, final.Status)

	payments, err := f.repos.Payrolls().ListPayments(context.Background(), p.ID)
	require.NoError(t, err)

	statuses := map[models.PaymentStatus]int{}
	for _, pm := range payments {
		statuses[pm.Status]++
	}
	assert.Equal(t, 2, statuses[models.PaymentCompleted])
	assert.Equal(t, 1, statuses[models.PaymentFailed])
}

func TestFinalize_AllSuccess(t *testing.T) {
	f := newFixture(t)
	f.addEmployee(t, "alice", "5000.00", "stealth-a", models.EmployeeActive)
	f.addEmployee(t, "bob", "4200.00", "stealth-b", models.EmployeeActive)

	p, _, err := f.svc.Create(context.Background(), f.orgID, nil)
	require.NoError(t, err)
	instructions, err := f.svc.Prepare(context.Background(), p.ID)
	require.NoError(t, err)

	outcomes := []Outcome{
		{PaymentID: instructions[0].PaymentID, TxSignature: "sig-1"},
		{PaymentID: instructions[1].PaymentID, TxSignature: "sig-2"},
	}

	final, err := f.svc.Finalize(context.Background(), p.ID, outcomes)
	require.NoError(t, err)
	assert.Equal(t, models.PayrollCompleted, final.Status)
	assert.NotNil(t, final.CompletedAt)
}

func TestFinalize_DuplicateSignatureRejected(t *testing.T) {
	f := newFixture(t)
	f.addEmployee(t, "alice", "5000.00", "stealth-a", models.EmployeeActive)
	f.addEmployee(t, "bob", "4200.00", "stealth-b", models.EmployeeActive)

	p, _, err := f.svc.Create(context.Background(), f.orgID, nil)
	require.NoError(t, err)
	instructions, err := f.svc.Prepare(context.Background(), p.ID)
	require.NoError(t, err)

	// both outcomes claim the same on-chain signature
	outcomes := []Outcome{
		{PaymentID: instructions[0].PaymentID, TxSignature: "sig-dup"},
		{PaymentID: instructions[1].PaymentID, TxSignature: "sig-dup"},
	}

	final, err := f.svc.Finalize(context.Background(), p.ID, outcomes)
	require.NoError(t, err)
	assert.Equal(t, models.PayrollFailed, final.Status)

	payments, err := f.repos.Payrolls().ListPayments(context.Background(), p.ID)
	require.NoError(t, err)

	withSig := 0
	for _, pm := range payments {
		if pm.TxSignature == "sig-dup" {
			withSig++
		}
	}
	assert.Equal(t, 1, withSig, "one signature can belong to at most one payment")
}

func TestFinalize_RequiresProcessing(t *testing.T) {
	f := newFixture(t)
	f.addEmployee(t, "alice", "5000.00", "stealth-a", models.EmployeeActive)

	p, _, err := f.svc.Create(context.Background(), f.orgID, nil)
	require.NoError(t, err)

	_, err = f.svc.Finalize(context.Background(), p.ID, nil)
	assert.ErrorIs(t, err, common.ErrInvalidState)
}

func TestExecute_ErrorPathParksPayrollFailed(t *testing.T) {
	f := newFixture(t)
	f.addEmployee(t, "alice", "5000.00", "stealth-a", models.EmployeeActive)

	p, _, err := f.svc.Create(context.Background(), f.orgID, nil)
	require.NoError(t, err)
	_, err = f.svc.Prepare(context.Background(), p.ID)
	require.NoError(t, err)

	// corrupt the amount so Execute's instruction read fails
	payments, err := f.repos.Payrolls().ListPayments(context.Background(), p.ID)
	require.NoError(t, err)
	payments[0].Amount.Ciphertext[0] ^= 0x01

	_, err = f.svc.Execute(context.Background(), p.ID, "treasury")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrDecryption)

	got, err := f.repos.Payrolls().GetPayroll(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayrollFailed, got.Status, "payroll must not stay stuck in PROCESSING")
}

func TestExecute_UploadProofFailureRecordedPerPayment(t *testing.T) {
	f := newFixture(t)
	f.addEmployee(t, "alice", "5000.00", "stealth-a", models.EmployeeActive)
	f.relay.uploadProof = func() error { return errors.New("proof service down") }

	p, _, err := f.svc.Create(context.Background(), f.orgID, nil)
	require.NoError(t, err)
	_, err = f.svc.Prepare(context.Background(), p.ID)
	require.NoError(t, err)

	outcomes, err := f.svc.Execute(context.Background(), p.ID, "treasury")
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Contains(t, outcomes[0].Err, "proof service down")
}
