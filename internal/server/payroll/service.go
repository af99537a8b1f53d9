// Package payroll drives the payroll state machine: prepare decrypts the
// payment instructions, execute pushes them through the privacy scheduler
// and the external relay, finalize aggregates per-payment outcomes into
// the batch status.
package payroll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/veilpay/veilpay/internal/common"
	"github.com/veilpay/veilpay/internal/cryptox"
	"github.com/veilpay/veilpay/internal/logging"
	"github.com/veilpay/veilpay/internal/server/models"
	"github.com/veilpay/veilpay/internal/server/relay"
	"github.com/veilpay/veilpay/internal/server/repositories/repomanager"
	"github.com/veilpay/veilpay/internal/server/scheduler"
)

type Service struct {
	repos     repomanager.RepositoryManager
	relay     relay.Client
	logger    logging.Logger
	masterKey []byte
	token     string
	timing    scheduler.Config
}

func NewService(repos repomanager.RepositoryManager, relayClient relay.Client, logger logging.Logger,
	masterKey []byte, token string, timing scheduler.Config) *Service {
	return &Service{
		repos:     repos,
		relay:     relayClient,
		logger:    logger.With("component", "payroll"),
		masterKey: masterKey,
		token:     token,
		timing:    timing,
	}
}

// EligibilityReport tells the caller how many invited employees were
// skipped because they have not registered a stealth wallet.
type EligibilityReport struct {
	Eligible            int
	PendingRegistration int
}

// Instruction is one decrypted payment order, held only for the duration
// of the execute call that consumes it.
type Instruction struct {
	PaymentID       string
	RecipientWallet string
	Amount          string
}

// Outcome is the per-payment result of an execute run.
type Outcome struct {
	PaymentID   string
	TxSignature string
	Err         string
}

func (o *Outcome) ok() bool { return o.Err == "" && o.TxSignature != "" }

// orgKey unwraps the organization key into a scoped secret. The caller
// owns the handle and must Clear it when the operation completes.
func (s *Service) orgKey(ctx context.Context, orgID string) (*cryptox.Secret, error) {
	org, err := s.repos.Organizations().GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	key, err := cryptox.UnwrapOrgKey(org.WrappedOrgKey, s.masterKey)
	if err != nil {
		return nil, err
	}
	return cryptox.NewSecret(key), nil
}

// Create builds a payroll with one payment per eligible employee. The
// payment amount is the employee's salary re-encrypted under the org key
// with a fresh nonce. Ineligible employees are counted, not dropped
// silently; a batch with zero eligible employees is an EligibilityError.
func (s *Service) Create(ctx context.Context, orgID string, scheduledFor *time.Time) (*models.Payroll, *EligibilityReport, error) {
	all, err := s.repos.Employees().ListByOrganization(ctx, orgID)
	if err != nil {
		return nil, nil, err
	}

	report := &EligibilityReport{}
	var eligible []*models.Employee
	for _, e := range all {
		switch {
		case e.Eligible():
			report.Eligible++
			eligible = append(eligible, e)
		case e.Status != models.EmployeeRemoved:
			report.PendingRegistration++
		}
	}
	if len(eligible) == 0 {
		return nil, report, &common.EligibilityError{PendingRegistration: report.PendingRegistration}
	}

	key, err := s.orgKey(ctx, orgID)
	if err != nil {
		return nil, nil, err
	}
	defer key.Clear()

	payments := make([]*models.Payment, 0, len(eligible))
	for _, e := range eligible {
		salary, err := cryptox.DecryptField(e.Salary, key.Bytes())
		if err != nil {
			return nil, nil, err
		}
		amount, err := cryptox.EncryptField(salary, key.Bytes())
		if err != nil {
			return nil, nil, err
		}
		payments = append(payments, &models.Payment{
			EmployeeID: e.ID,
			Amount:     amount,
			Status:     models.PaymentPending,
		})
	}

	status := models.PayrollPending
	if scheduledFor != nil && scheduledFor.After(time.Now()) {
		status = models.PayrollScheduled
	}

	p := &models.Payroll{
		OrganizationID: orgID,
		Status:         status,
		ScheduledFor:   scheduledFor,
	}
	if err := s.repos.Payrolls().CreateWithPayments(ctx, p, payments); err != nil {
		return nil, nil, err
	}

	s.logger.Info(ctx, "payroll created",
		"payroll_id", p.ID, "payments", len(payments), "pending_registration", report.PendingRegistration)
	return p, report, nil
}

// Prepare transitions the payroll to PROCESSING and returns the decrypted
// instruction set for the caller that performs signing. Only valid from
// PENDING or SCHEDULED; the conditional status update makes a concurrent
// second prepare lose.
func (s *Service) Prepare(ctx context.Context, payrollID string) ([]Instruction, error) {
	p, err := s.repos.Payrolls().GetPayroll(ctx, payrollID)
	if err != nil {
		return nil, err
	}

	switch p.Status {
	case models.PayrollPending, models.PayrollScheduled:
		// allowed
	case models.PayrollProcessing, models.PayrollCompleted, models.PayrollFailed:
		return nil, common.ErrInvalidState
	default:
		return nil, common.ErrInvalidState
	}

	err = s.repos.Payrolls().UpdatePayrollStatus(ctx, payrollID,
		[]models.PayrollStatus{models.PayrollPending, models.PayrollScheduled}, models.PayrollProcessing)
	if err != nil {
		return nil, err
	}

	key, err := s.orgKey(ctx, p.OrganizationID)
	if err != nil {
		s.failBestEffort(ctx, payrollID)
		return nil, err
	}
	defer key.Clear()

	payments, err := s.repos.Payrolls().ListPayments(ctx, payrollID)
	if err != nil {
		s.failBestEffort(ctx, payrollID)
		return nil, err
	}

	instructions := make([]Instruction, 0, len(payments))
	for _, pm := range payments {
		e, err := s.repos.Employees().GetByID(ctx, pm.EmployeeID)
		if err != nil {
			s.failBestEffort(ctx, payrollID)
			return nil, err
		}
		amount, err := cryptox.DecryptField(pm.Amount, key.Bytes())
		if err != nil {
			s.failBestEffort(ctx, payrollID)
			return nil, err
		}
		instructions = append(instructions, Instruction{
			PaymentID:       pm.ID,
			RecipientWallet: e.StealthWallet,
			Amount:          amount,
		})
	}

	s.logger.Info(ctx, "payroll prepared", "payroll_id", payrollID, "instructions", len(instructions))
	return instructions, nil
}

// Execute submits one relay transfer per instruction, spaced and ordered
// by the privacy scheduler. The treasury wallet authorizes the batch up
// front; individual failures are recorded and never abort the batch. Even
// on a panic the payroll lands in FAILED, not a stuck PROCESSING.
func (s *Service) Execute(ctx context.Context, payrollID, treasuryWallet string) (outcomes []Outcome, err error) {
	p, err := s.repos.Payrolls().GetPayroll(ctx, payrollID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PayrollProcessing {
		return nil, common.ErrInvalidState
	}

	defer func() {
		if r := recover(); r != nil {
			s.failBestEffort(ctx, payrollID)
			err = fmt.Errorf("%w: execute panic: %v", common.ErrorInternal, r)
		}
	}()

	instructions, err := s.Instructions(ctx, payrollID)
	if err != nil {
		s.failBestEffort(ctx, payrollID)
		return nil, err
	}

	type run struct {
		ins Instruction
		sig string
	}
	runs := make([]*run, len(instructions))
	for i, ins := range instructions {
		runs[i] = &run{ins: ins}
	}

	scheduled := scheduler.Schedule(runs, s.timing)
	for _, res := range scheduler.Run(ctx, scheduled, func(ctx context.Context, r *run) error {
		proofRef, err := s.relay.UploadProof(ctx, treasuryWallet, s.token, r.ins.Amount, r.ins.PaymentID)
		if err != nil {
			return err
		}

		tr, err := s.relay.Transfer(ctx, &relay.TransferRequest{
			SenderWallet:    treasuryWallet,
			RecipientWallet: r.ins.RecipientWallet,
			Token:           s.token,
			Amount:          r.ins.Amount,
			ProofRef:        proofRef,
		})
		if err != nil {
			return err
		}
		if !tr.Success {
			return fmt.Errorf("%w: %s", common.ErrTransfer, tr.Err)
		}

		r.sig = tr.TxSignature
		return nil
	}) {
		o := Outcome{PaymentID: res.Item.ins.PaymentID, TxSignature: res.Item.sig}
		if res.Err != nil {
			o.Err = res.Err.Error()
		}
		outcomes = append(outcomes, o)
	}

	// items the scheduler declined after a cancel are recorded as failed
	done := make(map[string]bool, len(outcomes))
	for _, o := range outcomes {
		done[o.PaymentID] = true
	}
	for _, ins := range instructions {
		if !done[ins.PaymentID] {
			outcomes = append(outcomes, Outcome{PaymentID: ins.PaymentID, Err: "batch aborted before transfer"})
		}
	}

	s.logger.Info(ctx, "payroll executed", "payroll_id", payrollID, "transfers", len(outcomes))
	return outcomes, nil
}

// Instructions re-reads the decrypted instruction set for a payroll that
// is already PROCESSING (execute after a separate prepare call).
func (s *Service) Instructions(ctx context.Context, payrollID string) ([]Instruction, error) {
	p, err := s.repos.Payrolls().GetPayroll(ctx, payrollID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PayrollProcessing {
		return nil, common.ErrInvalidState
	}

	key, err := s.orgKey(ctx, p.OrganizationID)
	if err != nil {
		return nil, err
	}
	defer key.Clear()

	payments, err := s.repos.Payrolls().ListPayments(ctx, payrollID)
	if err != nil {
		return nil, err
	}

	instructions := make([]Instruction, 0, len(payments))
	for _, pm := range payments {
		e, err := s.repos.Employees().GetByID(ctx, pm.EmployeeID)
		if err != nil {
			return nil, err
		}
		amount, err := cryptox.DecryptField(pm.Amount, key.Bytes())
		if err != nil {
			return nil, err
		}
		instructions = append(instructions, Instruction{
			PaymentID:       pm.ID,
			RecipientWallet: e.StealthWallet,
			Amount:          amount,
		})
	}
	return instructions, nil
}

// Finalize records per-payment outcomes and settles the batch status:
// COMPLETED only if every payment completed, FAILED otherwise. Duplicate
// transaction signatures are rejected per payment, so one on-chain
// signature can never be attributed to two payments. Re-running finalize
// with the same outcomes is a no-op for already-settled payments.
func (s *Service) Finalize(ctx context.Context, payrollID string, outcomes []Outcome) (p *models.Payroll, err error) {
	p, err = s.repos.Payrolls().GetPayroll(ctx, payrollID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PayrollProcessing {
		return nil, common.ErrInvalidState
	}

	defer func() {
		if r := recover(); r != nil {
			s.failBestEffort(ctx, payrollID)
			err = fmt.Errorf("%w: finalize panic: %v", common.ErrorInternal, r)
		}
	}()

	byID := make(map[string]*models.Payment)
	payments, err := s.repos.Payrolls().ListPayments(ctx, payrollID)
	if err != nil {
		s.failBestEffort(ctx, payrollID)
		return nil, err
	}
	for _, pm := range payments {
		byID[pm.ID] = pm
	}

	for _, o := range outcomes {
		pm, ok := byID[o.PaymentID]
		if !ok {
			continue
		}
		if pm.Status == models.PaymentCompleted || pm.Status == models.PaymentFailed {
			// already settled by an earlier finalize
			continue
		}

		switch {
		case o.ok():
			if dup, err := s.repos.Payrolls().GetPaymentByTxSignature(ctx, o.TxSignature); err == nil && dup.ID != pm.ID {
				pm.Status = models.PaymentFailed
				pm.FailReason = "duplicate transaction signature"
			} else if err != nil && !errors.Is(err, common.ErrorNotFound) {
				s.failBestEffort(ctx, payrollID)
				return nil, err
			} else {
				pm.Status = models.PaymentCompleted
				pm.TxSignature = o.TxSignature
			}
		default:
			pm.Status = models.PaymentFailed
			pm.FailReason = o.Err
		}

		if err := s.repos.Payrolls().UpdatePayment(ctx, pm); err != nil {
			s.failBestEffort(ctx, payrollID)
			return nil, err
		}
	}

	final := models.PayrollCompleted
	for _, pm := range byID {
		if pm.Status != models.PaymentCompleted {
			final = models.PayrollFailed
			break
		}
	}

	err = s.repos.Payrolls().UpdatePayrollStatus(ctx, payrollID,
		[]models.PayrollStatus{models.PayrollProcessing}, final)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "payroll finalized", "payroll_id", payrollID, "status", string(final))
	return s.repos.Payrolls().GetPayroll(ctx, payrollID)
}

// failBestEffort parks the payroll in FAILED so an error path never leaves
// it stuck in PROCESSING. Errors here are logged and swallowed; the
// original failure is what the caller sees.
func (s *Service) failBestEffort(ctx context.Context, payrollID string) {
	err := s.repos.Payrolls().UpdatePayrollStatus(ctx, payrollID,
		[]models.PayrollStatus{models.PayrollPending, models.PayrollScheduled, models.PayrollProcessing},
		models.PayrollFailed)
	if err != nil && !errors.Is(err, common.ErrInvalidState) {
		s.logger.Error(ctx, "failed to park payroll in FAILED", "payroll_id", payrollID, "error", err.Error())
	}
}
