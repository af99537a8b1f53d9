package payrolls

import (
	"context"

	"github.com/veilpay/veilpay/internal/server/models"
)

type Repository interface {
	// CreateWithPayments writes the payroll and its payment rows in one
	// transaction.
	CreateWithPayments(ctx context.Context, p *models.Payroll, payments []*models.Payment) error

	GetPayroll(ctx context.Context, id string) (*models.Payroll, error)
	ListByOrganization(ctx context.Context, orgID string) ([]*models.Payroll, error)

	// UpdatePayrollStatus moves the payroll from one of the given states
	// to the target state atomically. If the stored status is not in
	// `from`, nothing is written and common.ErrInvalidState is returned.
	UpdatePayrollStatus(ctx context.Context, id string, from []models.PayrollStatus, to models.PayrollStatus) error

	ListPayments(ctx context.Context, payrollID string) ([]*models.Payment, error)
	UpdatePayment(ctx context.Context, p *models.Payment) error

	// GetPaymentByTxSignature looks up a payment by its on-chain
	// signature, used to keep finalize idempotent: one signature can
	// belong to at most one payment.
	GetPaymentByTxSignature(ctx context.Context, sig string) (*models.Payment, error)
}
