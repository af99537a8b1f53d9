package models

import (
	"time"

	"github.com/veilpay/veilpay/internal/cryptox"
)

// Payroll is one batch run. Its aggregate status is COMPLETED only when
// every payment completed; a single failed payment makes it FAILED at the
// batch level while partial success stays visible on the payments.
type Payroll struct {
	ID             string
	OrganizationID string
	Status         PayrollStatus
	ScheduledFor   *time.Time
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

// Payment is one transfer inside a payroll. Amount is encrypted under the
// organization key; TxSignature is set once the relay confirms the
// transfer and must never be attributable to two different payments.
type Payment struct {
	ID          string
	PayrollID   string
	EmployeeID  string
	Amount      *cryptox.EncryptedField
	Status      PaymentStatus
	TxSignature string
	FailReason  string
	CreatedAt   time.Time
}
