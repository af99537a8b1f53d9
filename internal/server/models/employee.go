package models

import (
	"time"

	"github.com/veilpay/veilpay/internal/cryptox"
)

// Employee is one payroll recipient. Name, Salary and Wallet hold the
// AEAD-encrypted values; WalletHash is the salted one-way lookup digest of
// the personal wallet, and StealthWallet the base58 address of the derived
// receiving keypair (empty until the employee registers).
type Employee struct {
	ID             string
	OrganizationID string
	Name           *cryptox.EncryptedField
	Salary         *cryptox.EncryptedField
	Wallet         *cryptox.EncryptedField
	WalletHash     string
	StealthWallet  string
	Status         EmployeeStatus
	InvitedAt      time.Time
	RegisteredAt   *time.Time
}

// Eligible reports whether the employee can be included in a payroll run:
// active and with a registered stealth wallet.
func (e *Employee) Eligible() bool {
	return e.Status == EmployeeActive && e.StealthWallet != ""
}
