package models

import "fmt"

// Status values are closed enums. Every transition site matches
// exhaustively so an unknown status is unrepresentable past the
// persistence boundary.

type PayrollStatus string

const (
	PayrollPending    PayrollStatus = "PENDING"
	PayrollScheduled  PayrollStatus = "SCHEDULED"
	PayrollProcessing PayrollStatus = "PROCESSING"
	PayrollCompleted  PayrollStatus = "COMPLETED"
	PayrollFailed     PayrollStatus = "FAILED"
)

func (s PayrollStatus) Valid() bool {
	switch s {
	case PayrollPending, PayrollScheduled, PayrollProcessing, PayrollCompleted, PayrollFailed:
		return true
	}
	return false
}

// Terminal reports whether the payroll can never transition again.
func (s PayrollStatus) Terminal() bool {
	return s == PayrollCompleted || s == PayrollFailed
}

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "PENDING"
	PaymentProcessing PaymentStatus = "PROCESSING"
	PaymentCompleted  PaymentStatus = "COMPLETED"
	PaymentFailed     PaymentStatus = "FAILED"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentProcessing, PaymentCompleted, PaymentFailed:
		return true
	}
	return false
}

type EmployeeStatus string

const (
	// EmployeeInvited means the record exists but no stealth wallet has
	// been registered yet; the employee is not payroll-eligible.
	EmployeeInvited EmployeeStatus = "INVITED"
	EmployeeActive  EmployeeStatus = "ACTIVE"
	EmployeeRemoved EmployeeStatus = "REMOVED"
)

func (s EmployeeStatus) Valid() bool {
	switch s {
	case EmployeeInvited, EmployeeActive, EmployeeRemoved:
		return true
	}
	return false
}

// ParsePayrollStatus converts a stored string into the closed enum,
// rejecting anything outside it.
func ParsePayrollStatus(s string) (PayrollStatus, error) {
	st := PayrollStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown payroll status %q", s)
	}
	return st, nil
}

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	st := PaymentStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown payment status %q", s)
	}
	return st, nil
}

func ParseEmployeeStatus(s string) (EmployeeStatus, error) {
	st := EmployeeStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown employee status %q", s)
	}
	return st, nil
}
