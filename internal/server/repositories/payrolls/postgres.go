// Package payrolls provides PostgreSQL-backed persistence for payroll
// batches and their payments, including the conditional status updates the
// payroll state machine relies on.
package payrolls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/veilpay/veilpay/internal/common"
	"github.com/veilpay/veilpay/internal/cryptox"
	"github.com/veilpay/veilpay/internal/dbx"
	"github.com/veilpay/veilpay/internal/server/models"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreateWithPayments(ctx context.Context, p *models.Payroll, payments []*models.Payment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		query := `
			INSERT INTO payrolls (id, org_id, status, scheduled_for)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at
		`
		err := tx.QueryRowContext(ctx, query,
			p.ID, p.OrganizationID, string(p.Status), p.ScheduledFor,
		).Scan(&p.CreatedAt)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}

		for _, pm := range payments {
			if pm.ID == "" {
				pm.ID = uuid.NewString()
			}
			pm.PayrollID = p.ID
			query := `
				INSERT INTO payments (id, payroll_id, employee_id, amount_ct, amount_nonce, status)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING created_at
			`
			err := tx.QueryRowContext(ctx, query,
				pm.ID, pm.PayrollID, pm.EmployeeID,
				pm.Amount.Ciphertext, pm.Amount.Nonce, string(pm.Status),
			).Scan(&pm.CreatedAt)
			if err != nil {
				return fmt.Errorf("db error: %w", err)
			}
		}
		return nil
	})
}

func (r *PostgresRepository) GetPayroll(ctx context.Context, id string) (*models.Payroll, error) {
	query := `
		SELECT id, org_id, status, scheduled_for, created_at, completed_at
		FROM payrolls WHERE id = $1
	`
	p := &models.Payroll{}
	var status string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.OrganizationID, &status, &p.ScheduledFor, &p.CreatedAt, &p.CompletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	p.Status, err = models.ParsePayrollStatus(status)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PostgresRepository) ListByOrganization(ctx context.Context, orgID string) ([]*models.Payroll, error) {
	query := `
		SELECT id, org_id, status, scheduled_for, created_at, completed_at
		FROM payrolls WHERE org_id = $1 ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to select payrolls: %w", err)
	}
	defer rows.Close()

	var result []*models.Payroll
	for rows.Next() {
		p := &models.Payroll{}
		var status string
		if err := rows.Scan(&p.ID, &p.OrganizationID, &status, &p.ScheduledFor, &p.CreatedAt, &p.CompletedAt); err != nil {
			return nil, err
		}
		if p.Status, err = models.ParsePayrollStatus(status); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) UpdatePayrollStatus(ctx context.Context, id string, from []models.PayrollStatus, to models.PayrollStatus) error {
	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}

	query := `
		UPDATE payrolls
		SET status = $2,
		    completed_at = CASE WHEN $2 IN ('COMPLETED', 'FAILED') THEN now() ELSE completed_at END
		WHERE id = $1 AND status = ANY($3)
	`
	res, err := r.db.ExecContext(ctx, query, id, string(to), fromStrs)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrInvalidState
	}
	return nil
}

func (r *PostgresRepository) ListPayments(ctx context.Context, payrollID string) ([]*models.Payment, error) {
	query := `
		SELECT id, payroll_id, employee_id, amount_ct, amount_nonce, status,
		       COALESCE(tx_signature, ''), COALESCE(fail_reason, ''), created_at
		FROM payments WHERE payroll_id = $1 ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, payrollID)
	if err != nil {
		return nil, fmt.Errorf("failed to select payments: %w", err)
	}
	defer rows.Close()

	var result []*models.Payment
	for rows.Next() {
		pm, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, pm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) UpdatePayment(ctx context.Context, pm *models.Payment) error {
	query := `
		UPDATE payments
		SET status = $2, tx_signature = NULLIF($3, ''), fail_reason = NULLIF($4, '')
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, pm.ID, string(pm.Status), pm.TxSignature, pm.FailReason)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) GetPaymentByTxSignature(ctx context.Context, sig string) (*models.Payment, error) {
	query := `
		SELECT id, payroll_id, employee_id, amount_ct, amount_nonce, status,
		       COALESCE(tx_signature, ''), COALESCE(fail_reason, ''), created_at
		FROM payments WHERE tx_signature = $1
	`
	pm, err := scanPayment(r.db.QueryRowContext(ctx, query, sig))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, err
	}
	return pm, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPayment(row scannable) (*models.Payment, error) {
	pm := &models.Payment{Amount: &cryptox.EncryptedField{}}
	var status string
	err := row.Scan(
		&pm.ID, &pm.PayrollID, &pm.EmployeeID,
		&pm.Amount.Ciphertext, &pm.Amount.Nonce, &status,
		&pm.TxSignature, &pm.FailReason, &pm.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	pm.Status, err = models.ParsePaymentStatus(status)
	if err != nil {
		return nil, err
	}
	return pm, nil
}
