// Package employees provides PostgreSQL-backed persistence for employee
// records. All identifying fields arrive already encrypted; this layer
// never sees plaintext.
package employees

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
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const employeeColumns = `
	id, org_id, name_ct, name_nonce, salary_ct, salary_nonce,
	wallet_ct, wallet_nonce, wallet_hash, stealth_wallet, status,
	invited_at, registered_at`

func (r *PostgresRepository) Create(ctx context.Context, e *models.Employee) (*models.Employee, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	query := `
		INSERT INTO employees (id, org_id, name_ct, name_nonce, salary_ct, salary_nonce,
			wallet_ct, wallet_nonce, wallet_hash, stealth_wallet, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING invited_at
	`
	err := r.db.QueryRowContext(ctx, query,
		e.ID, e.OrganizationID,
		e.Name.Ciphertext, e.Name.Nonce,
		e.Salary.Ciphertext, e.Salary.Nonce,
		e.Wallet.Ciphertext, e.Wallet.Nonce,
		e.WalletHash, e.StealthWallet, string(e.Status),
	).Scan(&e.InvitedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return e, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE id = $1`
	return scanEmployee(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByWalletHash(ctx context.Context, orgID, walletHash string) (*models.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE org_id = $1 AND wallet_hash = $2`
	return scanEmployee(r.db.QueryRowContext(ctx, query, orgID, walletHash))
}

func (r *PostgresRepository) ListByOrganization(ctx context.Context, orgID string) ([]*models.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE org_id = $1 ORDER BY invited_at`
	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to select employees: %w", err)
	}
	defer rows.Close()

	var result []*models.Employee
	for rows.Next() {
		e, err := scanEmployeeRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Update(ctx context.Context, e *models.Employee) error {
	query := `
		UPDATE employees
		SET stealth_wallet = $2, status = $3, registered_at = $4
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, e.ID, e.StealthWallet, string(e.Status), e.RegisteredAt)
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

type scannable interface {
	Scan(dest ...any) error
}

func scanEmployeeRow(row scannable) (*models.Employee, error) {
	e := &models.Employee{
		Name:   &cryptox.EncryptedField{},
		Salary: &cryptox.EncryptedField{},
		Wallet: &cryptox.EncryptedField{},
	}
	var status string
	err := row.Scan(
		&e.ID, &e.OrganizationID,
		&e.Name.Ciphertext, &e.Name.Nonce,
		&e.Salary.Ciphertext, &e.Salary.Nonce,
		&e.Wallet.Ciphertext, &e.Wallet.Nonce,
		&e.WalletHash, &e.StealthWallet, &status,
		&e.InvitedAt, &e.RegisteredAt,
	)
	if err != nil {
		return nil, err
	}

	e.Status, err = models.ParseEmployeeStatus(status)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func scanEmployee(row *sql.Row) (*models.Employee, error) {
	e, err := scanEmployeeRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return e, nil
}
