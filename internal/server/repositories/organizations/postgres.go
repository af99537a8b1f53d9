// Package organizations provides PostgreSQL-backed persistence for
// organization records and their wrapped encryption keys.
package organizations

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

// PostgresRepository implements organization storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, org *models.Organization) (*models.Organization, error) {
	if org.ID == "" {
		org.ID = uuid.NewString()
	}

	query := `
		INSERT INTO organizations (id, name, admin_wallet, wrapped_org_key, org_key_nonce)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		org.ID, org.Name, org.AdminWallet, org.WrappedOrgKey.Ciphertext, org.WrappedOrgKey.Nonce,
	).Scan(&org.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return org, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	query := `
		SELECT id, name, admin_wallet, wrapped_org_key, org_key_nonce, created_at
		FROM organizations WHERE id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByAdminWallet(ctx context.Context, wallet string) (*models.Organization, error) {
	query := `
		SELECT id, name, admin_wallet, wrapped_org_key, org_key_nonce, created_at
		FROM organizations WHERE admin_wallet = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, wallet))
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Organization, error) {
	org := &models.Organization{WrappedOrgKey: &cryptox.EncryptedField{}}
	err := row.Scan(&org.ID, &org.Name, &org.AdminWallet,
		&org.WrappedOrgKey.Ciphertext, &org.WrappedOrgKey.Nonce, &org.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return org, nil
}
