// Package challenges provides storage for single-use authentication
// challenges. The Postgres Consume relies on a conditional UPDATE so two
// concurrent verifications of the same nonce can never both succeed.
package challenges

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/veilpay/veilpay/internal/common"
	"github.com/veilpay/veilpay/internal/dbx"
	"github.com/veilpay/veilpay/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, c *models.Challenge) error {
	query := `
		INSERT INTO auth_challenges (wallet, nonce, message, expires_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.ExecContext(ctx, query, c.Wallet, c.Nonce, c.Message, c.ExpiresAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, wallet, nonce string) (*models.Challenge, error) {
	query := `
		SELECT wallet, nonce, message, expires_at, used_at, created_at
		FROM auth_challenges WHERE wallet = $1 AND nonce = $2
	`
	c := &models.Challenge{}
	err := r.db.QueryRowContext(ctx, query, wallet, nonce).Scan(
		&c.Wallet, &c.Nonce, &c.Message, &c.ExpiresAt, &c.UsedAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) Consume(ctx context.Context, wallet, nonce string, now time.Time) (bool, error) {
	query := `
		UPDATE auth_challenges
		SET used_at = $3
		WHERE wallet = $1 AND nonce = $2 AND used_at IS NULL AND expires_at > $3
	`
	res, err := r.db.ExecContext(ctx, query, wallet, nonce, now)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM auth_challenges WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}
