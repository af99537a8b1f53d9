package employees

import (
	"context"

	"github.com/veilpay/veilpay/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, e *models.Employee) (*models.Employee, error)
	GetByID(ctx context.Context, id string) (*models.Employee, error)
	GetByWalletHash(ctx context.Context, orgID, walletHash string) (*models.Employee, error)
	ListByOrganization(ctx context.Context, orgID string) ([]*models.Employee, error)
	Update(ctx context.Context, e *models.Employee) error
}
