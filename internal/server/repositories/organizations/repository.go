package organizations

import (
	"context"

	"github.com/veilpay/veilpay/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, org *models.Organization) (*models.Organization, error)
	GetByID(ctx context.Context, id string) (*models.Organization, error)
	GetByAdminWallet(ctx context.Context, wallet string) (*models.Organization, error)
}
