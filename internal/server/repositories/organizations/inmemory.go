package organizations

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veilpay/veilpay/internal/common"
	"github.com/veilpay/veilpay/internal/server/models"
)

// InMemoryRepository is a map-backed Repository used by tests.
type InMemoryRepository struct {
	mu   sync.RWMutex
	orgs map[string]*models.Organization
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{orgs: make(map[string]*models.Organization)}
}

func (r *InMemoryRepository) Create(_ context.Context, org *models.Organization) (*models.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	org.CreatedAt = time.Now()
	r.orgs[org.ID] = org
	return org, nil
}

func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*models.Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	org, ok := r.orgs[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return org, nil
}

func (r *InMemoryRepository) GetByAdminWallet(_ context.Context, wallet string) (*models.Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, org := range r.orgs {
		if org.AdminWallet == wallet {
			return org, nil
		}
	}
	return nil, common.ErrorNotFound
}
