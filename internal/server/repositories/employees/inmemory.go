package employees

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veilpay/veilpay/internal/common"
	"github.com/veilpay/veilpay/internal/server/models"
)

// InMemoryRepository is a map-backed Repository used by tests.
type InMemoryRepository struct {
	mu        sync.RWMutex
	employees map[string]*models.Employee
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{employees: make(map[string]*models.Employee)}
}

func (r *InMemoryRepository) Create(_ context.Context, e *models.Employee) (*models.Employee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.InvitedAt.IsZero() {
		e.InvitedAt = time.Now()
	}
	r.employees[e.ID] = e
	return e, nil
}

func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*models.Employee, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.employees[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return e, nil
}

func (r *InMemoryRepository) GetByWalletHash(_ context.Context, orgID, walletHash string) (*models.Employee, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.employees {
		if e.OrganizationID == orgID && e.WalletHash == walletHash {
			return e, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *InMemoryRepository) ListByOrganization(_ context.Context, orgID string) ([]*models.Employee, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*models.Employee
	for _, e := range r.employees {
		if e.OrganizationID == orgID {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].InvitedAt.Before(result[j].InvitedAt) })
	return result, nil
}

func (r *InMemoryRepository) Update(_ context.Context, e *models.Employee) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.employees[e.ID]; !ok {
		return common.ErrorNotFound
	}
	r.employees[e.ID] = e
	return nil
}
