package payrolls

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veilpay/veilpay/internal/common"
	"github.com/veilpay/veilpay/internal/server/models"
)

// InMemoryRepository is a map-backed Repository used by tests. The status
// update keeps the same compare-and-swap semantics as the SQL version.
type InMemoryRepository struct {
	mu       sync.RWMutex
	payrolls map[string]*models.Payroll
	payments map[string]*models.Payment
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		payrolls: make(map[string]*models.Payroll),
		payments: make(map[string]*models.Payment),
	}
}

func (r *InMemoryRepository) CreateWithPayments(_ context.Context, p *models.Payroll, payments []*models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = time.Now()
	r.payrolls[p.ID] = p

	for i, pm := range payments {
		if pm.ID == "" {
			pm.ID = uuid.NewString()
		}
		pm.PayrollID = p.ID
		pm.CreatedAt = time.Now().Add(time.Duration(i) * time.Microsecond)
		r.payments[pm.ID] = pm
	}
	return nil
}

func (r *InMemoryRepository) GetPayroll(_ context.Context, id string) (*models.Payroll, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payrolls[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return p, nil
}

func (r *InMemoryRepository) ListByOrganization(_ context.Context, orgID string) ([]*models.Payroll, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*models.Payroll
	for _, p := range r.payrolls {
		if p.OrganizationID == orgID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (r *InMemoryRepository) UpdatePayrollStatus(_ context.Context, id string, from []models.PayrollStatus, to models.PayrollStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payrolls[id]
	if !ok {
		return common.ErrorNotFound
	}
	if !slices.Contains(from, p.Status) {
		return common.ErrInvalidState
	}

	p.Status = to
	if to.Terminal() {
		now := time.Now()
		p.CompletedAt = &now
	}
	return nil
}

func (r *InMemoryRepository) ListPayments(_ context.Context, payrollID string) ([]*models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*models.Payment
	for _, pm := range r.payments {
		if pm.PayrollID == payrollID {
			result = append(result, pm)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (r *InMemoryRepository) UpdatePayment(_ context.Context, pm *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[pm.ID]; !ok {
		return common.ErrorNotFound
	}
	r.payments[pm.ID] = pm
	return nil
}

func (r *InMemoryRepository) GetPaymentByTxSignature(_ context.Context, sig string) (*models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sig == "" {
		return nil, common.ErrorNotFound
	}
	for _, pm := range r.payments {
		if pm.TxSignature == sig {
			return pm, nil
		}
	}
	return nil, common.ErrorNotFound
}
