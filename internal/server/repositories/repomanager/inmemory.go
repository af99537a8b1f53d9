package repomanager

import (
	"context"
	"database/sql"

	"github.com/veilpay/veilpay/internal/server/repositories/challenges"
	"github.com/veilpay/veilpay/internal/server/repositories/employees"
	"github.com/veilpay/veilpay/internal/server/repositories/organizations"
	"github.com/veilpay/veilpay/internal/server/repositories/payrolls"
)

type InMemoryRepositoryManager struct {
	organizations organizations.Repository
	employees     employees.Repository
	payrolls      payrolls.Repository
	challenges    challenges.Repository
}

func NewInMemoryRepositoryManager() RepositoryManager {
	return &InMemoryRepositoryManager{
		organizations: organizations.NewInMemoryRepository(),
		employees:     employees.NewInMemoryRepository(),
		payrolls:      payrolls.NewInMemoryRepository(),
		challenges:    challenges.NewInMemoryRepository(),
	}
}

func (m *InMemoryRepositoryManager) Conn() *sql.DB {
	return nil
}

func (m *InMemoryRepositoryManager) RunMigrations(ctx context.Context) error {
	return nil
}

func (m *InMemoryRepositoryManager) Organizations() organizations.Repository {
	return m.organizations
}

func (m *InMemoryRepositoryManager) Employees() employees.Repository {
	return m.employees
}

func (m *InMemoryRepositoryManager) Payrolls() payrolls.Repository {
	return m.payrolls
}

func (m *InMemoryRepositoryManager) Challenges() challenges.Repository {
	return m.challenges
}
