package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/veilpay/veilpay/internal/server/migrations"
	"github.com/veilpay/veilpay/internal/server/repositories/challenges"
	"github.com/veilpay/veilpay/internal/server/repositories/employees"
	"github.com/veilpay/veilpay/internal/server/repositories/organizations"
	"github.com/veilpay/veilpay/internal/server/repositories/payrolls"
)

type PostgresRepositoryManager struct {
	db            *sql.DB
	organizations organizations.Repository
	employees     employees.Repository
	payrolls      payrolls.Repository
	challenges    challenges.Repository
}

func (m *PostgresRepositoryManager) Conn() *sql.DB {
	return m.db
}

func (m *PostgresRepositoryManager) Organizations() organizations.Repository {
	return m.organizations
}

func (m *PostgresRepositoryManager) Employees() employees.Repository {
	return m.employees
}

func (m *PostgresRepositoryManager) Payrolls() payrolls.Repository {
	return m.payrolls
}

func (m *PostgresRepositoryManager) Challenges() challenges.Repository {
	return m.challenges
}

func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.UpContext(ctx, m.db, "."); err != nil {
		return err
	}

	return nil
}

func NewPostgresRepositoryManager(dsn string) (RepositoryManager, error) {

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	m := &PostgresRepositoryManager{
		db:            db,
		organizations: organizations.NewPostgresRepository(db),
		employees:     employees.NewPostgresRepository(db),
		payrolls:      payrolls.NewPostgresRepository(db),
		challenges:    challenges.NewPostgresRepository(db),
	}

	if err := m.RunMigrations(context.Background()); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return m, nil
}
