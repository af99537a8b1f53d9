// Package repomanager wires the concrete repositories behind one handle so
// services depend on a single seam that tests can swap for in-memory
// implementations.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/veilpay/veilpay/internal/server/repositories/challenges"
	"github.com/veilpay/veilpay/internal/server/repositories/employees"
	"github.com/veilpay/veilpay/internal/server/repositories/organizations"
	"github.com/veilpay/veilpay/internal/server/repositories/payrolls"
)

type RepositoryManager interface {
	RunMigrations(context.Context) error
	Conn() *sql.DB
	Organizations() organizations.Repository
	Employees() employees.Repository
	Payrolls() payrolls.Repository
	Challenges() challenges.Repository
}
