// Package roster manages organizations and their employee records:
// organization bootstrap (key generation and wrapping), employee invites
// with envelope-encrypted fields, and stealth wallet registration.
package roster

import (
	"context"
	"time"

	"github.com/veilpay/veilpay/internal/common"
	"github.com/veilpay/veilpay/internal/cryptox"
	"github.com/veilpay/veilpay/internal/logging"
	"github.com/veilpay/veilpay/internal/server/models"
	"github.com/veilpay/veilpay/internal/server/repositories/repomanager"
	"github.com/veilpay/veilpay/internal/stealth"
)

type Service struct {
	repos      repomanager.RepositoryManager
	logger     logging.Logger
	masterKey  []byte
	walletSalt []byte
}

func NewService(repos repomanager.RepositoryManager, logger logging.Logger, masterKey, walletSalt []byte) *Service {
	return &Service{
		repos:      repos,
		logger:     logger.With("component", "roster"),
		masterKey:  masterKey,
		walletSalt: walletSalt,
	}
}

// CreateOrganization generates the organization key and persists only its
// master-key-wrapped form.
func (s *Service) CreateOrganization(ctx context.Context, name, adminWallet string) (*models.Organization, error) {
	orgKey := cryptox.NewSecret(cryptox.GenerateKey())
	defer orgKey.Clear()

	wrapped, err := cryptox.WrapOrgKey(orgKey.Bytes(), s.masterKey)
	if err != nil {
		return nil, err
	}

	org, err := s.repos.Organizations().Create(ctx, &models.Organization{
		Name:          name,
		AdminWallet:   adminWallet,
		WrappedOrgKey: wrapped,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "organization created", "org_id", org.ID)
	return org, nil
}

// Invite creates an employee record with every identifying field encrypted
// under the organization key. The personal wallet is additionally hashed
// into the lookup digest; the plaintext address is never stored outside
// its encrypted field.
func (s *Service) Invite(ctx context.Context, orgID, name, salary, personalWallet string) (*models.Employee, error) {
	key, err := s.orgKey(ctx, orgID)
	if err != nil {
		return nil, err
	}
	defer key.Clear()

	nameCt, err := cryptox.EncryptField(name, key.Bytes())
	if err != nil {
		return nil, err
	}
	salaryCt, err := cryptox.EncryptField(salary, key.Bytes())
	if err != nil {
		return nil, err
	}
	walletCt, err := cryptox.EncryptField(personalWallet, key.Bytes())
	if err != nil {
		return nil, err
	}

	e, err := s.repos.Employees().Create(ctx, &models.Employee{
		OrganizationID: orgID,
		Name:           nameCt,
		Salary:         salaryCt,
		Wallet:         walletCt,
		WalletHash:     cryptox.HashWallet(personalWallet, s.walletSalt),
		Status:         models.EmployeeInvited,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "employee invited", "org_id", orgID, "employee_id", e.ID)
	return e, nil
}

// AcceptInvite matches the authenticated wallet to its invite via the
// wallet hash, derives the stealth keypair from the provided derivation
// signature, and activates the employee with the stealth address on
// record. The signature is used once and never retained.
func (s *Service) AcceptInvite(ctx context.Context, orgID, personalWallet string, derivationSignature []byte) (*models.Employee, error) {
	e, err := s.repos.Employees().GetByWalletHash(ctx, orgID, cryptox.HashWallet(personalWallet, s.walletSalt))
	if err != nil {
		return nil, err
	}
	if e.Status != models.EmployeeInvited {
		return nil, common.ErrInvalidState
	}

	kp, err := stealth.DeriveKeypair(derivationSignature)
	if err != nil {
		return nil, err
	}
	defer kp.Zero()

	now := time.Now()
	e.StealthWallet = kp.Address()
	e.Status = models.EmployeeActive
	e.RegisteredAt = &now

	if err := s.repos.Employees().Update(ctx, e); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "employee registered stealth wallet", "employee_id", e.ID)
	return e, nil
}

func (s *Service) orgKey(ctx context.Context, orgID string) (*cryptox.Secret, error) {
	org, err := s.repos.Organizations().GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	key, err := cryptox.UnwrapOrgKey(org.WrappedOrgKey, s.masterKey)
	if err != nil {
		return nil, err
	}
	return cryptox.NewSecret(key), nil
}
