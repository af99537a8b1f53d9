// Package withdrawals lets an employee move funds off their stealth wallet
// without linking it to their personal identity: the stealth keypair is
// re-derived from a fresh signature, signs the transfer, and is wiped.
package withdrawals

import (
	"context"
	"fmt"

	"github.com/veilpay/veilpay/internal/common"
	"github.com/veilpay/veilpay/internal/cryptox"
	"github.com/veilpay/veilpay/internal/logging"
	"github.com/veilpay/veilpay/internal/server/relay"
	"github.com/veilpay/veilpay/internal/server/repositories/repomanager"
	"github.com/veilpay/veilpay/internal/stealth"
)

type Service struct {
	repos      repomanager.RepositoryManager
	relay      relay.Client
	chain      relay.ChainReader
	logger     logging.Logger
	walletSalt []byte
	token      string
}

func NewService(repos repomanager.RepositoryManager, relayClient relay.Client, chain relay.ChainReader,
	logger logging.Logger, walletSalt []byte, token string) *Service {
	return &Service{
		repos:      repos,
		relay:      relayClient,
		chain:      chain,
		logger:     logger.With("component", "withdrawals"),
		walletSalt: walletSalt,
		token:      token,
	}
}

// Balance reports the stealth wallet balance for the employee matched by
// the authenticated wallet.
func (s *Service) Balance(ctx context.Context, orgID, personalWallet string) (string, error) {
	e, err := s.repos.Employees().GetByWalletHash(ctx, orgID, cryptox.HashWallet(personalWallet, s.walletSalt))
	if err != nil {
		return "", err
	}
	if e.StealthWallet == "" {
		return "", common.ErrInvalidState
	}
	return s.chain.Balance(ctx, e.StealthWallet, s.token)
}

// Withdraw re-derives the stealth keypair from the derivation signature,
// verifies it matches the on-record stealth wallet, and relays a private
// transfer to the destination. The private key lives only for this call.
func (s *Service) Withdraw(ctx context.Context, orgID, personalWallet, destination, amount string, derivationSignature []byte) (string, error) {
	e, err := s.repos.Employees().GetByWalletHash(ctx, orgID, cryptox.HashWallet(personalWallet, s.walletSalt))
	if err != nil {
		return "", common.ErrorUnauthorized
	}

	kp, err := stealth.DeriveKeypair(derivationSignature)
	if err != nil {
		return "", common.ErrorUnauthorized
	}
	defer kp.Zero()

	if kp.Address() != e.StealthWallet {
		// signature does not reproduce the registered wallet
		return "", common.ErrorUnauthorized
	}

	proofRef, err := s.relay.UploadProof(ctx, kp.Address(), s.token, amount, e.ID)
	if err != nil {
		return "", err
	}

	authorization, err := kp.Sign(fmt.Appendf(nil, "withdraw %s %s to %s", amount, s.token, destination))
	if err != nil {
		return "", err
	}

	res, err := s.relay.Transfer(ctx, &relay.TransferRequest{
		SenderWallet:    kp.Address(),
		RecipientWallet: destination,
		Token:           s.token,
		Amount:          amount,
		ProofRef:        proofRef,
		Signature:       authorization,
	})
	if err != nil {
		return "", err
	}
	if !res.Success {
		return "", fmt.Errorf("%w: %s", common.ErrTransfer, res.Err)
	}

	s.logger.Info(ctx, "withdrawal relayed", "employee_id", e.ID)
	return res.TxSignature, nil
}
