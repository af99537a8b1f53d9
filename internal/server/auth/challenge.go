// Package auth implements nonce-based challenge/response authentication:
// single-use, time-boxed challenges signed by the caller's wallet key, and
// the JWT session credentials issued on success.
package auth

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcutil/base58"

	"github.com/veilpay/veilpay/internal/common"
	"github.com/veilpay/veilpay/internal/logging"
	"github.com/veilpay/veilpay/internal/server/models"
	"github.com/veilpay/veilpay/internal/server/repositories/challenges"
	"github.com/veilpay/veilpay/internal/server/repositories/organizations"
)

// challengeDomain is baked into every challenge message so a signature
// produced for this service cannot be replayed against another site.
const challengeDomain = "veilpay.app"

type Service struct {
	repo          challenges.Repository
	orgRepo       organizations.Repository
	logger        logging.Logger
	jwtSecret     []byte
	tokenValidity time.Duration
	challengeTTL  time.Duration
	now           func() time.Time
}

func NewService(repo challenges.Repository, orgRepo organizations.Repository, logger logging.Logger,
	jwtSecret []byte, tokenValidity, challengeTTL time.Duration) *Service {
	return &Service{
		repo:          repo,
		orgRepo:       orgRepo,
		logger:        logger.With("component", "auth"),
		jwtSecret:     jwtSecret,
		tokenValidity: tokenValidity,
		challengeTTL:  challengeTTL,
		now:           time.Now,
	}
}

// GenerateChallenge issues a fresh challenge for the wallet: a canonical,
// human-readable message embedding the domain, the wallet address, a random
// nonce and the absolute expiry.
func (s *Service) GenerateChallenge(ctx context.Context, wallet string) (*models.Challenge, error) {
	if _, err := decodeWallet(wallet); err != nil {
		return nil, common.ErrorUnauthorized
	}

	nonce, err := common.MakeRandHexString(16)
	if err != nil {
		return nil, err
	}

	expiresAt := s.now().Add(s.challengeTTL).UTC()
	message := fmt.Sprintf(
		"%s wants you to sign in with your wallet:\n%s\n\nNonce: %s\nExpires: %s",
		challengeDomain, wallet, nonce, expiresAt.Format(time.RFC3339))

	c := &models.Challenge{
		Wallet:    wallet,
		Nonce:     nonce,
		Message:   message,
		ExpiresAt: expiresAt,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "challenge issued", "wallet", wallet)
	return c, nil
}

// VerifySignature checks a returned signature against the stored challenge.
// The challenge is consumed atomically before the signature check, so it is
// burned whether or not verification succeeds and a concurrent replay of
// the same nonce cannot also win. Every failure is a bare false: missing,
// used, expired, and bad-signature cases are indistinguishable to the
// caller.
func (s *Service) VerifySignature(ctx context.Context, wallet string, signature []byte, message, nonce string) bool {
	pub, err := decodeWallet(wallet)
	if err != nil {
		return false
	}

	stored, err := s.repo.Get(ctx, wallet, nonce)
	if err != nil {
		return false
	}
	if stored.Message != message {
		return false
	}

	ok, err := s.repo.Consume(ctx, wallet, nonce, s.now())
	if err != nil || !ok {
		return false
	}

	return ed25519.Verify(pub, []byte(message), signature)
}

// CreateToken issues the session credential for an authenticated wallet.
// If the wallet administers an organization, its ID is bound into the
// claims.
func (s *Service) CreateToken(ctx context.Context, wallet string) (string, error) {
	orgID := ""
	org, err := s.orgRepo.GetByAdminWallet(ctx, wallet)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return "", err
	}
	if org != nil {
		orgID = org.ID
	}

	return GenerateToken(wallet, orgID, s.jwtSecret, s.tokenValidity)
}

// VerifyToken validates a session credential on each request.
func (s *Service) VerifyToken(token string) (*Claims, error) {
	return ParseToken(token, s.jwtSecret)
}

// SweepExpired removes challenges past their expiry.
func (s *Service) SweepExpired(ctx context.Context) error {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Debug(ctx, "expired challenges swept", "count", n)
	}
	return nil
}

// decodeWallet turns a base58 wallet address into its ed25519 public key.
func decodeWallet(wallet string) (ed25519.PublicKey, error) {
	b := base58.Decode(wallet)
	if len(b) != ed25519.PublicKeySize {
		return nil, common.ErrorUnauthorized
	}
	return ed25519.PublicKey(b), nil
}
