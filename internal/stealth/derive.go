// Package stealth derives per-employee receiving keypairs from a wallet
// signature. The derivation is deterministic: the same signature always
// reproduces the same keypair, so an employee can recreate their stealth
// wallet by re-signing the derivation message and no private key is ever
// persisted server-side.
package stealth

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/btcsuite/btcutil/base58"
	"golang.org/x/crypto/hkdf"

	"github.com/veilpay/veilpay/internal/common"
)

// Domain separation for the seed KDF. Changing this breaks every derived
// wallet, so it is versioned.
const kdfInfo = "veilpay/stealth-wallet/v1"

// Keypair is a derived stealth keypair. The private half exists only for
// the request that needs to sign a transfer; call Zero as soon as signing
// is done.
type Keypair struct {
	Public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// Address returns the base58-encoded public key, the employee's on-record
// receiving wallet.
func (k *Keypair) Address() string {
	return base58.Encode(k.Public)
}

// Sign signs msg with the stealth private key.
func (k *Keypair) Sign(msg []byte) ([]byte, error) {
	if k.private == nil {
		return nil, common.ErrorInternal
	}
	return ed25519.Sign(k.private, msg), nil
}

// Zero wipes the private half. The keypair can still report its address
// but can no longer sign.
func (k *Keypair) Zero() {
	common.WipeByteArray(k.private)
	k.private = nil
}

// DerivationMessage builds the canonical message the employee signs to
// derive (or later re-derive) their stealth wallet for one organization.
// Field order and encoding must never change: any mismatch between the
// derivation step and a later re-derivation breaks wallet recovery.
func DerivationMessage(walletAddress, organizationID string) []byte {
	return fmt.Appendf(nil,
		"VeilPay stealth wallet derivation\nwallet: %s\norganization: %s",
		walletAddress, organizationID)
}

// DeriveKeypair turns raw signature bytes into a stealth keypair. The
// signature is stretched through HKDF-SHA256 into a 32-byte seed and fed
// to the standard ed25519 key generation. No randomness, no clock: the
// function is pure.
//
// The signature is the sole secret input. It must never be logged, cached
// beyond the request that carries it, or handed to any other component.
func DeriveKeypair(signature []byte) (*Keypair, error) {
	if len(signature) == 0 {
		return nil, common.ErrorUnauthorized
	}

	r := hkdf.New(sha256.New, signature, nil, []byte(kdfInfo))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, err
	}
	defer common.WipeByteArray(seed)

	priv := ed25519.NewKeyFromSeed(seed)
	return &Keypair{
		Public:  priv.Public().(ed25519.PublicKey),
		private: priv,
	}, nil
}
