// Package cryptox implements the engine's envelope encryption: a two-tier
// AES-256-GCM hierarchy in which a process-wide master key wraps a random
// per-organization key, and the organization key encrypts every sensitive
// payroll field (name, salary, wallet address).
//
// Nonces are always generated inside the encrypting function; no API in
// this package accepts a caller-supplied nonce. Decryption fails closed:
// an AEAD verification failure surfaces as common.ErrDecryption and never
// yields partial plaintext.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	"github.com/veilpay/veilpay/internal/common"
)

// KeySize is the AES-256 key length used for both master and org keys.
const KeySize = 32

const nonceSize = 12

// EncryptedField is the at-rest form of a single sensitive value: the
// GCM ciphertext (tag included) plus the nonce it was sealed with.
type EncryptedField struct {
	Ciphertext []byte
	Nonce      []byte
}

// GenerateKey returns a fresh random organization key.
func GenerateKey() []byte {
	return common.GenerateRandByteArray(KeySize)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, common.ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func seal(plaintext, key []byte) (*EncryptedField, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return &EncryptedField{
		Ciphertext: aead.Seal(nil, nonce, plaintext, nil),
		Nonce:      nonce,
	}, nil
}

func open(field *EncryptedField, key []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, field.Nonce, field.Ciphertext, nil)
	if err != nil {
		// Deliberately collapse every open failure into one sentinel.
		return nil, common.ErrDecryption
	}
	return plaintext, nil
}

// WrapOrgKey encrypts an organization key under the master key. The result
// is the only form the org key is ever persisted in.
func WrapOrgKey(orgKey, masterKey []byte) (*EncryptedField, error) {
	return seal(orgKey, masterKey)
}

// UnwrapOrgKey recovers an organization key from its wrapped form. Returns
// common.ErrDecryption if the master key is wrong or the blob was tampered.
func UnwrapOrgKey(wrapped *EncryptedField, masterKey []byte) ([]byte, error) {
	return open(wrapped, masterKey)
}

// EncryptField encrypts one plaintext string under an organization key.
// Numeric fields (salary amounts) are passed as their canonical decimal
// string representation so that decryption round-trips exactly.
func EncryptField(plaintext string, orgKey []byte) (*EncryptedField, error) {
	return seal([]byte(plaintext), orgKey)
}

// DecryptField recovers one plaintext string. Fails closed with
// common.ErrDecryption on any tag mismatch.
func DecryptField(field *EncryptedField, orgKey []byte) (string, error) {
	plaintext, err := open(field, orgKey)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
