package models

import (
	"time"

	"github.com/veilpay/veilpay/internal/cryptox"
)

// Organization is an employer. WrappedOrgKey is the organization key in its
// master-key-encrypted form; the plaintext key never touches the store.
type Organization struct {
	ID            string
	Name          string
	AdminWallet   string
	WrappedOrgKey *cryptox.EncryptedField
	CreatedAt     time.Time
}
