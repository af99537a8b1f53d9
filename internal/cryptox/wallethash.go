package cryptox

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// HashWallet computes a deterministic, salted one-way digest of a personal
// wallet address: HMAC-SHA256 keyed with the process-wide salt, hex encoded.
// The digest serves strictly as an equality-lookup key so an employee can be
// matched to a payroll record without the address itself ever being stored.
func HashWallet(address string, salt []byte) string {
	mac := hmac.New(sha256.New, salt)
	mac.Write([]byte(address))
	return hex.EncodeToString(mac.Sum(nil))
}
