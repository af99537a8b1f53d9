package models

import "time"

// Challenge is a single-use, time-boxed authentication challenge keyed by
// (wallet, nonce). UsedAt is set exactly once, atomically, on successful
// verification.
type Challenge struct {
	Wallet    string
	Nonce     string
	Message   string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Expired reports whether the challenge is past its expiry at now.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
