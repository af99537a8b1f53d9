package cryptox

import (
	"runtime"

	"github.com/veilpay/veilpay/internal/common"
)

// Secret is a caller-owned, scoped handle around key material. It replaces
// any ambient/global key cache: the holder passes it down explicitly and
// calls Clear as soon as the operation that needed it completes.
type Secret struct {
	b       []byte
	cleared bool
}

// NewSecret takes ownership of b. The caller must not retain b.
func NewSecret(b []byte) *Secret {
	return &Secret{b: b}
}

// Bytes returns the underlying key material, or nil after Clear.
func (s *Secret) Bytes() []byte {
	if s.cleared {
		return nil
	}
	return s.b
}

// Clear zeroizes the key material. Go's garbage collector gives no timing
// guarantee, so the overwrite happens eagerly here. Safe to call twice.
func (s *Secret) Clear() {
	if s.cleared {
		return
	}
	common.WipeByteArray(s.b)
	runtime.KeepAlive(s.b)
	s.b = nil
	s.cleared = true
}
