package challenges

import (
	"context"
	"time"

	"github.com/veilpay/veilpay/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, c *models.Challenge) error
	Get(ctx context.Context, wallet, nonce string) (*models.Challenge, error)

	// Consume atomically marks the challenge used if (and only if) it
	// exists, is unused, and has not expired at `now`. Exactly one of two
	// concurrent Consume calls for the same (wallet, nonce) succeeds.
	Consume(ctx context.Context, wallet, nonce string, now time.Time) (bool, error)

	// DeleteExpired sweeps challenges past their expiry.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
