package challenges

import (
	"context"
	"sync"
	"time"

	"github.com/veilpay/veilpay/internal/common"
	"github.com/veilpay/veilpay/internal/server/models"
)

// InMemoryRepository is a mutex-guarded Repository used by tests. Consume
// performs the same check-and-mark under one lock, so it keeps the
// single-winner guarantee.
type InMemoryRepository struct {
	mu         sync.Mutex
	challenges map[string]*models.Challenge
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{challenges: make(map[string]*models.Challenge)}
}

func key(wallet, nonce string) string {
	return wallet + "|" + nonce
}

func (r *InMemoryRepository) Create(_ context.Context, c *models.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	r.challenges[key(c.Wallet, c.Nonce)] = c
	return nil
}

func (r *InMemoryRepository) Get(_ context.Context, wallet, nonce string) (*models.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.challenges[key(wallet, nonce)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return c, nil
}

func (r *InMemoryRepository) Consume(_ context.Context, wallet, nonce string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.challenges[key(wallet, nonce)]
	if !ok || c.UsedAt != nil || c.Expired(now) {
		return false, nil
	}

	used := now
	c.UsedAt = &used
	return true, nil
}

func (r *InMemoryRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for k, c := range r.challenges {
		if c.Expired(now) {
			delete(r.challenges, k)
			n++
		}
	}
	return n, nil
}
