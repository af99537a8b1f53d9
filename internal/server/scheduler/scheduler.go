// Package scheduler randomizes the timing and ordering of a payment batch
// so that one treasury outflow cannot be correlated with N inflows by
// watching the chain clock. Execution is strictly sequential: parallel
// transfers from the same treasury would reintroduce the timing signal the
// delays exist to hide.
package scheduler

import (
	"context"
	"iter"
	"math/rand/v2"
	"time"
)

// Config selects the delay window and the extra obfuscation knobs.
type Config struct {
	MinDelay     time.Duration
	MaxDelay     time.Duration
	ShuffleOrder bool
	AddJitter    bool
}

// Presets trading speed against unlinkability.
var (
	// Fast is for tests and low-value batches.
	Fast = Config{MinDelay: 500 * time.Millisecond, MaxDelay: 2 * time.Second}

	// Moderate is the production default.
	Moderate = Config{MinDelay: 5 * time.Second, MaxDelay: 30 * time.Second, ShuffleOrder: true, AddJitter: true}

	// MaximumPrivacy is for high-value batches where run time does not matter.
	MaximumPrivacy = Config{MinDelay: 30 * time.Second, MaxDelay: 3 * time.Minute, ShuffleOrder: true, AddJitter: true}
)

// Preset resolves a named preset, defaulting to Moderate.
func Preset(name string) Config {
	switch name {
	case "fast":
		return Fast
	case "maximum":
		return MaximumPrivacy
	default:
		return Moderate
	}
}

// Scheduled pairs an item with its randomized delay and the absolute time
// it is due, delays accumulated over the batch.
type Scheduled[T any] struct {
	Item        T
	Delay       time.Duration
	ScheduledAt time.Time
}

// Result is the per-item outcome of a batch run. A failing item never
// aborts the batch; aggregation policy belongs to the caller.
type Result[T any] struct {
	Item T
	Err  error
}

// Schedule assigns each item a delay drawn uniformly from
// [MinDelay, MaxDelay], perturbed by ±10% when AddJitter is set, and
// shuffles the batch first when ShuffleOrder is set (Fisher–Yates,
// uniform). Scheduled times accumulate from now.
func Schedule[T any](items []T, cfg Config) []Scheduled[T] {
	ordered := make([]T, len(items))
	copy(ordered, items)

	if cfg.ShuffleOrder {
		rand.Shuffle(len(ordered), func(i, j int) {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		})
	}

	out := make([]Scheduled[T], len(ordered))
	at := time.Now()
	for i, item := range ordered {
		delay := cfg.MinDelay
		if span := cfg.MaxDelay - cfg.MinDelay; span > 0 {
			delay += time.Duration(rand.Int64N(int64(span) + 1))
		}
		if cfg.AddJitter {
			// ±10%
			jitter := float64(delay) * (rand.Float64()*0.2 - 0.1)
			delay += time.Duration(jitter)
		}
		if delay < 0 {
			delay = 0
		}

		at = at.Add(delay)
		out[i] = Scheduled[T]{Item: item, Delay: delay, ScheduledAt: at}
	}
	return out
}

// Run returns a progress stream over the scheduled items. Ranging over it
// drives the batch: each step sleeps the item's delay (the first item
// starts immediately), invokes exec once, and yields the item's index and
// result as it completes. Execution is strictly sequential. Sleeps are
// cooperative: a cancelled context declines the remaining un-started items
// but never interrupts an in-flight transfer.
func Run[T any](ctx context.Context, items []Scheduled[T], exec func(ctx context.Context, item T) error) iter.Seq2[int, Result[T]] {
	return func(yield func(int, Result[T]) bool) {
		for i, s := range items {
			if i > 0 {
				select {
				case <-time.After(s.Delay):
				case <-ctx.Done():
					return
				}
			}

			err := exec(ctx, s.Item)
			if !yield(i, Result[T]{Item: s.Item, Err: err}) {
				return
			}

			if ctx.Err() != nil {
				return
			}
		}
	}
}
