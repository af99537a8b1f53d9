// Package audit records security-relevant engine events (auth attempts,
// payroll transitions, withdrawals) in a bounded in-memory buffer and
// ships batches to S3-compatible object storage for retention. Events
// carry identifiers only, never decrypted field values or signatures.
package audit

import (
	"context"
	"sync"
	"time"
)

// Event is one audit record.
type Event struct {
	At      time.Time `json:"at"`
	Action  string    `json:"action"`
	Actor   string    `json:"actor,omitempty"`
	Subject string    `json:"subject,omitempty"`
	Outcome string    `json:"outcome"`
}

// Log is a bounded, TTL-aware event buffer. One Log instance owns its
// storage; when the buffer is full the oldest events are dropped (they
// are expected to have been archived by then).
type Log struct {
	mu      sync.Mutex
	events  []Event
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

func NewLog(maxSize int, ttl time.Duration) *Log {
	return &Log{
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Record appends an event, evicting expired and overflowing entries.
func (l *Log) Record(action, actor, subject, outcome string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.evict()
	l.events = append(l.events, Event{
		At:      l.now(),
		Action:  action,
		Actor:   actor,
		Subject: subject,
		Outcome: outcome,
	})
}

// Events returns a snapshot of the live (unexpired) buffer.
func (l *Log) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.evict()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Drain returns the buffered events and empties the buffer; used by the
// archiver to ship a batch exactly once.
func (l *Log) Drain() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.evict()
	out := l.events
	l.events = nil
	return out
}

// evict drops expired entries, then trims from the front if the buffer
// still exceeds its bound. Caller holds the lock.
func (l *Log) evict() {
	cutoff := l.now().Add(-l.ttl)
	i := 0
	for i < len(l.events) && l.events[i].At.Before(cutoff) {
		i++
	}
	l.events = l.events[i:]

	if len(l.events) >= l.maxSize {
		l.events = l.events[len(l.events)-l.maxSize+1:]
	}
}

// Archiver ships event batches to long-term storage.
type Archiver interface {
	Archive(ctx context.Context, events []Event) error
}

// Flush drains the log into the archiver. On archive failure the events
// are put back so the next flush retries them.
func (l *Log) Flush(ctx context.Context, a Archiver) error {
	events := l.Drain()
	if len(events) == 0 {
		return nil
	}

	if err := a.Archive(ctx, events); err != nil {
		l.mu.Lock()
		l.events = append(events, l.events...)
		l.mu.Unlock()
		return err
	}
	return nil
}
