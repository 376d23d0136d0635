// Package ratelimit provides the token bucket used to bound per-connection
// inbound signaling traffic.
package ratelimit

import "time"

// Clock abstracts time.Now so bucket behavior is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Bucket is a token bucket refilling at rate tokens/second up to capacity.
//
// It is not safe for concurrent use; each websocket read loop owns exactly
// one bucket.
type Bucket struct {
	clock    Clock
	rate     float64
	capacity float64
	tokens   float64
	last     time.Time
}

// NewBucket returns a bucket that starts full. A rate <= 0 disables limiting
// (Allow always succeeds).
func NewBucket(clock Clock, rate, capacity float64) *Bucket {
	if clock == nil {
		clock = RealClock{}
	}
	if capacity < rate {
		capacity = rate
	}
	return &Bucket{
		clock:    clock,
		rate:     rate,
		capacity: capacity,
		tokens:   capacity,
		last:     clock.Now(),
	}
}

// Allow consumes one token if available.
func (b *Bucket) Allow() bool {
	if b.rate <= 0 {
		return true
	}

	now := b.clock.Now()
	if now.After(b.last) {
		b.tokens += now.Sub(b.last).Seconds() * b.rate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
	}
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
