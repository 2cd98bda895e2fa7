package limited

import "time"

// tokenBucket implements the classic continuous-refill bucket. It carries no
// lock of its own; the owning RateLimiter serializes access.
type tokenBucket struct {
	capacity   float64
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time
}

func newTokenBucket(capacity, refillRate float64, now time.Time) *tokenBucket {
	return &tokenBucket{
		capacity:   capacity,
		refillRate: refillRate,
		tokens:     capacity,
		lastRefill: now,
	}
}

// refill advances the bucket to now. Elapsed time only ever adds tokens, so
// calling this from a read path does not change any admission outcome.
func (b *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = min(b.capacity, b.tokens+elapsed*b.refillRate)
	b.lastRefill = now
}

// peek reports whether n tokens are available without consuming them.
// When they are not, it returns the wait until they would be.
func (b *tokenBucket) peek(n float64, now time.Time) (bool, time.Duration) {
	b.refill(now)
	if b.tokens >= n {
		return true, 0
	}
	return false, b.waitFor(n)
}

// consume takes n tokens if available.
func (b *tokenBucket) consume(n float64, now time.Time) (bool, time.Duration) {
	b.refill(now)
	if b.tokens >= n {
		b.tokens -= n
		return true, 0
	}
	return false, b.waitFor(n)
}

// waitFor computes how long until n tokens will have accumulated. Callers
// must have refilled first.
func (b *tokenBucket) waitFor(n float64) time.Duration {
	if b.refillRate <= 0 {
		return 0
	}
	needed := n - b.tokens
	return time.Duration(needed / b.refillRate * float64(time.Second))
}

// available returns the whole tokens currently in the bucket.
func (b *tokenBucket) available(now time.Time) int {
	b.refill(now)
	return int(b.tokens)
}
