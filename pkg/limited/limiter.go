package limited

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// unknownRecipient is the bucket key used when the recipient number is blank.
// Blank recipients share one set of per-recipient budgets instead of failing.
const unknownRecipient = "<unknown>"

// waitPoll is the floor for sleeps inside WaitIfNeeded.
const waitPoll = 100 * time.Millisecond

type recipientState struct {
	lastMessage time.Time
	hourly      *slidingWindow
	daily       *slidingWindow
	burst       *tokenBucket
}

// RateLimiter enforces the combined admission constraints. One coarse mutex
// guards all state so CheckAndRecord is atomic with respect to concurrent
// callers.
type RateLimiter struct {
	mu         sync.Mutex
	cfg        Config
	clock      Clock
	global     *tokenBucket
	recipients map[string]*recipientState
}

// New creates a rate limiter from the given config.
func New(cfg Config) (*RateLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clock := RealClock{}
	return &RateLimiter{
		cfg:        cfg,
		clock:      clock,
		global:     newTokenBucket(float64(cfg.MaxPerMinute), float64(cfg.MaxPerMinute)/60.0, clock.Now()),
		recipients: make(map[string]*recipientState),
	}, nil
}

// SetClock replaces the time source (for testing).
func (l *RateLimiter) SetClock(clock Clock) {
	if clock == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clock = clock
}

// Check reports whether a message to recipient would be admitted right now.
// It consumes nothing: repeated checks without intervening Records yield the
// same answer.
func (l *RateLimiter) Check(recipient string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.checkLocked(normalizeRecipient(recipient), l.clock.Now())
}

// Record registers a sent message against recipient's budgets. Call it after
// the send succeeds; it never blocks or denies.
func (l *RateLimiter) Record(recipient string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recordLocked(normalizeRecipient(recipient), l.clock.Now())
}

// CheckAndRecord admits and records in one step. The check and the record
// happen under a single lock hold, so two concurrent callers cannot both be
// admitted through the same last slot of a budget.
func (l *RateLimiter) CheckAndRecord(recipient string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := normalizeRecipient(recipient)
	now := l.clock.Now()
	decision := l.checkLocked(key, now)
	if decision.Allowed {
		l.recordLocked(key, now)
	}
	return decision
}

// WaitIfNeeded blocks until a message to recipient would be admitted, up to
// maxWait. It returns the final decision; when the wait expires the decision
// is the last denial. It checks without recording, so the caller still calls
// Record (or uses CheckAndRecord) once the send goes out.
func (l *RateLimiter) WaitIfNeeded(ctx context.Context, recipient string, maxWait time.Duration) (Decision, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	deadline := l.clock.Now().Add(maxWait)
	for {
		decision := l.Check(recipient)
		if decision.Allowed {
			return decision, nil
		}
		remaining := deadline.Sub(l.clock.Now())
		if remaining <= 0 {
			return decision, nil
		}
		wait := decision.RetryAfter
		if wait <= 0 || wait > remaining {
			wait = remaining
		}
		if wait < waitPoll {
			wait = waitPoll
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return decision, ctx.Err()
		case <-timer.C:
		}
	}
}

// Status returns a snapshot of recipient's current budgets. Unknown
// recipients report zero counts and a full burst bucket.
func (l *RateLimiter) Status(recipient string) Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := normalizeRecipient(recipient)
	now := l.clock.Now()
	status := Status{
		PhoneNumber:     key,
		GlobalRemaining: l.global.available(now),
		HourlyLimit:     l.cfg.MaxPerHour,
		DailyLimit:      l.cfg.MaxPerDay,
		BurstTokens:     l.cfg.BurstAllowance,
		BurstLimit:      l.cfg.BurstAllowance,
	}
	if st, ok := l.recipients[key]; ok {
		status.HourlyCount = st.hourly.count(now)
		status.DailyCount = st.daily.count(now)
		status.BurstTokens = st.burst.available(now)
	}
	return status
}

// Reset clears one recipient's budgets. The global bucket is untouched.
func (l *RateLimiter) Reset(recipient string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.recipients, normalizeRecipient(recipient))
}

// ResetAll clears every recipient's budgets and restores the global bucket
// to full capacity.
func (l *RateLimiter) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recipients = make(map[string]*recipientState)
	l.global = newTokenBucket(float64(l.cfg.MaxPerMinute), float64(l.cfg.MaxPerMinute)/60.0, l.clock.Now())
}

// CleanupOldRecipients drops per-recipient state whose last message is older
// than maxAge, bounding memory on a long-running agent. It returns the number
// of recipients removed.
func (l *RateLimiter) CleanupOldRecipients(maxAge time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.clock.Now().Add(-maxAge)
	removed := 0
	for key, st := range l.recipients {
		if st.lastMessage.Before(cutoff) {
			delete(l.recipients, key)
			removed++
		}
	}
	return removed
}

// Config returns a copy of the limiter's configuration.
func (l *RateLimiter) Config() Config {
	return l.cfg
}

func (l *RateLimiter) String() string {
	return fmt.Sprintf("RateLimiter(global=%d/min hourly=%d daily=%d min_interval=%s burst=%d/%s)",
		l.cfg.MaxPerMinute, l.cfg.MaxPerHour, l.cfg.MaxPerDay, l.cfg.MinInterval,
		l.cfg.BurstAllowance, l.cfg.BurstWindow)
}

func normalizeRecipient(recipient string) string {
	trimmed := strings.TrimSpace(recipient)
	if trimmed == "" {
		return unknownRecipient
	}
	return trimmed
}

// state returns the per-recipient entry, creating it on first contact.
func (l *RateLimiter) state(key string, now time.Time) *recipientState {
	st, ok := l.recipients[key]
	if !ok {
		st = &recipientState{
			hourly: newSlidingWindow(time.Hour),
			daily:  newSlidingWindow(24 * time.Hour),
			burst:  newTokenBucket(float64(l.cfg.BurstAllowance), float64(l.cfg.BurstAllowance)/l.cfg.BurstWindow.Seconds(), now),
		}
		l.recipients[key] = st
	}
	return st
}

// checkLocked evaluates the constraints in fixed order and reports the first
// failure. Token buckets are peeked, never consumed, so a denial on a later
// constraint leaves earlier budgets intact.
func (l *RateLimiter) checkLocked(key string, now time.Time) Decision {
	st := l.state(key, now)

	if l.cfg.MinInterval > 0 && !st.lastMessage.IsZero() {
		if elapsed := now.Sub(st.lastMessage); elapsed < l.cfg.MinInterval {
			resetAt := st.lastMessage.Add(l.cfg.MinInterval)
			return l.denyLocked(st, now, ConstraintMinInterval, resetAt)
		}
	}

	if ok, wait := l.global.peek(1, now); !ok {
		return l.denyLocked(st, now, ConstraintGlobal, now.Add(wait))
	}

	if st.hourly.count(now) >= l.cfg.MaxPerHour {
		return l.denyLocked(st, now, ConstraintHourly, st.hourly.resetAt(now))
	}

	if st.daily.count(now) >= l.cfg.MaxPerDay {
		return l.denyLocked(st, now, ConstraintDaily, st.daily.resetAt(now))
	}

	if ok, wait := st.burst.peek(1, now); !ok {
		return l.denyLocked(st, now, ConstraintBurst, now.Add(wait))
	}

	return Decision{
		Allowed:   true,
		Remaining: l.remainingLocked(st, now),
		// Approximate: the true reset depends on which budget empties first.
		ResetAt: now.Add(time.Minute),
	}
}

func (l *RateLimiter) denyLocked(st *recipientState, now time.Time, constraint Constraint, resetAt time.Time) Decision {
	retryAfter := resetAt.Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return Decision{
		Allowed:    false,
		Remaining:  l.remainingLocked(st, now),
		ResetAt:    resetAt,
		RetryAfter: retryAfter,
		Constraint: constraint,
	}
}

// remainingLocked is the minimum headroom across the global, hourly, and
// daily budgets, clamped at zero.
func (l *RateLimiter) remainingLocked(st *recipientState, now time.Time) int {
	remaining := l.global.available(now)
	if hourly := l.cfg.MaxPerHour - st.hourly.count(now); hourly < remaining {
		remaining = hourly
	}
	if daily := l.cfg.MaxPerDay - st.daily.count(now); daily < remaining {
		remaining = daily
	}
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

func (l *RateLimiter) recordLocked(key string, now time.Time) {
	st := l.state(key, now)
	l.global.consume(1, now)
	st.hourly.record(now)
	st.daily.record(now)
	st.burst.consume(1, now)
	st.lastMessage = now
}
