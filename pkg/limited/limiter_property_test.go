package limited

import (
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// For any interleaving of consumes and clock advances, bucket tokens stay
// within [0, capacity].
func TestTokenBucket_Property_TokensStayInBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 100).Draw(t, "capacity")
		rate := rapid.Float64Range(0.01, 10).Draw(t, "rate")
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		bucket := newTokenBucket(float64(capacity), rate, now)

		steps := rapid.IntRange(1, 50).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			if rapid.Bool().Draw(t, "consume") {
				bucket.consume(1, now)
			} else {
				now = now.Add(time.Duration(rapid.IntRange(0, 3600).Draw(t, "advance")) * time.Second)
				bucket.refill(now)
			}
			if bucket.tokens < 0 || bucket.tokens > float64(capacity) {
				t.Fatalf("step %d: tokens %f outside [0, %d]", i, bucket.tokens, capacity)
			}
		}
	})
}

// Refill without consumption never lowers the available count.
func TestTokenBucket_Property_RefillIsMonotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		bucket := newTokenBucket(10, rapid.Float64Range(0.01, 5).Draw(t, "rate"), now)

		drained := rapid.IntRange(0, 10).Draw(t, "drained")
		for i := 0; i < drained; i++ {
			bucket.consume(1, now)
		}

		prev := bucket.tokens
		for i := 0; i < rapid.IntRange(1, 20).Draw(t, "advances"); i++ {
			now = now.Add(time.Duration(rapid.IntRange(0, 600).Draw(t, "seconds")) * time.Second)
			bucket.refill(now)
			if bucket.tokens < prev {
				t.Fatalf("refill decreased tokens: %f -> %f", prev, bucket.tokens)
			}
			prev = bucket.tokens
		}
	})
}

// Every record inside the window is counted until the window passes, then
// none are.
func TestSlidingWindow_Property_CountTracksRecords(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		window := newSlidingWindow(time.Hour)
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

		events := rapid.IntRange(0, 40).Draw(t, "events")
		for i := 0; i < events; i++ {
			// Gaps capped so the whole run stays inside one hour.
			now = now.Add(time.Duration(rapid.IntRange(0, 60).Draw(t, "gap")) * time.Second)
			window.record(now)
		}

		if got := window.count(now); got != events {
			t.Fatalf("count = %d, want %d", got, events)
		}
		if got := window.count(now.Add(time.Hour + time.Second)); got != 0 {
			t.Fatalf("count after window passed = %d, want 0", got)
		}
	})
}

// With a frozen clock nothing refills, so admissions are bounded by the
// global budget overall and by the tightest per-recipient budget each.
func TestRateLimiter_Property_FrozenClockRespectsBudgets(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := Config{
			MaxPerMinute:   rapid.IntRange(1, 15).Draw(t, "per_minute"),
			MaxPerHour:     rapid.IntRange(1, 10).Draw(t, "per_hour"),
			MaxPerDay:      rapid.IntRange(1, 25).Draw(t, "per_day"),
			MinInterval:    0,
			BurstAllowance: rapid.IntRange(1, 8).Draw(t, "burst"),
			BurstWindow:    time.Minute,
		}
		limiter, err := New(cfg)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		limiter.SetClock(fixedClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})

		recipients := rapid.IntRange(1, 5).Draw(t, "recipients")
		attempts := rapid.IntRange(1, 60).Draw(t, "attempts")

		total := 0
		perRecipient := make(map[string]int)
		for i := 0; i < attempts; i++ {
			number := fmt.Sprintf("+1555000%04d", rapid.IntRange(0, recipients-1).Draw(t, "pick"))
			if limiter.CheckAndRecord(number).Allowed {
				total++
				perRecipient[number]++
			}
		}

		if total > cfg.MaxPerMinute {
			t.Fatalf("admitted %d messages, global cap is %d", total, cfg.MaxPerMinute)
		}
		tightest := min(cfg.BurstAllowance, cfg.MaxPerHour, cfg.MaxPerDay)
		for number, n := range perRecipient {
			if n > tightest {
				t.Fatalf("admitted %d messages to %s, per-recipient cap is %d", n, number, tightest)
			}
		}
	})
}

// Check consumes nothing, so back-to-back checks agree exactly.
func TestRateLimiter_Property_CheckIsRepeatable(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limiter, err := New(DefaultConfig())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		limiter.SetClock(fixedClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})

		records := rapid.IntRange(0, 30).Draw(t, "records")
		for i := 0; i < records; i++ {
			limiter.Record(fmt.Sprintf("+1555000%04d", rapid.IntRange(0, 3).Draw(t, "target")))
		}

		number := fmt.Sprintf("+1555000%04d", rapid.IntRange(0, 3).Draw(t, "checked"))
		first := limiter.Check(number)
		second := limiter.Check(number)
		if first != second {
			t.Fatalf("repeated checks disagree: %+v vs %+v", first, second)
		}
	})
}
