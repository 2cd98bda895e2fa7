package limited

import "time"

// slidingWindow counts events in a trailing window at second granularity.
// Events are bucketed by unix timestamp; stale buckets are pruned on access.
// Like tokenBucket it relies on the owning RateLimiter for locking.
type slidingWindow struct {
	window time.Duration
	counts map[int64]int
}

func newSlidingWindow(window time.Duration) *slidingWindow {
	return &slidingWindow{
		window: window,
		counts: make(map[int64]int),
	}
}

func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.window).Unix()
	for ts := range w.counts {
		if ts <= cutoff {
			delete(w.counts, ts)
		}
	}
}

// count returns the number of events still inside the window.
func (w *slidingWindow) count(now time.Time) int {
	w.prune(now)
	total := 0
	for _, c := range w.counts {
		total += c
	}
	return total
}

// record registers one event at now.
func (w *slidingWindow) record(now time.Time) {
	w.prune(now)
	w.counts[now.Unix()]++
}

// resetAt reports when the oldest in-window event expires, which is the
// earliest moment the count can decrease. With an empty window it returns
// now.
func (w *slidingWindow) resetAt(now time.Time) time.Time {
	w.prune(now)
	if len(w.counts) == 0 {
		return now
	}
	oldest := int64(0)
	for ts := range w.counts {
		if oldest == 0 || ts < oldest {
			oldest = ts
		}
	}
	return time.Unix(oldest, 0).Add(w.window)
}

func (w *slidingWindow) empty() bool {
	return len(w.counts) == 0
}
