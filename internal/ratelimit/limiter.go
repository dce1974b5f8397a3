package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"campuswatch/internal/models"
)

// Decision is the admission-control verdict for one prospective call.
type Decision struct {
	Allowed    bool
	Reason     string
	RetryAfter time.Duration
}

// window is a bucketed sliding-window counter keyed by an integer epoch
// bucket index. Buckets older than the previous window are pruned lazily on
// each check, so the map stays bounded at two entries per window.
type window struct {
	bucketSize time.Duration
	buckets    map[int64]float64
	limit      float64
	name       string
}

func newWindow(name string, bucketSize time.Duration, limit float64) *window {
	return &window{
		bucketSize: bucketSize,
		buckets:    make(map[int64]float64),
		limit:      limit,
		name:       name,
	}
}

func (w *window) bucketIndex(now time.Time) int64 {
	return now.UnixNano() / int64(w.bucketSize)
}

func (w *window) prune(now time.Time) {
	current := w.bucketIndex(now)
	for idx := range w.buckets {
		if idx < current-1 {
			delete(w.buckets, idx)
		}
	}
}

// total sums the current and previous bucket, weighting the previous bucket
// by its remaining overlap with the sliding window.
func (w *window) total(now time.Time) float64 {
	w.prune(now)
	current := w.bucketIndex(now)
	elapsed := float64(now.UnixNano()%int64(w.bucketSize)) / float64(w.bucketSize)
	return w.buckets[current] + w.buckets[current-1]*(1-elapsed)
}

func (w *window) wouldExceed(now time.Time, amount float64) bool {
	return w.total(now)+amount > w.limit
}

func (w *window) add(now time.Time, amount float64) {
	w.prune(now)
	w.buckets[w.bucketIndex(now)] += amount
}

func (w *window) retryAfter(now time.Time) time.Duration {
	// Worst case: wait until the current bucket rolls over.
	return w.bucketSize - time.Duration(now.UnixNano()%int64(w.bucketSize))
}

// Limiter gates outbound AI calls for one provider. Admission is pessimistic:
// a call is rejected pre-flight when its estimated consumption would breach
// any window, which prevents overshoot from slow or streaming calls.
type Limiter struct {
	mu      sync.Mutex
	windows []*window
	now     func() time.Time
}

// NewLimiter builds a limiter from the configured thresholds.
func NewLimiter(cfg models.RateLimitConfig) *Limiter {
	return &Limiter{
		windows: []*window{
			newWindow("requests per minute", time.Minute, float64(cfg.RequestsPerMinute)),
			newWindow("requests per hour", time.Hour, float64(cfg.RequestsPerHour)),
			newWindow("tokens per minute", time.Minute, float64(cfg.TokensPerMinute)),
			newWindow("tokens per day", 24*time.Hour, float64(cfg.TokensPerDay)),
			newWindow("cost per hour", time.Hour, cfg.CostPerHourUSD),
			newWindow("cost per day", 24*time.Hour, cfg.CostPerDayUSD),
		},
		now: time.Now,
	}
}

// amounts maps each window to the consumption one call contributes to it.
// Order matches the windows slice: req/min, req/hour, tok/min, tok/day,
// cost/hour, cost/day.
func amounts(tokens int, cost float64) []float64 {
	t := float64(tokens)
	return []float64{1, 1, t, t, cost, cost}
}

// CanProceed checks every window against the estimated consumption. The
// check and any subsequent Record are separate calls; CanProceed itself does
// not reserve capacity, but both operations take the same mutex so counter
// reads and increments are each atomic.
func (l *Limiter) CanProceed(estimatedTokens int, estimatedCost float64) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for i, amount := range amounts(estimatedTokens, estimatedCost) {
		w := l.windows[i]
		if w.limit <= 0 {
			continue
		}
		if w.wouldExceed(now, amount) {
			return Decision{
				Allowed:    false,
				Reason:     fmt.Sprintf("%s limit would be exceeded", w.name),
				RetryAfter: w.retryAfter(now),
			}
		}
	}
	return Decision{Allowed: true}
}

// Record charges actual consumption to every window after a call completes.
func (l *Limiter) Record(actualTokens int, actualCost float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for i, amount := range amounts(actualTokens, actualCost) {
		l.windows[i].add(now, amount)
	}
}

// SetClock replaces the time source. Only call this from tests.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}
