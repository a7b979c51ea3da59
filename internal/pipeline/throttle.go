package pipeline

import (
	"math/rand"
	"sync"
	"time"
)

// Throttle defaults.
const (
	DefaultAlertInterval  = 5 * time.Minute
	DefaultAlertThreshold = 1
	DefaultRetention      = time.Hour
	defaultPurgeChance    = 0.1
)

type throttleKey struct {
	LocID     string
	AlertType string
}

// ThrottleConfig holds the configuration for the alert throttle.
type ThrottleConfig struct {
	// Interval is the minimum gap between emissions per key.
	Interval time.Duration
	// Threshold is the number of consecutive qualifying candidates
	// required before an emission.
	Threshold int
	// Retention bounds memory: keys idle longer than this are purged.
	Retention time.Duration
	// Now is the clock; defaults to time.Now. Injectable for tests.
	Now func() time.Time
	// Rand drives the probabilistic purge; defaults to rand.Float64.
	Rand func() float64
}

// Throttle decides whether candidate alerts are actually emitted. It is
// the single shared mutable state of the pipeline and is safe for use by
// concurrent batch workers.
type Throttle struct {
	mu          sync.Mutex
	interval    time.Duration
	threshold   int
	retention   time.Duration
	purgeChance float64
	now         func() time.Time
	rand        func() float64
	lastSent    map[throttleKey]time.Time
	counts      map[throttleKey]int
}

// NewThrottle creates a Throttle, filling unset config fields with the
// production defaults.
func NewThrottle(cfg *ThrottleConfig) *Throttle {
	if cfg == nil {
		cfg = &ThrottleConfig{}
	}
	t := &Throttle{
		interval:    cfg.Interval,
		threshold:   cfg.Threshold,
		retention:   cfg.Retention,
		purgeChance: defaultPurgeChance,
		now:         cfg.Now,
		rand:        cfg.Rand,
		lastSent:    make(map[throttleKey]time.Time),
		counts:      make(map[throttleKey]int),
	}
	if t.interval <= 0 {
		t.interval = DefaultAlertInterval
	}
	if t.threshold <= 0 {
		t.threshold = DefaultAlertThreshold
	}
	if t.retention <= 0 {
		t.retention = DefaultRetention
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.rand == nil {
		t.rand = rand.Float64
	}
	return t
}

// Allow decides whether the candidate alert is emitted now, updating the
// per-key state. CRITICAL priority bypasses all throttling.
func (t *Throttle) Allow(a Alert, locID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	key := throttleKey{LocID: locID, AlertType: a.Type}

	if a.Priority == PriorityCritical {
		t.lastSent[key] = now
		return true
	}

	if last, ok := t.lastSent[key]; ok && now.Sub(last) < t.interval {
		// Inside the quiet interval: suppress without touching the count.
		return false
	}

	count := t.counts[key] + 1
	t.counts[key] = count
	if count < t.threshold {
		return false
	}

	t.lastSent[key] = now
	t.counts[key] = 0
	return true
}

// Purge drops state for keys whose last emission is older than the
// retention window, clearing both maps jointly. Returns the number of
// keys removed.
func (t *Throttle) Purge() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.retention)
	removed := 0
	for key, last := range t.lastSent {
		if last.Before(cutoff) {
			delete(t.lastSent, key)
			delete(t.counts, key)
			removed++
		}
	}
	return removed
}

// MaybePurge runs Purge with low fixed probability. Called once per batch
// to bound memory without scanning on every invocation.
func (t *Throttle) MaybePurge() int {
	if t.rand() >= t.purgeChance {
		return 0
	}
	return t.Purge()
}

// Len returns the number of tracked keys. Intended for tests and metrics.
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.lastSent)
}
