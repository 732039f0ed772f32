// Package traffic keeps short sliding windows of request outcomes for the
// health endpoint.
package traffic

import (
	"sync"
	"time"
)

// DefaultRetention is how long outcomes are kept when NewTracker gets zero.
const DefaultRetention = 5 * time.Minute

type kind int

const (
	kindSuccess kind = iota
	kindUpstreamError
	kindDenied
)

type event struct {
	at   time.Time
	kind kind
}

// Tracker records timestamped outcomes. Lookups that reached a verdict count
// as successes, upstream or internal failures as errors, and rate-limit
// rejections as denials. Safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	events    []event
	retention time.Duration
	now       func() time.Time
}

// NewTracker creates a Tracker keeping outcomes for retention.
func NewTracker(retention time.Duration) *Tracker {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Tracker{retention: retention, now: time.Now}
}

// RecordSuccess records a lookup that did not fail upstream.
func (t *Tracker) RecordSuccess() { t.record(kindSuccess) }

// RecordError records a lookup that failed upstream or internally.
func (t *Tracker) RecordError() { t.record(kindUpstreamError) }

// RecordDenied records a rate-limit rejection.
func (t *Tracker) RecordDenied() { t.record(kindDenied) }

func (t *Tracker) record(k kind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.events = append(t.events, event{at: now, kind: k})
	t.pruneLocked(now)
}

// ErrorRate returns (errors, total) within window. Denials are excluded from both.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	for _, e := range t.events {
		if e.at.Before(cutoff) {
			continue
		}
		switch e.kind {
		case kindUpstreamError:
			errors++
			total++
		case kindSuccess:
			total++
		}
	}
	return errors, total
}

// DenialCount returns the number of rate-limit rejections within window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	n := 0
	for _, e := range t.events {
		if e.kind == kindDenied && !e.at.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops events older than the retention. Events are appended in
// time order, so the stale ones form a prefix.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.retention)
	i := 0
	for ; i < len(t.events) && t.events[i].at.Before(cutoff); i++ {
	}
	if i > 0 {
		t.events = append(t.events[:0], t.events[i:]...)
	}
}
