package service

import "sync"

// stampedeTracker counts in-progress misses per cache key. It only feeds
// metrics; it never blocks or serializes lookups.
type stampedeTracker struct {
	mu     sync.Mutex
	active map[string]int
}

func newStampedeTracker() *stampedeTracker {
	return &stampedeTracker{active: make(map[string]int)}
}

// RecordMiss increments the count for key and returns the new value.
// Pair with RecordDone once the upstream call is finished.
func (st *stampedeTracker) RecordMiss(key string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.active[key]++
	return st.active[key]
}

// RecordDone decrements the count for key, dropping it at zero.
func (st *stampedeTracker) RecordDone(key string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.active[key] <= 1 {
		delete(st.active, key)
		return
	}
	st.active[key]--
}

func (st *stampedeTracker) count(key string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.active[key]
}
