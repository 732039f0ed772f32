// Package lifecycle tracks process state the health endpoint reports.
package lifecycle

import (
	"sync/atomic"
	"time"
)

// State holds the shutdown flag and start time of one server instance.
type State struct {
	shuttingDown atomic.Bool
	started      time.Time
	now          func() time.Time
}

// New returns a State started now.
func New() *State {
	return &State{started: time.Now(), now: time.Now}
}

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT is received.
// The health handler returns 503 with status shutting-down while true.
func (s *State) SetShuttingDown(v bool) {
	s.shuttingDown.Store(v)
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func (s *State) IsShuttingDown() bool {
	return s.shuttingDown.Load()
}

// Uptime returns the time since New.
func (s *State) Uptime() time.Duration {
	return s.now().Sub(s.started)
}
