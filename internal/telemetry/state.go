package telemetry

import (
	"sync"
	"sync/atomic"
	"time"
)

// State is a single-slot, last-write-wins telemetry cell shared between the sampler
// (single writer) and the control loop (reader). Reads and writes never block each other.
type State struct {
	latest   atomic.Pointer[reading]
	failures atomic.Int64

	stopOnce sync.Once
	stopped  chan struct{}
}

type reading struct {
	altitude  float64
	timestamp time.Time
}

// NewState creates a live State holding no sample
func NewState() *State {
	return &State{stopped: make(chan struct{})}
}

// Write publishes a new altitude, replacing the previous one, and clears the failure count
func (s *State) Write(altitude float64) {
	s.latest.Store(&reading{altitude: altitude, timestamp: time.Now()})
	s.failures.Store(0)
}

// RecordFailure notes a failed poll. The last good altitude is retained. It returns the
// number of consecutive failures.
func (s *State) RecordFailure() int {
	return int(s.failures.Add(1))
}

// ConsecutiveFailures returns the number of failed polls since the last successful one
func (s *State) ConsecutiveFailures() int {
	return int(s.failures.Load())
}

// Get returns the latest telemetry. Before the first Write the altitude is nil.
func (s *State) Get() Telemetry {
	t := Telemetry{ConsecutiveFailures: s.ConsecutiveFailures()}
	if r := s.latest.Load(); r != nil {
		altitude := r.altitude
		t.Altitude = &altitude
		t.Timestamp = r.timestamp
	}
	return t
}

// SignalStop marks the state as no longer alive. It is idempotent.
func (s *State) SignalStop() {
	s.stopOnce.Do(func() {
		close(s.stopped)
	})
}

// Alive reports whether SignalStop has not been called yet
func (s *State) Alive() bool {
	select {
	case <-s.stopped:
		return false
	default:
		return true
	}
}

// Stopped returns a channel closed by SignalStop
func (s *State) Stopped() <-chan struct{} {
	return s.stopped
}
