package control

import (
	"sync"
	"time"
)

// Sample is the record of one control cycle
type Sample struct {
	Cycle    int           `json:"cycle"`    // 1-based index of the period slot; gaps mark overruns
	Elapsed  time.Duration `json:"elapsed"`  // time since the loop started
	Altitude float64       `json:"altitude"` // relative altitude in cm
	Error    float64       `json:"error"`    // setpoint - altitude
	Output   float64       `json:"output"`   // saturated control output
	Command  int           `json:"command"`  // vertical velocity sent to the vehicle
}

// Report is the final vehicle status produced by the shutdown sequence
type Report struct {
	Cause   Cause         `json:"cause"`
	Battery int           `json:"battery"` // percent, -1 when unavailable
	Cycles  int           `json:"cycles"`
	Elapsed time.Duration `json:"elapsed"`
	Err     error         `json:"-"` // transport failures during shutdown
}

// Sink receives the control samples in chronological order and the final report.
// Implementations must not block the control loop.
type Sink interface {
	Append(s Sample)
	Report(r Report)
}

// Series is an in-memory, append-only Sink
type Series struct {
	mu      sync.Mutex
	samples []Sample
	report  *Report
}

func (s *Series) Append(sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample)
}

func (s *Series) Report(r Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = &r
}

// Samples returns a copy of the recorded samples
func (s *Series) Samples() []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Sample(nil), s.samples...)
}

// Final returns the report, if one has been received
func (s *Series) Final() (Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.report == nil {
		return Report{}, false
	}
	return *s.report, true
}

// MultiSink fans samples and reports out to several sinks
type MultiSink []Sink

func (m MultiSink) Append(s Sample) {
	for _, sink := range m {
		sink.Append(s)
	}
}

func (m MultiSink) Report(r Report) {
	for _, sink := range m {
		sink.Report(r)
	}
}

type discardSink struct{}

func (discardSink) Append(Sample) {}
func (discardSink) Report(Report) {}
