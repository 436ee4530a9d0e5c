package control

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

// ErrParameterRejected is returned for an out-of-range operator update. The previous value
// is retained.
var ErrParameterRejected = errors.New("parameter rejected")

// ControlParameters is a snapshot of the tunable controller knobs
type ControlParameters struct {
	Setpoint float64 `json:"setpoint"` // cm above the baseline
	Gain     float64 `json:"gain"`     // proportional gain
}

// WithSetpointLimit sets the largest accepted setpoint
func WithSetpointLimit(limit float64) func(*Parameters) {
	return func(p *Parameters) {
		p.maxSetpoint = limit
	}
}

// WithGainLimit sets the largest accepted gain
func WithGainLimit(limit float64) func(*Parameters) {
	return func(p *Parameters) {
		p.maxGain = limit
	}
}

// Parameters holds the setpoint and gain. Each knob is an independent last-write-wins
// slot: updates of one never wait for the other, and reads never observe a partially
// written value.
type Parameters struct {
	setpoint atomic.Uint64 // math.Float64bits
	gain     atomic.Uint64

	maxSetpoint float64
	maxGain     float64
}

// NewParameters creates Parameters holding initial, which must itself be in range
func NewParameters(initial ControlParameters, options ...func(*Parameters)) (*Parameters, error) {
	p := Parameters{
		maxSetpoint: math.Inf(1),
		maxGain:     math.Inf(1),
	}

	for _, option := range options {
		option(&p)
	}

	if err := p.SetSetpoint(initial.Setpoint); err != nil {
		return nil, err
	}
	if err := p.SetGain(initial.Gain); err != nil {
		return nil, err
	}

	return &p, nil
}

// SetSetpoint updates the setpoint. Values outside [0, limit] are rejected.
func (p *Parameters) SetSetpoint(v float64) error {
	if err := validate("setpoint", v, p.maxSetpoint); err != nil {
		return err
	}
	p.setpoint.Store(math.Float64bits(v))
	return nil
}

// SetGain updates the gain. Values outside [0, limit] are rejected.
func (p *Parameters) SetGain(v float64) error {
	if err := validate("gain", v, p.maxGain); err != nil {
		return err
	}
	p.gain.Store(math.Float64bits(v))
	return nil
}

// Snapshot returns the current setpoint and gain
func (p *Parameters) Snapshot() ControlParameters {
	return ControlParameters{
		Setpoint: math.Float64frombits(p.setpoint.Load()),
		Gain:     math.Float64frombits(p.gain.Load()),
	}
}

// Limits returns the largest accepted setpoint and gain
func (p *Parameters) Limits() ControlParameters {
	return ControlParameters{Setpoint: p.maxSetpoint, Gain: p.maxGain}
}

func validate(name string, v, limit float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s must be a finite number", ErrParameterRejected, name)
	}
	if v < 0 || v > limit {
		return fmt.Errorf("%w: %s %g outside [0, %g]", ErrParameterRejected, name, v, limit)
	}
	return nil
}

// Abort is the operator abort signal. The zero value is ready to use.
type Abort struct {
	mu   sync.Mutex
	once sync.Once
	ch   chan struct{}
	set  atomic.Bool
}

// Trigger raises the abort flag. It is idempotent.
func (a *Abort) Trigger() {
	a.once.Do(func() {
		a.set.Store(true)
		close(a.channel())
	})
}

// Triggered reports whether Trigger has been called
func (a *Abort) Triggered() bool {
	return a.set.Load()
}

// Done returns a channel closed by Trigger
func (a *Abort) Done() <-chan struct{} {
	return a.channel()
}

func (a *Abort) channel() chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ch == nil {
		a.ch = make(chan struct{})
	}
	return a.ch
}
