package control

import (
	"math"
	"time"

	"go.einride.tech/pid"
)

// DefaultSaturation is the vendor-normalised actuation bound
const DefaultSaturation = 100

// Law is the proportional altitude law with output saturation. Integral and derivative
// gains are always zero.
type Law struct {
	controller pid.Controller
	limit      float64
}

// NewLaw creates a Law saturating at ±limit
func NewLaw(limit float64) *Law {
	return &Law{limit: limit}
}

// Compute runs one control step for the relative altitude h and returns the error, the
// raw output gain*error, and the output clamped to ±limit. period is the nominal sampling
// period and must be positive. Every step starts from a reset controller, so a
// non-finite input never leaks into later steps.
func (l *Law) Compute(p ControlParameters, h float64, period time.Duration) (e, raw, u float64) {
	l.controller.Reset()
	l.controller.Config = pid.ControllerConfig{ProportionalGain: p.Gain}
	l.controller.Update(pid.ControllerInput{
		ReferenceSignal:  p.Setpoint,
		ActualSignal:     h,
		SamplingInterval: period,
	})

	e = l.controller.State.ControlError
	raw = l.controller.State.ControlSignal
	return e, raw, Saturate(raw, l.limit)
}

// Saturate clamps u to [-limit, limit]. NaN maps to zero.
func Saturate(u, limit float64) float64 {
	if math.IsNaN(u) {
		return 0
	}
	return math.Max(-limit, math.Min(u, limit))
}
