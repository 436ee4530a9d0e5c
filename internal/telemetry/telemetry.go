package telemetry

import (
	"time"
)

// Telemetry is the latest altitude reading published by the sampler
type Telemetry struct {
	Timestamp           time.Time // When the altitude was measured; zero before the first sample
	Altitude            *float64  // Raw altitude in centimetres; nil before the first sample
	ConsecutiveFailures int       // Failed polls since the last successful one
}

// Valid reports whether at least one altitude sample has been received
func (t Telemetry) Valid() bool {
	return t.Altitude != nil
}

// Fresh reports whether the sample is valid and the latest poll succeeded
func (t Telemetry) Fresh() bool {
	return t.Valid() && t.ConsecutiveFailures == 0
}
