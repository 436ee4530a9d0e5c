package control

import (
	"fmt"
	"time"
)

// Cause is the reason a flight terminates
type Cause int

const (
	CauseTimeExpired Cause = iota + 1
	CauseSafetyCeiling
	CauseOperatorAbort
)

func (c Cause) String() string {
	switch c {
	case CauseTimeExpired:
		return "time_expired"
	case CauseSafetyCeiling:
		return "safety_ceiling_exceeded"
	case CauseOperatorAbort:
		return "operator_abort"
	default:
		return fmt.Sprintf("Cause(%d)", int(c))
	}
}

// MarshalText encodes the cause by name
func (c Cause) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

const (
	DefaultFlightTime = 20 * time.Second
	DefaultCeiling    = 150.0 // cm above the baseline
)

// Limits are the safety thresholds of a flight
type Limits struct {
	FlightTime time.Duration // flight-time budget
	Ceiling    float64       // maximum relative altitude in cm
}

// Evaluate decides whether the flight must terminate. The ceiling is checked first, then
// the time budget, then the operator abort.
func Evaluate(elapsed time.Duration, altitude float64, abort bool, limits Limits) (Cause, bool) {
	switch {
	case altitude > limits.Ceiling:
		return CauseSafetyCeiling, true
	case elapsed >= limits.FlightTime:
		return CauseTimeExpired, true
	case abort:
		return CauseOperatorAbort, true
	default:
		return 0, false
	}
}
