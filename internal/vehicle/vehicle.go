package vehicle

import "context"

// MaxVelocity is the largest magnitude the vehicle accepts on any velocity axis.
const MaxVelocity = 100

// Velocity is a vendor-normalised velocity command. Every component is in [-100, 100].
type Velocity struct {
	Roll     int // left/right
	Pitch    int // forward/backward
	Vertical int // up/down
	Yaw      int // rotation
}

// Neutral returns the all-zero velocity command that arrests motion on every axis.
func Neutral() Velocity {
	return Velocity{}
}

// Vertical returns a command that actuates the vertical axis only. Roll, pitch and yaw
// are always zero.
func Vertical(v int) Velocity {
	return Velocity{Vertical: v}
}

// Clamp limits every component to [-MaxVelocity, MaxVelocity].
func (v Velocity) Clamp() Velocity {
	return Velocity{
		Roll:     clamp(v.Roll),
		Pitch:    clamp(v.Pitch),
		Vertical: clamp(v.Vertical),
		Yaw:      clamp(v.Yaw),
	}
}

func clamp(v int) int {
	return max(-MaxVelocity, min(v, MaxVelocity))
}

// Vehicle is the command and telemetry transport of the aircraft. All methods are
// fallible; failures are reported as *TransportError.
type Vehicle interface {
	// Connect establishes the link and puts the vehicle into command mode.
	Connect(ctx context.Context) error

	// Takeoff launches the vehicle and returns once it hovers.
	Takeoff(ctx context.Context) error

	// Land lands the vehicle.
	Land(ctx context.Context) error

	// Height returns the current altitude in centimetres.
	Height(ctx context.Context) (float64, error)

	// Battery returns the remaining battery charge in percent.
	Battery(ctx context.Context) (int, error)

	// SendVelocity issues a velocity command. It does not wait for acknowledgement.
	SendVelocity(ctx context.Context, v Velocity) error

	// Name identifies the vehicle type in logs and flight records.
	Name() string
}
