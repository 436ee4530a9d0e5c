package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roman-kulish/altitude-hold/internal/vehicle"
)

// Actuator is the part of the vehicle the control loop and shutdown sequence command
type Actuator interface {
	SendVelocity(ctx context.Context, v vehicle.Velocity) error
	Land(ctx context.Context) error
	Battery(ctx context.Context) (int, error)
}

// Stopper stops the telemetry sampler
type Stopper interface {
	SignalStop()
}

// Shutdown runs the safe-landing sequence: stop the sampler, send one neutral command,
// land, and read the remaining battery. The neutral command and the landing are attempted
// even when an earlier step fails, and nothing is commanded after landing.
func Shutdown(ctx context.Context, act Actuator, stopper Stopper, cause Cause, logger *slog.Logger) Report {
	logger.Info("shutting down", slog.String("cause", cause.String()))

	stopper.SignalStop()

	var errs []error
	if err := act.SendVelocity(ctx, vehicle.Neutral()); err != nil {
		logger.Error(fmt.Sprintf("sending neutral command: %s", err.Error()))
		errs = append(errs, fmt.Errorf("sending neutral command: %w", err))
	}

	if err := act.Land(ctx); err != nil {
		logger.Error(fmt.Sprintf("landing: %s", err.Error()))
		errs = append(errs, fmt.Errorf("landing: %w", err))
	}

	report := Report{Cause: cause, Battery: -1}
	if battery, err := act.Battery(ctx); err != nil {
		logger.Warn(fmt.Sprintf("reading battery: %s", err.Error()))
		errs = append(errs, fmt.Errorf("reading battery: %w", err))
	} else {
		report.Battery = battery
	}

	report.Err = errors.Join(errs...)
	return report
}
