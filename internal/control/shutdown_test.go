package control

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/roman-kulish/altitude-hold/internal/vehicle"
	"github.com/roman-kulish/altitude-hold/internal/vehicle/fake"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// orderedStopper records SignalStop into the same sequence as the vehicle calls
type orderedStopper struct {
	log *[]string
}

func (s orderedStopper) SignalStop() {
	*s.log = append(*s.log, "stop")
}

type orderedActuator struct {
	*fake.Vehicle
	log *[]string
}

func (a orderedActuator) SendVelocity(ctx context.Context, v vehicle.Velocity) error {
	*a.log = append(*a.log, fake.OpVelocity)
	return a.Vehicle.SendVelocity(ctx, v)
}

func (a orderedActuator) Land(ctx context.Context) error {
	*a.log = append(*a.log, fake.OpLand)
	return a.Vehicle.Land(ctx)
}

func (a orderedActuator) Battery(ctx context.Context) (int, error) {
	*a.log = append(*a.log, fake.OpBattery)
	return a.Vehicle.Battery(ctx)
}

func TestShutdown_Sequence(t *testing.T) {
	for _, cause := range []Cause{CauseTimeExpired, CauseSafetyCeiling, CauseOperatorAbort} {
		t.Run(cause.String(), func(t *testing.T) {
			var log []string
			v := fake.New(fake.WithBattery(73))
			act := orderedActuator{Vehicle: v, log: &log}

			report := Shutdown(context.Background(), act, orderedStopper{log: &log}, cause, discardLogger)

			want := []string{"stop", fake.OpVelocity, fake.OpLand, fake.OpBattery}
			if !slices.Equal(log, want) {
				t.Errorf("Expected sequence %v, got %v", want, log)
			}

			calls := v.Calls()
			if calls[0].Velocity != vehicle.Neutral() {
				t.Errorf("Expected neutral command, got %+v", calls[0].Velocity)
			}
			if report.Cause != cause {
				t.Errorf("Expected cause %s, got %s", cause, report.Cause)
			}
			if report.Battery != 73 {
				t.Errorf("Expected battery 73, got %d", report.Battery)
			}
			if report.Err != nil {
				t.Errorf("Expected no error, got %v", report.Err)
			}
		})
	}
}

func TestShutdown_LandsWhenNeutralFails(t *testing.T) {
	v := fake.New()
	v.FailNext(fake.OpVelocity, 1)
	v.FailNext(fake.OpBattery, 1)

	var log []string
	report := Shutdown(context.Background(), v, orderedStopper{log: &log}, CauseOperatorAbort, discardLogger)

	if got := v.Count(fake.OpLand); got != 1 {
		t.Errorf("Expected one landing, got %d", got)
	}
	if report.Battery != -1 {
		t.Errorf("Expected battery -1 when unavailable, got %d", report.Battery)
	}
	if !errors.Is(report.Err, vehicle.ErrTransport) {
		t.Errorf("Expected transport error in report, got %v", report.Err)
	}
	if !errors.Is(report.Err, fake.ErrInjected) {
		t.Errorf("Expected injected error in report, got %v", report.Err)
	}
}
