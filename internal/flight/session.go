// Package flight runs one altitude-hold flight end to end: it connects to the vehicle,
// starts altitude sampling, takes off once telemetry is flowing and hands control to the
// control loop until a termination cause lands the vehicle.
package flight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/altitude-hold/internal/control"
	"github.com/roman-kulish/altitude-hold/internal/telemetry"
	"github.com/roman-kulish/altitude-hold/internal/vehicle"
)

// DefaultTakeoffSettle is how long the vehicle hovers after takeoff before the baseline
// is captured
const DefaultTakeoffSettle = 2 * time.Second

// Config holds the settings of a flight
type Config struct {
	Control       control.Config
	Parameters    control.ControlParameters // initial setpoint and gain
	SetpointLimit float64                   // largest setpoint accepted from the operator
	GainLimit     float64                   // largest gain accepted from the operator
	TakeoffSettle time.Duration
}

// DefaultConfig returns the settings of the fixed-setpoint flight
func DefaultConfig() Config {
	return Config{
		Control:       control.DefaultConfig(),
		Parameters:    control.ControlParameters{Setpoint: 50, Gain: 3.15},
		SetpointLimit: 100,
		GainLimit:     3.5,
		TakeoffSettle: DefaultTakeoffSettle,
	}
}

// Status is a point-in-time view of a flight
type Status struct {
	ID         uuid.UUID                 `json:"id"`
	Phase      string                    `json:"phase"`
	Altitude   *float64                  `json:"altitude"` // raw altitude in cm, nil before the first sample
	Failures   int                       `json:"telemetryFailures"`
	Parameters control.ControlParameters `json:"parameters"`
	Aborted    bool                      `json:"aborted"`
}

// WithLogger sets the logger for the session and the components it owns
func WithLogger(logger *slog.Logger) func(*Session) {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithSink sets the receiver of control samples and the final report
func WithSink(sink control.Sink) func(*Session) {
	return func(s *Session) {
		s.sink = sink
	}
}

// WithID sets the flight identifier; by default a random one is generated
func WithID(id uuid.UUID) func(*Session) {
	return func(s *Session) {
		s.id = id
	}
}

// Session owns everything one flight needs: the shared telemetry state, the sampler, the
// tunable parameters, the abort signal and the control loop. A Session flies once.
type Session struct {
	id      uuid.UUID
	config  Config
	vehicle vehicle.Vehicle

	state   *telemetry.State
	sampler *telemetry.Sampler
	params  *control.Parameters
	abort   *control.Abort
	loop    *control.Loop
	sink    control.Sink

	logger *slog.Logger
}

// NewSession validates the configuration and creates a Session for the vehicle
func NewSession(config Config, v vehicle.Vehicle, options ...func(*Session)) (*Session, error) {
	if err := config.Control.Validate(); err != nil {
		return nil, fmt.Errorf("invalid control config: %w", err)
	}
	if !(config.SetpointLimit > 0 && config.SetpointLimit <= math.MaxFloat64) || !(config.GainLimit > 0 && config.GainLimit <= math.MaxFloat64) {
		return nil, fmt.Errorf("parameter limits must be positive and finite: setpoint %g, gain %g", config.SetpointLimit, config.GainLimit)
	}
	if config.TakeoffSettle < 0 {
		return nil, fmt.Errorf("takeoff settle must not be negative: %s", config.TakeoffSettle)
	}

	s := Session{
		id:      uuid.New(),
		config:  config,
		vehicle: v,
		state:   telemetry.NewState(),
		abort:   &control.Abort{},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	params, err := control.NewParameters(config.Parameters,
		control.WithSetpointLimit(config.SetpointLimit),
		control.WithGainLimit(config.GainLimit))
	if err != nil {
		return nil, fmt.Errorf("invalid initial parameters: %w", err)
	}
	s.params = params

	s.logger = s.logger.With(slog.String("flight", s.id.String()))

	s.sampler = telemetry.NewSampler(v, s.state,
		telemetry.WithLogger(s.logger),
		telemetry.WithPeriod(config.Control.SamplePeriod),
		telemetry.WithFailuresThreshold(config.Control.MaxTelemetryFailures))

	loopOptions := []func(*control.Loop){control.WithLogger(s.logger), control.WithAbort(s.abort)}
	if s.sink != nil {
		loopOptions = append(loopOptions, control.WithSink(s.sink))
	}
	s.loop = control.NewLoop(config.Control, v, s.state, params, loopOptions...)

	return &s, nil
}

// ID returns the flight identifier
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Parameters returns the tunable setpoint and gain of the flight
func (s *Session) Parameters() *control.Parameters {
	return s.params
}

// Abort requests an operator abort. The vehicle lands at the next cycle.
func (s *Session) Abort() {
	s.abort.Trigger()
}

// Status returns the current state of the flight
func (s *Session) Status() Status {
	t := s.state.Get()
	return Status{
		ID:         s.id,
		Phase:      s.loop.Phase().String(),
		Altitude:   t.Altitude,
		Failures:   t.ConsecutiveFailures,
		Parameters: s.params.Snapshot(),
		Aborted:    s.abort.Triggered(),
	}
}

// Fly runs the flight. It returns ErrInitialization, without taking off, when no altitude
// arrives within the init timeout. Once airborne the vehicle is always landed before Fly
// returns, including when ctx is cancelled.
func (s *Session) Fly(ctx context.Context) (*control.Result, error) {
	s.logger.Info("connecting", slog.String("vehicle", s.vehicle.Name()))
	if err := s.vehicle.Connect(ctx); err != nil {
		return nil, s.abandon(-1, fmt.Errorf("connecting to vehicle: %w", err))
	}

	battery, err := s.vehicle.Battery(ctx)
	if err != nil {
		battery = -1
		s.logger.Warn(fmt.Sprintf("reading battery: %s", err.Error()))
	} else {
		s.logger.Info("vehicle ready", slog.Int("battery", battery))
	}

	// the sampler is stopped by the shutdown sequence, not by ctx
	done, err := s.sampler.BeginSampling(context.WithoutCancel(ctx))
	if err != nil {
		return nil, s.abandon(battery, fmt.Errorf("starting sampler: %w", err))
	}

	period := s.config.Control.SamplePeriod
	if _, err = telemetry.AwaitFirstSample(ctx, s.state, period, s.config.Control.InitTimeout); err != nil {
		s.state.SignalStop()
		<-done
		return nil, s.abandon(battery, fmt.Errorf("%w: %w", control.ErrInitialization, err))
	}

	s.logger.Info("taking off")
	if err = s.vehicle.Takeoff(ctx); err != nil {
		// the vehicle may be airborne even though the acknowledgement failed
		report := s.shutdown(ctx, control.CauseOperatorAbort)
		<-done
		return nil, errors.Join(fmt.Errorf("taking off: %w", err), report.Err)
	}

	if interrupted := s.settle(ctx); interrupted {
		report := s.shutdown(ctx, control.CauseOperatorAbort)
		<-done
		return &control.Result{Cause: control.CauseOperatorAbort, Report: report}, nil
	}

	result, err := s.loop.Run(ctx)
	if errors.Is(err, control.ErrInitialization) {
		s.shutdown(ctx, control.CauseOperatorAbort)
	}
	<-done

	return result, err
}

// settle hovers for the configured time. It reports whether it was interrupted by an
// abort or by ctx.
func (s *Session) settle(ctx context.Context) bool {
	if s.config.TakeoffSettle == 0 {
		return false
	}

	s.logger.Debug("settling", slog.Duration("duration", s.config.TakeoffSettle))

	timer := time.NewTimer(s.config.TakeoffSettle)
	defer timer.Stop()

	select {
	case <-timer.C:
		return false
	case <-s.abort.Done():
		return true
	case <-ctx.Done():
		return true
	}
}

// abandon reports a flight that ended before takeoff. The vehicle was never commanded, so
// no shutdown sequence runs; the report carries err as the reason.
func (s *Session) abandon(battery int, err error) error {
	s.logger.Error(fmt.Sprintf("flight abandoned before takeoff: %s", err.Error()))
	if s.sink != nil {
		s.sink.Report(control.Report{Cause: control.CauseOperatorAbort, Battery: battery, Err: err})
	}
	return err
}

func (s *Session) shutdown(ctx context.Context, cause control.Cause) control.Report {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.Control.ShutdownTimeout)
	defer cancel()

	report := control.Shutdown(ctx, s.vehicle, s.state, cause, s.logger)
	if s.sink != nil {
		s.sink.Report(report)
	}
	return report
}
