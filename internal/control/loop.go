package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/altitude-hold/internal/telemetry"
	"github.com/roman-kulish/altitude-hold/internal/vehicle"
)

const (
	DefaultSamplePeriod    = 50 * time.Millisecond
	DefaultInitTimeout     = 3 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	// MaxActuationFailures defines the number of consecutive failed commands after which
	// the flight is aborted
	MaxActuationFailures = 10

	// MaxTelemetryFailures defines the number of consecutive failed altitude polls after
	// which the flight is aborted
	MaxTelemetryFailures = 10
)

var (
	// ErrInitialization is returned when no altitude baseline could be captured
	ErrInitialization = errors.New("initialization failed")

	// ErrDegradedLink is reported when actuation or telemetry keeps failing and the flight
	// is aborted
	ErrDegradedLink = errors.New("vehicle link degraded")

	// ErrAlreadyRun is returned when Run is called more than once
	ErrAlreadyRun = errors.New("control loop already run")
)

// Phase is the state of the control loop
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseInitializing
	PhaseRunning
	PhaseTerminating
	PhaseTerminated
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseInitializing:
		return "INITIALIZING"
	case PhaseRunning:
		return "RUNNING"
	case PhaseTerminating:
		return "TERMINATING"
	case PhaseTerminated:
		return "TERMINATED"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Config holds the loop timing and safety settings
type Config struct {
	SamplePeriod         time.Duration
	Limits               Limits
	Saturation           float64
	InitTimeout          time.Duration
	ShutdownTimeout      time.Duration
	MaxActuationFailures int
	MaxTelemetryFailures int
}

// DefaultConfig returns the settings of the fixed-setpoint flight
func DefaultConfig() Config {
	return Config{
		SamplePeriod:         DefaultSamplePeriod,
		Limits:               Limits{FlightTime: DefaultFlightTime, Ceiling: DefaultCeiling},
		Saturation:           DefaultSaturation,
		InitTimeout:          DefaultInitTimeout,
		ShutdownTimeout:      DefaultShutdownTimeout,
		MaxActuationFailures: MaxActuationFailures,
		MaxTelemetryFailures: MaxTelemetryFailures,
	}
}

// Validate checks that the configuration can drive a flight
func (c Config) Validate() error {
	switch {
	case c.SamplePeriod <= 0:
		return fmt.Errorf("sample period must be positive: %s", c.SamplePeriod)
	case c.Limits.FlightTime <= 0:
		return fmt.Errorf("flight time must be positive: %s", c.Limits.FlightTime)
	case c.Limits.Ceiling <= 0:
		return fmt.Errorf("ceiling must be positive: %g", c.Limits.Ceiling)
	case c.Saturation <= 0 || c.Saturation > vehicle.MaxVelocity:
		return fmt.Errorf("saturation must be in (0, %d]: %g", vehicle.MaxVelocity, c.Saturation)
	case c.InitTimeout <= 0:
		return fmt.Errorf("init timeout must be positive: %s", c.InitTimeout)
	case c.ShutdownTimeout <= 0:
		return fmt.Errorf("shutdown timeout must be positive: %s", c.ShutdownTimeout)
	case c.MaxActuationFailures <= 0 || c.MaxTelemetryFailures <= 0:
		return fmt.Errorf("failure thresholds must be positive")
	}
	return nil
}

// TelemetryState is the shared altitude cell as seen by the loop
type TelemetryState interface {
	telemetry.Provider
	Stopper
}

// Result summarises a completed flight
type Result struct {
	Cause    Cause
	Baseline float64 // raw altitude captured at start, cm
	Cycles   int
	Elapsed  time.Duration
	Overruns int // cycles that missed their period boundary
	Report   Report
	Err      error // wraps ErrDegradedLink when the flight was aborted for link failures
}

// WithLogger sets the logger for the loop
func WithLogger(logger *slog.Logger) func(*Loop) {
	return func(l *Loop) {
		l.logger = logger.With(slog.String("component", "control"))
	}
}

// WithSink sets the receiver of control samples and the final report
func WithSink(sink Sink) func(*Loop) {
	return func(l *Loop) {
		l.sink = sink
	}
}

// WithAbort attaches an operator abort signal
func WithAbort(abort *Abort) func(*Loop) {
	return func(l *Loop) {
		l.abort = abort
	}
}

// Loop is the fixed-cadence altitude control loop
type Loop struct {
	config    Config
	vehicle   Actuator
	telemetry TelemetryState
	params    *Parameters
	abort     *Abort
	sink      Sink
	law       *Law

	phase  atomic.Int32
	logger *slog.Logger
}

// NewLoop creates a Loop with a discard logger and sink
func NewLoop(config Config, act Actuator, state TelemetryState, params *Parameters, options ...func(*Loop)) *Loop {
	l := Loop{
		config:    config,
		vehicle:   act,
		telemetry: state,
		params:    params,
		abort:     &Abort{},
		sink:      discardSink{},
		law:       NewLaw(config.Saturation),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&l)
	}

	return &l
}

// Phase returns the current state of the loop
func (l *Loop) Phase() Phase {
	return Phase(l.phase.Load())
}

// Run captures the altitude baseline, controls altitude until a termination cause fires,
// and then runs the shutdown sequence exactly once. Cancelling ctx counts as an operator
// abort; the shutdown sequence still runs on a detached context.
//
// If no baseline can be captured within the init timeout Run returns ErrInitialization
// without commanding the vehicle.
func (l *Loop) Run(ctx context.Context) (*Result, error) {
	if !l.phase.CompareAndSwap(int32(PhaseIdle), int32(PhaseInitializing)) {
		return nil, ErrAlreadyRun
	}

	first, err := telemetry.AwaitFreshSample(ctx, l.telemetry, l.config.SamplePeriod, l.config.InitTimeout)
	if err != nil {
		l.telemetry.SignalStop()
		l.setPhase(PhaseTerminated)
		return nil, fmt.Errorf("%w: capturing baseline: %w", ErrInitialization, err)
	}

	result := &Result{Baseline: *first.Altitude}
	l.logger.Info("baseline captured", slog.Float64("baseline", result.Baseline))

	l.setPhase(PhaseRunning)
	result.Cause, result.Err = l.control(ctx, result)

	l.setPhase(PhaseTerminating)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.config.ShutdownTimeout)
	defer cancel()

	report := Shutdown(shutdownCtx, l.vehicle, l.telemetry, result.Cause, l.logger)
	report.Cycles = result.Cycles
	report.Elapsed = result.Elapsed
	result.Report = report
	l.sink.Report(report)

	l.setPhase(PhaseTerminated)

	return result, result.Err
}

// control runs cycles until a termination cause fires
func (l *Loop) control(ctx context.Context, result *Result) (Cause, error) {
	period := l.config.SamplePeriod
	start := time.Now()

	timer := time.NewTimer(period)
	defer timer.Stop()

	var actuationFailures int
	for cycle := 1; ; cycle++ {
		elapsed := time.Since(start)

		t := l.telemetry.Get()
		h := *t.Altitude - result.Baseline

		params := l.params.Snapshot()
		e, _, u := l.law.Compute(params, h, period)
		command := int(math.Round(u))

		if err := l.vehicle.SendVelocity(ctx, vehicle.Vertical(command)); err != nil {
			actuationFailures++
			l.logger.Warn(fmt.Sprintf("sending velocity: %s", err.Error()), slog.Int("failures", actuationFailures))
		} else {
			actuationFailures = 0
		}

		l.sink.Append(Sample{
			Cycle:    cycle,
			Elapsed:  elapsed,
			Altitude: h,
			Error:    e,
			Output:   u,
			Command:  command,
		})

		result.Cycles++
		result.Elapsed = elapsed

		aborted := l.abort.Triggered() || ctx.Err() != nil
		if cause, ok := Evaluate(elapsed, h, aborted, l.config.Limits); ok {
			l.logger.Info("termination condition", slog.String("cause", cause.String()),
				slog.Duration("elapsed", elapsed), slog.Float64("altitude", h))
			return cause, nil
		}

		if actuationFailures >= l.config.MaxActuationFailures {
			return CauseOperatorAbort, fmt.Errorf("%w: %d consecutive actuation failures", ErrDegradedLink, actuationFailures)
		}
		if t.ConsecutiveFailures >= l.config.MaxTelemetryFailures {
			return CauseOperatorAbort, fmt.Errorf("%w: %d consecutive telemetry failures", ErrDegradedLink, t.ConsecutiveFailures)
		}

		deadline, skipped := nextDeadline(start, period, cycle, time.Now())
		if skipped > 0 {
			result.Overruns++
			l.logger.Debug("cycle overrun", slog.Int("cycle", cycle), slog.Int("skipped", skipped))
		}
		cycle += skipped

		timer.Reset(time.Until(deadline))
		select {
		case <-timer.C:
		case <-l.abort.Done():
			l.logger.Info("termination condition", slog.String("cause", CauseOperatorAbort.String()))
			return CauseOperatorAbort, nil
		case <-ctx.Done():
			l.logger.Info("termination condition", slog.String("cause", CauseOperatorAbort.String()),
				slog.String("reason", ctx.Err().Error()))
			return CauseOperatorAbort, nil
		}
	}
}

func (l *Loop) setPhase(p Phase) {
	l.phase.Store(int32(p))
	l.logger.Debug("phase", slog.String("phase", p.String()))
}

// nextDeadline returns the absolute boundary that follows cycle (1-based) on the grid
// start + k*period. When now is already past it, whole periods are skipped and their
// count is returned, so drift never accumulates.
func nextDeadline(start time.Time, period time.Duration, cycle int, now time.Time) (time.Time, int) {
	deadline := start.Add(time.Duration(cycle) * period)
	if !now.After(deadline) {
		return deadline, 0
	}

	next := int(now.Sub(start)/period) + 1
	return start.Add(time.Duration(next) * period), next - cycle
}
