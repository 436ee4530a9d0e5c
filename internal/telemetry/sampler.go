package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultPeriod is the default altitude polling period
	DefaultPeriod = 50 * time.Millisecond

	// FailuresThreshold defines the number of consecutive polling failures after which
	// telemetry is reported as degraded
	FailuresThreshold = 10
)

var (
	// ErrAlreadySampling is returned when BeginSampling is called on a running sampler
	ErrAlreadySampling = errors.New("sampler is already running")

	// ErrNoSample is returned when no altitude sample arrives within the startup window
	ErrNoSample = errors.New("no altitude sample received")

	// ErrNonFinite is recorded as a polling failure when the vehicle reports NaN or Inf
	ErrNonFinite = errors.New("non-finite altitude")
)

// HeightReader is the part of the vehicle the sampler polls
type HeightReader interface {
	Height(ctx context.Context) (float64, error)
}

// WithLogger sets the logger for the sampler
func WithLogger(logger *slog.Logger) func(*Sampler) {
	return func(s *Sampler) {
		s.logger = logger.With(slog.String("component", "sampler"))
	}
}

// WithPeriod sets the polling period
func WithPeriod(period time.Duration) func(*Sampler) {
	return func(s *Sampler) {
		s.period = period
	}
}

// WithFailuresThreshold sets the number of consecutive failures reported as degraded
func WithFailuresThreshold(threshold int) func(*Sampler) {
	return func(s *Sampler) {
		s.failuresThreshold = threshold
	}
}

// Sampler polls the vehicle for altitude at a fixed period and publishes it into a State
type Sampler struct {
	source HeightReader
	state  *State

	isSampling atomic.Bool
	wg         sync.WaitGroup

	period            time.Duration
	failuresThreshold int
	logger            *slog.Logger
}

// NewSampler creates a new Sampler with a discard logger
func NewSampler(source HeightReader, state *State, options ...func(*Sampler)) *Sampler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	s := Sampler{
		source:            source,
		state:             state,
		period:            DefaultPeriod,
		failuresThreshold: FailuresThreshold,
		logger:            logger,
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// BeginSampling starts polling in the background. The returned channel is closed once
// the sampler has exited, which happens within one period of State.SignalStop or ctx
// cancellation.
func (s *Sampler) BeginSampling(ctx context.Context) (<-chan struct{}, error) {
	if !s.isSampling.CompareAndSwap(false, true) {
		return nil, ErrAlreadySampling
	}

	done := make(chan struct{})

	s.wg.Add(1)
	go func() {
		defer func() {
			s.isSampling.Store(false)
			s.wg.Done()
			close(done)
		}()

		s.logger.Info("starting altitude sampling", slog.Duration("period", s.period))
		s.run(ctx)
		s.logger.Info("altitude sampling stopped")
	}()

	return done, nil
}

// Stop signals the sampler to stop and waits for it to exit
func (s *Sampler) Stop() {
	s.state.SignalStop()
	s.wg.Wait()
}

// IsSampling returns true if the sampler goroutine is running
func (s *Sampler) IsSampling() bool {
	return s.isSampling.Load()
}

func (s *Sampler) run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	var degraded bool
	for {
		// SignalStop may race with the ticker firing; never poll once stopped
		if !s.state.Alive() {
			return
		}

		s.poll(ctx, &degraded)

		select {
		case <-s.state.Stopped():
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sampler) poll(ctx context.Context, degraded *bool) {
	pollCtx, cancel := context.WithTimeout(ctx, s.period)
	defer cancel()

	altitude, err := s.source.Height(pollCtx)
	if err == nil && (math.IsNaN(altitude) || math.IsInf(altitude, 0)) {
		err = fmt.Errorf("%w: %g", ErrNonFinite, altitude)
	}
	if err != nil {
		failures := s.state.RecordFailure()
		s.logger.Warn(fmt.Sprintf("error polling altitude: %s", err.Error()), slog.Int("failures", failures))

		if failures >= s.failuresThreshold && !*degraded {
			*degraded = true
			s.logger.Error("telemetry degraded", slog.Int("failures", failures))
		}
		return
	}

	if *degraded {
		*degraded = false
		s.logger.Info("telemetry recovered")
	}

	s.state.Write(altitude)
}

// AwaitFirstSample blocks until the provider holds a valid sample, polling every period,
// and fails with ErrNoSample once timeout elapses.
func AwaitFirstSample(ctx context.Context, p Provider, period, timeout time.Duration) (Telemetry, error) {
	return awaitSample(ctx, p, period, timeout, Telemetry.Valid)
}

// AwaitFreshSample is like AwaitFirstSample but only accepts a sample taken by the most
// recent poll, so a last-known-good value retained through failures is never returned.
func AwaitFreshSample(ctx context.Context, p Provider, period, timeout time.Duration) (Telemetry, error) {
	return awaitSample(ctx, p, period, timeout, Telemetry.Fresh)
}

func awaitSample(ctx context.Context, p Provider, period, timeout time.Duration, accept func(Telemetry) bool) (Telemetry, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		if t := p.Get(); accept(t) {
			return t, nil
		}

		select {
		case <-ctx.Done():
			return Telemetry{}, fmt.Errorf("%w within %s: %w", ErrNoSample, timeout, ctx.Err())
		case <-ticker.C:
		}
	}
}
