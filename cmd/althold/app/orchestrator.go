package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/roman-kulish/altitude-hold/internal/control"
	"github.com/roman-kulish/altitude-hold/internal/flight"
	"github.com/roman-kulish/altitude-hold/internal/operator"
	"github.com/roman-kulish/altitude-hold/internal/storage"
	"github.com/roman-kulish/altitude-hold/internal/vehicle"
)

const operatorStopTimeout = 5 * time.Second

// Orchestrator runs one flight: it registers the flight with the recorder, flies the
// session, serves the operator API while airborne and stores the final report.
type Orchestrator struct {
	store   storage.Store
	vehicle vehicle.Vehicle
	config  *Config

	logger *slog.Logger
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(store storage.Store, v vehicle.Vehicle, config *Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:   store,
		vehicle: v,
		config:  config,
		logger:  logger,
	}
}

// Run flies once and returns the flight result
func (o *Orchestrator) Run(ctx context.Context) (*control.Result, error) {
	id := uuid.New()
	logger := o.logger.With(slog.String("flight", id.String()))

	flightID, err := o.store.CreateFlight(ctx, id, o.vehicle.Name(), o.config)
	if err != nil {
		return nil, fmt.Errorf("creating flight record: %w", err)
	}

	recorder := storage.NewRecorder(o.store, flightID,
		storage.WithLogger(logger),
		storage.WithMaxBatchSize(o.config.Storage.MaxBatchSize),
		storage.WithFlushInterval(o.config.Storage.FlushInterval.Std()))

	session, err := flight.NewSession(o.config.flightConfig(), o.vehicle,
		flight.WithID(id),
		flight.WithSink(recorder),
		flight.WithLogger(o.logger))
	if err != nil {
		return nil, errors.Join(fmt.Errorf("creating flight session: %w", err), recorder.Close())
	}

	if o.config.Operator.Enabled {
		stop, err := o.serveOperator(session, logger)
		if err != nil {
			return nil, errors.Join(err, recorder.Close())
		}
		defer stop()
	}

	result, err := session.Fly(ctx)
	if closeErr := recorder.Close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}

	if result != nil {
		o.summarize(logger, result, recorder.Dropped())
	}

	return result, err
}

// serveOperator starts the operator API and returns a function stopping it
func (o *Orchestrator) serveOperator(session *flight.Session, logger *slog.Logger) (func(), error) {
	options := []func(*operator.Server){operator.WithLogger(logger)}

	if o.config.Operator.Secret != "" {
		verifier, err := operator.NewVerifier(o.config.Operator.Secret)
		if err != nil {
			return nil, fmt.Errorf("creating token verifier: %w", err)
		}
		options = append(options, operator.WithVerifier(verifier))
	} else {
		logger.Warn("operator API is not authenticated")
	}

	l, err := net.Listen("tcp", o.config.Operator.Listen)
	if err != nil {
		return nil, fmt.Errorf("listening for operator API: %w", err)
	}

	server := operator.NewServer(session, options...)
	go func() {
		if err := server.Serve(l); err != nil {
			logger.Error(err.Error())
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), operatorStopTimeout)
		defer cancel()

		if err := server.Stop(ctx); err != nil {
			logger.Error(err.Error())
		}
	}, nil
}

func (o *Orchestrator) summarize(logger *slog.Logger, result *control.Result, dropped int) {
	battery := "unknown"
	if result.Report.Battery >= 0 {
		battery = fmt.Sprintf("%d%%", result.Report.Battery)
	}

	logger.Info(fmt.Sprintf("flight finished after %s cycles in %s, battery %s",
		humanize.Comma(int64(result.Cycles)), result.Elapsed.Round(time.Millisecond), battery),
		slog.String("cause", result.Cause.String()),
		slog.Float64("baseline", result.Baseline),
		slog.Int("overruns", result.Overruns),
		slog.Int("dropped", dropped))

	if result.Report.Err != nil {
		logger.Warn(fmt.Sprintf("shutdown reported errors: %s", result.Report.Err.Error()))
	}
}
