package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/roman-kulish/altitude-hold/internal/control"
)

// ErrNoData is returned when a flight or its samples do not exist
var ErrNoData = errors.New("no data")

// Store provides an interface for the flight recorder. It handles flights, their control
// samples and final reports in a thread-safe manner. All operations that write to the
// database should be considered atomic.
type Store interface {
	// CreateFlight registers a new flight and returns its database identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - id: Unique flight identifier
	//   - vehicle: Name of the vehicle transport (e.g., "tello", "fake")
	//   - config: Optional flight configuration. Can be string, []byte, or JSON-serializable object
	//
	// Returns:
	//   - flightID: Database identifier of the created flight
	//   - error: If flight creation fails or context is cancelled
	CreateFlight(ctx context.Context, id uuid.UUID, vehicle string, config any) (flightID int64, err error)

	// StoreSamples saves a batch of control samples of a flight in a single transaction.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - flightID: Database identifier of the flight
	//   - samples: Control samples in chronological order
	//
	// Returns:
	//   - error: If storage fails or context is cancelled
	StoreSamples(ctx context.Context, flightID int64, samples []control.Sample) error

	// FinishFlight stores the final report of a flight.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - flightID: Database identifier of the flight
	//   - report: Final vehicle status produced by the shutdown sequence
	//   - dropped: Number of samples that could not be persisted
	//
	// Returns:
	//   - error: If storage fails, the flight is already finished, or context is cancelled
	FinishFlight(ctx context.Context, flightID int64, report control.Report, dropped int) error

	// Flight retrieves a flight by its unique identifier.
	//
	// Returns ErrNoData if the flight does not exist.
	Flight(ctx context.Context, id uuid.UUID) (*Flight, error)

	// Flights returns all recorded flights ordered by start time in ascending order.
	Flights(ctx context.Context) ([]*Flight, error)

	// Samples returns the control samples of a flight ordered by cycle.
	//
	// Returns ErrNoData if the flight has no samples.
	Samples(ctx context.Context, flightID int64) ([]control.Sample, error)

	// Close releases all database connections and resources.
	// After Close is called, the store instance cannot be reused.
	// It is safe to call Close multiple times.
	Close() error
}
