package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/altitude-hold/internal/control"
)

const (
	DefaultMaxBatchSize  = 100
	DefaultFlushInterval = 500 * time.Millisecond
	DefaultBufferSize    = 1024

	writeTimeout = 5 * time.Second
)

// FlightWriter is the part of the Store used by the Recorder
type FlightWriter interface {
	StoreSamples(ctx context.Context, flightID int64, samples []control.Sample) error
	FinishFlight(ctx context.Context, flightID int64, report control.Report, dropped int) error
}

// WithLogger sets the logger for the recorder
func WithLogger(logger *slog.Logger) func(*Recorder) {
	return func(r *Recorder) {
		r.logger = logger.With(slog.String("component", "recorder"))
	}
}

// WithMaxBatchSize sets the maximum number of samples stored within a single database
// transaction
func WithMaxBatchSize(size int) func(*Recorder) {
	return func(r *Recorder) {
		r.maxBatchSize = size
	}
}

// WithFlushInterval sets how often a partial batch is written
func WithFlushInterval(interval time.Duration) func(*Recorder) {
	return func(r *Recorder) {
		r.flushInterval = interval
	}
}

// WithBufferSize sets how many samples may be queued before new ones are dropped
func WithBufferSize(size int) func(*Recorder) {
	return func(r *Recorder) {
		r.bufferSize = size
	}
}

// Recorder is a control.Sink persisting the samples and the final report of one flight.
// Append never blocks: when the queue is full the sample is dropped and counted.
type Recorder struct {
	writer   FlightWriter
	flightID int64

	samples chan control.Sample
	report  atomic.Pointer[control.Report]
	dropped atomic.Int64

	maxBatchSize  int
	flushInterval time.Duration
	bufferSize    int

	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error

	logger *slog.Logger
}

var _ control.Sink = (*Recorder)(nil)

// NewRecorder creates a Recorder for the flight and starts its writer goroutine. Close
// must be called to flush the remaining samples and store the report.
func NewRecorder(writer FlightWriter, flightID int64, options ...func(*Recorder)) *Recorder {
	r := Recorder{
		writer:        writer,
		flightID:      flightID,
		maxBatchSize:  DefaultMaxBatchSize,
		flushInterval: DefaultFlushInterval,
		bufferSize:    DefaultBufferSize,
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&r)
	}

	r.maxBatchSize = max(r.maxBatchSize, 1)
	r.samples = make(chan control.Sample, max(r.bufferSize, 0))

	go r.run()

	return &r
}

// Append queues a sample for storage
func (r *Recorder) Append(s control.Sample) {
	select {
	case <-r.quit:
		r.dropped.Add(1)
		return
	default:
	}

	select {
	case r.samples <- s:
	default:
		if n := r.dropped.Add(1); n == 1 {
			r.logger.Warn("recorder queue full, dropping samples")
		}
	}
}

// Report keeps the final report; it is stored by Close after the last samples
func (r *Recorder) Report(report control.Report) {
	r.report.Store(&report)
}

// Dropped returns the number of samples that were not persisted
func (r *Recorder) Dropped() int {
	return int(r.dropped.Load())
}

// Close flushes the queued samples, stores the final report and stops the writer. It is
// safe to call Close multiple times.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.quit)
		<-r.done

		report := r.report.Load()
		if report == nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		if err := r.writer.FinishFlight(ctx, r.flightID, *report, r.Dropped()); err != nil {
			r.closeErr = fmt.Errorf("storing report: %w", err)
		}
	})

	return r.closeErr
}

func (r *Recorder) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	batch := make([]control.Sample, 0, r.maxBatchSize)
	for {
		select {
		case s := <-r.samples:
			if batch = append(batch, s); len(batch) >= r.maxBatchSize {
				batch = r.flush(batch)
			}

		case <-ticker.C:
			batch = r.flush(batch)

		case <-r.quit:
			for {
				select {
				case s := <-r.samples:
					if batch = append(batch, s); len(batch) >= r.maxBatchSize {
						batch = r.flush(batch)
					}
				default:
					r.flush(batch)
					return
				}
			}
		}
	}
}

// flush stores the batch and returns it emptied for reuse
func (r *Recorder) flush(batch []control.Sample) []control.Sample {
	if len(batch) == 0 {
		return batch
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.writer.StoreSamples(ctx, r.flightID, batch); err != nil {
		r.dropped.Add(int64(len(batch)))
		r.logger.Error(fmt.Sprintf("storing %d samples: %s", len(batch), err.Error()))
	}

	return batch[:0]
}
