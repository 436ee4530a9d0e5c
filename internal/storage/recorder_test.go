package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/altitude-hold/internal/control"
)

// blockingWriter holds every StoreSamples call until released
type blockingWriter struct {
	release chan struct{}

	mu      sync.Mutex
	samples []control.Sample
	report  *control.Report
	dropped int
}

func (w *blockingWriter) StoreSamples(_ context.Context, _ int64, samples []control.Sample) error {
	<-w.release

	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = append(w.samples, samples...)
	return nil
}

func (w *blockingWriter) FinishFlight(_ context.Context, _ int64, report control.Report, dropped int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.report = &report
	w.dropped = dropped
	return nil
}

func TestRecorder_PersistsFlight(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id := uuid.New()
	flightID, err := store.CreateFlight(ctx, id, "fake", nil)
	if err != nil {
		t.Fatalf("Failed to create flight: %v", err)
	}

	recorder := NewRecorder(store, flightID, WithMaxBatchSize(7), WithFlushInterval(10*time.Millisecond))

	want := testSamples(50)
	for _, s := range want {
		recorder.Append(s)
	}
	recorder.Report(control.Report{Cause: control.CauseTimeExpired, Battery: 80, Cycles: 50})

	if err = recorder.Close(); err != nil {
		t.Fatalf("Failed to close recorder: %v", err)
	}
	if err = recorder.Close(); err != nil {
		t.Errorf("Expected second Close to succeed, got %v", err)
	}
	if recorder.Dropped() != 0 {
		t.Errorf("Expected no dropped samples, got %d", recorder.Dropped())
	}

	got, err := store.Samples(ctx, flightID)
	if err != nil {
		t.Fatalf("Failed to read samples: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d samples, got %d", len(want), len(got))
	}

	flight, err := store.Flight(ctx, id)
	if err != nil {
		t.Fatalf("Failed to read flight: %v", err)
	}
	if flight.Report == nil || flight.Report.Cause != "time_expired" || flight.Report.Battery != 80 {
		t.Errorf("Unexpected report %+v", flight.Report)
	}
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	writer := &blockingWriter{release: make(chan struct{})}
	recorder := NewRecorder(writer, 1, WithMaxBatchSize(1), WithBufferSize(1), WithFlushInterval(time.Hour))

	const total = 10

	start := time.Now()
	for _, s := range testSamples(total) {
		recorder.Append(s)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Expected Append not to block, took %s", elapsed)
	}

	dropped := recorder.Dropped()
	if dropped < total-2 {
		t.Errorf("Expected at least %d dropped samples, got %d", total-2, dropped)
	}

	recorder.Report(control.Report{Cause: control.CauseOperatorAbort})
	close(writer.release)

	if err := recorder.Close(); err != nil {
		t.Fatalf("Failed to close recorder: %v", err)
	}

	writer.mu.Lock()
	defer writer.mu.Unlock()

	if len(writer.samples)+recorder.Dropped() != total {
		t.Errorf("Expected stored + dropped = %d, got %d + %d", total, len(writer.samples), recorder.Dropped())
	}
	if writer.report == nil || writer.report.Cause != control.CauseOperatorAbort {
		t.Errorf("Unexpected report %+v", writer.report)
	}
	if writer.dropped != recorder.Dropped() {
		t.Errorf("Expected reported drops %d, got %d", recorder.Dropped(), writer.dropped)
	}
}

func TestRecorder_AppendAfterClose(t *testing.T) {
	writer := &blockingWriter{release: make(chan struct{})}
	close(writer.release)

	recorder := NewRecorder(writer, 1)
	if err := recorder.Close(); err != nil {
		t.Fatalf("Failed to close recorder: %v", err)
	}

	recorder.Append(control.Sample{Cycle: 1})
	if recorder.Dropped() != 1 {
		t.Errorf("Expected sample appended after Close to be dropped, got %d", recorder.Dropped())
	}
	if writer.report != nil {
		t.Errorf("Expected no report without Report call, got %+v", writer.report)
	}
}
