package app

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/altitude-hold/internal/control"
	"github.com/roman-kulish/altitude-hold/internal/storage"
)

func testSamples(n int) []control.Sample {
	samples := make([]control.Sample, n)
	for i := range samples {
		altitude := 50 * (1 - math.Exp(-float64(i)/10))
		output := max(-100, min(3.15*(50-altitude), 100))
		samples[i] = control.Sample{
			Cycle:    i + 1,
			Elapsed:  time.Duration(i) * 50 * time.Millisecond,
			Altitude: altitude,
			Error:    50 - altitude,
			Output:   output,
			Command:  int(math.Round(output)),
		}
	}
	return samples
}

func newRecordedFlight(t *testing.T, store storage.Store, finished bool) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	id := uuid.New()
	flightID, err := store.CreateFlight(ctx, id, "fake", nil)
	if err != nil {
		t.Fatalf("Failed to create flight: %v", err)
	}
	if err = store.StoreSamples(ctx, flightID, testSamples(40)); err != nil {
		t.Fatalf("Failed to store samples: %v", err)
	}
	if finished {
		report := control.Report{Cause: control.CauseTimeExpired, Battery: 88, Cycles: 40, Elapsed: 2 * time.Second}
		if err = store.FinishFlight(ctx, flightID, report, 0); err != nil {
			t.Fatalf("Failed to finish flight: %v", err)
		}
	}
	return id
}

func TestPlotFlight(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewSqliteStore(filepath.Join(dir, "flights.sqlite"))
	defer store.Close()

	id := newRecordedFlight(t, store, true)

	tests := []struct {
		name          string
		noAnnotations bool
	}{
		{"annotated", false},
		{"charts only", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewConfig()
			config.FlightID = id
			config.Width, config.Height = 800, 600
			config.NoAnnotations = tt.noAnnotations
			config.OutputFile = filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "-")+".png")

			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			if err := plotFlight(context.Background(), store, config, logger); err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			data, err := os.ReadFile(config.OutputFile)
			if err != nil {
				t.Fatalf("Failed to read image: %v", err)
			}
			img, err := png.Decode(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("Failed to decode image: %v", err)
			}
			if size := img.Bounds().Size(); size.X != 800 || size.Y != 600 {
				t.Errorf("Expected 800x600 image, got %dx%d", size.X, size.Y)
			}

			band := color.RGBAModel.Convert(img.At(2, 598)).(color.RGBA)
			if !tt.noAnnotations && band != infoBackground {
				t.Errorf("Expected the information band at the bottom, got %v", band)
			}
			if tt.noAnnotations && band == infoBackground {
				t.Errorf("Expected no information band")
			}
		})
	}
}

func TestPlotFlight_MostRecent(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewSqliteStore(filepath.Join(dir, "flights.sqlite"))
	defer store.Close()

	newRecordedFlight(t, store, true)
	latest := newRecordedFlight(t, store, false)

	flight, err := findFlight(context.Background(), store, uuid.Nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if flight.UUID != latest {
		t.Errorf("Expected the most recent flight %s, got %s", latest, flight.UUID)
	}

	if _, err = findFlight(context.Background(), store, uuid.New()); !errors.Is(err, storage.ErrNoData) {
		t.Errorf("Expected ErrNoData for unknown flight, got %v", err)
	}
}

func TestListFlights(t *testing.T) {
	store := storage.NewSqliteStore(filepath.Join(t.TempDir(), "flights.sqlite"))
	defer store.Close()

	finished := newRecordedFlight(t, store, true)
	unfinished := newRecordedFlight(t, store, false)

	var out bytes.Buffer
	if err := listFlights(context.Background(), store, &out); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected a header and 2 flights, got %q", out.String())
	}
	if !strings.Contains(lines[1], finished.String()) || !strings.Contains(lines[1], "time_expired") || !strings.Contains(lines[1], "88%") {
		t.Errorf("Unexpected finished flight line %q", lines[1])
	}
	if !strings.Contains(lines[2], unfinished.String()) {
		t.Errorf("Unexpected unfinished flight line %q", lines[2])
	}
}

func TestNewStats(t *testing.T) {
	samples := []control.Sample{
		{Altitude: 10, Error: 3, Output: 100},
		{Altitude: 40, Error: -4, Output: -12.6},
	}

	stats := NewStats(samples)
	if stats.Samples != 2 || stats.MinAltitude != 10 || stats.MaxAltitude != 40 || stats.Saturated != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
	if want := math.Sqrt(12.5); math.Abs(stats.RMSError-want) > 1e-9 {
		t.Errorf("Expected RMS error %f, got %f", want, stats.RMSError)
	}

	if empty := NewStats(nil); empty.MaxAltitude != 0 || empty.MinAltitude != 0 || empty.RMSError != 0 {
		t.Errorf("Unexpected stats for no samples %+v", empty)
	}
}

func TestNewSeries(t *testing.T) {
	if _, err := NewSeries(nil); err == nil {
		t.Errorf("Expected an error for no samples")
	}

	series, err := NewSeries([]control.Sample{{Elapsed: 1500 * time.Millisecond, Altitude: 20, Error: 30, Output: 94.5}})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if series.Setpoint[0].X != 1.5 || series.Setpoint[0].Y != 50 {
		t.Errorf("Expected setpoint point (1.5, 50), got %+v", series.Setpoint[0])
	}
	if series.Output[0].Y != 94.5 {
		t.Errorf("Expected output 94.5, got %f", series.Output[0].Y)
	}
}
