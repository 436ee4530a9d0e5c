package app

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/roman-kulish/altitude-hold/internal/storage"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	if config.List {
		return listFlights(ctx, store, os.Stdout)
	}
	return plotFlight(ctx, store, config, logger)
}

func listFlights(ctx context.Context, store storage.Store, w io.Writer) error {
	flights, err := store.Flights(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "FLIGHT\tVEHICLE\tSTARTED\tCAUSE\tCYCLES\tBATTERY")
	for _, f := range flights {
		cause, cycles, battery := "-", "-", "-"
		if f.Report != nil {
			cause = f.Report.Cause
			cycles = humanize.Comma(int64(f.Report.Cycles))
			if f.Report.Battery >= 0 {
				battery = fmt.Sprintf("%d%%", f.Report.Battery)
			}
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			f.UUID, f.Vehicle, f.StartTime.Local().Format(time.DateTime), cause, cycles, battery)
	}
	return tw.Flush()
}

func findFlight(ctx context.Context, store storage.Store, id uuid.UUID) (*storage.Flight, error) {
	if id != uuid.Nil {
		return store.Flight(ctx, id)
	}

	flights, err := store.Flights(ctx)
	if err != nil {
		return nil, err
	}
	if len(flights) == 0 {
		return nil, fmt.Errorf("flights: %w", storage.ErrNoData)
	}
	return flights[len(flights)-1], nil
}

func plotFlight(ctx context.Context, store storage.Store, config *Config, logger *slog.Logger) error {
	flight, err := findFlight(ctx, store, config.FlightID)
	if err != nil {
		return err
	}

	samples, err := store.Samples(ctx, flight.ID)
	if err != nil {
		return err
	}

	series, err := NewSeries(samples)
	if err != nil {
		return err
	}
	stats := NewStats(samples)

	logger.Info("finished reading samples",
		slog.Group("flight",
			slog.String("id", flight.UUID.String()),
			slog.String("vehicle", flight.Vehicle),
			slog.String("started", flight.StartTime.Local().Format(time.DateTime)),
			slog.Int("samples", stats.Samples),
			slog.String("maxAltitude", fmt.Sprintf("%0.1fcm", stats.MaxAltitude)),
			slog.String("rmsError", fmt.Sprintf("%0.1fcm", stats.RMSError)),
		))

	img, err := render(series, flight, stats, config)
	if err != nil {
		return err
	}

	logger.Info("writing charts",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.Int("width", config.Width),
			slog.Int("height", config.Height),
		))

	return writeImage(config.OutputFile, config.Format, img)
}

func render(series *Series, flight *storage.Flight, stats Stats, config *Config) (*image.RGBA, error) {
	if config.NoAnnotations {
		img, err := RenderCharts(series, config.Width, config.Height)
		if err != nil {
			return nil, fmt.Errorf("rendering charts: %w", err)
		}
		return img, nil
	}

	charts, err := RenderCharts(series, config.Width, config.Height-InfoHeight)
	if err != nil {
		return nil, fmt.Errorf("rendering charts: %w", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, config.Width, config.Height))
	draw.Draw(img, charts.Bounds(), charts, image.Point{}, draw.Src)

	annotator, err := NewAnnotator()
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	if err = annotator.Annotate(img, flight, stats); err != nil {
		return nil, fmt.Errorf("annotating charts: %w", err)
	}
	return img, nil
}

func writeImage(path string, format ImageFormat, img image.Image) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	switch format {
	case ImageJPEG:
		return jpeg.Encode(out, img, &jpeg.Options{
			Quality: 98,
		})
	default:
		return png.Encode(out, img)
	}
}
