package app

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	stddraw "image/draw"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/roman-kulish/altitude-hold/internal/control"
	"github.com/roman-kulish/altitude-hold/internal/vehicle"
)

var (
	altitudeColor = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	setpointColor = color.RGBA{R: 0x7f, G: 0x7f, B: 0x7f, A: 0xff}
	errorColor    = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
	outputColor   = color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff}
	limitColor    = color.RGBA{R: 0xbc, G: 0xbd, B: 0x22, A: 0xff}
)

// Series holds the plotted time series of a flight, X is the elapsed time in seconds
type Series struct {
	Altitude plotter.XYs
	Setpoint plotter.XYs
	Error    plotter.XYs
	Output   plotter.XYs
}

func NewSeries(samples []control.Sample) (*Series, error) {
	if len(samples) == 0 {
		return nil, errors.New("no samples to plot")
	}

	s := &Series{
		Altitude: make(plotter.XYs, len(samples)),
		Setpoint: make(plotter.XYs, len(samples)),
		Error:    make(plotter.XYs, len(samples)),
		Output:   make(plotter.XYs, len(samples)),
	}
	for i, sample := range samples {
		t := sample.Elapsed.Seconds()

		s.Altitude[i] = plotter.XY{X: t, Y: sample.Altitude}
		s.Setpoint[i] = plotter.XY{X: t, Y: sample.Altitude + sample.Error}
		s.Error[i] = plotter.XY{X: t, Y: sample.Error}
		s.Output[i] = plotter.XY{X: t, Y: sample.Output}
	}
	return s, nil
}

// Stats is a summary of the recorded samples
type Stats struct {
	Samples     int
	MaxAltitude float64
	MinAltitude float64
	RMSError    float64
	Saturated   int // cycles where the output hit the velocity limit
}

func NewStats(samples []control.Sample) Stats {
	st := Stats{
		Samples:     len(samples),
		MaxAltitude: math.Inf(-1),
		MinAltitude: math.Inf(1),
	}
	if len(samples) == 0 {
		st.MaxAltitude, st.MinAltitude = 0, 0
		return st
	}

	var sq float64
	for _, s := range samples {
		st.MaxAltitude = math.Max(st.MaxAltitude, s.Altitude)
		st.MinAltitude = math.Min(st.MinAltitude, s.Altitude)
		sq += s.Error * s.Error
		if math.Abs(s.Output) >= vehicle.MaxVelocity {
			st.Saturated++
		}
	}
	st.RMSError = math.Sqrt(sq / float64(len(samples)))
	return st
}

func newLine(xys plotter.XYs, c color.Color, dashed bool) (*plotter.Line, error) {
	line, err := plotter.NewLine(xys)
	if err != nil {
		return nil, err
	}
	line.LineStyle.Color = c
	line.LineStyle.Width = vg.Points(1.5)
	if dashed {
		line.LineStyle.Dashes = []vg.Length{vg.Points(6), vg.Points(4)}
	}
	return line, nil
}

func newPlot(title, ylabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = ylabel
	p.Legend.Top = true
	p.Add(plotter.NewGrid())
	return p
}

func altitudePlot(s *Series) (*plot.Plot, error) {
	p := newPlot("Altitude", "altitude (cm)")

	setpoint, err := newLine(s.Setpoint, setpointColor, true)
	if err != nil {
		return nil, err
	}
	altitude, err := newLine(s.Altitude, altitudeColor, false)
	if err != nil {
		return nil, err
	}

	p.Add(setpoint, altitude)
	p.Legend.Add("setpoint", setpoint)
	p.Legend.Add("altitude", altitude)
	return p, nil
}

func errorPlot(s *Series) (*plot.Plot, error) {
	p := newPlot("Error", "setpoint - altitude (cm)")

	line, err := newLine(s.Error, errorColor, false)
	if err != nil {
		return nil, err
	}

	p.Add(line)
	p.Legend.Add("error", line)
	return p, nil
}

func outputPlot(s *Series) (*plot.Plot, error) {
	p := newPlot("Control output", "u (velocity)")

	line, err := newLine(s.Output, outputColor, false)
	if err != nil {
		return nil, err
	}
	p.Add(line)
	p.Legend.Add("u", line)

	for _, limit := range []float64{vehicle.MaxVelocity, -vehicle.MaxVelocity} {
		fn := plotter.NewFunction(func(float64) float64 { return limit })
		fn.LineStyle.Color = limitColor
		fn.LineStyle.Dashes = []vg.Length{vg.Points(2), vg.Points(3)}
		p.Add(fn)
	}
	p.Y.Min = -vehicle.MaxVelocity * 1.1
	p.Y.Max = vehicle.MaxVelocity * 1.1
	return p, nil
}

// RenderCharts draws the altitude, error and control output charts stacked on top of each other
func RenderCharts(s *Series, width, height int) (*image.RGBA, error) {
	builders := []struct {
		msg string
		fn  func(*Series) (*plot.Plot, error)
	}{
		{"altitude chart", altitudePlot},
		{"error chart", errorPlot},
		{"control output chart", outputPlot},
	}

	plots := make([][]*plot.Plot, len(builders))
	for i, b := range builders {
		p, err := b.fn(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.msg, err)
		}
		plots[i] = []*plot.Plot{p}
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	stddraw.Draw(img, img.Bounds(), image.White, image.Point{}, stddraw.Src)

	dc := draw.New(vgimg.NewWith(vgimg.UseImage(img)))
	tiles := draw.Tiles{
		Rows:      len(plots),
		Cols:      1,
		PadTop:    vg.Points(8),
		PadBottom: vg.Points(8),
		PadLeft:   vg.Points(8),
		PadRight:  vg.Points(16),
		PadY:      vg.Points(16),
	}

	canvases := plot.Align(plots, tiles, dc)
	for i := range plots {
		plots[i][0].Draw(canvases[i][0])
	}
	return img, nil
}
