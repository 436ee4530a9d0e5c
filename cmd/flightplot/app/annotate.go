package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/roman-kulish/altitude-hold/internal/storage"
)

const (
	dpi     float64 = 72
	hinting string  = "full"
	size    float64 = 18
	spacing float64 = 1.1

	// InfoHeight is the height of the information band below the charts
	InfoHeight = 120
)

var infoBackground = color.RGBA{R: 0x20, G: 0x20, B: 0x28, A: 0xff}

type Annotator struct {
	context *freetype.Context
}

func NewAnnotator() (*Annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	context := freetype.NewContext()
	context.SetDPI(dpi)
	context.SetFont(parsedFont)
	context.SetFontSize(size)
	context.SetSrc(image.White)

	switch hinting {
	case "full":
		context.SetHinting(font.HintingFull)
	default:
		context.SetHinting(font.HintingNone)
	}

	return &Annotator{context: context}, nil
}

// Annotate draws the flight information into the band of InfoHeight pixels at the bottom of img
func (a *Annotator) Annotate(img *image.RGBA, flight *storage.Flight, stats Stats) error {
	bounds := img.Bounds()
	if bounds.Dy() <= InfoHeight {
		return fmt.Errorf("image height %d leaves no room for the information band", bounds.Dy())
	}

	band := image.Rect(bounds.Min.X, bounds.Max.Y-InfoHeight, bounds.Max.X, bounds.Max.Y)
	draw.Draw(img, band, image.NewUniform(infoBackground), image.Point{}, draw.Src)

	a.context.SetClip(band)
	a.context.SetDst(img)

	pt := freetype.Pt(band.Min.X+10, band.Min.Y+int(size)+8)
	for _, s := range infoLines(flight, stats) {
		if _, err := a.context.DrawString(s, pt); err != nil {
			return fmt.Errorf("drawing info: %w", err)
		}
		pt.Y += a.context.PointToFixed(size * spacing)
	}

	return nil
}

func infoLines(flight *storage.Flight, stats Stats) []string {
	lines := []string{
		fmt.Sprintf("Flight %s on %s, started %s (%s)",
			flight.UUID, flight.Vehicle, flight.StartTime.Local().Format(time.DateTime), humanize.Time(flight.StartTime)),
		fmt.Sprintf("Samples: %s, altitude %.1f to %.1f cm, RMS error %.1f cm, saturated %s cycles",
			humanize.Comma(int64(stats.Samples)), stats.MinAltitude, stats.MaxAltitude, stats.RMSError,
			humanize.Comma(int64(stats.Saturated))),
	}

	r := flight.Report
	if r == nil {
		return append(lines, "Flight did not finish")
	}

	battery := "unknown"
	if r.Battery >= 0 {
		battery = fmt.Sprintf("%d%%", r.Battery)
	}
	summary := fmt.Sprintf("Ended by %s after %s, %s cycles, %s dropped, battery %s",
		r.Cause, r.Elapsed.Round(time.Millisecond), humanize.Comma(int64(r.Cycles)), humanize.Comma(int64(r.Dropped)), battery)
	if r.Error != nil {
		summary += ", error: " + *r.Error
	}
	return append(lines, summary)
}
