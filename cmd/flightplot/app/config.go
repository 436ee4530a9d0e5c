package app

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"
)

const (
	DefaultWidth  = 1600
	DefaultHeight = 1200
)

type ImageFormat string

type Config struct {
	DBPath        string
	FlightID      uuid.UUID // uuid.Nil selects the most recent flight
	OutputFile    string
	Format        ImageFormat
	Width         int
	Height        int
	List          bool
	NoAnnotations bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format: ImagePNG,
		Width:  DefaultWidth,
		Height: DefaultHeight,
	}
}

func NewConfigFromCLI() (*Config, error) {
	return NewConfigFromArgs(os.Args[0], os.Args[1:], os.Stderr)
}

// NewConfigFromArgs parses the command line arguments, usage is printed to output on error
func NewConfigFromArgs(name string, args []string, output io.Writer) (*Config, error) {
	c := NewConfig()

	var flightID, imageFormat string
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&c.DBPath, "db", "", "Path to the flight recorder database file")
	fs.StringVar(&flightID, "f", "", "Flight ID, the most recent flight when empty")
	fs.StringVar(&c.OutputFile, "o", "", "Path to the output file, without extension")
	fs.StringVar(&imageFormat, "format", string(ImagePNG), "Output image format. [png, jpeg]")
	fs.IntVar(&c.Width, "width", DefaultWidth, "Image width in pixels")
	fs.IntVar(&c.Height, "height", DefaultHeight, "Image height in pixels")
	fs.BoolVar(&c.List, "list", false, "List recorded flights and exit")
	fs.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable the flight information band")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	imageFormat = strings.ToLower(imageFormat)

	var err error
	if c.DBPath == "" {
		err = errors.New("db path is required")
	} else if flightID != "" {
		if c.FlightID, err = uuid.Parse(flightID); err != nil {
			err = fmt.Errorf("invalid flight id: %w", err)
		}
	}
	if err == nil && !c.List {
		if c.OutputFile == "" {
			err = errors.New("output file is required")
		} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
			err = fmt.Errorf("invalid image format: %s", imageFormat)
		} else if c.Width < 320 || c.Height < 240 {
			err = fmt.Errorf("image is too small: %dx%d", c.Width, c.Height)
		}
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	if c.OutputFile != "" {
		c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	}
	return c, nil
}
