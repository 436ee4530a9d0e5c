package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/altitude-hold/internal/control"
	"github.com/roman-kulish/altitude-hold/internal/flight"
	"github.com/roman-kulish/altitude-hold/internal/storage"
	"github.com/roman-kulish/altitude-hold/internal/vehicle/fake"
	"github.com/roman-kulish/altitude-hold/internal/vehicle/tello"
)

const (
	VehicleTello = tello.Device
	VehicleFake  = fake.Name
)

// Config represents the main application configuration
type Config struct {
	Settings Settings       `yaml:"settings" json:"settings"`
	Control  ControlConfig  `yaml:"control" json:"control"`
	Vehicle  VehicleConfig  `yaml:"vehicle" json:"vehicle"`
	Operator OperatorConfig `yaml:"operator" json:"operator"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel      slog.Level `yaml:"logLevel" json:"logLevel"`
	LogFile       string     `yaml:"logFile" json:"logFile"` // rotated log file, in addition to stdout
	LogMaxSizeMB  int        `yaml:"logMaxSizeMB" json:"logMaxSizeMB"`
	LogMaxBackups int        `yaml:"logMaxBackups" json:"logMaxBackups"`
}

// ControlConfig represents the controller and safety settings
type ControlConfig struct {
	Setpoint             float64  `yaml:"setpoint" json:"setpoint"` // cm above the baseline
	Gain                 float64  `yaml:"gain" json:"gain"`
	SamplePeriod         Duration `yaml:"samplePeriod" json:"samplePeriod"`
	FlightTime           Duration `yaml:"flightTime" json:"flightTime"`
	Ceiling              float64  `yaml:"ceiling" json:"ceiling"` // cm above the baseline
	Saturation           float64  `yaml:"saturation" json:"saturation"`
	InitTimeout          Duration `yaml:"initTimeout" json:"initTimeout"`
	TakeoffSettle        Duration `yaml:"takeoffSettle" json:"takeoffSettle"`
	ShutdownTimeout      Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`
	MaxActuationFailures int      `yaml:"maxActuationFailures" json:"maxActuationFailures"`
	MaxTelemetryFailures int      `yaml:"maxTelemetryFailures" json:"maxTelemetryFailures"`
}

// VehicleConfig represents the vehicle link settings
type VehicleConfig struct {
	Type           string   `yaml:"type" json:"type"`
	Address        string   `yaml:"address" json:"address"`
	CommandListen  string   `yaml:"commandListen" json:"commandListen"`
	StateListen    string   `yaml:"stateListen" json:"stateListen"`
	CommandTimeout Duration `yaml:"commandTimeout" json:"commandTimeout"`
}

// OperatorConfig represents the operator API settings
type OperatorConfig struct {
	Enabled     bool    `yaml:"enabled" json:"enabled"`
	Listen      string  `yaml:"listen" json:"listen"`
	Secret      string  `yaml:"secret" json:"-"`
	MaxSetpoint float64 `yaml:"maxSetpoint" json:"maxSetpoint"`
	MaxGain     float64 `yaml:"maxGain" json:"maxGain"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DataDirectory string   `yaml:"dataDirectory" json:"dataDirectory"`
	MaxBatchSize  int      `yaml:"maxBatchSize" json:"maxBatchSize"`
	FlushInterval Duration `yaml:"flushInterval" json:"flushInterval"`
}

// DefaultConfig returns the configuration of the fixed-setpoint flight
func DefaultConfig() *Config {
	def := flight.DefaultConfig()

	return &Config{
		Settings: Settings{
			LogLevel:      slog.LevelInfo,
			LogMaxSizeMB:  10,
			LogMaxBackups: 5,
		},
		Control: ControlConfig{
			Setpoint:             def.Parameters.Setpoint,
			Gain:                 def.Parameters.Gain,
			SamplePeriod:         Duration(def.Control.SamplePeriod),
			FlightTime:           Duration(def.Control.Limits.FlightTime),
			Ceiling:              def.Control.Limits.Ceiling,
			Saturation:           def.Control.Saturation,
			InitTimeout:          Duration(def.Control.InitTimeout),
			TakeoffSettle:        Duration(def.TakeoffSettle),
			ShutdownTimeout:      Duration(def.Control.ShutdownTimeout),
			MaxActuationFailures: def.Control.MaxActuationFailures,
			MaxTelemetryFailures: def.Control.MaxTelemetryFailures,
		},
		Vehicle: VehicleConfig{
			Type:           VehicleTello,
			Address:        tello.DefaultAddress,
			CommandListen:  tello.DefaultCommandListen,
			StateListen:    tello.DefaultStateListen,
			CommandTimeout: Duration(tello.DefaultCommandTimeout),
		},
		Operator: OperatorConfig{
			Listen:      ":8080",
			MaxSetpoint: def.SetpointLimit,
			MaxGain:     def.GainLimit,
		},
		Storage: StorageConfig{
			DataDirectory: storageDir,
			MaxBatchSize:  storage.DefaultMaxBatchSize,
			FlushInterval: Duration(storage.DefaultFlushInterval),
		},
	}
}

// LoadConfig reads a YAML configuration file over the defaults and validates it
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return decodeConfig(f)
}

func decodeConfig(r io.Reader) (*Config, error) {
	config := DefaultConfig()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate checks the configuration for values the flight cannot run with
func (c *Config) Validate() error {
	if !slices.Contains([]string{VehicleTello, VehicleFake}, c.Vehicle.Type) {
		return fmt.Errorf("unknown vehicle type '%s'", c.Vehicle.Type)
	}
	if c.Vehicle.Type == VehicleTello && c.Vehicle.Address == "" {
		return fmt.Errorf("vehicle address is required")
	}
	if c.Operator.Enabled && c.Operator.Listen == "" {
		return fmt.Errorf("operator listen address is required")
	}
	if c.Operator.MaxSetpoint <= 0 || c.Operator.MaxGain <= 0 {
		return fmt.Errorf("operator limits must be positive")
	}
	if c.Control.Setpoint < 0 || c.Control.Setpoint > c.Operator.MaxSetpoint {
		return fmt.Errorf("setpoint %g outside [0, %g]", c.Control.Setpoint, c.Operator.MaxSetpoint)
	}
	if c.Control.Gain < 0 || c.Control.Gain > c.Operator.MaxGain {
		return fmt.Errorf("gain %g outside [0, %g]", c.Control.Gain, c.Operator.MaxGain)
	}
	if c.Control.TakeoffSettle < 0 {
		return fmt.Errorf("takeoff settle must not be negative")
	}
	if c.Settings.LogMaxSizeMB < 0 || c.Settings.LogMaxBackups < 0 {
		return fmt.Errorf("log rotation settings must not be negative")
	}
	if c.Storage.MaxBatchSize <= 0 || c.Storage.FlushInterval <= 0 {
		return fmt.Errorf("storage batch size and flush interval must be positive")
	}

	return c.flightConfig().Control.Validate()
}

func (c *Config) flightConfig() flight.Config {
	return flight.Config{
		Control: control.Config{
			SamplePeriod: c.Control.SamplePeriod.Std(),
			Limits: control.Limits{
				FlightTime: c.Control.FlightTime.Std(),
				Ceiling:    c.Control.Ceiling,
			},
			Saturation:           c.Control.Saturation,
			InitTimeout:          c.Control.InitTimeout.Std(),
			ShutdownTimeout:      c.Control.ShutdownTimeout.Std(),
			MaxActuationFailures: c.Control.MaxActuationFailures,
			MaxTelemetryFailures: c.Control.MaxTelemetryFailures,
		},
		Parameters:    control.ControlParameters{Setpoint: c.Control.Setpoint, Gain: c.Control.Gain},
		SetpointLimit: c.Operator.MaxSetpoint,
		GainLimit:     c.Operator.MaxGain,
		TakeoffSettle: c.Control.TakeoffSettle.Std(),
	}
}

func (c *Config) telloConfig() tello.Config {
	config := tello.DefaultConfig()
	config.Address = c.Vehicle.Address
	config.CommandListen = c.Vehicle.CommandListen
	config.StateListen = c.Vehicle.StateListen
	config.CommandTimeout = c.Vehicle.CommandTimeout.Std()
	return config
}
