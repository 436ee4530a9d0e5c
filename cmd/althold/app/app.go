package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/altitude-hold/internal/storage"
	"github.com/roman-kulish/altitude-hold/internal/vehicle"
	"github.com/roman-kulish/altitude-hold/internal/vehicle/fake"
	"github.com/roman-kulish/altitude-hold/internal/vehicle/tello"
)

const (
	storageDir  = "data"
	storageFile = "flights.sqlite"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	dbPath, err := storagePath(&config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}

	store := storage.NewSqliteStore(dbPath)
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error(fmt.Sprintf("closing storage: %s", err.Error()))
		}
		if stat, err := os.Stat(dbPath); err == nil {
			logger.Info("flight recorder", slog.String("path", dbPath), slog.String("size", humanize.Bytes(uint64(stat.Size()))))
		}
	}()

	v, closeVehicle := createVehicle(config, logger)
	defer closeVehicle()

	_, err = NewOrchestrator(store, v, config, logger).Run(ctx)
	return err
}

func createVehicle(config *Config, logger *slog.Logger) (vehicle.Vehicle, func()) {
	switch config.Vehicle.Type {
	case VehicleFake:
		logger.Warn("flying the simulated vehicle")
		return fake.New(), func() {}

	default:
		client := tello.New(config.telloConfig(), tello.WithLogger(logger))

		return client, func() {
			if err := client.Close(); err != nil {
				logger.Error(fmt.Sprintf("closing vehicle link: %s", err.Error()))
			}
		}
	}
}

func storagePath(config *StorageConfig) (string, error) {
	dir := config.DataDirectory
	if dir == "" {
		dir = storageDir
	}

	if !filepath.IsAbs(dir) {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current working directory: %w", err)
		}
		dir = filepath.Join(wd, dir)
	}

	stat, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("storage directory '%s' does not exist: %w", dir, err)
		}
		return "", fmt.Errorf("checking storage directory '%s': %w", dir, err)
	}
	if !stat.IsDir() {
		return "", fmt.Errorf("invalid storage directory '%s'", dir)
	}

	return filepath.Join(dir, storageFile), nil
}
