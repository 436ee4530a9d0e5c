package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/roman-kulish/altitude-hold/cmd/althold/app"
)

func main() {
	var logLevel slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: &logLevel}))

	var configPath, tokenSubject string
	flag.StringVar(&configPath, "c", "", "Path to the configuration file")
	flag.StringVar(&tokenSubject, "issue-token", "", "Print an operator token for the given subject and exit")
	flag.Parse()

	if configPath == "" {
		logger.Error("no configuration file provided")
		os.Exit(1)
	}

	config, err := app.LoadConfig(configPath)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to load configuration file: %s", err.Error()), slog.String("path", configPath))
		os.Exit(1)
	}

	if tokenSubject != "" {
		token, err := app.IssueToken(config, tokenSubject)
		if err != nil {
			logger.Error(err.Error())
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	logLevel.Set(config.Settings.LogLevel)

	logger, logFile := app.NewLogger(os.Stdout, config.Settings, &logLevel)
	defer logFile.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err = app.Run(ctx, config, logger); err != nil {
		logger.Error(err.Error())

		cancel()
		_ = logFile.Close()
		os.Exit(1)
	}
}
