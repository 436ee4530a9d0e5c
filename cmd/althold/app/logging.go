package app

import (
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger creates the application logger writing to stdout and, when a log file is
// configured, to a size-rotated file. The returned closer releases the file.
func NewLogger(stdout io.Writer, settings Settings, level *slog.LevelVar) (*slog.Logger, io.Closer) {
	if settings.LogFile == "" {
		return slog.New(slog.NewTextHandler(stdout, &slog.HandlerOptions{Level: level})), io.NopCloser(nil)
	}

	file := &lumberjack.Logger{
		Filename:   settings.LogFile,
		MaxSize:    settings.LogMaxSizeMB,
		MaxBackups: settings.LogMaxBackups,
		Compress:   true,
	}

	return slog.New(slog.NewTextHandler(io.MultiWriter(stdout, file), &slog.HandlerOptions{Level: level})), file
}
