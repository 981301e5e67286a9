// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Config controls where and how verbosely the process logs.
type Config struct {
	Output string // "stdout", "stderr", or anything else for file output
	Level  string // "debug", "info", "warn", "error"
	File   string // log file path, used when Output is a file
}

// Init sets up the global logger. Extra writers (such as the dashboard log
// sink) receive every event in addition to the primary output.
func Init(cfg Config, extra ...io.Writer) error {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.TimeOnly

	var primary io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stdout", "":
		primary = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly}
	case "stderr":
		primary = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	default:
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		primary = f
	}

	writers := append([]io.Writer{primary}, extra...)
	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().Timestamp().Logger()

	zerolog.DefaultContextLogger = &logger
	zlog.Logger = logger
	return nil
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
