package logstream

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds the daemon log output configuration.
type Config struct {
	Level      slog.Leveler
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
	// Stderr additionally writes to standard error.
	Stderr bool
}

// Output is the daemon's base logger, which writes to stderr and to an
// optional rotating file but never to subscriptions.
type Output struct {
	Logger *slog.Logger
	writer *lumberjack.Logger
}

func NewOutput(cfg Config) *Output {
	out := &Output{}
	var writers []io.Writer
	if cfg.Stderr {
		writers = append(writers, os.Stderr)
	}
	if cfg.FilePath != "" {
		out.writer = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.Compress,
			LocalTime:  true,
		}
		writers = append(writers, out.writer)
	}

	var w io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		w = writers[0]
	default:
		w = io.MultiWriter(writers...)
	}
	out.Logger = slog.New(NewWriterHandler(w, cfg.Level))
	return out
}

// Broadcasting returns a logger that writes like o.Logger and also feeds e.
func (o *Output) Broadcasting(e Emitter) *slog.Logger {
	return slog.New(NewHandler(o.Logger.Handler(), e))
}

// FilePath returns the rotating file's path, or "" when there is none.
func (o *Output) FilePath() string {
	if o.writer == nil {
		return ""
	}
	return o.writer.Filename
}

// Rotate starts a new log file.
func (o *Output) Rotate() error {
	if o.writer == nil {
		return nil
	}
	return o.writer.Rotate()
}

func (o *Output) Close() error {
	if o.writer == nil {
		return nil
	}
	return o.writer.Close()
}
