package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Fields is re-exported so callers do not import logrus directly.
type Fields = logrus.Fields

var std = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// L returns the process logger.
func L() *logrus.Logger { return std }

// Configure sets level, format and output destination for the process
// logger. Format is "text" or "json". Output is "stdout", "stderr" or a
// file path; file outputs rotate and are kept for maxAgeDays.
func Configure(level, format, output string, maxAgeDays int) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}
	std.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "json":
		std.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	case "", "text":
		std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	switch output {
	case "", "stdout":
		std.SetOutput(os.Stdout)
	case "stderr":
		std.SetOutput(os.Stderr)
	default:
		if dir := filepath.Dir(output); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create log directory: %w", err)
			}
		}
		std.SetOutput(&lumberjack.Logger{
			Filename: output,
			MaxSize:  100, // megabytes
			MaxAge:   maxAgeDays,
			Compress: true,
		})
	}

	return nil
}

// WithComponent returns an entry tagged with the owning component name.
func WithComponent(name string) *logrus.Entry {
	return std.WithField("component", name)
}
