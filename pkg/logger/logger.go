package logger

import (
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

const (
	LogFormatLogfmt = "logfmt"
	LogFormatJSON   = "json"
)

// NewLogger returns a log.Logger that prints in the provided format at the
// provided level with a UTC timestamp and the caller of the log entry. If
// non empty, the debug name is also appended as a field to all log lines.
func NewLogger(logLevel, logFormat, debugName string) log.Logger {
	return newLogger(os.Stderr, logLevel, logFormat, debugName)
}

func newLogger(w io.Writer, logLevel, logFormat, debugName string) log.Logger {
	var logger log.Logger
	switch logFormat {
	case LogFormatJSON:
		logger = log.NewJSONLogger(log.NewSyncWriter(w))
	default:
		logger = log.NewLogfmtLogger(log.NewSyncWriter(w))
	}
	logger = level.NewFilter(logger, levelOption(logLevel))

	if debugName != "" {
		logger = log.With(logger, "name", debugName)
	}
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}

func levelOption(logLevel string) level.Option {
	switch logLevel {
	case "error":
		return level.AllowError()
	case "warn":
		return level.AllowWarn()
	case "debug":
		return level.AllowDebug()
	default:
		return level.AllowInfo()
	}
}
