package log

import (
	"io"
	"log/slog"
	"strings"

	churnerrors "github.com/YuminosukeSato/churn/pkg/errors"
)

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
)

// SetupLogger configures process-wide logging at the given level name.
//
// Three sinks are configured to write to w: the slog default (wrapped by
// ErrFmtHandler), the zerolog-backed provider returned by GetLogger, and the
// warning hook of pkg/errors so UndefinedMetricWarning and ConvergenceWarning
// become structured WARN lines.
func SetupLogger(loglevel string, w io.Writer) error {
	level, err := ParseLevel(loglevel)
	if err != nil {
		return err
	}

	ops := slog.HandlerOptions{
		AddSource: true,
		Level:     ToLogLevel(level),
		// Replace attributes to convert to CloudLogging format.
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.LevelKey:
				attr = slog.Attr{Key: "severity", Value: attr.Value}
			case slog.MessageKey:
				attr = slog.Attr{Key: "message", Value: attr.Value}
			case slog.SourceKey:
				attr = slog.Attr{Key: "logging.googleapis.com/sourceLocation", Value: attr.Value}
			}
			return attr
		},
	}
	handler := slog.NewJSONHandler(w, &ops)
	slog.SetDefault(slog.New(WrapByErrFmtHandler(handler)))

	SetProvider(NewZerologProvider(w, level))

	churnerrors.SetZerologWarnFunc(func(warning error) {
		GetLoggerWithName("warnings").Warn(warning.Error(), "warning", warning)
	})
	return nil
}

// ParseLevel maps "debug", "info", "warn" and "error" to a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, churnerrors.NewConfigurationError("log-level", "must be one of debug, info, warn, error", level)
	}
}

// ToLogLevel converts a Level to the equivalent slog.Level.
func ToLogLevel(level Level) slog.Level {
	return slog.Level(level)
}

// ErrAttr is a wrapper to pass err to slog.
func ErrAttr(err error) slog.Attr {
	return slog.Any(ErrAttrKey, err)
}

// Stacktrace returns the stack recorded on err by cockroachdb/errors, if any.
func Stacktrace(err error) string {
	if err == nil {
		return ""
	}
	return extractStacktrace(err)
}
