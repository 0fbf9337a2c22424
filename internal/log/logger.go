package log

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// Logger is a slog.Logger backed by a zap core, tagged with a component.
type Logger struct {
	*slog.Logger
	base      *slog.Logger
	component string
	sync      func() error
}

// Config holds logger configuration.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string
	// Format is json or console.
	Format    string
	Component string
	// Output defaults to stdout.
	Output zapcore.WriteSyncer
}

// DefaultConfig returns sensible defaults for logging
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Format:    "json",
		Component: ComponentApp,
	}
}

// New creates a new logger with the given configuration
func New(cfg Config) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	var encoder zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case "console":
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	out := cfg.Output
	if out == nil {
		out = zapcore.Lock(os.Stdout)
	}
	core := zapcore.NewCore(encoder, out, zap.NewAtomicLevelAt(level))

	component := cfg.Component
	if component == "" {
		component = ComponentApp
	}
	base := slog.New(zapslog.NewHandler(core))
	return &Logger{
		Logger:    base.With(FieldComponent, component),
		base:      base,
		component: component,
		sync:      out.Sync,
	}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	base := slog.New(zapslog.NewHandler(zapcore.NewNopCore()))
	return &Logger{
		Logger:    base,
		base:      base,
		component: ComponentApp,
		sync:      func() error { return nil },
	}
}

// ParseLevel maps a level name to its zap level. Empty selects info.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q", level)
	}
}

// With returns a new logger with the given attributes
func (l *Logger) With(args ...any) *Logger {
	base := l.base.With(args...)
	return &Logger{
		Logger:    base.With(FieldComponent, l.component),
		base:      base,
		component: l.component,
		sync:      l.sync,
	}
}

// WithComponent returns a new logger with a specific component name
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger:    l.base.With(FieldComponent, component),
		base:      l.base,
		component: component,
		sync:      l.sync,
	}
}

// Component returns the logger's component name
func (l *Logger) Component() string {
	return l.component
}

// Sync flushes buffered entries. Call it before exit.
func (l *Logger) Sync() error {
	return l.sync()
}

// SetDefault sets the default logger for the application
func SetDefault(logger *Logger) {
	slog.SetDefault(logger.Logger)
}
