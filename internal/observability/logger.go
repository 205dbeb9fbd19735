package observability

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "sendqueue"

type runKey struct{}

// NewLogger builds the service logger. format is "json" (default) or
// "console" for local runs.
func NewLogger(level, format string) (*zap.Logger, error) {
	parsedLevel, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(parsedLevel)
	cfg.DisableStacktrace = true
	cfg.InitialFields = map[string]any{"service": serviceName}

	logger, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}

func parseLevel(level string) (zapcore.Level, error) {
	var parsed zapcore.Level
	normalized := strings.ToLower(strings.TrimSpace(level))
	if normalized == "" {
		normalized = "info"
	}

	if err := parsed.UnmarshalText([]byte(normalized)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	return parsed, nil
}

// Run identifies one tick of a named runner.
type Run struct {
	Runner string
	ID     string
}

// WithRun tags ctx with the runner tick every log line and published event
// under it belongs to.
func WithRun(ctx context.Context, runner, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithValue(ctx, runKey{}, Run{Runner: runner, ID: id})
}

func RunFromContext(ctx context.Context) (Run, bool) {
	if ctx == nil {
		return Run{}, false
	}

	run, ok := ctx.Value(runKey{}).(Run)
	if !ok || run.ID == "" {
		return Run{}, false
	}

	return run, true
}

func RunIDFromContext(ctx context.Context) (string, bool) {
	run, ok := RunFromContext(ctx)
	return run.ID, ok
}

// WithContextLogger adds runId and runner fields when ctx carries a run.
func WithContextLogger(logger *zap.Logger, ctx context.Context) *zap.Logger {
	if logger == nil {
		return nil
	}

	run, ok := RunFromContext(ctx)
	if !ok {
		return logger
	}

	fields := []zap.Field{zap.String("runId", run.ID)}
	if run.Runner != "" {
		fields = append(fields, zap.String("runner", run.Runner))
	}
	return logger.With(fields...)
}
