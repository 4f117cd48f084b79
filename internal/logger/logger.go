package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type Level = slog.Level

const (
	LevelTrace   = slog.Level(-8)
	LevelDebug   = slog.LevelDebug
	LevelInfo    = slog.LevelInfo
	LevelWarning = slog.LevelWarn
	LevelError   = slog.LevelError
	LevelFatal   = slog.Level(12)
)

// defaultSampleRate keeps 1% of warnings and errors
const defaultSampleRate = 100

// DefaultServiceName is reported to OTEL when no service name is configured
const DefaultServiceName = "cstt"

// Options controls how the package-level logger is built
type Options struct {
	Level       string
	SampleRate  int // log 1 of every SampleRate warnings/errors
	OTELEnabled bool
	ServiceName string
	Output      io.Writer // JSON handler destination, stdout when nil
}

var (
	Logger       *slog.Logger
	sampleRate   atomic.Int32
	programLevel = new(slog.LevelVar)
	shutdownFunc func(context.Context) error
)

// Counters are incremented whether or not the log line survives sampling,
// and are exported on the metrics endpoint.
var (
	TotalErrors         atomic.Int64
	TotalWarnings       atomic.Int64
	Total5xxErrors      atomic.Int64
	Total4xxErrors      atomic.Int64
	Total400Errors      atomic.Int64
	Total401Errors      atomic.Int64
	Total404Errors      atomic.Int64
	SlowRequests        atomic.Int64
	ConversionFallbacks atomic.Int64
)

func init() {
	if err := Configure(OptionsFromEnv()); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
	}
}

// OptionsFromEnv reads LOG_LEVEL, ERROR_SAMPLE_RATE, OTEL_ENABLED and
// OTEL_SERVICE_NAME
func OptionsFromEnv() Options {
	opts := Options{
		Level:       os.Getenv("LOG_LEVEL"),
		SampleRate:  defaultSampleRate,
		OTELEnabled: strings.EqualFold(os.Getenv("OTEL_ENABLED"), "true"),
		ServiceName: os.Getenv("OTEL_SERVICE_NAME"),
	}
	if s := os.Getenv("ERROR_SAMPLE_RATE"); s != "" {
		if rate, err := strconv.Atoi(s); err == nil && rate > 0 {
			opts.SampleRate = rate
		}
	}
	return opts
}

// Configure (re)builds the package logger. When OTEL setup fails the JSON
// handler is installed and the OTEL error is returned.
func Configure(opts Options) error {
	level, err := ParseLevel(opts.Level)
	if err != nil && opts.Level != "" {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
	}
	programLevel.Set(level)

	if opts.SampleRate < 1 {
		opts.SampleRate = 1
	}
	sampleRate.Store(int32(opts.SampleRate))

	if !opts.OTELEnabled {
		setupJSONLogging(opts.Output)
		return nil
	}

	serviceName := opts.ServiceName
	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	shutdown, err := setupOTELLogging(context.Background(), serviceName)
	if err != nil {
		setupJSONLogging(opts.Output)
		return fmt.Errorf("failed to setup OTEL logging, using JSON: %w", err)
	}
	shutdownFunc = shutdown
	return nil
}

func setupJSONLogging(out io.Writer) {
	if out == nil {
		out = os.Stdout
	}
	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: programLevel})
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

func setupOTELLogging(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlploggrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)

	handler := &levelHandler{
		level:   programLevel,
		handler: otelslog.NewHandler(serviceName, otelslog.WithLoggerProvider(provider)),
	}
	Logger = slog.New(handler)
	slog.SetDefault(Logger)

	return provider.Shutdown, nil
}

// levelHandler applies programLevel in front of the OTEL bridge, which has
// no level option of its own
type levelHandler struct {
	level   slog.Leveler
	handler slog.Handler
}

func (h *levelHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithGroup(name)}
}

// Shutdown flushes the OTEL exporter, if one is running
func Shutdown(ctx context.Context) error {
	if shutdownFunc != nil {
		return shutdownFunc(ctx)
	}
	return nil
}

func SetLevel(level slog.Level) {
	programLevel.Set(level)
}

func GetLevel() slog.Level {
	return programLevel.Level()
}

// ParseLevel converts a level name to slog.Level. Empty and unknown names
// yield LevelInfo; unknown names also return an error.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "", "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s (defaulting to INFO)", name)
	}
}

func shouldSample() bool {
	rate := sampleRate.Load()
	if rate <= 1 {
		return true
	}
	return rand.IntN(int(rate)) == 0
}

func Trace(msg string, args ...any) {
	Logger.Log(context.Background(), LevelTrace, msg, args...)
}

func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn is sampled; TotalWarnings always counts it
func Warn(msg string, args ...any) {
	TotalWarnings.Add(1)
	if shouldSample() {
		Logger.Warn(msg, args...)
	}
}

// Error is sampled; TotalErrors always counts it
func Error(msg string, args ...any) {
	TotalErrors.Add(1)
	if shouldSample() {
		Logger.Error(msg, args...)
	}
}

// Fatal logs, flushes OTEL and exits
func Fatal(msg string, args ...any) {
	Logger.Log(context.Background(), LevelFatal, msg, args...)
	_ = Shutdown(context.Background())
	os.Exit(1)
}

// ErrorConversion records a formatter fallback to JSON. It is never sampled.
func ErrorConversion(format string, err error) {
	ConversionFallbacks.Add(1)
	TotalErrors.Add(1)
	Logger.Error("Dataset conversion failed, falling back to JSON", "format", format, "error", err)
}

// ErrorHttp5xx counts a server error response
func ErrorHttp5xx() {
	Total5xxErrors.Add(1)
	TotalErrors.Add(1)
}

// WarnHttp4xx counts a client error response by status
func WarnHttp4xx(status int) {
	Total4xxErrors.Add(1)
	TotalWarnings.Add(1)

	switch status {
	case 400:
		Total400Errors.Add(1)
	case 401:
		Total401Errors.Add(1)
	case 404:
		Total404Errors.Add(1)
	}
}

// WarnSlowRequest counts a slow request. The accompanying Warn call counts
// the warning.
func WarnSlowRequest() {
	SlowRequests.Add(1)
}

// Counters returns every counter keyed by metric name
func Counters() map[string]*atomic.Int64 {
	return map[string]*atomic.Int64{
		"errors_total":               &TotalErrors,
		"warnings_total":             &TotalWarnings,
		"http_5xx_total":             &Total5xxErrors,
		"http_4xx_total":             &Total4xxErrors,
		"http_400_total":             &Total400Errors,
		"http_401_total":             &Total401Errors,
		"http_404_total":             &Total404Errors,
		"slow_requests_total":        &SlowRequests,
		"conversion_fallbacks_total": &ConversionFallbacks,
	}
}
