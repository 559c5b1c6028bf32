package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// instrumentationName identifies this module's logs in exported OpenTelemetry records.
const instrumentationName = "github.com/florianilch/odatactl"

// Options configures the process-wide logger.
type Options struct {
	Level slog.Level
	// Format is "text" or "json".
	Format string
	// Exporter additionally ships logs via OpenTelemetry: "", "stdout", "otlp-http" or "otlp-grpc".
	Exporter string
	// Endpoint is the OTLP endpoint URL. Empty uses the exporter's environment defaults.
	Endpoint string
	// Output receives human-readable logs. Defaults to os.Stderr, keeping stdout for command output.
	Output io.Writer
}

// Instrument installs the default slog logger. The returned shutdown function
// flushes exported logs and must be called before the process exits.
func Instrument(ctx context.Context, opts Options) (func(context.Context) error, error) {
	handler, err := newConsoleHandler(opts)
	if err != nil {
		return nil, err
	}

	shutdown := func(context.Context) error { return nil }

	if opts.Exporter != "" {
		provider, err := newLoggerProvider(ctx, opts)
		if err != nil {
			return nil, err
		}
		handler = fanoutHandler{
			handler,
			otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider)),
		}
		shutdown = provider.Shutdown
	}

	slog.SetDefault(slog.New(newContextHandler(handler)))

	return shutdown, nil
}

// newConsoleHandler creates a handler for human-readable logs.
func newConsoleHandler(opts Options) (slog.Handler, error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{
		Level: opts.Level,
	}

	switch strings.ToLower(opts.Format) {
	case "json":
		return slog.NewJSONHandler(out, handlerOpts), nil
	case "text", "":
		return slog.NewTextHandler(out, handlerOpts), nil
	default:
		return nil, fmt.Errorf("unsupported log format %q (expected: json, text)", opts.Format)
	}
}

// newLoggerProvider builds an OpenTelemetry log pipeline that drops records
// below the configured level before batching.
func newLoggerProvider(ctx context.Context, opts Options) (*sdklog.LoggerProvider, error) {
	var (
		exporter sdklog.Exporter
		err      error
	)

	switch strings.ToLower(opts.Exporter) {
	case "stdout":
		w := opts.Output
		if w == nil {
			w = os.Stderr
		}
		exporter, err = stdoutlog.New(stdoutlog.WithWriter(w))
	case "otlp-http":
		var httpOpts []otlploghttp.Option
		if opts.Endpoint != "" {
			httpOpts = append(httpOpts, otlploghttp.WithEndpointURL(opts.Endpoint))
		}
		exporter, err = otlploghttp.New(ctx, httpOpts...)
	case "otlp-grpc":
		var grpcOpts []otlploggrpc.Option
		if opts.Endpoint != "" {
			grpcOpts = append(grpcOpts, otlploggrpc.WithEndpointURL(opts.Endpoint))
		}
		exporter, err = otlploggrpc.New(ctx, grpcOpts...)
	default:
		return nil, fmt.Errorf("unsupported log exporter %q (expected: stdout, otlp-http, otlp-grpc)", opts.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s log exporter: %w", opts.Exporter, err)
	}

	processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severity(opts.Level))

	return sdklog.NewLoggerProvider(sdklog.WithProcessor(processor)), nil
}

// severity maps a slog level onto the OpenTelemetry severity scale.
func severity(level slog.Level) minsev.Severity {
	switch {
	case level < slog.LevelInfo:
		return minsev.SeverityDebug
	case level < slog.LevelWarn:
		return minsev.SeverityInfo
	case level < slog.LevelError:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
