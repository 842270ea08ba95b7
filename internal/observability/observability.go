// Package observability sets up the process-wide slog logger and, optionally, the
// OpenTelemetry log pipeline it feeds.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log/global"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ServiceName is the instrumentation scope of exported log records.
const ServiceName = "townspark"

// Format is the console log encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Exporter selects where OpenTelemetry log records are shipped.
type Exporter string

const (
	ExporterNone     Exporter = "none"
	ExporterStdout   Exporter = "stdout"
	ExporterOTLPGRPC Exporter = "otlp-grpc"
	ExporterOTLPHTTP Exporter = "otlp-http"
)

// FileOptions configures a rotating log file.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Options configures Instrument.
type Options struct {
	Level  slog.Level
	Format Format
	// Output receives console logs. Defaults to os.Stderr.
	Output io.Writer
	// File, when its Path is set, receives a copy of every console log line.
	File FileOptions
	// Exporter enables OpenTelemetry log export. OTLP endpoints are taken from the
	// standard OTEL_EXPORTER_OTLP_* environment variables.
	Exporter Exporter
	// ExportOutput receives records of the stdout exporter. Defaults to os.Stdout.
	ExportOutput io.Writer
}

// ShutdownFunc flushes and releases everything Instrument set up.
type ShutdownFunc func(context.Context) error

// Instrument installs the default slog logger described by opts.
func Instrument(ctx context.Context, opts Options) (ShutdownFunc, error) {
	var closers []func(context.Context) error
	shutdown := func(ctx context.Context) error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i](ctx))
		}
		return errors.Join(errs...)
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.File.Path != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File.Path,
			MaxSize:    opts.File.MaxSizeMB,
			MaxBackups: opts.File.MaxBackups,
			MaxAge:     opts.File.MaxAgeDays,
			Compress:   opts.File.Compress,
		}
		closers = append(closers, func(context.Context) error { return rotator.Close() })
		out = io.MultiWriter(out, rotator)
	}

	console, err := newConsoleHandler(out, opts.Format, opts.Level)
	if err != nil {
		return nil, err
	}
	handlers := []slog.Handler{console}

	if opts.Exporter != "" && opts.Exporter != ExporterNone {
		provider, err := newLoggerProvider(ctx, opts)
		if err != nil {
			_ = shutdown(ctx)
			return nil, fmt.Errorf("setting up log export: %w", err)
		}
		closers = append(closers, provider.Shutdown)

		global.SetLoggerProvider(provider)
		handlers = append(handlers, otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(provider)))
	}

	logger := slog.New(fanout(handlers))
	slog.SetDefault(logger)

	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		logger.Error("opentelemetry error", "error", err)
	}))

	return shutdown, nil
}

func newConsoleHandler(w io.Writer, format Format, level slog.Level) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case FormatText, "":
		return slog.NewTextHandler(w, opts), nil
	case FormatJSON:
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
}
