package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
)

// ShutdownFunc flushes buffered log records before the process exits.
type ShutdownFunc func(ctx context.Context) error

// NewLogger returns the service logger. Records always go to out; with
// OtelObservability they are exported over OTLP as well. Every record carries
// the destination store and submission strategy of this writer.
func NewLogger(cfg *Config, out io.Writer) (*slog.Logger, ShutdownFunc) {
	local := localHandler(cfg, out)
	shutdown := ShutdownFunc(func(context.Context) error { return nil })

	var handler slog.Handler = local
	if cfg.OtelObservability {
		provider, err := newLoggerProvider(cfg)
		if err != nil {
			slog.New(local).Error("OTLP log export disabled", "error", err)
		} else {
			global.SetLoggerProvider(provider)
			handler = fanout{local, otelslog.NewHandler(cfg.ServiceName, otelslog.WithLoggerProvider(provider))}
			shutdown = provider.Shutdown
		}
	}

	return slog.New(handler).With(writerAttrs(cfg)...), shutdown
}

func newLoggerProvider(cfg *Config) (*sdklog.LoggerProvider, error) {
	ctx := context.Background()

	res, err := resource.New(ctx, resource.WithAttributes(buildResourceAttributes(cfg)...))
	if err != nil {
		return nil, fmt.Errorf("create log resource: %w", err)
	}

	// endpoint comes from OTEL_EXPORTER_OTLP_ENDPOINT
	exporter, err := otlploghttp.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("create log exporter: %w", err)
	}

	return sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	), nil
}

func localHandler(cfg *Config, out io.Writer) slog.Handler {
	if cfg.LogFormat == "json" {
		//nolint:exhaustruct // optional config
		return slog.NewJSONHandler(out, &slog.HandlerOptions{
			Level:     cfg.LogLevel,
			AddSource: cfg.LogAddSource,
		})
	}

	//nolint:exhaustruct // optional config
	return tint.NewHandler(out, &tint.Options{
		Level:      cfg.LogLevel,
		AddSource:  cfg.LogAddSource,
		TimeFormat: time.StampMilli,
	})
}

func writerAttrs(cfg *Config) []any {
	var attrs []any
	if cfg.Store != "" {
		attrs = append(attrs, slog.String("store", cfg.Store))
	}
	if cfg.Strategy != "" {
		attrs = append(attrs, slog.String("strategy", cfg.Strategy))
	}
	return attrs
}

// fanout passes each record to every handler enabled for its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(fanout, len(f))
	for i, h := range f {
		next[i] = h.WithAttrs(attrs)
	}
	return next
}

func (f fanout) WithGroup(name string) slog.Handler {
	next := make(fanout, len(f))
	for i, h := range f {
		next[i] = h.WithGroup(name)
	}
	return next
}
