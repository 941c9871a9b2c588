package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/glassflow/table-writer/internal/api"
	"github.com/glassflow/table-writer/internal/metrics"
	"github.com/glassflow/table-writer/internal/models"
	"github.com/glassflow/table-writer/internal/server"
	"github.com/glassflow/table-writer/internal/store"
	"github.com/glassflow/table-writer/internal/store/bigquery"
	"github.com/glassflow/table-writer/internal/store/clickhouse"
	"github.com/glassflow/table-writer/internal/stream"
	"github.com/glassflow/table-writer/internal/writer"
	"github.com/glassflow/table-writer/pkg/observability"
)

//nolint:gochecknoglobals,revive // build variables
var (
	commit  string = "unspecified"
	app     string = "table-writer"
	version string = "dev"
)

const (
	storeClickHouse = "clickhouse"
	storeBigQuery   = "bigquery"

	logFlushTimeout = 5 * time.Second
)

type config struct {
	LogFormat    string     `default:"json" split_words:"true"`
	LogLevel     slog.Level `default:"info" split_words:"true"`
	LogAddSource bool       `default:"false" split_words:"true"`

	OtelObservability bool   `default:"false" split_words:"true"`
	MetricsEnabled    bool   `default:"false" split_words:"true"`
	PrometheusEnabled bool   `default:"true" split_words:"true"`
	ServiceNamespace  string `default:"glassflow" split_words:"true"`
	InstanceID        string `split_words:"true"`

	Store string `default:"clickhouse" validate:"oneof=clickhouse bigquery"`

	Server     server.Config
	Writer     models.WriterConfig
	Sink       stream.SinkConfig
	Nats       stream.ConsumerConfig
	Clickhouse clickhouse.Config
	Bigquery   bigquery.Config
}

func (c *config) validate() error {
	v := validator.New()

	targets := []any{c.Writer, c.Sink, c.Nats}
	switch c.Store {
	case storeClickHouse:
		targets = append(targets, c.Clickhouse)
	case storeBigQuery:
		targets = append(targets, c.Bigquery)
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}

	for _, t := range targets {
		err := v.Struct(t)
		if err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}

	return nil
}

func main() {
	var cfg config
	err := envconfig.Process("tablewriter", &cfg)
	if err == nil {
		err = cfg.validate()
	}
	if err != nil {
		slog.Error("unable to parse config", slog.Any("error", err))
		os.Exit(1)
	}

	obsCfg := &observability.Config{
		LogFormat:         cfg.LogFormat,
		LogLevel:          cfg.LogLevel,
		LogAddSource:      cfg.LogAddSource,
		OtelObservability: cfg.OtelObservability,
		MetricsEnabled:    cfg.MetricsEnabled,
		ServiceName:       app,
		ServiceVersion:    version,
		ServiceNamespace:  cfg.ServiceNamespace,
		InstanceID:        cfg.InstanceID,
		Store:             cfg.Store,
		Strategy:          cfg.Writer.Strategy,
	}

	log, flushLogs := observability.NewLogger(obsCfg, os.Stdout)

	log = log.With(
		slog.String("app", app),
		slog.String("commit_hash", commit),
		slog.String("goversion", runtime.Version()),
	)

	err = mainErr(&cfg, obsCfg, log)
	if err != nil {
		log.Error("Service stopped with error", slog.Any("error", err))
	} else {
		log.Info("Service terminated gracefully")
	}

	ctx, cancel := context.WithTimeout(context.Background(), logFlushTimeout)
	flushErr := flushLogs(ctx)
	cancel()
	if flushErr != nil {
		slog.Error("failed to flush logs", slog.Any("error", flushErr))
	}

	if err != nil {
		os.Exit(1)
	}
}

func mainErr(cfg *config, obsCfg *observability.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorder, metricsHandler, err := setupMetrics(cfg, obsCfg)
	if err != nil {
		return err
	}

	checks := make(map[string]api.HealthCheck)

	inserter, reconciler, closeStore, err := setupStore(ctx, cfg, log, checks)
	if err != nil {
		return err
	}
	defer closeStore()

	strategy, err := writer.NewStrategy(cfg.Writer.Strategy, inserter, reconciler, cfg.Writer.SchemaUpdateHint, log)
	if err != nil {
		return fmt.Errorf("create strategy: %w", err)
	}

	w, err := writer.New(cfg.Writer, strategy, recorder, log)
	if err != nil {
		return fmt.Errorf("create writer: %w", err)
	}

	conn, err := stream.Connect(ctx, cfg.Nats.URL, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Error("failed to close NATS connection", "error", err)
		}
	}()

	consumer, err := stream.NewConsumer(ctx, conn.JetStream(), cfg.Nats)
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	sink := stream.NewSink(consumer, w, cfg.Sink, log)

	apiServer := server.NewHTTPServer(cfg.Server, api.NewRouter(log, metricsHandler, checks), log)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- apiServer.Start()
	}()

	sinkErr := make(chan error, 1)
	go func() {
		sinkErr <- sink.Start(ctx)
	}()

	log.Info("Table writer started",
		"store", cfg.Store,
		"strategy", strategy.Name(),
		"table", models.TableID{Dataset: cfg.Sink.Dataset, Table: cfg.Sink.Table}.String())

	select {
	case err := <-serverErr:
		stop()
		<-sinkErr
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case err := <-sinkErr:
		shutdownErr := apiServer.Shutdown()
		if err != nil {
			return fmt.Errorf("sink stopped: %w", err)
		}
		if shutdownErr != nil {
			return fmt.Errorf("failed to shutdown server: %w", shutdownErr)
		}
		return nil
	}
}

func setupMetrics(cfg *config, obsCfg *observability.Config) (metrics.Recorder, http.Handler, error) {
	var (
		recorders []metrics.Recorder
		handler   http.Handler
	)

	if cfg.PrometheusEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}), //nolint:exhaustruct // defaults
		)

		prom, err := metrics.NewPrometheus(reg)
		if err != nil {
			return nil, nil, fmt.Errorf("create prometheus recorder: %w", err)
		}

		recorders = append(recorders, prom)
		handler = metrics.Handler(reg)
	}

	meter := observability.ConfigureMeter(obsCfg)
	if meter != nil {
		recorders = append(recorders, meter)
	}

	return metrics.Multi(recorders...), handler, nil
}

func setupStore(
	ctx context.Context,
	cfg *config,
	log *slog.Logger,
	checks map[string]api.HealthCheck,
) (store.Inserter, store.SchemaReconciler, func(), error) {
	switch cfg.Store {
	case storeClickHouse:
		client, err := clickhouse.NewClient(ctx, cfg.Clickhouse)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create clickhouse client: %w", err)
		}
		checks[storeClickHouse] = client.Ping

		s := clickhouse.NewStore(client, cfg.Clickhouse, log)
		closeFn := func() {
			if err := client.Close(); err != nil {
				log.Error("failed to close ClickHouse client connection", "error", err)
			}
		}
		return s, s, closeFn, nil

	case storeBigQuery:
		ins, err := bigquery.NewInserter(ctx, cfg.Bigquery, log)
		if err != nil {
			return nil, nil, nil, err
		}

		// BigQuery has no reconciler: the adaptive strategy is rejected by NewStrategy
		return ins, nil, func() {}, nil

	default:
		return nil, nil, nil, errors.New("unknown store")
	}
}
