package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus exposes write-path counters through a prometheus registry.
type Prometheus struct {
	attempts  *prometheus.CounterVec
	successes *prometheus.CounterVec
	retries   *prometheus.CounterVec
	fatals    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
}

func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		attempts:  newCounter("attempts_total", "Total number of insert requests submitted to the store"),
		successes: newCounter("successes_total", "Total number of batches fully accepted by the store"),
		retries:   newCounter("retries_total", "Total number of retries after retryable failures"),
		fatals:    newCounter("fatal_errors_total", "Total number of writes that failed permanently"),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tablewriter",
				Subsystem: "writer",
				Name:      "write_duration_seconds",
				Help:      "Duration of completed writes including retries and backoff",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"table"},
		),
	}

	for _, c := range []prometheus.Collector{p.attempts, p.successes, p.retries, p.fatals, p.latency} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}

	return p, nil
}

func newCounter(name, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablewriter",
			Subsystem: "writer",
			Name:      name,
			Help:      help,
		},
		[]string{"table"},
	)
}

func (p *Prometheus) RecordAttempt(_ context.Context, table string) {
	p.attempts.WithLabelValues(table).Inc()
}

func (p *Prometheus) RecordSuccess(_ context.Context, table string) {
	p.successes.WithLabelValues(table).Inc()
}

func (p *Prometheus) RecordRetry(_ context.Context, table string) {
	p.retries.WithLabelValues(table).Inc()
}

func (p *Prometheus) RecordFatal(_ context.Context, table string) {
	p.fatals.WithLabelValues(table).Inc()
}

func (p *Prometheus) RecordLatency(_ context.Context, table string, d time.Duration) {
	p.latency.WithLabelValues(table).Observe(d.Seconds())
}

// Handler returns a promhttp handler bound to the given gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{}) //nolint:exhaustruct // defaults
}
