package metrics

import (
	"context"
	"sync/atomic"
	"time"
)

// Recorder receives write-path telemetry. Implementations must be safe for
// concurrent use by many in-flight writes.
//
// RecordRetry is called when a resubmission starts, so a write cancelled
// during its backoff wait counts no retry for that wait.
type Recorder interface {
	RecordAttempt(ctx context.Context, table string)
	RecordSuccess(ctx context.Context, table string)
	RecordRetry(ctx context.Context, table string)
	RecordFatal(ctx context.Context, table string)
	RecordLatency(ctx context.Context, table string, d time.Duration)
}

type Snapshot struct {
	Attempts     int64
	Successes    int64
	Retries      int64
	Fatals       int64
	Writes       int64
	LatencyTotal time.Duration
}

// InMemory keeps process-local counters. It is what tests substitute for the
// exporting recorders.
type InMemory struct {
	attempts  atomic.Int64
	successes atomic.Int64
	retries   atomic.Int64
	fatals    atomic.Int64
	writes    atomic.Int64
	latency   atomic.Int64
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (m *InMemory) RecordAttempt(context.Context, string) { m.attempts.Add(1) }
func (m *InMemory) RecordSuccess(context.Context, string) { m.successes.Add(1) }
func (m *InMemory) RecordRetry(context.Context, string)   { m.retries.Add(1) }
func (m *InMemory) RecordFatal(context.Context, string)   { m.fatals.Add(1) }

func (m *InMemory) RecordLatency(_ context.Context, _ string, d time.Duration) {
	m.writes.Add(1)
	m.latency.Add(int64(d))
}

func (m *InMemory) Snapshot() Snapshot {
	return Snapshot{
		Attempts:     m.attempts.Load(),
		Successes:    m.successes.Load(),
		Retries:      m.retries.Load(),
		Fatals:       m.fatals.Load(),
		Writes:       m.writes.Load(),
		LatencyTotal: time.Duration(m.latency.Load()),
	}
}

type nop struct{}

func (nop) RecordAttempt(context.Context, string)                {}
func (nop) RecordSuccess(context.Context, string)                {}
func (nop) RecordRetry(context.Context, string)                  {}
func (nop) RecordFatal(context.Context, string)                  {}
func (nop) RecordLatency(context.Context, string, time.Duration) {}

// Nop discards everything.
func Nop() Recorder { return nop{} }

type multi []Recorder

// Multi fans every observation out to all non-nil recorders.
func Multi(recorders ...Recorder) Recorder {
	m := make(multi, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			m = append(m, r)
		}
	}
	return m
}

func (m multi) RecordAttempt(ctx context.Context, table string) {
	for _, r := range m {
		r.RecordAttempt(ctx, table)
	}
}

func (m multi) RecordSuccess(ctx context.Context, table string) {
	for _, r := range m {
		r.RecordSuccess(ctx, table)
	}
}

func (m multi) RecordRetry(ctx context.Context, table string) {
	for _, r := range m {
		r.RecordRetry(ctx, table)
	}
}

func (m multi) RecordFatal(ctx context.Context, table string) {
	for _, r := range m {
		r.RecordFatal(ctx, table)
	}
}

func (m multi) RecordLatency(ctx context.Context, table string, d time.Duration) {
	for _, r := range m {
		r.RecordLatency(ctx, table, d)
	}
}
