package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemory_Concurrent(t *testing.T) {
	m := NewInMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordAttempt(ctx, "t")
			m.RecordRetry(ctx, "t")
			m.RecordSuccess(ctx, "t")
			m.RecordFatal(ctx, "t")
			m.RecordLatency(ctx, "t", time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, Snapshot{
		Attempts:     50,
		Successes:    50,
		Retries:      50,
		Fatals:       50,
		Writes:       50,
		LatencyTotal: 50 * time.Millisecond,
	}, m.Snapshot())
}

func TestMulti(t *testing.T) {
	a := NewInMemory()
	b := NewInMemory()
	r := Multi(a, nil, b)
	ctx := context.Background()

	r.RecordAttempt(ctx, "t")
	r.RecordRetry(ctx, "t")
	r.RecordLatency(ctx, "t", time.Second)

	for _, m := range []*InMemory{a, b} {
		s := m.Snapshot()
		assert.Equal(t, int64(1), s.Attempts)
		assert.Equal(t, int64(1), s.Retries)
		assert.Equal(t, int64(1), s.Writes)
		assert.Equal(t, time.Second, s.LatencyTotal)
	}
}

func TestNop(t *testing.T) {
	r := Nop()
	assert.NotPanics(t, func() {
		r.RecordAttempt(context.Background(), "t")
		r.RecordLatency(context.Background(), "t", time.Second)
	})
}

func TestPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg)
	require.NoError(t, err)

	ctx := context.Background()
	p.RecordAttempt(ctx, "ds.events")
	p.RecordAttempt(ctx, "ds.events")
	p.RecordRetry(ctx, "ds.events")
	p.RecordSuccess(ctx, "ds.events")
	p.RecordFatal(ctx, "ds.other")
	p.RecordLatency(ctx, "ds.events", 200*time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(p.attempts.WithLabelValues("ds.events")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.retries.WithLabelValues("ds.events")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.successes.WithLabelValues("ds.events")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.fatals.WithLabelValues("ds.other")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(p.latency))

	_, err = NewPrometheus(reg)
	require.Error(t, err, "registering twice must fail")
}
