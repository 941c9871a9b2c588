package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glassflow/table-writer/internal/models"
)

func TestFixed(t *testing.T) {
	p := Fixed{Interval: 100 * time.Millisecond}

	for attempt := 0; attempt < 5; attempt++ {
		assert.Equal(t, 100*time.Millisecond, p.Wait(attempt))
	}

	assert.Equal(t, time.Duration(0), Fixed{Interval: -time.Second}.Wait(0))
}

func TestExponential(t *testing.T) {
	p := Exponential{Base: 100 * time.Millisecond, Max: time.Second}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{attempt: -1, expected: 100 * time.Millisecond},
		{attempt: 0, expected: 100 * time.Millisecond},
		{attempt: 1, expected: 200 * time.Millisecond},
		{attempt: 2, expected: 400 * time.Millisecond},
		{attempt: 3, expected: 800 * time.Millisecond},
		{attempt: 4, expected: time.Second},
		{attempt: 100, expected: time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, p.Wait(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExponential_NoCap(t *testing.T) {
	p := Exponential{Base: time.Millisecond}

	assert.Equal(t, 8*time.Millisecond, p.Wait(3))
	assert.Equal(t, time.Duration(0), Exponential{}.Wait(3))
}

func TestJittered(t *testing.T) {
	p := NewJittered(Fixed{Interval: 100 * time.Millisecond}, 50*time.Millisecond, 42)

	for attempt := 0; attempt < 20; attempt++ {
		wait := p.Wait(attempt)
		assert.GreaterOrEqual(t, wait, 100*time.Millisecond)
		assert.Less(t, wait, 150*time.Millisecond)
	}

	a := NewJittered(Fixed{}, time.Second, 7)
	b := NewJittered(Fixed{}, time.Second, 7)
	assert.Equal(t, a.Wait(0), b.Wait(0), "same seed yields same sequence")
}

func TestNew(t *testing.T) {
	t.Run("fixed by default", func(t *testing.T) {
		cfg := models.DefaultWriterConfig()
		cfg.RetryWait = 250 * time.Millisecond

		p, err := New(cfg)
		require.NoError(t, err)
		assert.Equal(t, Fixed{Interval: 250 * time.Millisecond}, p)
	})

	t.Run("exponential", func(t *testing.T) {
		cfg := models.DefaultWriterConfig()
		cfg.Backoff = models.BackoffExponential
		cfg.RetryWait = 10 * time.Millisecond
		cfg.MaxRetryWait = 40 * time.Millisecond

		p, err := New(cfg)
		require.NoError(t, err)
		assert.Equal(t, 40*time.Millisecond, p.Wait(5))
	})

	t.Run("jitter wraps policy", func(t *testing.T) {
		cfg := models.DefaultWriterConfig()
		cfg.Jitter = time.Millisecond

		p, err := New(cfg)
		require.NoError(t, err)
		assert.IsType(t, &Jittered{}, p)
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := models.DefaultWriterConfig()
		cfg.Backoff = "fibonacci"

		_, err := New(cfg)
		require.ErrorIs(t, err, models.ErrUnknownBackoff)
	})
}
