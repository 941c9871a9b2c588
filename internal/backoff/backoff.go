package backoff

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/glassflow/table-writer/internal/models"
)

// Policy computes the wait before the retry that follows the given 0-based attempt.
type Policy interface {
	Wait(attempt int) time.Duration
}

// Fixed waits the same duration after every attempt.
type Fixed struct {
	Interval time.Duration
}

func (f Fixed) Wait(int) time.Duration {
	if f.Interval < 0 {
		return 0
	}
	return f.Interval
}

// Exponential doubles the base wait on every attempt, capped by Max when Max > 0.
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

func (e Exponential) Wait(attempt int) time.Duration {
	if e.Base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}

	wait := e.Base
	for i := 0; i < attempt; i++ {
		next := wait * 2
		if next < wait {
			if e.Max > 0 {
				return e.Max
			}
			return time.Duration(math.MaxInt64)
		}
		if e.Max > 0 && next >= e.Max {
			return e.Max
		}
		wait = next
	}

	if e.Max > 0 && wait > e.Max {
		return e.Max
	}
	return wait
}

// Jittered adds a random duration in [0, Jitter) on top of another policy.
type Jittered struct {
	policy Policy
	jitter time.Duration

	mu  sync.Mutex // guards rnd
	rnd *rand.Rand
}

func NewJittered(policy Policy, jitter time.Duration, seed uint64) *Jittered {
	return &Jittered{
		policy: policy,
		jitter: jitter,
		rnd:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), //nolint:gosec // jitter only
	}
}

func (j *Jittered) Wait(attempt int) time.Duration {
	wait := j.policy.Wait(attempt)
	if j.jitter <= 0 {
		return wait
	}

	j.mu.Lock()
	extra := time.Duration(j.rnd.Int64N(int64(j.jitter)))
	j.mu.Unlock()

	return wait + extra
}

// New builds the policy selected by the writer configuration.
func New(cfg models.WriterConfig) (Policy, error) {
	var policy Policy
	switch cfg.Backoff {
	case "", models.BackoffFixed:
		policy = Fixed{Interval: cfg.RetryWait}
	case models.BackoffExponential:
		policy = Exponential{Base: cfg.RetryWait, Max: cfg.MaxRetryWait}
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownBackoff, cfg.Backoff)
	}

	if cfg.Jitter > 0 {
		policy = NewJittered(policy, cfg.Jitter, uint64(time.Now().UnixNano()))
	}

	return policy, nil
}
