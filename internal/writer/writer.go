// Package writer delivers batches of rows to a store, retrying transient
// infrastructure failures and failing fast on structural rejections.
package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/glassflow/table-writer/internal/backoff"
	"github.com/glassflow/table-writer/internal/classifier"
	"github.com/glassflow/table-writer/internal/metrics"
	"github.com/glassflow/table-writer/internal/models"
)

// Request is one batch bound for a single destination table. Schemas holds the
// distinct shapes of the rows.
type Request struct {
	Rows    []models.Row
	Table   models.TableID
	Schemas []models.Schema
}

type Writer struct {
	strategy   Strategy
	classifier classifier.Classifier
	policy     backoff.Policy
	recorder   metrics.Recorder
	timer      retry.Timer
	retryCount int
	log        *slog.Logger
}

type Option func(*Writer)

// WithTimer replaces the timer used for backoff sleeps.
func WithTimer(t retry.Timer) Option {
	return func(w *Writer) {
		w.timer = t
	}
}

// WithPolicy overrides the backoff policy derived from the configuration.
func WithPolicy(p backoff.Policy) Option {
	return func(w *Writer) {
		w.policy = p
	}
}

func New(
	cfg models.WriterConfig,
	strategy Strategy,
	recorder metrics.Recorder,
	log *slog.Logger,
	opts ...Option,
) (*Writer, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	policy, err := backoff.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("create backoff policy: %w", err)
	}

	if recorder == nil {
		recorder = metrics.Nop()
	}

	w := &Writer{
		strategy:   strategy,
		classifier: classifier.New(cfg.RetryableCodes...),
		policy:     policy,
		recorder:   recorder,
		retryCount: cfg.RetryCount,
		log:        log,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Write blocks until the batch is fully accepted or a terminal error occurs.
//
// It returns *models.FatalError when the store rejected rows or failed in a
// way retrying cannot fix, and *models.TransportError when the retry budget is
// spent on retryable failures. An empty batch is a no-op.
func (w *Writer) Write(ctx context.Context, req Request) error {
	if len(req.Rows) == 0 {
		return nil
	}

	err := req.Table.Validate()
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}

	table := req.Table.String()
	start := time.Now()

	r := &run{
		writer: w,
		req:    req,
		table:  table,
		budget: w.retryCount,
	}

	opts := []retry.Option{
		retry.Context(ctx),
		// the run enforces the budget; the cap leaves room for one reconciled rejection
		retry.Attempts(uint(w.retryCount) + 2), //nolint:gosec // validated non-negative
		retry.RetryIf(isRetrySignal),
		retry.DelayType(r.delay),
		retry.LastErrorOnly(true),
	}
	if w.timer != nil {
		opts = append(opts, retry.WithTimer(w.timer))
	}

	err = retry.Do(func() error { return r.attempt(ctx) }, opts...)

	w.recorder.RecordLatency(ctx, table, time.Since(start))

	if err == nil {
		w.recorder.RecordSuccess(ctx, table)
		return nil
	}

	var (
		fatalErr     *models.FatalError
		transportErr *models.TransportError
	)
	if errors.As(err, &fatalErr) || errors.As(err, &transportErr) {
		w.recorder.RecordFatal(ctx, table)
		return err
	}

	// the call was interrupted by ctx before reaching a verdict
	err = unwrapSignal(err)
	if r.lastCause != nil {
		return fmt.Errorf("write to %s interrupted after %d attempt(s), last failure %v: %w",
			table, r.attempts, r.lastCause, err)
	}
	return fmt.Errorf("write to %s interrupted: %w", table, err)
}

// run is the retry state of a single Write call. It is never shared.
type run struct {
	writer *Writer
	req    Request
	table  string

	attempts   int
	budget     int
	reconciled bool
	wait       time.Duration
	waited     time.Duration
	lastCause  error
}

func (r *run) attempt(ctx context.Context) error {
	err := ctx.Err()
	if err != nil {
		return err //nolint:wrapcheck // wrapped by Write
	}

	w := r.writer
	index := r.attempts
	r.attempts++

	w.recorder.RecordAttempt(ctx, r.table)
	if index > 0 {
		w.recorder.RecordRetry(ctx, r.table)
	}

	outcome, err := w.strategy.Submit(ctx, r.req)
	if err != nil && ctx.Err() != nil {
		// the failure is the caller giving up, not a verdict from the store
		r.lastCause = err
		return ctx.Err() //nolint:wrapcheck // wrapped by Write
	}

	switch w.classifier.Classify(outcome, err) {
	case classifier.Success:
		if index > 0 {
			w.log.InfoContext(ctx, "Batch accepted after retries",
				"table", r.table,
				"attempts", r.attempts,
				"waited", r.waited)
		}
		return nil

	case classifier.RetryableInfrastructureError:
		r.lastCause = err
		if index < r.budget {
			return r.retryAfter(ctx, index, err)
		}
		return &models.TransportError{
			Table:    r.req.Table,
			Attempts: r.attempts,
			Cause:    err,
		}

	case classifier.PartialRowErrors:
		r.lastCause = models.ErrRowsRejected
		if !r.reconciled {
			reconciled, recErr := w.strategy.OnStructuralRejection(ctx, r.req, outcome)
			if recErr != nil {
				return &models.FatalError{
					Table:     r.req.Table,
					RowErrors: outcome.RowErrors,
					Cause:     recErr,
				}
			}
			if reconciled {
				r.reconciled = true
				r.budget++
				return r.retryAfter(ctx, index, models.ErrRowsRejected)
			}
		}
		return &models.FatalError{
			Table:     r.req.Table,
			RowErrors: outcome.RowErrors,
			Cause:     models.ErrRowsRejected,
		}

	default:
		r.lastCause = err
		return &models.FatalError{
			Table: r.req.Table,
			Cause: err,
		}
	}
}

func (r *run) retryAfter(ctx context.Context, index int, cause error) error {
	r.wait = r.writer.policy.Wait(index)
	r.waited += r.wait

	r.writer.log.WarnContext(ctx, "Write attempt failed, retrying",
		"table", r.table,
		"attempt", index+1,
		"max_retries", r.budget,
		"wait", r.wait,
		"error", cause)

	return &retrySignal{cause: cause}
}

func (r *run) delay(uint, error, *retry.Config) time.Duration {
	return r.wait
}

// retrySignal tells the retry loop to go around once more.
type retrySignal struct {
	cause error
}

func (s *retrySignal) Error() string {
	return fmt.Sprintf("retry: %v", s.cause)
}

func (s *retrySignal) Unwrap() error {
	return s.cause
}

func isRetrySignal(err error) bool {
	var sig *retrySignal
	return errors.As(err, &sig)
}

func unwrapSignal(err error) error {
	var sig *retrySignal
	if errors.As(err, &sig) {
		return sig.cause
	}
	return err
}
