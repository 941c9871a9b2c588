package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/glassflow/table-writer/internal/models"
	"github.com/glassflow/table-writer/internal/writer"
)

var ErrNoNewMessages = errors.New("no new messages")

type SinkConfig struct {
	Dataset         string        `default:""`
	Table           string        `validate:"required"`
	MaxBatchSize    int           `default:"1000" split_words:"true" validate:"gte=1"`
	MaxDelayTime    time.Duration `default:"1s" split_words:"true" validate:"gt=0"`
	ShutdownTimeout time.Duration `default:"30s" split_words:"true"`
}

// MessageFetcher is the part of jetstream.Consumer the sink reads from.
type MessageFetcher interface {
	Fetch(batch int, opts ...jetstream.FetchOpt) (jetstream.MessageBatch, error)
	FetchNoWait(batch int) (jetstream.MessageBatch, error)
}

type BatchWriter interface {
	Write(ctx context.Context, req writer.Request) error
}

// Sink reads JSON rows from a consumer and hands them to the writer one batch
// at a time. Messages are acknowledged only after the writer accepted the
// whole batch.
type Sink struct {
	fetcher MessageFetcher
	writer  BatchWriter
	cfg     SinkConfig
	table   models.TableID
	log     *slog.Logger
}

func NewSink(fetcher MessageFetcher, w BatchWriter, cfg SinkConfig, log *slog.Logger) *Sink {
	return &Sink{
		fetcher: fetcher,
		writer:  w,
		cfg:     cfg,
		table:   models.TableID{Dataset: cfg.Dataset, Table: cfg.Table},
		log:     log,
	}
}

// Start runs until ctx is done or a batch cannot be written.
func (s *Sink) Start(ctx context.Context) error {
	s.log.InfoContext(ctx, "Sink started",
		"table", s.table.String(),
		"max_batch_size", s.cfg.MaxBatchSize,
		"max_delay_time", s.cfg.MaxDelayTime)

	defer s.log.InfoContext(ctx, "Sink stopped")

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
			defer cancel()
			return s.handleShutdown(shutdownCtx)
		default:
			err := s.fetchAndFlush(ctx, func() (jetstream.MessageBatch, error) {
				return s.fetcher.Fetch(s.cfg.MaxBatchSize, jetstream.FetchMaxWait(s.cfg.MaxDelayTime))
			})
			switch {
			case errors.Is(err, ErrNoNewMessages):
				continue
			case ctx.Err() != nil:
				// interrupted writes are redelivered
				continue
			case err != nil:
				return err
			}
		}
	}
}

func (s *Sink) handleShutdown(ctx context.Context) error {
	s.log.InfoContext(ctx, "Sink shutting down")

	err := s.fetchAndFlush(ctx, func() (jetstream.MessageBatch, error) {
		return s.fetcher.FetchNoWait(s.cfg.MaxBatchSize)
	})
	if err != nil && !errors.Is(err, ErrNoNewMessages) {
		return fmt.Errorf("flush pending messages: %w", err)
	}

	return nil
}

func (s *Sink) fetchAndFlush(ctx context.Context, fetch func() (jetstream.MessageBatch, error)) error {
	msgBatch, err := fetch()
	if err != nil {
		return fmt.Errorf("failed to fetch messages: %w", err)
	}

	messages := make([]jetstream.Msg, 0, s.cfg.MaxBatchSize)
	for msg := range msgBatch.Messages() {
		if msg == nil {
			break
		}
		messages = append(messages, msg)
	}

	if len(messages) == 0 {
		return ErrNoNewMessages
	}

	if msgBatch.Error() != nil {
		s.log.WarnContext(ctx, "Fetch ended with error", "error", msgBatch.Error(), "message_count", len(messages))
	}

	return s.flush(ctx, messages)
}

func (s *Sink) flush(ctx context.Context, messages []jetstream.Msg) error {
	rows := make([]models.Row, 0, len(messages))
	schemas := make([]models.Schema, 0, len(messages))
	var last jetstream.Msg

	for _, msg := range messages {
		row, schema, err := DecodeRow(msg)
		if err != nil {
			s.log.WarnContext(ctx, "Dropping message that is not a row", "subject", msg.Subject(), "error", err)
			termErr := msg.Term()
			if termErr != nil {
				return fmt.Errorf("terminate message: %w", termErr)
			}
			continue
		}

		rows = append(rows, row)
		schemas = append(schemas, schema)
		last = msg
	}

	if len(rows) == 0 {
		return nil
	}

	err := s.writer.Write(ctx, writer.Request{
		Rows:    rows,
		Table:   s.table,
		Schemas: models.DistinctSchemas(schemas...),
	})
	if err != nil {
		s.logRejectedRows(ctx, err)
		return fmt.Errorf("write batch: %w", err)
	}

	// acknowledge all using the last written message
	err = retry.Do(
		func() error {
			return last.Ack() //nolint:wrapcheck // wrapped below
		},
		retry.Attempts(3),
		retry.DelayType(retry.FixedDelay),
	)
	if err != nil {
		return fmt.Errorf("acknowledge messages: %w", err)
	}

	s.log.DebugContext(ctx, "Batch processing completed successfully",
		"table", s.table.String(),
		"rows", len(rows))

	return nil
}

func (s *Sink) logRejectedRows(ctx context.Context, err error) {
	var fatalErr *models.FatalError
	if !errors.As(err, &fatalErr) {
		return
	}

	messages := fatalErr.Messages()
	for _, idx := range models.Rejected(fatalErr.RowErrors).RejectedIndices() {
		s.log.ErrorContext(ctx, "Row rejected",
			"table", s.table.String(),
			"row", idx,
			"errors", messages[idx])
	}
}
