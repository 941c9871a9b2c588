package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

type ConsumerConfig struct {
	URL      string        `default:"nats://127.0.0.1:4222"`
	Stream   string        `validate:"required"`
	Consumer string        `default:"table-writer"`
	Subject  string        `default:""`
	AckWait  time.Duration `default:"60s" split_words:"true"`
}

func NewConsumer(ctx context.Context, js jetstream.JetStream, cfg ConsumerConfig) (jetstream.Consumer, error) {
	stream, err := js.Stream(ctx, cfg.Stream)
	if err != nil {
		return nil, fmt.Errorf("get stream: %w", err)
	}

	var filter string
	if len(cfg.Subject) > 0 {
		filter = cfg.Stream + "." + cfg.Subject
	}

	//nolint:exhaustruct // optional config
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          cfg.Consumer,
		Durable:       cfg.Consumer,
		AckWait:       cfg.AckWait,
		AckPolicy:     jetstream.AckAllPolicy,
		MaxAckPending: -1,

		FilterSubject: filter,
	})
	if err != nil {
		return nil, fmt.Errorf("get or create consumer: %w", err)
	}

	return consumer, nil
}
