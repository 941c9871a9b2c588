// Package stream feeds the writer from a NATS JetStream consumer.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	connectionTimeout  = 5 * time.Second
	connectionRetries  = 5
	initialRetryDelay  = 500 * time.Millisecond
	maxConnectionDelay = 5 * time.Second
)

type Conn struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func Connect(ctx context.Context, url string, log *slog.Logger) (*Conn, error) {
	var nc *nats.Conn

	err := retry.Do(
		func() error {
			var err error
			nc, err = nats.Connect(url, nats.Timeout(connectionTimeout))
			return err //nolint:wrapcheck // wrapped below
		},
		retry.Context(ctx),
		retry.Attempts(connectionRetries),
		retry.Delay(initialRetryDelay),
		retry.MaxDelay(maxConnectionDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.WarnContext(ctx, "Retrying connection to NATS", "url", url, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to connect to JetStream: %w", err)
	}

	return &Conn{
		nc: nc,
		js: js,
	}, nil
}

func (c *Conn) JetStream() jetstream.JetStream {
	return c.js
}

func (c *Conn) Close() error {
	err := c.nc.Drain()
	if err != nil {
		c.nc.Close()
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}
