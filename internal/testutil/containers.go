package testutil

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	chContainer "github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	ClickHouseContainerImage = "clickhouse/clickhouse-server:23.3.8.21-alpine"
	ClickHousePort           = "9000/tcp"
)

// ClickHouseContainer wraps a ClickHouse testcontainer
type ClickHouseContainer struct {
	container *chContainer.ClickHouseContainer
}

func StartClickHouseContainer(ctx context.Context) (*ClickHouseContainer, error) {
	container, err := chContainer.Run(
		ctx,
		ClickHouseContainerImage,
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/").
				WithPort("8123/tcp").
				WithStartupTimeout(60*time.Second)),
		testcontainers.WithReuseByName("testcontainers-table-writer-clickhouse"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start ClickHouse container %w", err)
	}

	return &ClickHouseContainer{
		container: container,
	}, nil
}

func (c *ClickHouseContainer) GetPort(ctx context.Context) (string, error) {
	port, err := c.container.MappedPort(ctx, nat.Port(ClickHousePort))
	if err != nil {
		return "", fmt.Errorf("failed to get mapped port of ClickHouse container %w", err)
	}
	return port.Port(), nil
}

// GetConnection returns a ClickHouse connection
func (c *ClickHouseContainer) GetConnection(ctx context.Context) (zero driver.Conn, _ error) {
	port, err := c.GetPort(ctx)
	if err != nil {
		return zero, err
	}

	conn, err := clickhouse.Open(
		&clickhouse.Options{ //nolint:exhaustruct // optional config
			Addr: []string{"localhost:" + port},
			Auth: clickhouse.Auth{
				Database: c.container.DbName,
				Username: c.container.User,
				Password: c.container.Password,
			},
			Compression: &clickhouse.Compression{
				Method: clickhouse.CompressionLZ4,
			},
		},
	)
	if err != nil {
		return zero, fmt.Errorf("failed to connect to ClickHouse %w", err)
	}

	return conn, nil
}

func (c *ClickHouseContainer) Database() string {
	return c.container.DbName
}

func (c *ClickHouseContainer) Username() string {
	return c.container.User
}

// EncodedPassword returns the password the way the store configuration expects it.
func (c *ClickHouseContainer) EncodedPassword() string {
	return base64.StdEncoding.EncodeToString([]byte(c.container.Password))
}

func (c *ClickHouseContainer) Stop(ctx context.Context) error {
	if os.Getenv("TABLEWRITER_REUSE_TESTCONTAINERS") == "true" {
		return nil
	}

	err := c.container.Terminate(ctx)
	if err != nil {
		return fmt.Errorf("failed to stop ClickHouse container %w", err)
	}

	return nil
}
