package clickhouse

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/ClickHouse/ch-go"
	"github.com/ClickHouse/ch-go/chpool"
	"github.com/ClickHouse/ch-go/proto"
	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const defaultPingTimeout = 5 * time.Second

// Client holds the two connections used by the store: clickhouse-go for row
// inserts and a ch-go pool for metadata queries.
type Client struct {
	conn driver.Conn
	pool *chpool.Pool
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	pswd, err := base64.StdEncoding.DecodeString(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to decode password: %w", err)
	}

	addr := net.JoinHostPort(cfg.Host, cfg.Port)

	var tlsConfig *tls.Config
	if cfg.Secure {
		tlsConfig = &tls.Config{ //nolint:exhaustruct // optional fields
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.SkipCertificateCheck, //nolint:gosec // opt-in
		}
	}

	conn, err := clickhouse.Open(&clickhouse.Options{ //nolint:exhaustruct // optional config
		Addr:     []string{addr},
		Protocol: clickhouse.Native,
		TLS:      tlsConfig,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: string(pswd),
		},
		DialTimeout:  cfg.DialTimeout,
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxOpenConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse connection: %w", err)
	}

	pool, err := chpool.Dial(ctx, chpool.Options{ //nolint:exhaustruct // optional config
		ClientOptions: ch.Options{ //nolint:exhaustruct // optional config
			Address:     addr,
			Database:    cfg.Database,
			User:        cfg.Username,
			Password:    string(pswd),
			TLS:         tlsConfig,
			DialTimeout: cfg.DialTimeout,
		},
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	c := &Client{conn: conn, pool: pool}

	pingTimeout := cfg.DialTimeout
	if pingTimeout <= 0 {
		pingTimeout = defaultPingTimeout
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	err = c.Ping(pingCtx)
	if err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

func (c *Client) Ping(ctx context.Context) error {
	err := c.conn.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping failed: %w", statusError(err))
	}

	err = c.pool.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping failed: %w", statusError(err))
	}

	return nil
}

func (c *Client) Close() error {
	c.pool.Close()

	err := c.conn.Close()
	if err != nil {
		return fmt.Errorf("close clickhouse connection: %w", err)
	}

	return nil
}

// PrepareBatch starts an insert on the clickhouse-go connection.
func (c *Client) PrepareBatch(ctx context.Context, query string) (RowBatch, error) {
	batch, err := c.conn.PrepareBatch(ctx, query)
	if err != nil {
		return nil, err //nolint:wrapcheck // mapped by the caller
	}
	return batch, nil
}

// TableColumns lists the columns of a table in declaration order. A table
// that does not exist has no columns.
func (c *Client) TableColumns(ctx context.Context, database, table string) ([]Column, error) {
	var (
		nameCol proto.ColStr
		typeCol proto.ColStr
	)

	query := fmt.Sprintf(
		"SELECT name, type FROM system.columns WHERE database = %s AND table = %s ORDER BY position",
		quoteString(database), quoteString(table),
	)

	err := c.pool.Do(ctx, ch.Query{ //nolint:exhaustruct // optional fields
		Body: query,
		Result: proto.Results{
			{Name: "name", Data: &nameCol},
			{Name: "type", Data: &typeCol},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query table schema: %w", err)
	}

	columns := make([]Column, nameCol.Rows())
	for i := range nameCol.Rows() {
		columns[i] = Column{
			Name: nameCol.Row(i),
			Type: typeCol.Row(i),
		}
	}

	return columns, nil
}

var stringEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func quoteString(s string) string {
	return "'" + stringEscaper.Replace(s) + "'"
}

func quoteIdentifier(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}
