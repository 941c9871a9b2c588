package clickhouse

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type Column struct {
	Name string
	Type string
}

type columnSource interface {
	TableColumns(ctx context.Context, database, table string) ([]Column, error)
}

// columnCache remembers the column set of recently written tables. Entries
// expire after ttl so that out-of-band table changes are eventually seen.
type columnCache struct {
	source columnSource
	lru    *expirable.LRU[string, []Column]
}

func newColumnCache(source columnSource, size int, ttl time.Duration) *columnCache {
	return &columnCache{
		source: source,
		lru:    expirable.NewLRU[string, []Column](size, nil, ttl),
	}
}

func (c *columnCache) get(ctx context.Context, database, table string) ([]Column, error) {
	key := cacheKey(database, table)
	if cols, ok := c.lru.Get(key); ok {
		return cols, nil
	}

	cols, err := c.source.TableColumns(ctx, database, table)
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by the source
	}

	// unknown tables are not cached so that creating one takes effect at once
	if len(cols) > 0 {
		c.lru.Add(key, cols)
	}

	return cols, nil
}

func (c *columnCache) invalidate(database, table string) {
	c.lru.Remove(cacheKey(database, table))
}

func cacheKey(database, table string) string {
	return database + "." + table
}
