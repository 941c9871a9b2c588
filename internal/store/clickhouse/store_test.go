package clickhouse

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glassflow/table-writer/internal/models"
)

type fakeSource struct {
	mu      sync.Mutex
	columns map[string][]Column
	err     error
	calls   int
}

func (f *fakeSource) TableColumns(_ context.Context, database, table string) ([]Column, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.columns[database+"."+table], nil
}

func (f *fakeSource) set(key string, cols []Column) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.columns[key] = cols
}

type fakeBatch struct {
	rows      [][]any
	appendErr func(v []any) error
	sendErr   error
	sent      bool
	aborted   bool
}

func (b *fakeBatch) Append(v ...any) error {
	if b.appendErr != nil {
		if err := b.appendErr(v); err != nil {
			return err
		}
	}
	b.rows = append(b.rows, v)
	return nil
}

func (b *fakeBatch) Abort() error {
	b.aborted = true
	return nil
}

func (b *fakeBatch) Send() error {
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = true
	return nil
}

type fakePreparer struct {
	batch   *fakeBatch
	err     error
	queries []string
	ctxs    []context.Context
}

func (p *fakePreparer) PrepareBatch(ctx context.Context, query string) (RowBatch, error) {
	p.queries = append(p.queries, query)
	p.ctxs = append(p.ctxs, ctx)
	if p.err != nil {
		return nil, p.err
	}
	return p.batch, nil
}

var (
	events       = models.TableID{Dataset: "analytics", Table: "events"}
	eventColumns = []Column{
		{Name: "id", Type: "UInt64"},
		{Name: "name", Type: "LowCardinality(String)"},
		{Name: "score", Type: "Nullable(Float64)"},
		{Name: "created_at", Type: "DateTime"},
	}
)

func testConfig() Config {
	return Config{
		Database:        "default",
		ColumnCacheSize: 8,
		ColumnCacheTTL:  time.Minute,
	}
}

func newTestStore(t *testing.T) (*Store, *fakeSource, *fakePreparer) {
	t.Helper()

	source := &fakeSource{columns: map[string][]Column{"analytics.events": eventColumns}}
	preparer := &fakePreparer{batch: &fakeBatch{}}

	return newStore(preparer, source, testConfig(), slog.New(slog.DiscardHandler)), source, preparer
}

func TestStore_Insert(t *testing.T) {
	s, _, preparer := newTestStore(t)

	rows := []models.Row{
		{Values: map[string]any{"id": float64(1), "name": "a", "created_at": "2024-01-02T03:04:05Z"}},
		{Values: map[string]any{"id": float64(2), "name": "b", "score": 0.5, "created_at": float64(1700000000)}},
	}

	outcome, err := s.Insert(context.Background(), events, rows)
	require.NoError(t, err)
	assert.False(t, outcome.HasRowErrors())

	require.Len(t, preparer.queries, 1)
	assert.Equal(t, "INSERT INTO `analytics`.`events` (`id`, `name`, `score`, `created_at`)", preparer.queries[0])

	batch := preparer.batch
	assert.True(t, batch.sent)
	require.Len(t, batch.rows, 2)
	assert.Equal(t, []any{uint64(1), "a", nil, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}, batch.rows[0])
	assert.Equal(t, uint64(2), batch.rows[1][0])
	assert.InDelta(t, 0.5, batch.rows[1][2], 0.0001)
}

func TestStore_InsertOnlyUsedColumns(t *testing.T) {
	s, _, preparer := newTestStore(t)

	rows := []models.Row{{Values: map[string]any{"id": 1, "name": "a", "created_at": time.Unix(0, 0)}}}

	_, err := s.Insert(context.Background(), events, rows)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO `analytics`.`events` (`id`, `name`, `created_at`)", preparer.queries[0])
}

func TestStore_InsertRowErrors(t *testing.T) {
	s, _, preparer := newTestStore(t)

	rows := []models.Row{
		{Values: map[string]any{"id": 1, "name": "ok", "created_at": "2024-01-02"}},
		{Values: map[string]any{"id": 2, "name": "x", "created_at": "2024-01-02", "country": "NL"}},
		{Values: map[string]any{"id": -3, "name": "y", "created_at": "2024-01-02"}},
		{Values: map[string]any{"name": "z", "created_at": "2024-01-02"}},
	}

	outcome, err := s.Insert(context.Background(), events, rows)
	require.NoError(t, err)
	require.True(t, outcome.HasRowErrors())
	assert.Equal(t, []int{1, 2, 3}, outcome.RejectedIndices())

	assert.Equal(t, []models.FieldError{{
		Location: "country",
		Reason:   reasonInvalid,
		Message:  "no such field: country",
	}}, outcome.RowErrors[1])
	assert.Equal(t, "id", outcome.RowErrors[2][0].Location)
	assert.Equal(t, reasonMissing, outcome.RowErrors[3][0].Reason)

	assert.Empty(t, preparer.queries, "nothing is sent for a rejected batch")
}

func TestStore_InsertAppendFailure(t *testing.T) {
	s, _, preparer := newTestStore(t)
	preparer.batch.appendErr = func(v []any) error {
		if v[1] == "bad" {
			return errors.New("clickhouse [AppendRow]: converting string to LowCardinality")
		}
		return nil
	}

	rows := []models.Row{
		{Values: map[string]any{"id": 1, "name": "good", "created_at": "2024-01-02"}},
		{Values: map[string]any{"id": 2, "name": "bad", "created_at": "2024-01-02"}},
	}

	outcome, err := s.Insert(context.Background(), events, rows)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, outcome.RejectedIndices())
	assert.True(t, preparer.batch.aborted)
	assert.False(t, preparer.batch.sent)
}

func TestStore_InsertUnknownTable(t *testing.T) {
	s, _, _ := newTestStore(t)

	_, err := s.Insert(context.Background(), models.TableID{Dataset: "analytics", Table: "missing"},
		[]models.Row{{Values: map[string]any{"id": 1}}})

	var statusErr *models.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
}

func TestStore_InsertDefaultDatabase(t *testing.T) {
	s, source, preparer := newTestStore(t)
	source.set("default.events", eventColumns[:1])

	_, err := s.Insert(context.Background(), models.TableID{Table: "events"},
		[]models.Row{{Values: map[string]any{"id": 1}}})
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO `default`.`events` (`id`)", preparer.queries[0])
}

func TestStore_InsertSendFailure(t *testing.T) {
	s, _, preparer := newTestStore(t)
	preparer.batch.sendErr = &clickhouse.Exception{Code: codeTooManyParts, Name: "TOO_MANY_PARTS", Message: "Too many parts"}

	_, err := s.Insert(context.Background(), events,
		[]models.Row{{Values: map[string]any{"id": 1, "name": "a", "created_at": "2024-01-02"}}})

	var statusErr *models.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
}

func TestStore_ColumnCache(t *testing.T) {
	s, source, _ := newTestStore(t)
	row := []models.Row{{Values: map[string]any{"id": 1, "name": "a", "created_at": "2024-01-02"}}}

	for range 3 {
		_, err := s.Insert(context.Background(), events, row)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, source.calls)
}

func TestStore_Reconcile(t *testing.T) {
	s, source, _ := newTestStore(t)
	ctx := context.Background()

	row := []models.Row{{Values: map[string]any{"id": 1, "name": "a", "created_at": "2024-01-02", "country": "NL"}}}
	schemas := []models.Schema{{Fields: []models.Field{{Name: "id"}, {Name: "country"}}}}

	outcome, err := s.Insert(ctx, events, row)
	require.NoError(t, err)
	require.True(t, outcome.HasRowErrors())

	err = s.Reconcile(ctx, events, schemas)
	require.ErrorIs(t, err, ErrColumnsMissing)
	assert.Contains(t, err.Error(), "country")

	source.set("analytics.events", append(eventColumns, Column{Name: "country", Type: "String"}))

	require.NoError(t, s.Reconcile(ctx, events, schemas))

	outcome, err = s.Insert(ctx, events, row)
	require.NoError(t, err)
	assert.False(t, outcome.HasRowErrors())
}

func TestStore_ReconcileSourceFailure(t *testing.T) {
	s, source, _ := newTestStore(t)
	source.err = errors.New("boom")

	err := s.Reconcile(context.Background(), events, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrColumnsMissing)
}

func TestWithDedupToken(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, ctx, withDedupToken(ctx, []models.Row{{InsertID: "a"}, {}}))

	withIDs := []models.Row{{InsertID: "a"}, {InsertID: "b"}}
	assert.NotEqual(t, ctx, withDedupToken(ctx, withIDs))
}
