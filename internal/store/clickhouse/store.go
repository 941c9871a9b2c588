// Package clickhouse submits batches to ClickHouse over the native protocol.
//
// ClickHouse has no per-row insert diagnostics, so rows are validated against
// the destination columns before the batch is sent. Rows that cannot be
// mapped are reported as row errors and nothing is written for the batch.
package clickhouse

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/glassflow/table-writer/internal/models"
)

const (
	reasonInvalid = "invalid"
	reasonMissing = "required"
)

// RowBatch is the part of a clickhouse-go batch the store uses.
type RowBatch interface {
	Append(v ...any) error
	Abort() error
	Send() error
}

type batchPreparer interface {
	PrepareBatch(ctx context.Context, query string) (RowBatch, error)
}

// Store implements store.Inserter and store.SchemaReconciler on top of a
// single ClickHouse cluster. TableID.Dataset selects the database and falls
// back to the configured one.
type Store struct {
	batches  batchPreparer
	columns  *columnCache
	database string
	log      *slog.Logger
}

func NewStore(client *Client, cfg Config, log *slog.Logger) *Store {
	return newStore(client, client, cfg, log)
}

func newStore(batches batchPreparer, source columnSource, cfg Config, log *slog.Logger) *Store {
	return &Store{
		batches:  batches,
		columns:  newColumnCache(source, cfg.ColumnCacheSize, cfg.ColumnCacheTTL),
		database: cfg.Database,
		log:      log,
	}
}

func (s *Store) Insert(ctx context.Context, table models.TableID, rows []models.Row) (models.SubmissionOutcome, error) {
	database := s.databaseOf(table)

	columns, err := s.columns.get(ctx, database, table.Table)
	if err != nil {
		return models.Accepted(), statusError(err)
	}
	if len(columns) == 0 {
		return models.Accepted(), models.NewStatusError(http.StatusNotFound,
			fmt.Errorf("table %s.%s does not exist", database, table.Table))
	}

	target := usedColumns(columns, rows)

	values, rowErrors := mapRows(target, columns, rows)
	if len(rowErrors) > 0 {
		return models.Rejected(rowErrors), nil
	}

	query := insertQuery(database, table.Table, target)

	batch, err := s.batches.PrepareBatch(withDedupToken(ctx, rows), query)
	if err != nil {
		return models.Accepted(), statusError(err)
	}

	for i, v := range values {
		err = batch.Append(v...)
		if err != nil {
			rowErrors[i] = append(rowErrors[i], models.FieldError{Reason: reasonInvalid, Message: err.Error()})
		}
	}

	if len(rowErrors) > 0 {
		abortErr := batch.Abort()
		if abortErr != nil {
			s.log.WarnContext(ctx, "Failed to abort batch", "table", table.String(), "error", abortErr)
		}
		return models.Rejected(rowErrors), nil
	}

	err = batch.Send()
	if err != nil {
		return models.Accepted(), statusError(err)
	}

	return models.Accepted(), nil
}

// Reconcile drops the cached column set of the table and reloads it. It fails
// while a field of the given schemas still has no matching column, as
// resubmitting the batch would be rejected again.
func (s *Store) Reconcile(ctx context.Context, table models.TableID, schemas []models.Schema) error {
	database := s.databaseOf(table)

	s.columns.invalidate(database, table.Table)

	columns, err := s.columns.get(ctx, database, table.Table)
	if err != nil {
		return fmt.Errorf("reload columns of %s.%s: %w", database, table.Table, statusError(err))
	}

	known := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		known[col.Name] = struct{}{}
	}

	var missing []string
	seen := make(map[string]struct{})
	for _, schema := range schemas {
		for _, f := range schema.Fields {
			if _, ok := known[f.Name]; ok {
				continue
			}
			if _, ok := seen[f.Name]; ok {
				continue
			}
			seen[f.Name] = struct{}{}
			missing = append(missing, f.Name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s.%s has no column for %s",
			ErrColumnsMissing, database, table.Table, strings.Join(missing, ", "))
	}

	s.log.InfoContext(ctx, "Destination columns reloaded",
		"table", table.String(),
		"columns", len(columns))

	return nil
}

func (s *Store) databaseOf(table models.TableID) string {
	if table.Dataset != "" {
		return table.Dataset
	}
	return s.database
}

// usedColumns returns the table columns that at least one row sets, in table
// order.
func usedColumns(columns []Column, rows []models.Row) []Column {
	used := make([]Column, 0, len(columns))
	for _, col := range columns {
		for _, row := range rows {
			if _, ok := row.Values[col.Name]; ok {
				used = append(used, col)
				break
			}
		}
	}
	return used
}

// mapRows converts each row into the values of target in order. Fields
// without a column, conversion failures and missing values for non-nullable
// columns are reported per row.
func mapRows(target, all []Column, rows []models.Row) ([][]any, map[int][]models.FieldError) {
	known := make(map[string]struct{}, len(all))
	for _, col := range all {
		known[col.Name] = struct{}{}
	}

	type targetColumn struct {
		Column
		conv     converter
		nullable bool
	}

	targets := make([]targetColumn, len(target))
	for i, col := range target {
		conv, nullable := columnConverter(col.Type)
		targets[i] = targetColumn{Column: col, conv: conv, nullable: nullable}
	}

	values := make([][]any, len(rows))
	rowErrors := make(map[int][]models.FieldError)

	for i, row := range rows {
		for _, name := range slices.Sorted(maps.Keys(row.Values)) {
			if _, ok := known[name]; !ok {
				rowErrors[i] = append(rowErrors[i], models.FieldError{
					Location: name,
					Reason:   reasonInvalid,
					Message:  "no such field: " + name,
				})
			}
		}

		rowValues := make([]any, len(targets))
		for j, col := range targets {
			v, ok := row.Values[col.Name]
			if !ok || v == nil {
				if col.nullable {
					continue
				}
				rowErrors[i] = append(rowErrors[i], models.FieldError{
					Location: col.Name,
					Reason:   reasonMissing,
					Message:  fmt.Sprintf("missing value for non-nullable column %s of type %s", col.Name, col.Type),
				})
				continue
			}

			converted, err := col.conv(v)
			if err != nil {
				rowErrors[i] = append(rowErrors[i], models.FieldError{
					Location: col.Name,
					Reason:   reasonInvalid,
					Message:  fmt.Sprintf("cannot convert %s to %s: %v", col.Name, col.Type, err),
				})
				continue
			}
			rowValues[j] = converted
		}
		values[i] = rowValues
	}

	return values, rowErrors
}

func insertQuery(database, table string, columns []Column) string {
	names := make([]string, len(columns))
	for i, col := range columns {
		names[i] = quoteIdentifier(col.Name)
	}
	return fmt.Sprintf("INSERT INTO %s.%s (%s)",
		quoteIdentifier(database), quoteIdentifier(table), strings.Join(names, ", "))
}

// withDedupToken sets insert_deduplication_token from the insert IDs so that a
// resubmitted batch is dropped by tables with deduplication enabled. Batches
// with a row lacking an ID are sent without a token.
func withDedupToken(ctx context.Context, rows []models.Row) context.Context {
	h := sha256.New()
	for _, row := range rows {
		if row.InsertID == "" {
			return ctx
		}
		h.Write([]byte(row.InsertID))
		h.Write([]byte{0})
	}

	return clickhouse.Context(ctx, clickhouse.WithSettings(clickhouse.Settings{
		"insert_deduplication_token": hex.EncodeToString(h.Sum(nil)),
	}))
}
