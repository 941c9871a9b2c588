package stream

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/glassflow/table-writer/internal/models"
)

var (
	errNotAnObject  = errors.New("message is not a JSON object")
	errTrailingData = errors.New("message has data after the JSON object")
)

// insertIDSpace namespaces the insert IDs derived from stream positions.
var insertIDSpace = uuid.MustParse("5b0e8f3e-6a3c-4d8e-9a43-0c4f6f1b7a52")

// DecodeRow turns a JSON object message into a row. The insert ID is derived
// from the stream position, so a redelivered message keeps its ID. Numbers are
// kept as json.Number so wide integers reach the store unchanged.
func DecodeRow(msg jetstream.Msg) (models.Row, models.Schema, error) {
	dec := json.NewDecoder(bytes.NewReader(msg.Data()))
	dec.UseNumber()

	var values map[string]any
	err := dec.Decode(&values)
	if err != nil {
		return models.Row{}, models.Schema{}, fmt.Errorf("decode message: %w", err)
	}
	if dec.More() {
		return models.Row{}, models.Schema{}, errTrailingData
	}
	if values == nil {
		return models.Row{}, models.Schema{}, errNotAnObject
	}

	var insertID string
	md, err := msg.Metadata()
	if err == nil {
		insertID = uuid.NewSHA1(insertIDSpace, fmt.Appendf(nil, "%s/%d", md.Stream, md.Sequence.Stream)).String()
	}

	return models.Row{InsertID: insertID, Values: values}, inferSchema(values), nil
}

func inferSchema(values map[string]any) models.Schema {
	fields := make([]models.Field, 0, len(values))
	for _, name := range slices.Sorted(maps.Keys(values)) {
		fields = append(fields, models.Field{Name: name, Type: fieldType(values[name])})
	}
	return models.Schema{Fields: fields}
}

func fieldType(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		return "BOOLEAN"
	case json.Number:
		if _, err := val.Int64(); err == nil {
			return "INTEGER"
		}
		if f, err := val.Float64(); err == nil && f == math.Trunc(f) {
			return "INTEGER"
		}
		return "FLOAT"
	case []any:
		return "REPEATED"
	case map[string]any:
		return "RECORD"
	default:
		return "STRING"
	}
}
