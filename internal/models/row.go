package models

import (
	"fmt"
	"sort"
	"strings"
)

// TableID identifies the destination table of a batch.
type TableID struct {
	Dataset string `json:"dataset"`
	Table   string `json:"table"`
}

func (t TableID) String() string {
	if t.Dataset == "" {
		return t.Table
	}
	return t.Dataset + "." + t.Table
}

func (t TableID) Validate() error {
	if t.Table == "" {
		return ErrEmptyTable
	}
	return nil
}

// Row is a single record to insert, keyed by column name.
type Row struct {
	// InsertID is a best-effort deduplication key. It must stay the same
	// when the batch containing the row is resubmitted.
	InsertID string
	Values   map[string]any
}

type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Schema is the structural shape of a row.
type Schema struct {
	Fields []Field `json:"fields"`
}

// Key returns a canonical representation used to compare schemas.
func (s Schema) Key() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = f.Name + ":" + f.Type
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func (s Schema) String() string {
	return fmt.Sprintf("{%s}", s.Key())
}

// DistinctSchemas returns the schemas in order of first appearance,
// dropping duplicates by Key.
func DistinctSchemas(schemas ...Schema) []Schema {
	seen := make(map[string]struct{}, len(schemas))
	result := make([]Schema, 0, len(schemas))
	for _, s := range schemas {
		k := s.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		result = append(result, s)
	}
	return result
}
