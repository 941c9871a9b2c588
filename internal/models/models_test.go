package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableID(t *testing.T) {
	assert.Equal(t, "analytics.events", TableID{Dataset: "analytics", Table: "events"}.String())
	assert.Equal(t, "events", TableID{Table: "events"}.String())

	require.NoError(t, TableID{Table: "events"}.Validate())
	require.ErrorIs(t, TableID{Dataset: "analytics"}.Validate(), ErrEmptyTable)
}

func TestSchemaKey(t *testing.T) {
	a := Schema{Fields: []Field{{Name: "id", Type: "INTEGER"}, {Name: "name", Type: "STRING"}}}
	b := Schema{Fields: []Field{{Name: "name", Type: "STRING"}, {Name: "id", Type: "INTEGER"}}}
	c := Schema{Fields: []Field{{Name: "id", Type: "STRING"}}}

	assert.Equal(t, a.Key(), b.Key(), "field order does not change identity")
	assert.NotEqual(t, a.Key(), c.Key())
	assert.Equal(t, "{id:INTEGER,name:STRING}", a.String())
}

func TestDistinctSchemas(t *testing.T) {
	a := Schema{Fields: []Field{{Name: "id", Type: "INTEGER"}}}
	b := Schema{Fields: []Field{{Name: "id", Type: "INTEGER"}, {Name: "tag", Type: "STRING"}}}

	assert.Equal(t, []Schema{a, b}, DistinctSchemas(a, b, a, b))
	assert.Empty(t, DistinctSchemas())
}

func TestSubmissionOutcome(t *testing.T) {
	assert.False(t, Accepted().HasRowErrors())
	assert.Empty(t, Accepted().RejectedIndices())

	empty := Rejected(map[int][]FieldError{2: nil})
	assert.False(t, empty.HasRowErrors())

	outcome := Rejected(map[int][]FieldError{
		5: {{Message: "bad"}},
		1: {{Location: "age", Message: "no such field: age."}},
		3: {},
	})
	assert.True(t, outcome.HasRowErrors())
	assert.Equal(t, []int{1, 5}, outcome.RejectedIndices())
}

func TestFatalError(t *testing.T) {
	err := &FatalError{
		Table: TableID{Dataset: "analytics", Table: "events"},
		RowErrors: map[int][]FieldError{
			3: {{Location: "age", Message: "no such field: age."}},
			1: {{Message: "bad value"}, {Message: "another"}},
		},
		Cause: ErrRowsRejected,
	}

	assert.Equal(t,
		"write to analytics.events rejected 2 row(s): [row 1: bad value; another] [row 3: age: no such field: age.]",
		err.Error())
	assert.Equal(t, map[int][]string{1: {"bad value", "another"}, 3: {"no such field: age."}}, err.Messages())
	assert.ErrorIs(t, err, ErrRowsRejected)
	assert.True(t, IsFatalErr(err))
	assert.False(t, IsTransportErr(err))

	cause := NewStatusError(403, errors.New("access denied"))
	transport := &FatalError{Table: TableID{Table: "events"}, Cause: cause}
	assert.Equal(t, "write to events failed: status 403: access denied", transport.Error())

	var statusErr *StatusError
	require.ErrorAs(t, transport, &statusErr)
	assert.Equal(t, 403, statusErr.Code)
}

func TestTransportError(t *testing.T) {
	cause := NewStatusError(503, nil)
	err := &TransportError{Table: TableID{Table: "events"}, Attempts: 3, Cause: cause}

	assert.Equal(t, "write to events failed after 3 attempt(s): status 503: Service Unavailable", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsTransportErr(err))
	assert.False(t, IsFatalErr(err))
}

func TestWriterConfigValidate(t *testing.T) {
	require.NoError(t, DefaultWriterConfig().Validate())

	tests := []struct {
		name   string
		modify func(*WriterConfig)
	}{
		{name: "negative retries", modify: func(c *WriterConfig) { c.RetryCount = -1 }},
		{name: "negative wait", modify: func(c *WriterConfig) { c.RetryWait = -time.Second }},
		{name: "unknown backoff", modify: func(c *WriterConfig) { c.Backoff = "linear" }},
		{name: "unknown strategy", modify: func(c *WriterConfig) { c.Strategy = "optimistic" }},
		{name: "invalid status code", modify: func(c *WriterConfig) { c.RetryableCodes = []int{42} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultWriterConfig()
			tt.modify(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
