package models

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrEmptyTable         = errors.New("destination table name is empty")
	ErrRowsRejected       = errors.New("rows rejected by the store")
	ErrReconcilerRequired = errors.New("adaptive strategy requires a schema reconciler")
	ErrUnknownStrategy    = errors.New("unknown submission strategy")
	ErrUnknownBackoff     = errors.New("unknown backoff policy")
)

// StatusError is a transport-level failure reported by the store client.
type StatusError struct {
	Code    int
	Message string
	Err     error
}

func NewStatusError(code int, err error) *StatusError {
	msg := http.StatusText(code)
	if err != nil {
		msg = err.Error()
	}
	return &StatusError{Code: code, Message: msg, Err: err}
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Message)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// FatalError is returned when a batch cannot be delivered and retrying it
// unchanged cannot help. RowErrors holds the per-row causes reported by the
// last attempt; Cause holds a non-retryable transport failure when there were
// no row-level causes.
type FatalError struct {
	Table     TableID
	RowErrors map[int][]FieldError
	Cause     error
}

func (e *FatalError) Error() string {
	if len(e.RowErrors) == 0 {
		return fmt.Sprintf("write to %s failed: %v", e.Table, e.Cause)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "write to %s rejected %d row(s):", e.Table, len(e.RowErrors))
	for _, idx := range Rejected(e.RowErrors).RejectedIndices() {
		msgs := make([]string, 0, len(e.RowErrors[idx]))
		for _, fe := range e.RowErrors[idx] {
			msgs = append(msgs, fe.String())
		}
		fmt.Fprintf(&b, " [row %d: %s]", idx, strings.Join(msgs, "; "))
	}
	return b.String()
}

func (e *FatalError) Unwrap() error {
	return e.Cause
}

// Messages returns the verbatim store messages keyed by row index.
func (e *FatalError) Messages() map[int][]string {
	result := make(map[int][]string, len(e.RowErrors))
	for idx, errs := range e.RowErrors {
		msgs := make([]string, len(errs))
		for i, fe := range errs {
			msgs[i] = fe.Message
		}
		result[idx] = msgs
	}
	return result
}

// TransportError is returned once the retry budget is spent on retryable
// infrastructure failures.
type TransportError struct {
	Table    TableID
	Attempts int
	Cause    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("write to %s failed after %d attempt(s): %v", e.Table, e.Attempts, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

func IsFatalErr(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

func IsTransportErr(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
