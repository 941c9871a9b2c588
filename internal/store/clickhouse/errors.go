package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/ClickHouse/ch-go"
	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/glassflow/table-writer/internal/models"
)

var ErrColumnsMissing = errors.New("destination columns missing")

// Server exception codes, see ErrorCodes.cpp in the ClickHouse sources.
const (
	codeUnknownTable               = 60
	codeUnknownDatabase            = 81
	codeTimeoutExceeded            = 159
	codeTooManySimultaneousQueries = 202
	codeSocketTimeout              = 209
	codeNetworkError               = 210
	codeMemoryLimitExceeded        = 241
	codeTableIsReadOnly            = 242
	codeTooManyParts               = 252
	codeUnknownStatusOfInsert      = 319
	codeAllReplicasLost            = 415
	codeAccessDenied               = 497
	codeAuthenticationFailed       = 516
	codeKeeperException            = 999
)

// exceptionStatus maps a server exception code onto the HTTP status the
// writer classifies. Exceptions without a mapping mean the request itself is
// wrong and are reported as 400.
func exceptionStatus(code int32) int {
	switch code {
	case codeTimeoutExceeded,
		codeTooManySimultaneousQueries,
		codeSocketTimeout,
		codeNetworkError,
		codeMemoryLimitExceeded,
		codeTableIsReadOnly,
		codeTooManyParts,
		codeUnknownStatusOfInsert,
		codeAllReplicasLost,
		codeKeeperException:
		return http.StatusServiceUnavailable
	case codeAuthenticationFailed:
		return http.StatusUnauthorized
	case codeAccessDenied:
		return http.StatusForbidden
	case codeUnknownTable, codeUnknownDatabase:
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

// statusError converts driver errors into *models.StatusError where the
// failure has a status. Anything else is returned wrapped and is treated as
// fatal by the writer.
func statusError(err error) error {
	if err == nil {
		return nil
	}

	var statusErr *models.StatusError
	if errors.As(err, &statusErr) {
		return err
	}

	var ex *clickhouse.Exception
	if errors.As(err, &ex) {
		return &models.StatusError{
			Code:    exceptionStatus(ex.Code),
			Message: fmt.Sprintf("code %d: %s", ex.Code, ex.Message),
			Err:     err,
		}
	}

	if chEx, ok := ch.AsException(err); ok {
		return &models.StatusError{
			Code:    exceptionStatus(int32(chEx.Code)),
			Message: fmt.Sprintf("code %d: %s", int32(chEx.Code), chEx.Message),
			Err:     err,
		}
	}

	if isConnectionErr(err) {
		return &models.StatusError{
			Code:    http.StatusServiceUnavailable,
			Message: err.Error(),
			Err:     err,
		}
	}

	return fmt.Errorf("clickhouse: %w", err)
}

func isConnectionErr(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, clickhouse.ErrAcquireConnTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}
