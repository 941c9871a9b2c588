// Package bigquery submits batches through the BigQuery streaming insert API.
//
// Requests go through the generated REST client, which sends each insertAll
// exactly once. Retrying is left to the writer so its budget, backoff and
// metrics see every resubmission.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	bq "google.golang.org/api/bigquery/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/glassflow/table-writer/internal/models"
)

type Config struct {
	Project         string `envconfig:"PROJECT" validate:"required"`
	CredentialsFile string `envconfig:"CREDENTIALS_FILE"`
	Endpoint        string `envconfig:"ENDPOINT"`

	// RequestTimeout bounds a single insertAll request.
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s" validate:"gt=0"`
}

type Inserter struct {
	service *bq.Service
	project string
	timeout time.Duration
	log     *slog.Logger
}

// NewInserter builds the REST service from cfg. Extra options are appended
// after the ones derived from cfg.
func NewInserter(ctx context.Context, cfg Config, log *slog.Logger, extra ...option.ClientOption) (*Inserter, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	opts = append(opts, extra...)

	service, err := bq.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bigquery service: %w", err)
	}

	return &Inserter{
		service: service,
		project: cfg.Project,
		timeout: cfg.RequestTimeout,
		log:     log,
	}, nil
}

// Insert streams the rows in a single insertAll request. Rows rejected by the
// service are reported in the outcome; the request itself failing is returned
// as a *models.StatusError when it can be classified.
func (i *Inserter) Insert(ctx context.Context, table models.TableID, rows []models.Row) (models.SubmissionOutcome, error) {
	req := &bq.TableDataInsertAllRequest{
		Rows: make([]*bq.TableDataInsertAllRequestRows, len(rows)),
	}
	for idx, row := range rows {
		req.Rows[idx] = requestRow(row)
	}

	attemptCtx := ctx
	if i.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	resp, err := i.service.Tabledata.
		InsertAll(i.project, table.Dataset, table.Table, req).
		Context(attemptCtx).
		Do()
	if err != nil {
		// the caller gave up; report its cause rather than a store failure
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.Accepted(), fmt.Errorf("insertAll: %w", ctxErr)
		}
		return models.Accepted(), i.statusError(err)
	}

	if len(resp.InsertErrors) == 0 {
		return models.Accepted(), nil
	}

	i.log.DebugContext(ctx, "insertAll reported row errors",
		"table", table.String(),
		"rejected_rows", len(resp.InsertErrors))

	return models.Rejected(rowErrors(resp.InsertErrors)), nil
}

func requestRow(row models.Row) *bq.TableDataInsertAllRequestRows {
	values := make(map[string]bq.JsonValue, len(row.Values))
	for k, v := range row.Values {
		values[k] = v
	}

	// an empty insert ID disables best-effort deduplication for the row
	return &bq.TableDataInsertAllRequestRows{
		InsertId: row.InsertID,
		Json:     values,
	}
}

func rowErrors(insertErrors []*bq.TableDataInsertAllResponseInsertErrors) map[int][]models.FieldError {
	result := make(map[int][]models.FieldError, len(insertErrors))
	for _, rowErr := range insertErrors {
		idx := int(rowErr.Index)
		for _, e := range rowErr.Errors {
			result[idx] = append(result[idx], models.FieldError{
				Location: e.Location,
				Reason:   e.Reason,
				Message:  e.Message,
			})
		}
		if len(rowErr.Errors) == 0 {
			result[idx] = append(result[idx], models.FieldError{Message: "row rejected without details"})
		}
	}
	return result
}

// statusError keeps the HTTP code the service answered with, so quota
// failures (403 rateLimitExceeded) stay fatal and backend failures (500, 503)
// stay retryable. A request that ran out of its own time budget or never
// reached the service is reported as 503.
func (i *Inserter) statusError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &models.StatusError{
			Code:    apiErr.Code,
			Message: apiMessage(apiErr),
			Err:     err,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &models.StatusError{
			Code:    http.StatusServiceUnavailable,
			Message: fmt.Sprintf("insertAll request timed out after %s", i.timeout),
			Err:     err,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &models.StatusError{
			Code:    http.StatusServiceUnavailable,
			Message: "insertAll request failed: " + netErr.Error(),
			Err:     err,
		}
	}

	return fmt.Errorf("insertAll: %w", err)
}

func apiMessage(apiErr *googleapi.Error) string {
	reasons := make([]string, 0, len(apiErr.Errors))
	for _, item := range apiErr.Errors {
		if item.Reason != "" {
			reasons = append(reasons, item.Reason)
		}
	}

	msg := apiErr.Message
	if msg == "" {
		msg = http.StatusText(apiErr.Code)
	}
	if len(reasons) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (%s)", msg, strings.Join(reasons, ", "))
}
