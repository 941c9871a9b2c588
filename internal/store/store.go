// Package store defines the submission capability of a remote analytical store.
package store

import (
	"context"

	"github.com/glassflow/table-writer/internal/models"
)

// Inserter submits a batch of rows to a destination table as one request.
//
// Row-level rejections are reported through the returned outcome. Failures of
// the request as a whole are returned as an error; a *models.StatusError
// carries the store's status code.
type Inserter interface {
	Insert(ctx context.Context, table models.TableID, rows []models.Row) (models.SubmissionOutcome, error)
}

// SchemaReconciler updates what the writer considers the accepted shape of a
// destination table after a structural rejection.
type SchemaReconciler interface {
	Reconcile(ctx context.Context, table models.TableID, schemas []models.Schema) error
}
