package mocks

import (
	"context"
	"sync"

	"github.com/glassflow/table-writer/internal/models"
)

type Response struct {
	Outcome models.SubmissionOutcome
	Err     error
}

// MockInserter replays Responses in order, repeating the last one once they run
// out. InsertFunc takes precedence when set.
type MockInserter struct {
	InsertFunc func(ctx context.Context, table models.TableID, rows []models.Row) (models.SubmissionOutcome, error)
	Responses  []Response

	mu    sync.Mutex
	calls int
}

func NewMockInserter(responses ...Response) *MockInserter {
	return &MockInserter{Responses: responses}
}

func (m *MockInserter) Insert(ctx context.Context, table models.TableID, rows []models.Row) (models.SubmissionOutcome, error) {
	m.mu.Lock()
	call := m.calls
	m.calls++
	m.mu.Unlock()

	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, table, rows)
	}
	if len(m.Responses) == 0 {
		return models.Accepted(), nil
	}
	if call >= len(m.Responses) {
		call = len(m.Responses) - 1
	}
	return m.Responses[call].Outcome, m.Responses[call].Err
}

func (m *MockInserter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type MockReconciler struct {
	ReconcileFunc func(ctx context.Context, table models.TableID, schemas []models.Schema) error

	mu      sync.Mutex
	calls   int
	schemas []models.Schema
}

func (m *MockReconciler) Reconcile(ctx context.Context, table models.TableID, schemas []models.Schema) error {
	m.mu.Lock()
	m.calls++
	m.schemas = schemas
	m.mu.Unlock()

	if m.ReconcileFunc != nil {
		return m.ReconcileFunc(ctx, table, schemas)
	}
	return nil
}

func (m *MockReconciler) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockReconciler) LastSchemas() []models.Schema {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schemas
}
