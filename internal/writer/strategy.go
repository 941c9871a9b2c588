package writer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/glassflow/table-writer/internal/models"
	"github.com/glassflow/table-writer/internal/store"
)

// SchemaUpdateHint is logged on structural rejections when the hint is enabled.
const SchemaUpdateHint = "You may want to enable auto schema updates by setting TABLEWRITER_WRITER_STRATEGY=adaptive"

// Strategy performs the submission for the writer and decides how structural
// rejections are handled. The set of strategies is closed; use NewStrategy.
type Strategy interface {
	Name() string
	Submit(ctx context.Context, req Request) (models.SubmissionOutcome, error)
	// OnStructuralRejection reports whether the rejection was reconciled and
	// the batch may be submitted one more time.
	OnStructuralRejection(ctx context.Context, req Request, outcome models.SubmissionOutcome) (bool, error)

	sealed()
}

// NewStrategy builds the strategy selected by name. The reconciler is only
// used, and then required, by the adaptive strategy.
func NewStrategy(
	name string,
	inserter store.Inserter,
	reconciler store.SchemaReconciler,
	schemaUpdateHint bool,
	log *slog.Logger,
) (Strategy, error) {
	switch name {
	case "", models.StrategyStrict:
		return NewStrict(inserter, schemaUpdateHint, log), nil
	case models.StrategyAdaptive:
		if reconciler == nil {
			return nil, models.ErrReconcilerRequired
		}
		return NewAdaptive(inserter, reconciler, log), nil
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownStrategy, name)
	}
}

// Strict sends the batch as a single request and never retries row errors.
type Strict struct {
	inserter store.Inserter
	hint     bool
	log      *slog.Logger
}

func NewStrict(inserter store.Inserter, schemaUpdateHint bool, log *slog.Logger) *Strict {
	return &Strict{
		inserter: inserter,
		hint:     schemaUpdateHint,
		log:      log,
	}
}

func (s *Strict) Name() string { return models.StrategyStrict }

func (s *Strict) Submit(ctx context.Context, req Request) (models.SubmissionOutcome, error) {
	outcome, err := s.inserter.Insert(ctx, req.Table, req.Rows)
	if err != nil {
		return outcome, fmt.Errorf("insert rows into %s: %w", req.Table, err)
	}

	if !outcome.HasRowErrors() {
		s.log.DebugContext(ctx, "table insertion completed with no reported errors",
			"table", req.Table.String(),
			"rows", len(req.Rows))
		return outcome, nil
	}

	if s.hint {
		s.log.WarnContext(ctx, SchemaUpdateHint,
			"table", req.Table.String(),
			"rejected_rows", len(outcome.RejectedIndices()))
	}

	return outcome, nil
}

func (s *Strict) OnStructuralRejection(context.Context, Request, models.SubmissionOutcome) (bool, error) {
	return false, nil
}

func (s *Strict) sealed() {}

// Adaptive gives a reconciler the chance to react to a structural rejection
// before the batch is submitted again.
type Adaptive struct {
	inserter   store.Inserter
	reconciler store.SchemaReconciler
	log        *slog.Logger
}

func NewAdaptive(inserter store.Inserter, reconciler store.SchemaReconciler, log *slog.Logger) *Adaptive {
	return &Adaptive{
		inserter:   inserter,
		reconciler: reconciler,
		log:        log,
	}
}

func (a *Adaptive) Name() string { return models.StrategyAdaptive }

func (a *Adaptive) Submit(ctx context.Context, req Request) (models.SubmissionOutcome, error) {
	outcome, err := a.inserter.Insert(ctx, req.Table, req.Rows)
	if err != nil {
		return outcome, fmt.Errorf("insert rows into %s: %w", req.Table, err)
	}

	if !outcome.HasRowErrors() {
		a.log.DebugContext(ctx, "table insertion completed with no reported errors",
			"table", req.Table.String(),
			"rows", len(req.Rows))
	}

	return outcome, nil
}

func (a *Adaptive) OnStructuralRejection(ctx context.Context, req Request, outcome models.SubmissionOutcome) (bool, error) {
	a.log.InfoContext(ctx, "Rows rejected, reconciling destination schema",
		"table", req.Table.String(),
		"rejected_rows", len(outcome.RejectedIndices()),
		"schemas", len(req.Schemas))

	err := a.reconciler.Reconcile(ctx, req.Table, req.Schemas)
	if err != nil {
		return false, fmt.Errorf("reconcile schema of %s: %w", req.Table, err)
	}

	return true, nil
}

func (a *Adaptive) sealed() {}
