// Package classifier maps the raw result of a submission to a small set of
// outcome classes the writer acts on.
package classifier

import (
	"errors"

	"github.com/glassflow/table-writer/internal/models"
)

type Class int

const (
	Success Class = iota
	PartialRowErrors
	RetryableInfrastructureError
	FatalError
)

func (c Class) String() string {
	switch c {
	case Success:
		return "success"
	case PartialRowErrors:
		return "partial_row_errors"
	case RetryableInfrastructureError:
		return "retryable"
	case FatalError:
		return "fatal"
	default:
		return "unknown"
	}
}

type Classifier struct {
	retryable map[int]struct{}
}

// New returns a Classifier treating the given transport status codes as retryable.
// With no codes it falls back to models.DefaultRetryableCodes.
func New(retryableCodes ...int) Classifier {
	if len(retryableCodes) == 0 {
		retryableCodes = models.DefaultRetryableCodes
	}

	retryable := make(map[int]struct{}, len(retryableCodes))
	for _, code := range retryableCodes {
		retryable[code] = struct{}{}
	}

	return Classifier{retryable: retryable}
}

// Classify decides what a submission result means. Transport errors take
// priority over the outcome; any transport error that is not a retryable
// *models.StatusError is fatal.
func (c Classifier) Classify(outcome models.SubmissionOutcome, err error) Class {
	if err != nil {
		var statusErr *models.StatusError
		if errors.As(err, &statusErr) {
			if _, ok := c.retryable[statusErr.Code]; ok {
				return RetryableInfrastructureError
			}
		}
		return FatalError
	}

	if outcome.HasRowErrors() {
		return PartialRowErrors
	}

	return Success
}

func (c Classifier) IsRetryableCode(code int) bool {
	_, ok := c.retryable[code]
	return ok
}
