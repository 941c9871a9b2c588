package models

import (
	"fmt"
	"sort"
)

// FieldError is a single diagnostic reported by the store for a rejected row.
// Message is kept verbatim.
type FieldError struct {
	Location string `json:"location,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Message  string `json:"message"`
}

func (e FieldError) String() string {
	if e.Location == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Location, e.Message)
}

// SubmissionOutcome is the application-level response to a single insert request.
// A nil or empty RowErrors means every row was accepted.
type SubmissionOutcome struct {
	RowErrors map[int][]FieldError
}

func Accepted() SubmissionOutcome {
	return SubmissionOutcome{}
}

func Rejected(rowErrors map[int][]FieldError) SubmissionOutcome {
	return SubmissionOutcome{RowErrors: rowErrors}
}

func (o SubmissionOutcome) HasRowErrors() bool {
	for _, errs := range o.RowErrors {
		if len(errs) > 0 {
			return true
		}
	}
	return false
}

// RejectedIndices returns the sorted indices of rows with at least one error.
func (o SubmissionOutcome) RejectedIndices() []int {
	indices := make([]int, 0, len(o.RowErrors))
	for idx, errs := range o.RowErrors {
		if len(errs) > 0 {
			indices = append(indices, idx)
		}
	}
	sort.Ints(indices)
	return indices
}
