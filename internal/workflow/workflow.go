// Package workflow enforces the status lifecycle Open -> In Progress -> Done.
package workflow

import (
	"fmt"

	"github.com/joescharf/issueboard/internal/models"
)

// Rejection reasons shown to the user verbatim.
const (
	ReasonOpenToDone = "Cannot move directly from Open to Done. Must go through 'In Progress' first."
	ReasonDoneToOpen = "Cannot revert from Done back to Open."
)

// ValidationError reports a transition the workflow does not allow.
type ValidationError struct {
	From   models.IssueStatus
	To     models.IssueStatus
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// ValidateTransition returns nil when an issue may change status from one
// value to the other, and a *ValidationError otherwise. Only Open -> Done and
// Done -> Open are forbidden; stepping back one state at a time is allowed.
func ValidateTransition(from, to models.IssueStatus) error {
	if !from.Valid() {
		return &ValidationError{From: from, To: to, Reason: fmt.Sprintf("Unknown current status %q.", from)}
	}
	if !to.Valid() {
		return &ValidationError{From: from, To: to, Reason: fmt.Sprintf("Unknown status %q.", to)}
	}
	if from == to {
		return nil
	}
	switch {
	case from == models.IssueStatusOpen && to == models.IssueStatusDone:
		return &ValidationError{From: from, To: to, Reason: ReasonOpenToDone}
	case from == models.IssueStatusDone && to == models.IssueStatusOpen:
		return &ValidationError{From: from, To: to, Reason: ReasonDoneToOpen}
	}
	return nil
}
