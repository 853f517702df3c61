package board

import (
	"context"
	"fmt"

	"github.com/joescharf/issueboard/internal/models"
)

// Admission drives one creation through Idle, PendingConfirmation and
// Committed for a caller that keeps state between steps, such as an
// interactive prompt. Confirm writes the suspended payload exactly as it was
// checked and never runs detection again.
type Admission struct {
	svc       *Service
	principal models.Principal

	state   State
	fields  models.IssueFields
	matches []models.IssueRef
	issue   *models.Issue
}

// NewAdmission starts an Idle admission for p.
func (s *Service) NewAdmission(p models.Principal) *Admission {
	return &Admission{svc: s, principal: p}
}

// State returns the current phase.
func (a *Admission) State() State { return a.state }

// Matches returns the similar issues while PendingConfirmation.
func (a *Admission) Matches() []models.IssueRef { return a.matches }

// Fields returns the normalized payload once it has been submitted.
func (a *Admission) Fields() models.IssueFields { return a.fields }

// Issue returns the written issue once Committed.
func (a *Admission) Issue() *models.Issue { return a.issue }

// Submit runs the checked creation. On failure the admission stays Idle.
func (a *Admission) Submit(ctx context.Context, fields models.IssueFields) (State, error) {
	if a.state != Idle {
		return a.state, fmt.Errorf("%w: submit while %s", ErrInvalidState, a.state)
	}

	res, err := a.svc.Create(ctx, a.principal, fields)
	if err != nil {
		return a.state, err
	}

	a.fields = res.Fields
	a.matches = res.Matches
	a.issue = res.Issue
	a.state = res.State
	return a.state, nil
}

// Confirm writes the suspended payload. On failure the admission stays
// PendingConfirmation and may be confirmed again.
func (a *Admission) Confirm(ctx context.Context) (*models.Issue, error) {
	if a.state != PendingConfirmation {
		return nil, fmt.Errorf("%w: confirm while %s", ErrInvalidState, a.state)
	}

	issue, err := a.svc.Commit(ctx, a.principal, a.fields)
	if err != nil {
		return nil, err
	}

	a.issue = issue
	a.matches = nil
	a.state = Committed
	return issue, nil
}

// Cancel drops the suspended payload and returns to Idle.
func (a *Admission) Cancel() error {
	if a.state != PendingConfirmation {
		return fmt.Errorf("%w: cancel while %s", ErrInvalidState, a.state)
	}
	a.fields = models.IssueFields{}
	a.matches = nil
	a.state = Idle
	return nil
}
